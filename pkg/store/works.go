package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"pixmirror/pkg/pixiv"
)

// UpsertWork merges one catalog item into the mirror: the creator row, the
// work row, its caption, per-page image URL sets, animation frame metadata,
// tag associations, and the insertion-order record. It returns whether the
// work row was newly created.
func (s *Session) UpsertWork(item pixiv.WorkItem, language string, cache *TagCache) (created bool, err error) {
	if s.mode != ReadWrite {
		return false, ErrReadOnlySession
	}
	if item.ID == 0 {
		return false, fmt.Errorf("work has no id")
	}
	if item.Creator.ID == 0 {
		return false, fmt.Errorf("work %d has no creator id", item.ID)
	}

	if err := s.UpsertCreator(item.Creator); err != nil {
		return false, err
	}

	created, err = s.upsertWorkRow(item)
	if err != nil {
		return false, err
	}

	// one order record per work, created on first sight, never reassigned
	if _, err := s.exec(`INSERT OR IGNORE INTO work_seq (work_id) VALUES (?)`, item.ID); err != nil {
		return false, fmt.Errorf("insert order record for work %d: %w", item.ID, err)
	}

	if item.Caption != "" {
		_, err := s.exec(
			`INSERT INTO captions (work_id, caption_text) VALUES (?, ?)
			 ON CONFLICT(work_id) DO UPDATE SET caption_text = excluded.caption_text`,
			item.ID, item.Caption,
		)
		if err != nil {
			return false, fmt.Errorf("upsert caption for work %d: %w", item.ID, err)
		}
	}

	if err := s.upsertImageURLs(item); err != nil {
		return false, err
	}

	if item.Ugoira != nil {
		_, err := s.exec(
			`INSERT INTO ugoira_frames (work_id, delay_text, zip_url) VALUES (?, ?, ?)
			 ON CONFLICT(work_id) DO UPDATE SET
			   delay_text = excluded.delay_text,
			   zip_url    = excluded.zip_url`,
			item.ID, EncodeDelays(item.Ugoira.Delays), item.Ugoira.ZipURL,
		)
		if err != nil {
			return false, fmt.Errorf("upsert ugoira for work %d: %w", item.ID, err)
		}
	}

	if len(item.Tags) > 0 {
		tagIDs, err := s.ResolveTags(item.Tags, language, cache)
		if err != nil {
			return false, err
		}
		for _, id := range tagIDs {
			if _, err := s.exec(
				`INSERT OR IGNORE INTO work_tags (work_id, tag_id) VALUES (?, ?)`,
				item.ID, id,
			); err != nil {
				return false, fmt.Errorf("associate tag %d with work %d: %w", id, item.ID, err)
			}
		}
	}

	return created, nil
}

// upsertWorkRow inserts or merges the work row itself. Unset inputs (empty
// strings, zero counts, zero timestamps) never overwrite existing values
// with emptiness. The download-completion flag is owned by the download path
// and is never touched here.
func (s *Session) upsertWorkRow(item pixiv.WorkItem) (created bool, err error) {
	rate := bookmarkRate(item.TotalViews, item.TotalBookmarks)
	var createDate interface{}
	if !item.CreatedAt.IsZero() {
		createDate = item.CreatedAt.Unix()
	}

	var one int
	err = s.queryRow(`SELECT 1 FROM works WHERE work_id = ?`, item.ID).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.exec(
			`INSERT INTO works
			   (work_id, creator_id, work_type, title, page_count,
			    total_views, total_bookmarks, is_bookmarked, bookmark_rate,
			    create_date, insert_date)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.Creator.ID, string(item.Type), item.Title, item.PageCount,
			item.TotalViews, item.TotalBookmarks, item.IsBookmarked, rate,
			createDate, time.Now().Unix(),
		)
		if err == nil {
			return true, nil
		}
		if !isConstraintErr(err) {
			return false, fmt.Errorf("insert work %d: %w", item.ID, err)
		}
		// benign duplicate-key race: another writer got there first
		fallthrough
	case err == nil:
		_, err = s.exec(
			`UPDATE works SET
			   creator_id      = ?,
			   work_type       = CASE WHEN ? != '' THEN ? ELSE work_type END,
			   title           = CASE WHEN ? != '' THEN ? ELSE title END,
			   page_count      = CASE WHEN ? > 0 THEN ? ELSE page_count END,
			   total_views     = CASE WHEN ? > 0 THEN ? ELSE total_views END,
			   total_bookmarks = CASE WHEN ? > 0 THEN ? ELSE total_bookmarks END,
			   is_bookmarked   = ?,
			   bookmark_rate   = COALESCE(?, bookmark_rate),
			   create_date     = COALESCE(?, create_date)
			 WHERE work_id = ?`,
			item.Creator.ID,
			string(item.Type), string(item.Type),
			item.Title, item.Title,
			item.PageCount, item.PageCount,
			item.TotalViews, item.TotalViews,
			item.TotalBookmarks, item.TotalBookmarks,
			item.IsBookmarked,
			rate,
			createDate,
			item.ID,
		)
		if err != nil {
			return false, fmt.Errorf("merge work %d: %w", item.ID, err)
		}
		return false, nil
	default:
		return false, fmt.Errorf("query work %d: %w", item.ID, err)
	}
}

// upsertImageURLs writes the per-page URL sets: page 0 from the single-page
// block, or one row per page from the multi-page block. Row identity is
// (work id, page).
func (s *Session) upsertImageURLs(item pixiv.WorkItem) error {
	upsert := func(set ImageURLSet) error {
		_, err := s.exec(
			`INSERT INTO work_image_urls (work_id, page, square_medium, medium, large, original)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(work_id, page) DO UPDATE SET
			   square_medium = excluded.square_medium,
			   medium        = excluded.medium,
			   large         = excluded.large,
			   original      = excluded.original`,
			set.WorkID, set.Page, set.SquareMedium, set.Medium, set.Large, set.Original,
		)
		if err != nil {
			return fmt.Errorf("upsert image urls for work %d page %d: %w", set.WorkID, set.Page, err)
		}
		return nil
	}

	if item.PageCount > 1 && len(item.Pages) > 0 {
		for page, u := range item.Pages {
			if err := upsert(ImageURLSet{
				WorkID: item.ID, Page: page,
				SquareMedium: u.SquareMedium, Medium: u.Medium, Large: u.Large, Original: u.Original,
			}); err != nil {
				return err
			}
		}
		return nil
	}

	if item.PageCount == 1 && item.SinglePage != nil {
		u := item.SinglePage
		return upsert(ImageURLSet{
			WorkID: item.ID, Page: 0,
			SquareMedium: u.SquareMedium, Medium: u.Medium, Large: u.Large, Original: u.Original,
		})
	}
	return nil
}

// GetWork reads one work row, or nil when absent.
func (s *Session) GetWork(workID uint64) (*Work, error) {
	var (
		w    Work
		typ  sql.NullString
		titl sql.NullString
		cd   sql.NullInt64
	)
	err := s.queryRow(
		`SELECT work_id, creator_id, work_type, title, page_count,
		        total_views, total_bookmarks, is_bookmarked, is_downloaded,
		        bookmark_rate, create_date, insert_date
		 FROM works WHERE work_id = ?`, workID,
	).Scan(&w.ID, &w.CreatorID, &typ, &titl, &w.PageCount,
		&w.TotalViews, &w.TotalBookmarks, &w.IsBookmarked, &w.IsDownloaded,
		&w.BookmarkRate, &cd, &w.InsertDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work %d: %w", workID, err)
	}
	w.Type = typ.String
	w.Title = titl.String
	w.CreateDate = cd.Int64
	return &w, nil
}

// GetUgoira reads a work's animation frame metadata, or nil when absent.
func (s *Session) GetUgoira(workID uint64) (*UgoiraFrames, error) {
	var u UgoiraFrames
	err := s.queryRow(
		`SELECT work_id, delay_text, zip_url FROM ugoira_frames WHERE work_id = ?`, workID,
	).Scan(&u.WorkID, &u.DelayText, &u.ZipURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ugoira %d: %w", workID, err)
	}
	return &u, nil
}

// GetCaption reads a work's caption text.
func (s *Session) GetCaption(workID uint64) (string, bool, error) {
	var text string
	err := s.queryRow(`SELECT caption_text FROM captions WHERE work_id = ?`, workID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get caption %d: %w", workID, err)
	}
	return text, true, nil
}

// ImageURLs reads a work's per-page URL sets ordered by page.
func (s *Session) ImageURLs(workID uint64) ([]ImageURLSet, error) {
	rows, err := s.query(
		`SELECT work_id, page, square_medium, medium, large, original
		 FROM work_image_urls WHERE work_id = ? ORDER BY page`, workID)
	if err != nil {
		return nil, fmt.Errorf("image urls for work %d: %w", workID, err)
	}
	defer rows.Close()

	var out []ImageURLSet
	for rows.Next() {
		var u ImageURLSet
		if err := rows.Scan(&u.WorkID, &u.Page, &u.SquareMedium, &u.Medium, &u.Large, &u.Original); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// InsertionOrder returns work ids in insertion-order-index sequence.
func (s *Session) InsertionOrder() ([]uint64, error) {
	rows, err := s.query(`SELECT work_id FROM work_seq ORDER BY seq_id`)
	if err != nil {
		return nil, fmt.Errorf("read insertion order: %w", err)
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// isConstraintErr reports whether err is a sqlite unique/primary key
// violation, the benign race resolved by re-query and merge.
func isConstraintErr(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint
	}
	return false
}
