package store

import (
	"database/sql"
	"fmt"
	"strings"
)

const tagsLikeLimit = 50

// TagsLike finds tags whose text contains the given fragment, with the
// translation for the requested language when one exists. It is a pure read
// and works in either transaction mode.
func (s *Session) TagsLike(text, language string) ([]TagSuggestion, error) {
	pattern := "%" + escapeLike(text) + "%"

	rows, err := s.query(
		`SELECT t.tag_text, tt.translation_text
		 FROM tags t
		 LEFT JOIN tag_translations tt
		   ON tt.tag_id = t.tag_id AND tt.language = ?
		 WHERE t.tag_text LIKE ? ESCAPE '\'
		 ORDER BY t.tag_text
		 LIMIT ?`,
		language, pattern, tagsLikeLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("tags like %q: %w", text, err)
	}
	defer rows.Close()

	var out []TagSuggestion
	for rows.Next() {
		var (
			name        string
			translation sql.NullString
		)
		if err := rows.Scan(&name, &translation); err != nil {
			return nil, err
		}
		out = append(out, TagSuggestion{Name: name, Translation: translation.String})
	}
	return out, rows.Err()
}

// escapeLike escapes LIKE metacharacters in user-supplied fragments.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// WorkListing is the dashboard's catalog row shape.
type WorkListing struct {
	WorkID       uint64  `json:"work_id"`
	CreatorID    uint64  `json:"creator_id"`
	CreatorName  string  `json:"creator_name"`
	Type         string  `json:"type"`
	Title        string  `json:"title"`
	PageCount    int     `json:"page_count"`
	Views        int     `json:"views"`
	Bookmarks    int     `json:"bookmarks"`
	BookmarkRate float64 `json:"bookmark_rate"`
	IsDownloaded bool    `json:"is_downloaded"`
	CreateDate   int64   `json:"create_date"`
}

// ListWorks pages through the catalog newest-first by insertion order.
func (s *Session) ListWorks(limit, offset int) ([]WorkListing, error) {
	rows, err := s.query(
		`SELECT w.work_id, w.creator_id, COALESCE(c.name, ''), w.work_type,
		        w.title, w.page_count, w.total_views, w.total_bookmarks,
		        COALESCE(w.bookmark_rate, 0), w.is_downloaded,
		        COALESCE(w.create_date, 0)
		 FROM work_seq q
		 JOIN works w ON w.work_id = q.work_id
		 LEFT JOIN creators c ON c.creator_id = w.creator_id
		 ORDER BY q.seq_id DESC
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}
	defer rows.Close()

	var out []WorkListing
	for rows.Next() {
		var w WorkListing
		if err := rows.Scan(&w.WorkID, &w.CreatorID, &w.CreatorName, &w.Type,
			&w.Title, &w.PageCount, &w.Views, &w.Bookmarks,
			&w.BookmarkRate, &w.IsDownloaded, &w.CreateDate); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CountWorks returns the catalog size.
func (s *Session) CountWorks() (int, error) {
	var n int
	if err := s.queryRow(`SELECT COUNT(*) FROM works`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count works: %w", err)
	}
	return n, nil
}
