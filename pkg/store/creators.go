package store

import (
	"database/sql"
	"fmt"
	"time"

	"pixmirror/pkg/pixiv"
)

// UpsertCreator merges a creator reference into the mirror. Empty input
// fields never overwrite existing values.
func (s *Session) UpsertCreator(info pixiv.CreatorInfo) error {
	if s.mode != ReadWrite {
		return ErrReadOnlySession
	}

	var existing Creator
	err := s.queryRow(
		`SELECT creator_id, name, account, is_followed FROM creators WHERE creator_id = ?`,
		info.ID,
	).Scan(&existing.ID, &existing.Name, &existing.Account, &existing.IsFollowed)

	switch {
	case err == sql.ErrNoRows:
		_, err = s.exec(
			`INSERT INTO creators (creator_id, name, account, is_followed, insert_date)
			 VALUES (?, ?, ?, ?, ?)`,
			info.ID, info.Name, info.Account, info.IsFollowed, time.Now().Unix(),
		)
		if err != nil {
			if !isConstraintErr(err) {
				return fmt.Errorf("insert creator %d: %w", info.ID, err)
			}
			// benign duplicate-key race: fall through to merge
			return s.mergeCreator(info)
		}
	case err != nil:
		return fmt.Errorf("query creator %d: %w", info.ID, err)
	default:
		if err := s.mergeCreator(info); err != nil {
			return err
		}
	}

	if info.Profile != nil {
		if err := s.upsertCreatorDetail(info.ID, info.Profile); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) mergeCreator(info pixiv.CreatorInfo) error {
	_, err := s.exec(
		`UPDATE creators SET
		   name        = CASE WHEN ? != '' THEN ? ELSE name END,
		   account     = CASE WHEN ? != '' THEN ? ELSE account END,
		   is_followed = ?
		 WHERE creator_id = ?`,
		info.Name, info.Name, info.Account, info.Account, info.IsFollowed, info.ID,
	)
	if err != nil {
		return fmt.Errorf("merge creator %d: %w", info.ID, err)
	}
	return nil
}

func (s *Session) upsertCreatorDetail(creatorID uint64, p *pixiv.CreatorProfile) error {
	_, err := s.exec(
		`INSERT INTO creator_details
		   (creator_id, total_illusts, total_manga, total_novels,
		    total_public_bookmarks, total_follow_users, avatar_url, background_url, comment)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(creator_id) DO UPDATE SET
		   total_illusts          = excluded.total_illusts,
		   total_manga            = excluded.total_manga,
		   total_novels           = excluded.total_novels,
		   total_public_bookmarks = excluded.total_public_bookmarks,
		   total_follow_users     = excluded.total_follow_users,
		   avatar_url             = excluded.avatar_url,
		   background_url         = excluded.background_url,
		   comment                = excluded.comment`,
		creatorID, p.TotalIllusts, p.TotalManga, p.TotalNovels,
		p.TotalPublicBookmarks, p.TotalFollowUsers, p.AvatarURL, p.BackgroundURL, p.Comment,
	)
	if err != nil {
		return fmt.Errorf("upsert creator detail %d: %w", creatorID, err)
	}
	return nil
}
