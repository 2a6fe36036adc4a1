package store

import (
	"database/sql"
	"fmt"

	"pixmirror/pkg/pixiv"
)

// TagCache maps tag text to the stored tag identity for one traversal run.
// It is constructed per run and threaded through calls explicitly; it is not
// safe for concurrent traversals and is never shared between them.
type TagCache struct {
	ids map[string]int64
}

// NewTagCache creates an empty per-run tag cache.
func NewTagCache() *TagCache {
	return &TagCache{ids: make(map[string]int64)}
}

func (c *TagCache) get(text string) (int64, bool) {
	id, ok := c.ids[text]
	return id, ok
}

func (c *TagCache) put(text string, id int64) {
	c.ids[text] = id
}

// Len returns the number of cached tags.
func (c *TagCache) Len() int {
	return len(c.ids)
}

// ResolveTags canonicalizes a work's tag list to stored tag identities.
// Duplicate names within the list are dropped before resolution. Lookup
// order is cache, then store by tag text, then create; a created tag is
// flushed immediately so its generated identity can anchor translation rows.
// A translation for an already-translated (tag, language) pair overwrites
// the existing text.
func (s *Session) ResolveTags(tags []pixiv.TagInfo, language string, cache *TagCache) ([]int64, error) {
	if s.mode != ReadWrite {
		return nil, ErrReadOnlySession
	}

	seen := make(map[string]struct{}, len(tags))
	ids := make([]int64, 0, len(tags))

	for _, t := range tags {
		if t.Name == "" {
			continue
		}
		if _, dup := seen[t.Name]; dup {
			continue
		}
		seen[t.Name] = struct{}{}

		id, err := s.resolveTag(t.Name, cache)
		if err != nil {
			return nil, err
		}

		if t.TranslatedName != "" {
			if _, err := s.exec(
				`INSERT INTO tag_translations (tag_id, language, translation_text)
				 VALUES (?, ?, ?)
				 ON CONFLICT(tag_id, language) DO UPDATE SET
				   translation_text = excluded.translation_text`,
				id, language, t.TranslatedName,
			); err != nil {
				return nil, fmt.Errorf("upsert translation for tag %q: %w", t.Name, err)
			}
		}

		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Session) resolveTag(text string, cache *TagCache) (int64, error) {
	if id, ok := cache.get(text); ok {
		return id, nil
	}

	id, found, err := s.lookupTag(text)
	if err != nil {
		return 0, err
	}
	if !found {
		res, err := s.exec(`INSERT INTO tags (tag_text) VALUES (?)`, text)
		if err != nil {
			if !isConstraintErr(err) {
				return 0, fmt.Errorf("insert tag %q: %w", text, err)
			}
			// benign race: the tag appeared between lookup and insert
			id, found, err = s.lookupTag(text)
			if err != nil {
				return 0, err
			}
			if !found {
				return 0, fmt.Errorf("tag %q vanished after duplicate-key conflict", text)
			}
		} else if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("tag %q identity: %w", text, err)
		}
	}

	cache.put(text, id)
	return id, nil
}

func (s *Session) lookupTag(text string) (int64, bool, error) {
	var id int64
	err := s.queryRow(`SELECT tag_id FROM tags WHERE tag_text = ?`, text).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup tag %q: %w", text, err)
	}
	return id, true, nil
}

// AddCustomTag attaches a user-defined tag to a work. Custom tags live in a
// namespace disjoint from platform tags but follow the same dedup rule.
func (s *Session) AddCustomTag(workID uint64, text string) error {
	if s.mode != ReadWrite {
		return ErrReadOnlySession
	}
	if text == "" {
		return fmt.Errorf("custom tag text is empty")
	}

	var id int64
	err := s.queryRow(`SELECT tag_id FROM custom_tags WHERE tag_text = ?`, text).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := s.exec(`INSERT INTO custom_tags (tag_text) VALUES (?)`, text)
		if err != nil {
			return fmt.Errorf("insert custom tag %q: %w", text, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("custom tag %q identity: %w", text, err)
		}
	case err != nil:
		return fmt.Errorf("lookup custom tag %q: %w", text, err)
	}

	if _, err := s.exec(
		`INSERT OR IGNORE INTO work_custom_tags (work_id, tag_id) VALUES (?, ?)`,
		workID, id,
	); err != nil {
		return fmt.Errorf("associate custom tag %q with work %d: %w", text, workID, err)
	}
	return nil
}

// WorkTagTexts returns the tag texts associated with a work.
func (s *Session) WorkTagTexts(workID uint64) ([]string, error) {
	rows, err := s.query(
		`SELECT t.tag_text FROM tags t
		 JOIN work_tags wt ON wt.tag_id = t.tag_id
		 WHERE wt.work_id = ? ORDER BY t.tag_text`, workID)
	if err != nil {
		return nil, fmt.Errorf("tags for work %d: %w", workID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}
