// Package store is the mirror persistence layer: upsert-by-natural-key over
// a local sqlite database, batch-committed by the traversal and queried
// read-only by the dashboard.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"pixmirror/pkg/logger"
)

// Store wraps the mirror database. The write transaction path is single
// threaded (one traversal at a time); download workers only touch the
// completion flag through SetDownloaded.
type Store struct {
	db  *sql.DB
	log logger.Logger

	// serializes ad hoc writes that run outside a traversal's transaction
	flagMu sync.Mutex
}

// Open opens (creating if needed) the mirror database at path and applies
// the schema. ":memory:" is accepted for tests.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if path == ":memory:" {
		// a second connection would see a different empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("write schema version: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts a session in the given transaction mode. Write operations on
// a ReadOnly session are rejected at the API boundary.
func (s *Store) Begin(ctx context.Context, mode TxMode) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Session{store: s, tx: tx, mode: mode, ctx: ctx}, nil
}

// SetDownloaded flips a work's download-completion flag. It runs outside any
// traversal transaction, is idempotent, and is safe to call from download
// workers concurrently.
func (s *Store) SetDownloaded(ctx context.Context, workID uint64, done bool) error {
	s.flagMu.Lock()
	defer s.flagMu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE works SET is_downloaded = ? WHERE work_id = ?`, done, workID)
	if err != nil {
		return fmt.Errorf("set downloaded for work %d: %w", workID, err)
	}
	return nil
}

// TagsLike is the dashboard's read-only autocomplete query. It opens its own
// ReadOnly session so it never joins the ingestion transaction.
func (s *Store) TagsLike(ctx context.Context, text, language string) ([]TagSuggestion, error) {
	sess, err := s.Begin(ctx, ReadOnly)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	return sess.TagsLike(text, language)
}
