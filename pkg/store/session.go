package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TxMode is the explicit transaction mode of a session. Writes through a
// ReadOnly session are rejected instead of silently dropped.
type TxMode int

const (
	ReadOnly TxMode = iota
	ReadWrite
)

// ErrReadOnlySession is returned when a write operation is attempted on a
// ReadOnly session.
var ErrReadOnlySession = errors.New("store: write attempted on read-only session")

// Session is one transaction against the mirror. The ingestion path holds a
// single ReadWrite session at a time and commits it in batches; readers use
// ReadOnly sessions.
type Session struct {
	store *Store
	tx    *sql.Tx
	mode  TxMode
	ctx   context.Context
	done  bool
}

// Mode returns the session's transaction mode.
func (s *Session) Mode() TxMode {
	return s.mode
}

// exec runs a write statement, enforcing the transaction mode.
func (s *Session) exec(query string, args ...interface{}) (sql.Result, error) {
	if s.mode != ReadWrite {
		return nil, ErrReadOnlySession
	}
	return s.tx.ExecContext(s.ctx, query, args...)
}

func (s *Session) queryRow(query string, args ...interface{}) *sql.Row {
	return s.tx.QueryRowContext(s.ctx, query, args...)
}

func (s *Session) query(query string, args ...interface{}) (*sql.Rows, error) {
	return s.tx.QueryContext(s.ctx, query, args...)
}

// Commit commits the pending batch. A failed commit rolls back only this
// batch; previously committed batches are unaffected.
func (s *Session) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	if s.mode != ReadWrite {
		// nothing to persist; release the read transaction
		return s.tx.Rollback()
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Rollback discards the pending batch.
func (s *Session) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.tx.Rollback()
}

// Close releases the session, discarding any uncommitted work.
func (s *Session) Close() error {
	return s.Rollback()
}
