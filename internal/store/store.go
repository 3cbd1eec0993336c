// Package store persists the crawl engine's durable state to a single
// SQLite database file: runs, pages, per-origin depths, link edges,
// blacklist/stub references, domain bookkeeping, and the frontier. Every
// cross-table mutation that forms one conceptual write happens inside one
// *sql.Tx.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sumiripple/sumiripple/pkg/fileutil"
)

// schemaVersion is the current generation of the schema below. Future
// migrations bump this and extend migrate().
const schemaVersion = 1

// Store wraps a single-writer SQLite connection pool in WAL mode.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path, enables WAL
// journaling, and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := fileutil.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %s", ErrIO, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %s", ErrIO, err)
	}

	// SQLite supports exactly one writer; a single pooled connection avoids
	// SQLITE_BUSY from competing writers within this process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%w: %s: %s", ErrIO, p, err)
		}
	}

	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("%w: create schema: %s", ErrIO, err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx, "INSERT INTO schema_version(version) VALUES (?)", schemaVersion)
		if err != nil {
			return fmt.Errorf("%w: seed schema_version: %s", ErrIO, err)
		}
	case err != nil:
		return fmt.Errorf("%w: read schema_version: %s", ErrIO, err)
	}

	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %s", ErrIO, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %s", ErrIO, err)
	}
	return nil
}
