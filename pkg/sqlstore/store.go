// Package sqlstore keeps player accounts, their tags and lite attributes,
// and runtime configuration values in SQLite.
package sqlstore

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// configTTL bounds how stale a cached config value may get when another
// process writes the same database.
const configTTL = 30 * time.Second

type configEntry struct {
	value string
	found bool
}

// Store is a SQLite-backed account and configuration store.
type Store struct {
	db     *sqlx.DB
	path   string
	config cache.Cache[string, configEntry]
}

// Open opens (or creates) the SQLite database at path, sets WAL mode and a
// busy timeout, and applies the schema. ":memory:" gives a private
// in-memory database.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	// One connection, so ":memory:" is a single database and writers queue.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlstore: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: apply schema: %w", err)
	}

	return &Store{
		db:     db,
		path:   path,
		config: cache.NewCache[string, configEntry]().WithTTL(configTTL).WithMaxKeys(1024).WithLRU(),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the database.
func (s *Store) Path() string { return s.path }

// Checkpoint flushes the WAL into the main database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Backup writes a consistent copy of the database to path, which must not
// exist yet.
func (s *Store) Backup(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("sqlstore: backup to %s: %w", path, err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
