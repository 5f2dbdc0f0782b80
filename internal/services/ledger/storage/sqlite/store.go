// Package sqlite provides the SQLite-backed ledger store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	sqlitemigrate "github.com/louisbranch/folio/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
	"github.com/louisbranch/folio/internal/services/ledger/storage/sqlite/migrations"
)

// Store persists ledger events, cursors and read models in SQLite.
type Store struct {
	sqlDB    *sql.DB
	registry *event.Registry
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRegistry validates events against registry before appending.
func WithRegistry(registry *event.Registry) Option {
	return func(s *Store) { s.registry = registry }
}

// WithClock overrides the clock used for stream head timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toOptionalMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return toMillis(value)
}

func fromOptionalMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return fromMillis(value)
}

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Appends and cursor updates serialize through one connection.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s := &Store{sqlDB: sqlDB, now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug().Str("path", cleanPath).Msg("ledger store opened")
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// DB exposes the underlying handle for maintenance tooling.
func (s *Store) DB() *sql.DB {
	return s.sqlDB
}

func (s *Store) ready() error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
