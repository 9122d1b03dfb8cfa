// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, applies embedded migrations, and hosts shared helpers

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/2389/grimoire/internal/access"
	"github.com/2389/grimoire/internal/store/migrations"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// busyRetries bounds how many times a transaction is retried when SQLite
// reports lock contention. Only busy errors are retried; constraint and
// integrity failures never are.
const busyRetries = 3

// NewSQLiteStore creates a new SQLite store at the given path.
// Embedded migrations are applied on open. Parent directories are created
// if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Pragmas ride on the DSN so every pooled connection gets them;
	// foreign-key enforcement must hold on all connections, not just one.
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// migrate applies the embedded schema migrations. Safe to run repeatedly;
// goose tracks applied versions in its own table.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}

	return goose.UpContext(ctx, s.db, ".")
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// withTx runs fn inside a transaction: commit on success, rollback on error
// or panic. Transactions that fail with lock contention are retried a
// bounded number of times with a short backoff.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isBusyError(err) || attempt >= busyRetries {
			return err
		}

		s.logger.Debug("retrying busy transaction", "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
}

func (s *SQLiteStore) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation checks if the error is a SQLite UNIQUE constraint violation
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isBusyError checks if the error is transient SQLite lock contention
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY")
}

// ownerParam returns the doubled bind value for owner-guard clauses of the
// form `(? IS NULL OR user_id = ?)`. Admin principals get nil, which
// disables the filter wholesale; everyone else is pinned to their own rows.
func ownerParam(p access.Principal) any {
	if p.Admin {
		return nil
	}
	return p.UserID
}

// timeFormatNano is a fixed-width RFC3339 layout for columns whose TEXT
// ordering must equal chronological ordering (message timestamps, OTP
// issuance order). time.RFC3339Nano trims trailing zeros, which breaks
// lexicographic comparison across fraction lengths.
const timeFormatNano = "2006-01-02T15:04:05.000000000Z07:00"

// parseTime reads both stored layouts: plain RFC3339 and the fixed-width
// nanosecond form.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// nullTime formats an optional timestamp for storage, nil staying NULL.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
