package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/task-reminders/internal/model"
)

// SQLiteStore implements Store and TodoWriter using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var (
	_ Store      = (*SQLiteStore)(nil)
	_ TodoWriter = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// busy_timeout is per connection, so it goes in the DSN where every
	// pooled connection picks it up. The sweep and the reactive path write
	// concurrently.
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath + "?_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// IsMuted reports whether the user muted reminders for the task.
// A missing preference means not muted.
func (s *SQLiteStore) IsMuted(ctx context.Context, userID, taskID string) (bool, error) {
	var muted int
	err := s.db.GetContext(ctx, &muted,
		"SELECT muted FROM mute_preferences WHERE user_id = ? AND task_id = ?",
		userID, taskID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr(fmt.Sprintf("reading mute preference %s/%s", userID, taskID), err)
	}
	return muted != 0, nil
}

// SetMuted inserts or updates the mute preference for (user, task).
func (s *SQLiteStore) SetMuted(ctx context.Context, userID, taskID string, muted bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mute_preferences (user_id, task_id, muted, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, task_id) DO UPDATE SET
			muted = excluded.muted,
			updated_at = excluded.updated_at`,
		userID, taskID, boolToInt(muted), time.Now().UTC(),
	)
	if err != nil {
		return wrapErr(fmt.Sprintf("setting mute preference %s/%s", userID, taskID), err)
	}
	return nil
}

// MutedTasks returns the set of task ids the user has muted.
func (s *SQLiteStore) MutedTasks(ctx context.Context, userID string) (map[string]bool, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT task_id FROM mute_preferences WHERE user_id = ? AND muted = 1",
		userID,
	)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("listing muted tasks for %s", userID), err)
	}
	muted := make(map[string]bool, len(ids))
	for _, id := range ids {
		muted[id] = true
	}
	return muted, nil
}

// wrapErr annotates err with op, classifying timeouts, lost connections and
// lock contention as transient.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTransientDBError(err) {
		return model.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransientDBError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
