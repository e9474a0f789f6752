package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Schema defines the settings table. One row per feature key; the value
// column holds the JSON encoding of whatever the feature model persists.
//
// Any write bumps PRAGMA data_version, which Watch polls to detect changes
// made by other connections (another process, a migration tool).
const Schema = `
CREATE TABLE IF NOT EXISTS ntp_settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
`

// SQLiteStore is the production Store, backed by a shared SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithLogger sets a custom logger for the store.
func WithLogger(l *slog.Logger) SQLiteOption {
	return func(s *SQLiteStore) { s.logger = l }
}

// NewSQLiteStore wraps an open database. Apply Schema via dbopen.WithSchema
// or call Init.
func NewSQLiteStore(db *sql.DB, opts ...SQLiteOption) *SQLiteStore {
	s := &SQLiteStore{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the settings table if it doesn't exist.
func (s *SQLiteStore) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// Get decodes the value stored under key into v.
func (s *SQLiteStore) Get(ctx context.Context, key string, v any) error {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM ntp_settings WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &ErrNotFound{Key: key}
	}
	if err != nil {
		return fmt.Errorf("settings: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("settings: decode %s: %w", key, err)
	}
	return nil
}

// Set encodes v and upserts it under key.
func (s *SQLiteStore) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ntp_settings (key, value, updated_at)
		VALUES (?, ?, strftime('%s','now'))
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, string(raw))
	if err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}

// Watch polls PRAGMA data_version at the given interval and calls onChange
// when it moves. data_version is auto-incremented by SQLite on any write
// from another connection, so external writes to the settings database are
// noticed without triggers.
//
// Watch blocks until ctx is cancelled. Run it in a goroutine:
//
//	go store.Watch(ctx, 200*time.Millisecond, reloadModels)
func (s *SQLiteStore) Watch(ctx context.Context, interval time.Duration, onChange func()) {
	s.watch(ctx, interval, s.dataVersion, onChange)
}

func (s *SQLiteStore) dataVersion() (int64, error) {
	var v int64
	err := s.db.QueryRow("PRAGMA data_version").Scan(&v)
	return v, err
}

func (s *SQLiteStore) watch(ctx context.Context, interval time.Duration, version func() (int64, error), onChange func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// The baseline must come from a successful read: a failed scan left
	// unseeded would make the first working poll look like a change.
	lastVersion, err := version()
	seeded := err == nil
	if err != nil {
		s.logger.Warn("settings: data_version baseline failed", "error", err)
	}

	s.logger.Info("settings watcher started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settings watcher stopped")
			return
		case <-ticker.C:
			ver, err := version()
			if err != nil {
				s.logger.Warn("settings: data_version poll failed", "error", err)
				continue
			}
			if !seeded {
				lastVersion, seeded = ver, true
				continue
			}
			if ver != lastVersion {
				s.logger.Info("settings: external change detected",
					"old_version", lastVersion, "new_version", ver)
				lastVersion = ver
				onChange()
			}
		}
	}
}
