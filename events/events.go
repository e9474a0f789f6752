// Package events records front-end exception reports and bridge lifecycle
// events for telemetry. Recording is non-blocking: a failing event store
// logs via slog and never blocks message handling — these events are
// diagnostics, not a recovery mechanism.
package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/ntab/idgen"
)

// Event kinds recorded by the bridge.
const (
	KindInitException = "init_exception" // NTP failed to initialise
	KindPageException = "page_exception" // runtime error on a loaded NTP
	KindInstanceOpen  = "instance_open"
	KindInstanceClose = "instance_close"
)

// Event is one record in the event log.
type Event struct {
	Kind       string // one of the Kind* constants
	InstanceID string // originating script instance, if any
	Message    string // FE-supplied description; may be empty
}

// Schema defines the event log table.
const Schema = `
CREATE TABLE IF NOT EXISTS ntp_events (
    event_id    TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    instance_id TEXT NOT NULL DEFAULT '',
    message     TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ntp_events_kind ON ntp_events(kind);
`

// Reporter writes events and manages retention cleanup.
type Reporter struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithIDGenerator sets a custom ID generator for event IDs.
func WithIDGenerator(gen idgen.Generator) ReporterOption {
	return func(r *Reporter) { r.newID = gen }
}

// WithLogger sets a custom logger for the reporter.
func WithLogger(l *slog.Logger) ReporterOption {
	return func(r *Reporter) { r.logger = l }
}

// NewReporter creates a reporter backed by the given database.
func NewReporter(db *sql.DB, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		db:     db,
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Init creates the event log table if it doesn't exist.
func (r *Reporter) Init() error {
	_, err := r.db.Exec(Schema)
	return err
}

// Report records an event. Errors are logged, not propagated.
func (r *Reporter) Report(ctx context.Context, ev Event) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ntp_events (event_id, kind, instance_id, message, created_at)
		VALUES (?,?,?,?,?)`,
		r.newID(), ev.Kind, ev.InstanceID, ev.Message, time.Now().Unix())
	if err != nil {
		r.logger.Error("event report failed", "kind", ev.Kind, "error", err)
	}
}

// Cleanup deletes events older than the retention threshold. Zero days
// means no cleanup.
func Cleanup(ctx context.Context, db *sql.DB, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().Unix() - int64(retentionDays)*86400
	if _, err := db.ExecContext(ctx,
		`DELETE FROM ntp_events WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("events: cleanup: %w", err)
	}
	return nil
}
