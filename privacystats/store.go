// Package privacystats aggregates blocked-tracker counts per company and
// answers the Privacy Stats widget's messages. Counts are bucketed per day
// and reported over a rolling window.
package privacystats

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CompanyCount is one company's blocked-tracker count within the window.
type CompanyCount struct {
	DisplayName string `json:"displayName"`
	Count       int64  `json:"count"`
}

// TrackerDataProvider supplies entity prevalence, used to break ties when
// two companies have equal counts.
type TrackerDataProvider interface {
	Prevalence(company string) float64
}

// StaticTrackerData is a fixed prevalence table. Unknown companies have
// prevalence zero.
type StaticTrackerData map[string]float64

func (s StaticTrackerData) Prevalence(company string) float64 { return s[company] }

// Schema defines the per-company, per-day count table.
const Schema = `
CREATE TABLE IF NOT EXISTS privacy_stats (
    company TEXT NOT NULL,
    day     INTEGER NOT NULL,
    count   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (company, day)
);
`

// DefaultWindow is the reporting window for stats queries.
const DefaultWindow = 7 * 24 * time.Hour

// Store is the SQLite-backed aggregator. Record bumps today's bucket;
// fetches sum the rolling window. Changes is a coalesced signal that fires
// after every Record, drained by the stats client to re-announce data.
type Store struct {
	db      *sql.DB
	window  time.Duration
	changed chan struct{}
	now     func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithWindow overrides the rolling reporting window.
func WithWindow(w time.Duration) StoreOption {
	return func(s *Store) { s.window = w }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore wraps an open database.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:      db,
		window:  DefaultWindow,
		changed: make(chan struct{}, 1),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the stats table if it doesn't exist.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// Changes returns the coalesced change signal.
func (s *Store) Changes() <-chan struct{} {
	return s.changed
}

func (s *Store) day(t time.Time) int64 {
	return t.UTC().Truncate(24 * time.Hour).Unix()
}

// Record adds n blocked trackers for a company to today's bucket.
func (s *Store) Record(ctx context.Context, company string, n int64) error {
	if n <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO privacy_stats (company, day, count) VALUES (?, ?, ?)
		ON CONFLICT(company, day) DO UPDATE SET count = count + excluded.count`,
		company, s.day(s.now()), n)
	if err != nil {
		return fmt.Errorf("privacystats: record %s: %w", company, err)
	}
	select {
	case s.changed <- struct{}{}:
	default:
	}
	return nil
}

// FetchPrivacyStats returns per-company counts within the window, ordered
// by count descending then name ascending. Prevalence tie-breaking is
// applied by the caller, which holds the tracker data.
func (s *Store) FetchPrivacyStats(ctx context.Context) ([]CompanyCount, error) {
	since := s.day(s.now().Add(-s.window))
	rows, err := s.db.QueryContext(ctx, `
		SELECT company, SUM(count) FROM privacy_stats
		WHERE day >= ?
		GROUP BY company
		ORDER BY SUM(count) DESC, company ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("privacystats: fetch: %w", err)
	}
	defer rows.Close()

	var out []CompanyCount
	for rows.Next() {
		var c CompanyCount
		if err := rows.Scan(&c.DisplayName, &c.Count); err != nil {
			return nil, fmt.Errorf("privacystats: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("privacystats: rows: %w", err)
	}
	return out, nil
}

// FetchPrivacyStatsTotalCount returns the total blocked count within the
// window.
func (s *Store) FetchPrivacyStatsTotalCount(ctx context.Context) (int64, error) {
	since := s.day(s.now().Add(-s.window))
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(count) FROM privacy_stats WHERE day >= ?`, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("privacystats: total: %w", err)
	}
	return total.Int64, nil
}

// Prune deletes buckets that fell out of the window.
func (s *Store) Prune(ctx context.Context) error {
	since := s.day(s.now().Add(-s.window))
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM privacy_stats WHERE day < ?`, since); err != nil {
		return fmt.Errorf("privacystats: prune: %w", err)
	}
	return nil
}
