package privacystats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/ntab/bridge"
	"github.com/hazyhaar/ntab/dbopen"
	"github.com/hazyhaar/ntab/settings"
)

// failingStore rejects every write.
type failingStore struct {
	err error
}

func (s failingStore) Get(_ context.Context, key string, _ any) error {
	return &settings.ErrNotFound{Key: key}
}

func (s failingStore) Set(context.Context, string, any) error { return s.err }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewStore(db, opts...)
}

func dispatch(t *testing.T, c *Client, name bridge.Name, params any) any {
	t.Helper()
	reg := bridge.NewRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	var raw []byte
	if params != nil {
		var err error
		raw, err = json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
	}
	result, err := reg.Dispatch(context.Background(), name, raw)
	if err != nil {
		t.Fatalf("dispatch %s: %v", name, err)
	}
	return result
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

func TestStoreAggregatesPerCompany(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Record(ctx, "Tracker Co", 3)
	store.Record(ctx, "Tracker Co", 2)
	store.Record(ctx, "AdNet", 4)

	total, err := store.FetchPrivacyStatsTotalCount(ctx)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 9 {
		t.Fatalf("total = %d, want 9", total)
	}

	companies, err := store.FetchPrivacyStats(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(companies) != 2 {
		t.Fatalf("companies = %+v", companies)
	}
	if companies[0].DisplayName != "Tracker Co" || companies[0].Count != 5 {
		t.Fatalf("top company = %+v, want Tracker Co 5", companies[0])
	}
}

func TestStoreWindowExcludesOldBuckets(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	clock := now
	store := newTestStore(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	// Record a count, then jump past the window.
	store.Record(ctx, "Stale Co", 10)
	clock = now.Add(8 * 24 * time.Hour)
	store.Record(ctx, "Fresh Co", 1)

	total, err := store.FetchPrivacyStatsTotalCount(ctx)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 1 {
		t.Fatalf("total = %d, want 1 (stale bucket excluded)", total)
	}

	if err := store.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}
	var rows int
	db := store.db
	if err := db.QueryRow(`SELECT COUNT(*) FROM privacy_stats`).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("rows after prune = %d, want 1", rows)
	}
}

func TestStoreSignalsChanges(t *testing.T) {
	store := newTestStore(t)
	store.Record(context.Background(), "Tracker Co", 1)
	select {
	case <-store.Changes():
	default:
		t.Fatal("no change signal after record")
	}
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

type stubSource struct {
	total     int64
	companies []CompanyCount
}

func (s *stubSource) FetchPrivacyStats(context.Context) ([]CompanyCount, error) {
	return append([]CompanyCount(nil), s.companies...), nil
}

func (s *stubSource) FetchPrivacyStatsTotalCount(context.Context) (int64, error) {
	return s.total, nil
}

func TestGetDataPrevalenceTieBreak(t *testing.T) {
	source := &stubSource{total: 6, companies: []CompanyCount{
		{DisplayName: "Alpha", Count: 2},
		{DisplayName: "Beta", Count: 2},
		{DisplayName: "Gamma", Count: 2},
	}}
	c := NewClient(source, settings.NewMemoryStore(),
		WithTrackerData(StaticTrackerData{"Beta": 0.9, "Gamma": 0.5}))

	data := dispatch(t, c, NameGetData, nil).(Data)
	got := []string{
		data.TrackerCompanies[0].DisplayName,
		data.TrackerCompanies[1].DisplayName,
		data.TrackerCompanies[2].DisplayName,
	}
	want := []string{"Beta", "Gamma", "Alpha"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestGetDataCollapsedCut(t *testing.T) {
	source := &stubSource{companies: []CompanyCount{
		{DisplayName: "A", Count: 9},
		{DisplayName: "B", Count: 8},
		{DisplayName: "C", Count: 7},
	}}
	c := NewClient(source, settings.NewMemoryStore(), WithCollapsedCount(2))

	data := dispatch(t, c, NameGetData, nil).(Data)
	if data.Expansion != "collapsed" {
		t.Fatalf("expansion = %s", data.Expansion)
	}
	if len(data.TrackerCompanies) != 2 {
		t.Fatalf("collapsed list = %d companies, want 2", len(data.TrackerCompanies))
	}
}

func TestShowMorePersistsSynchronously(t *testing.T) {
	store := settings.NewMemoryStore()
	c := NewClient(&stubSource{}, store)

	dispatch(t, c, NameShowMore, nil)

	var expanded bool
	if err := store.Get(context.Background(), "stats.expanded", &expanded); err != nil {
		t.Fatalf("get persisted: %v", err)
	}
	if !expanded {
		t.Fatal("showMore did not persist expanded=true")
	}
	if !c.Expanded() {
		t.Fatal("client not expanded")
	}

	dispatch(t, c, NameShowLess, nil)
	if err := store.Get(context.Background(), "stats.expanded", &expanded); err != nil {
		t.Fatalf("get persisted: %v", err)
	}
	if expanded {
		t.Fatal("showLess did not persist expanded=false")
	}
}

func TestShowMoreEmitsDataUpdate(t *testing.T) {
	c := NewClient(&stubSource{total: 4}, settings.NewMemoryStore())

	dispatch(t, c, NameShowMore, nil)

	select {
	case push := <-c.Pushes():
		if push.Name != NameOnDataUpdate {
			t.Fatalf("push name = %s", push.Name)
		}
	default:
		t.Fatal("no push after expansion change")
	}
}

func TestPersistFailureKeepsPriorExpansion(t *testing.T) {
	c := NewClient(&stubSource{}, failingStore{err: errors.New("disk full")})
	reg := bridge.NewRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := reg.Dispatch(context.Background(), NameShowMore, nil); err == nil {
		t.Fatal("want persist error rejecting the request")
	}
	if c.Expanded() {
		t.Fatal("expansion moved despite failed persist")
	}
	select {
	case push := <-c.Pushes():
		t.Fatalf("unexpected push %s after failed persist", push.Name)
	default:
	}
}

func TestLoadRestoresExpansion(t *testing.T) {
	store := settings.NewMemoryStore()
	first := NewClient(&stubSource{}, store)
	dispatch(t, first, NameShowMore, nil)

	second := NewClient(&stubSource{}, store)
	if err := second.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !second.Expanded() {
		t.Fatal("expansion not restored")
	}
}

func TestWatchSkipsHiddenWidget(t *testing.T) {
	changes := make(chan struct{}, 1)
	c := NewClient(&stubSource{}, settings.NewMemoryStore(),
		WithChanges(changes),
		WithVisibility(func() bool { return false }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Watch(ctx)

	changes <- struct{}{}
	select {
	case push := <-c.Pushes():
		t.Fatalf("unexpected push while hidden: %v", push.Name)
	case <-time.After(100 * time.Millisecond):
	}
}
