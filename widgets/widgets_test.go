package widgets

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hazyhaar/ntab/bridge"
	"github.com/hazyhaar/ntab/events"
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

type stubPresenter struct {
	calls    int
	items    []MenuItem
	selected ID
	ok       bool
}

func (p *stubPresenter) Present(_ context.Context, items []MenuItem) (ID, bool) {
	p.calls++
	p.items = items
	return p.selected, p.ok
}

type stubReporter struct {
	reported []events.Event
}

func (r *stubReporter) Report(_ context.Context, ev events.Event) {
	r.reported = append(r.reported, ev)
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
// Model
// ---------------------------------------------------------------------------

func TestSetConfigsPartialUpdate(t *testing.T) {
	store := settings.NewMemoryStore()
	m := NewModel(store)

	// Hide favorites first so we can see it survive a partial update.
	if err := m.SetVisible(context.Background(), IDFavorites, false); err != nil {
		t.Fatalf("set visible: %v", err)
	}

	// A protections-only update must leave favorites untouched.
	err := m.SetConfigs(context.Background(), []Config{
		{ID: IDProtections, Visible: false},
	})
	if err != nil {
		t.Fatalf("set configs: %v", err)
	}

	if m.IsVisible(IDProtections) {
		t.Fatal("protections should be hidden")
	}
	if m.IsVisible(IDFavorites) {
		t.Fatal("favorites should retain its prior (hidden) state")
	}
	if !m.IsVisible(IDOmnibar) {
		t.Fatal("omnibar should retain its prior (visible) state")
	}
}

func TestSetConfigsIgnoresUnknownWidget(t *testing.T) {
	m := NewModel(settings.NewMemoryStore())
	err := m.SetConfigs(context.Background(), []Config{
		{ID: "weather", Visible: false},
	})
	if err != nil {
		t.Fatalf("set configs: %v", err)
	}
	for _, id := range DefaultWidgets {
		if !m.IsVisible(id) {
			t.Fatalf("widget %s flipped by unknown-widget update", id)
		}
	}
}

func TestVisibilityPersistsWriteThrough(t *testing.T) {
	store := settings.NewMemoryStore()
	m := NewModel(store)

	if err := m.SetVisible(context.Background(), IDProtections, false); err != nil {
		t.Fatalf("set visible: %v", err)
	}

	// A fresh model over the same store sees the write immediately.
	reloaded := NewModel(store)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if reloaded.IsVisible(IDProtections) {
		t.Fatal("visibility change was not persisted synchronously")
	}
}

func TestPersistFailureKeepsPriorState(t *testing.T) {
	m := NewModel(failingStore{err: errors.New("disk full")})
	c := NewClient(m)

	if err := m.SetVisible(context.Background(), IDProtections, false); err == nil {
		t.Fatal("want persist error")
	}
	if !m.IsVisible(IDProtections) {
		t.Fatal("visibility moved despite failed persist")
	}

	err := m.SetConfigs(context.Background(), []Config{{ID: IDFavorites, Visible: false}})
	if err == nil {
		t.Fatal("want persist error")
	}
	if !m.IsVisible(IDFavorites) {
		t.Fatal("bulk update moved state despite failed persist")
	}

	select {
	case push := <-c.Pushes():
		t.Fatalf("unexpected push %s after failed persist", push.Name)
	default:
	}
}

func TestAvailabilityGatesWidgetSet(t *testing.T) {
	m := NewModel(settings.NewMemoryStore(),
		WithAvailability(func(id ID) bool { return id != IDFreemiumPIR }))

	for _, id := range m.Widgets() {
		if id == IDFreemiumPIR {
			t.Fatal("unavailable widget listed")
		}
	}
	for _, cfg := range m.Configs() {
		if cfg.ID == IDFreemiumPIR {
			t.Fatal("unavailable widget in configs")
		}
	}
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func TestInitialSetup(t *testing.T) {
	m := NewModel(settings.NewMemoryStore())
	c := NewClient(m, WithEnv("development"))

	result := dispatch(t, c, NameInitialSetup, nil)
	resp, ok := result.(initialSetupResponse)
	if !ok {
		t.Fatalf("result type %T", result)
	}
	if len(resp.Widgets) != len(DefaultWidgets) {
		t.Fatalf("widgets = %d, want %d", len(resp.Widgets), len(DefaultWidgets))
	}
	if len(resp.WidgetConfigs) != len(DefaultWidgets) {
		t.Fatalf("configs = %d, want %d", len(resp.WidgetConfigs), len(DefaultWidgets))
	}
	if resp.Env != "development" {
		t.Fatalf("env = %q", resp.Env)
	}
}

func TestContextMenuEmptyItemsDoesNotPresent(t *testing.T) {
	m := NewModel(settings.NewMemoryStore())
	presenter := &stubPresenter{}
	c := NewClient(m, WithMenuPresenter(presenter))

	dispatch(t, c, NameContextMenu, contextMenuParams{})

	if presenter.calls != 0 {
		t.Fatalf("presenter called %d times, want 0", presenter.calls)
	}
}

func TestContextMenuSelectionTogglesVisibility(t *testing.T) {
	m := NewModel(settings.NewMemoryStore())
	presenter := &stubPresenter{selected: IDFavorites, ok: true}
	c := NewClient(m, WithMenuPresenter(presenter))

	params := map[string]any{
		"menuItems": []map[string]string{
			{"id": "favorites", "title": "Favorites"},
			{"id": "protections", "title": "Protections Report"},
		},
	}
	dispatch(t, c, NameContextMenu, params)

	if presenter.calls != 1 {
		t.Fatalf("presenter called %d times, want 1", presenter.calls)
	}
	if m.IsVisible(IDFavorites) {
		t.Fatal("selected widget should have toggled to hidden")
	}
	if !presenter.items[0].Checked {
		t.Fatal("menu item should have been checked while visible")
	}
}

func TestContextMenuSanitizesTitles(t *testing.T) {
	m := NewModel(settings.NewMemoryStore())
	presenter := &stubPresenter{}
	c := NewClient(m, WithMenuPresenter(presenter))

	params := map[string]any{
		"menuItems": []map[string]string{
			{"id": "favorites", "title": `<img src=x onerror=alert(1)>Favorites`},
		},
	}
	dispatch(t, c, NameContextMenu, params)

	if presenter.items[0].Title != "Favorites" {
		t.Fatalf("title = %q, want markup stripped", presenter.items[0].Title)
	}
}

func TestExceptionReportsAreRelayed(t *testing.T) {
	m := NewModel(settings.NewMemoryStore())
	reporter := &stubReporter{}
	c := NewClient(m, WithExceptionReporter(reporter))

	dispatch(t, c, NameReportInitException, exceptionParams{Message: "boot failed"})
	dispatch(t, c, NameReportPageException, exceptionParams{Message: "render failed"})

	if len(reporter.reported) != 2 {
		t.Fatalf("reported %d events, want 2", len(reporter.reported))
	}
	if reporter.reported[0].Kind != events.KindInitException {
		t.Fatalf("first kind = %s", reporter.reported[0].Kind)
	}
	if reporter.reported[1].Message != "render failed" {
		t.Fatalf("second message = %q", reporter.reported[1].Message)
	}
}

func TestVisibilityChangeEmitsConfigUpdate(t *testing.T) {
	m := NewModel(settings.NewMemoryStore())
	c := NewClient(m)

	if err := m.SetVisible(context.Background(), IDRMF, false); err != nil {
		t.Fatalf("set visible: %v", err)
	}

	select {
	case push := <-c.Pushes():
		if push.Name != NameOnConfigUpdated {
			t.Fatalf("push name = %s", push.Name)
		}
	default:
		t.Fatal("no push emitted on visibility change")
	}
}
