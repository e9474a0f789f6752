package omnibar

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/hazyhaar/ntab/bridge"
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
// Config
// ---------------------------------------------------------------------------

func TestConfigComposesNativeFlags(t *testing.T) {
	m := NewModel(settings.NewMemoryStore(), StaticAIChat{Shortcut: true, Setting: false})
	c := NewClient(m)

	got := dispatch(t, c, NameGetConfig, nil).(Config)
	want := Config{Mode: ModeSearch, EnableAi: true, ShowAiSetting: false}
	if got != want {
		t.Fatalf("config = %+v, want %+v", got, want)
	}
}

func TestSetModePersistsAndPushes(t *testing.T) {
	store := settings.NewMemoryStore()
	m := NewModel(store, StaticAIChat{Shortcut: true, Setting: true})
	c := NewClient(m)

	dispatch(t, c, NameSetConfig, setConfigParams{Mode: ModeAIChat})

	var persisted Mode
	if err := store.Get(context.Background(), "omnibar.mode", &persisted); err != nil {
		t.Fatalf("get persisted: %v", err)
	}
	if persisted != ModeAIChat {
		t.Fatalf("persisted mode = %s", persisted)
	}

	select {
	case push := <-c.Pushes():
		if push.Name != NameOnConfigUpdate {
			t.Fatalf("push name = %s", push.Name)
		}
		if cfg := push.Params.(Config); cfg.Mode != ModeAIChat {
			t.Fatalf("pushed mode = %s", cfg.Mode)
		}
	default:
		t.Fatal("no push on mode change")
	}
}

func TestSetModeRejectsUnknown(t *testing.T) {
	m := NewModel(settings.NewMemoryStore(), StaticAIChat{})
	c := NewClient(m)

	dispatch(t, c, NameSetConfig, map[string]string{"mode": "voice"})

	if m.Config().Mode != ModeSearch {
		t.Fatalf("mode = %s, want prior search", m.Config().Mode)
	}
	select {
	case push := <-c.Pushes():
		t.Fatalf("unexpected push %s for rejected mode", push.Name)
	default:
	}
}

func TestPersistFailureKeepsPriorMode(t *testing.T) {
	m := NewModel(failingStore{err: errors.New("disk full")}, StaticAIChat{})
	c := NewClient(m)

	if err := m.SetMode(context.Background(), ModeAIChat); err == nil {
		t.Fatal("want persist error")
	}
	if m.Config().Mode != ModeSearch {
		t.Fatalf("mode moved despite failed persist: %s", m.Config().Mode)
	}
	select {
	case push := <-c.Pushes():
		t.Fatalf("unexpected push %s after failed persist", push.Name)
	default:
	}
}

func TestLoadRestoresMode(t *testing.T) {
	store := settings.NewMemoryStore()
	first := NewModel(store, StaticAIChat{})
	if err := first.SetMode(context.Background(), ModeAIChat); err != nil {
		t.Fatalf("set mode: %v", err)
	}

	second := NewModel(store, StaticAIChat{})
	if err := second.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if second.Config().Mode != ModeAIChat {
		t.Fatalf("mode = %s, want restored aiChat", second.Config().Mode)
	}
}

// ---------------------------------------------------------------------------
// Suggestions
// ---------------------------------------------------------------------------

func TestSuggestionRoundTrip(t *testing.T) {
	all := []Suggestion{
		Phrase{Phrase: "weather"},
		Website{URL: "https://example.com"},
		Bookmark{Title: "News", URL: "https://news.example", IsFavorite: true},
		HistoryEntry{Title: "Docs", URL: "https://docs.example", VisitCount: 7},
		InternalPage{Title: "Settings", URL: "about:settings"},
		OpenTab{Title: "Mail", TabID: "tab-12"},
	}
	for _, in := range all {
		raw, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal %T: %v", in, err)
		}
		var probe map[string]any
		if err := json.Unmarshal(raw, &probe); err != nil {
			t.Fatalf("probe %s: %v", raw, err)
		}
		if probe["kind"] != in.suggestionKind() {
			t.Fatalf("kind = %v, want %s in %s", probe["kind"], in.suggestionKind(), raw)
		}
		out, err := UnmarshalSuggestion(raw)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if !reflect.DeepEqual(out, in) {
			t.Fatalf("round trip: got %+v, want %+v", out, in)
		}
	}
}

func TestUnmarshalSuggestionUnknownKind(t *testing.T) {
	_, err := UnmarshalSuggestion([]byte(`{"kind":"hologram","title":"x"}`))
	if err == nil {
		t.Fatal("unknown kind must error, not silently drop")
	}
}

func TestSuggestPhraseFirstThenScored(t *testing.T) {
	bookmarks := StaticSource{
		Entries: []Scored{
			{Suggestion: Bookmark{Title: "Go blog", URL: "https://go.dev/blog"}, Score: 80},
		},
		Match: func(s Suggestion) string { return s.(Bookmark).Title },
	}
	history := StaticSource{
		Entries: []Scored{
			{Suggestion: HistoryEntry{Title: "Go docs", URL: "https://go.dev/doc", VisitCount: 3}, Score: 95},
		},
		Match: func(s Suggestion) string { return s.(HistoryEntry).Title },
	}
	m := NewModel(settings.NewMemoryStore(), StaticAIChat{})
	c := NewClient(m, WithSources(bookmarks, history))

	resp := dispatch(t, c, NameGetSuggestions, suggestionsParams{Term: "go"}).(suggestionsResponse)
	s := resp.Suggestions
	if len(s) != 3 {
		t.Fatalf("suggestions = %d, want 3", len(s))
	}
	if _, ok := s[0].(Phrase); !ok {
		t.Fatalf("first suggestion = %T, want the literal phrase", s[0])
	}
	if _, ok := s[1].(HistoryEntry); !ok {
		t.Fatalf("second suggestion = %T, want the higher-scored history entry", s[1])
	}
	if _, ok := s[2].(Bookmark); !ok {
		t.Fatalf("third suggestion = %T", s[2])
	}
}

func TestSuggestHonorsLimit(t *testing.T) {
	var entries []Scored
	for i := 0; i < 20; i++ {
		entries = append(entries, Scored{
			Suggestion: Website{URL: "https://example.com"},
			Score:      i,
		})
	}
	src := StaticSource{Entries: entries, Match: func(Suggestion) string { return "example" }}
	m := NewModel(settings.NewMemoryStore(), StaticAIChat{})
	c := NewClient(m, WithSources(src), WithSuggestionLimit(5))

	resp := dispatch(t, c, NameGetSuggestions, suggestionsParams{Term: "example"}).(suggestionsResponse)
	if len(resp.Suggestions) != 5 {
		t.Fatalf("suggestions = %d, want limit 5", len(resp.Suggestions))
	}
}

func TestStaticSourceFiltersByTerm(t *testing.T) {
	src := StaticSource{
		Entries: []Scored{
			{Suggestion: InternalPage{Title: "Settings", URL: "about:settings"}, Score: 10},
			{Suggestion: InternalPage{Title: "Bookmarks", URL: "about:bookmarks"}, Score: 10},
		},
		Match: func(s Suggestion) string { return s.(InternalPage).Title },
	}
	got, err := src.Suggest(context.Background(), "SET")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(got) != 1 || got[0].Suggestion.(InternalPage).Title != "Settings" {
		t.Fatalf("got %+v, want the Settings page only", got)
	}
}
