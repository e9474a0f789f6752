package omnibar

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Suggestion is one omnibar suggestion. The concrete variants below are
// the complete set; dispatch over them is an exhaustive type switch, and
// the JSON encoding carries a "kind" discriminator so every variant
// round-trips exactly.
type Suggestion interface {
	suggestionKind() string
}

// Phrase is a plain search phrase.
type Phrase struct {
	Phrase string `json:"phrase"`
}

// Website is a direct URL navigation.
type Website struct {
	URL string `json:"url"`
}

// Bookmark matches a saved bookmark.
type Bookmark struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	IsFavorite bool   `json:"isFavorite"`
}

// HistoryEntry matches a previously visited page.
type HistoryEntry struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	VisitCount int    `json:"visitCount"`
}

// InternalPage is a browser-internal surface (settings, bookmarks).
type InternalPage struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// OpenTab switches to an already open tab.
type OpenTab struct {
	Title string `json:"title"`
	TabID string `json:"tabId"`
}

func (Phrase) suggestionKind() string       { return "phrase" }
func (Website) suggestionKind() string      { return "website" }
func (Bookmark) suggestionKind() string     { return "bookmark" }
func (HistoryEntry) suggestionKind() string { return "historyEntry" }
func (InternalPage) suggestionKind() string { return "internalPage" }
func (OpenTab) suggestionKind() string      { return "openTab" }

// The shadow types below drop the MarshalJSON method so the envelope
// encoders don't recurse.

func (s Phrase) MarshalJSON() ([]byte, error) {
	type shadow Phrase
	return json.Marshal(struct {
		Kind string `json:"kind"`
		shadow
	}{Kind: s.suggestionKind(), shadow: shadow(s)})
}

func (s Website) MarshalJSON() ([]byte, error) {
	type shadow Website
	return json.Marshal(struct {
		Kind string `json:"kind"`
		shadow
	}{Kind: s.suggestionKind(), shadow: shadow(s)})
}

func (s Bookmark) MarshalJSON() ([]byte, error) {
	type shadow Bookmark
	return json.Marshal(struct {
		Kind string `json:"kind"`
		shadow
	}{Kind: s.suggestionKind(), shadow: shadow(s)})
}

func (s HistoryEntry) MarshalJSON() ([]byte, error) {
	type shadow HistoryEntry
	return json.Marshal(struct {
		Kind string `json:"kind"`
		shadow
	}{Kind: s.suggestionKind(), shadow: shadow(s)})
}

func (s InternalPage) MarshalJSON() ([]byte, error) {
	type shadow InternalPage
	return json.Marshal(struct {
		Kind string `json:"kind"`
		shadow
	}{Kind: s.suggestionKind(), shadow: shadow(s)})
}

func (s OpenTab) MarshalJSON() ([]byte, error) {
	type shadow OpenTab
	return json.Marshal(struct {
		Kind string `json:"kind"`
		shadow
	}{Kind: s.suggestionKind(), shadow: shadow(s)})
}

// UnmarshalSuggestion decodes one suggestion by its "kind" discriminator.
// An unknown kind is an error, never a silently dropped entry.
func UnmarshalSuggestion(data []byte) (Suggestion, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("omnibar: decode suggestion: %w", err)
	}
	var (
		s   Suggestion
		err error
	)
	switch probe.Kind {
	case "phrase":
		var v Phrase
		err = json.Unmarshal(data, &v)
		s = v
	case "website":
		var v Website
		err = json.Unmarshal(data, &v)
		s = v
	case "bookmark":
		var v Bookmark
		err = json.Unmarshal(data, &v)
		s = v
	case "historyEntry":
		var v HistoryEntry
		err = json.Unmarshal(data, &v)
		s = v
	case "internalPage":
		var v InternalPage
		err = json.Unmarshal(data, &v)
		s = v
	case "openTab":
		var v OpenTab
		err = json.Unmarshal(data, &v)
		s = v
	default:
		return nil, fmt.Errorf("omnibar: unknown suggestion kind %q", probe.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("omnibar: decode %s suggestion: %w", probe.Kind, err)
	}
	return s, nil
}

// Scored pairs a suggestion with its source-assigned relevance.
type Scored struct {
	Suggestion Suggestion
	Score      int
}

// Source produces scored suggestions for a query term. Bookmarks, history,
// open tabs and internal pages are separate sources, merged by score.
type Source interface {
	Suggest(ctx context.Context, term string) ([]Scored, error)
}

// StaticSource serves a fixed suggestion list, filtered by substring match
// on the term. Used for internal pages and in tests.
type StaticSource struct {
	Entries []Scored
	// Match extracts the text a term is matched against.
	Match func(Suggestion) string
}

func (s StaticSource) Suggest(_ context.Context, term string) ([]Scored, error) {
	term = strings.ToLower(term)
	var out []Scored
	for _, e := range s.Entries {
		text := ""
		if s.Match != nil {
			text = s.Match(e.Suggestion)
		}
		if term == "" || strings.Contains(strings.ToLower(text), term) {
			out = append(out, e)
		}
	}
	return out, nil
}

// suggest merges all sources: the literal phrase first, then scored
// matches in descending score order, capped at the limit.
func (c *Client) suggest(ctx context.Context, term string) ([]Suggestion, error) {
	out := []Suggestion{Phrase{Phrase: term}}
	var scored []Scored
	for _, src := range c.sources {
		batch, err := src.Suggest(ctx, term)
		if err != nil {
			return nil, err
		}
		scored = append(scored, batch...)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	for _, s := range scored {
		if len(out) >= c.limit {
			break
		}
		out = append(out, s.Suggestion)
	}
	return out, nil
}
