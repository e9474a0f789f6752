// Package protections owns the Protections Report widget: an expandable
// view hosting one of two feeds, summary privacy stats or detailed
// activity. Expansion and feed selection persist write-through and are
// broadcast to every open NTP on change.
package protections

import (
	"context"
	"errors"
	"sync"

	"github.com/hazyhaar/ntab/settings"
)

// Feed is a sub-view within the Protections Report widget.
type Feed string

const (
	FeedPrivacyStats Feed = "privacyStats"
	FeedActivity     Feed = "activity"
)

const configKey = "protections.config"

// Config is the widget's persisted UI state: two independent axes.
type Config struct {
	Expanded bool `json:"expanded"`
	Feed     Feed `json:"feed"`
}

// Model holds the widget state. Both axes are mutated from native UI and
// from incoming web messages; every mutation persists before the change
// hook fires.
type Model struct {
	mu       sync.RWMutex
	expanded bool
	feed     Feed
	store    settings.Store
	onChange func(Config)
}

// NewModel creates the model with defaults: collapsed, privacy stats feed.
func NewModel(store settings.Store) *Model {
	return &Model{feed: FeedPrivacyStats, store: store}
}

// OnChange installs the change hook, called after every persisted mutation.
func (m *Model) OnChange(f func(Config)) {
	m.mu.Lock()
	m.onChange = f
	m.mu.Unlock()
}

// Load reads persisted state. A missing key leaves the defaults.
func (m *Model) Load(ctx context.Context) error {
	var cfg Config
	err := m.store.Get(ctx, configKey, &cfg)
	var notFound *settings.ErrNotFound
	if errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.expanded = cfg.Expanded
	if cfg.Feed == FeedPrivacyStats || cfg.Feed == FeedActivity {
		m.feed = cfg.Feed
	}
	m.mu.Unlock()
	return nil
}

// Config returns the current state.
func (m *Model) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Config{Expanded: m.expanded, Feed: m.feed}
}

// Expanded reports the expansion axis.
func (m *Model) Expanded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expanded
}

// ActiveFeed reports the feed axis.
func (m *Model) ActiveFeed() Feed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.feed
}

// VisibleFeed is the derived state: the active feed when expanded, nil
// when collapsed.
func (m *Model) VisibleFeed() *Feed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.expanded {
		return nil
	}
	f := m.feed
	return &f
}

// SetExpanded sets the expansion axis, persisting write-through.
func (m *Model) SetExpanded(ctx context.Context, expanded bool) error {
	return m.SetConfig(ctx, Config{Expanded: expanded, Feed: m.ActiveFeed()})
}

// SetActiveFeed sets the feed axis, persisting write-through.
func (m *Model) SetActiveFeed(ctx context.Context, feed Feed) error {
	return m.SetConfig(ctx, Config{Expanded: m.Expanded(), Feed: feed})
}

// SetConfig sets both axes at once. No-op when nothing changes; an unknown
// feed value is rejected by keeping the prior feed. The store is written
// before the in-memory state moves: a failed persist leaves the model at
// its prior value, never reporting state a restart would revert.
func (m *Model) SetConfig(ctx context.Context, cfg Config) error {
	m.mu.RLock()
	if cfg.Feed != FeedPrivacyStats && cfg.Feed != FeedActivity {
		cfg.Feed = m.feed
	}
	unchanged := m.expanded == cfg.Expanded && m.feed == cfg.Feed
	m.mu.RUnlock()
	if unchanged {
		return nil
	}

	if err := m.store.Set(ctx, configKey, cfg); err != nil {
		return err
	}

	m.mu.Lock()
	m.expanded = cfg.Expanded
	m.feed = cfg.Feed
	hook := m.onChange
	m.mu.Unlock()

	if hook != nil {
		hook(cfg)
	}
	return nil
}
