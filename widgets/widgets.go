// Package widgets owns the New Tab Page widget configuration: which
// widgets exist, which are visible, and the context menu that toggles
// them. The native side is authoritative for the widget set; the web front
// end only renders what it is told exists.
package widgets

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hazyhaar/ntab/settings"
)

// ID identifies a top-level NTP widget.
type ID string

const (
	IDFavorites   ID = "favorites"
	IDProtections ID = "protections"
	IDOmnibar     ID = "omnibar"
	IDRMF         ID = "rmf" // remote messaging framework banner
	IDNextSteps   ID = "nextSteps"
	IDFreemiumPIR ID = "freemiumPIR"
)

// DefaultWidgets is the declared widget set, in render order.
var DefaultWidgets = []ID{
	IDOmnibar, IDFavorites, IDProtections, IDRMF, IDNextSteps, IDFreemiumPIR,
}

// Config is one widget's visibility setting.
type Config struct {
	ID      ID   `json:"id"`
	Visible bool `json:"visible"`
}

// Availability gates whether a widget is offered at all (e.g. the freemium
// PIR banner only when the feature is on). Nil means always available.
type Availability func(ID) bool

const configKey = "widgets.config"

// Model holds the widget set and visibility state, persisted write-through
// under the "widgets.config" settings key.
type Model struct {
	mu        sync.RWMutex
	order     []ID
	visible   map[ID]bool
	available Availability
	store     settings.Store
	logger    *slog.Logger
	onChange  func([]Config)
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithWidgets overrides the declared widget set and order.
func WithWidgets(order []ID) ModelOption {
	return func(m *Model) { m.order = order }
}

// WithAvailability sets the availability gate.
func WithAvailability(a Availability) ModelOption {
	return func(m *Model) { m.available = a }
}

// WithModelLogger sets a custom logger for the model.
func WithModelLogger(l *slog.Logger) ModelOption {
	return func(m *Model) { m.logger = l }
}

// NewModel creates the widget model. All widgets default to visible until
// Load finds persisted state.
func NewModel(store settings.Store, opts ...ModelOption) *Model {
	m := &Model{
		order:   append([]ID(nil), DefaultWidgets...),
		visible: make(map[ID]bool),
		store:   store,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	for _, id := range m.order {
		m.visible[id] = true
	}
	return m
}

// OnChange installs the change hook, called with the full config slice
// after every visibility mutation. The client uses it to broadcast
// widgets_onConfigUpdated.
func (m *Model) OnChange(f func([]Config)) {
	m.mu.Lock()
	m.onChange = f
	m.mu.Unlock()
}

// Load reads persisted visibility. A missing key leaves the defaults.
func (m *Model) Load(ctx context.Context) error {
	var stored []Config
	err := m.store.Get(ctx, configKey, &stored)
	var notFound *settings.ErrNotFound
	if errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range stored {
		if _, known := m.visible[c.ID]; known {
			m.visible[c.ID] = c.Visible
		}
	}
	return nil
}

// Widgets returns the available widget IDs in declared order.
func (m *Model) Widgets() []ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ID, 0, len(m.order))
	for _, id := range m.order {
		if m.available == nil || m.available(id) {
			out = append(out, id)
		}
	}
	return out
}

// Configs returns the visibility configs of the available widgets, in
// declared order.
func (m *Model) Configs() []Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configsLocked()
}

func (m *Model) configsLocked() []Config {
	out := make([]Config, 0, len(m.order))
	for _, id := range m.order {
		if m.available != nil && !m.available(id) {
			continue
		}
		out = append(out, Config{ID: id, Visible: m.visible[id]})
	}
	return out
}

// IsVisible reports whether a widget is currently visible.
func (m *Model) IsVisible(id ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visible[id]
}

// SetConfigs applies a bulk partial update: only widgets named in the
// incoming slice are mutated, all others retain their prior state. Unknown
// IDs are ignored. Persists before announcing.
func (m *Model) SetConfigs(ctx context.Context, partial []Config) error {
	m.mu.RLock()
	next := make(map[ID]bool, len(m.visible))
	for id, v := range m.visible {
		next[id] = v
	}
	m.mu.RUnlock()

	changed := false
	for _, c := range partial {
		if prev, known := next[c.ID]; known && prev != c.Visible {
			next[c.ID] = c.Visible
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return m.commit(ctx, next)
}

// SetVisible toggles a single widget, persisting write-through.
func (m *Model) SetVisible(ctx context.Context, id ID, visible bool) error {
	m.mu.RLock()
	prev, known := m.visible[id]
	next := make(map[ID]bool, len(m.visible))
	for wid, v := range m.visible {
		next[wid] = v
	}
	m.mu.RUnlock()

	if !known || prev == visible {
		return nil
	}
	next[id] = visible
	return m.commit(ctx, next)
}

// commit persists the full visibility set, then swaps it in and invokes
// the change hook. The store is written before the in-memory state moves:
// a failed persist leaves the model at its prior value, never reporting
// state a restart would revert.
func (m *Model) commit(ctx context.Context, next map[ID]bool) error {
	all := make([]Config, 0, len(m.order))
	for _, id := range m.order {
		all = append(all, Config{ID: id, Visible: next[id]})
	}
	if err := m.store.Set(ctx, configKey, all); err != nil {
		return err
	}

	m.mu.Lock()
	m.visible = next
	cfgs := m.configsLocked()
	hook := m.onChange
	m.mu.Unlock()

	if hook != nil {
		hook(cfgs)
	}
	return nil
}
