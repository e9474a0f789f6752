// Package omnibar owns the NTP omnibar: the search/AI-chat mode toggle and
// the suggestion pipeline behind the address field.
package omnibar

import (
	"context"
	"errors"
	"sync"

	"github.com/hazyhaar/ntab/bridge"
	"github.com/hazyhaar/ntab/settings"
)

// Mode selects what the omnibar submits to.
type Mode string

const (
	ModeSearch Mode = "search"
	ModeAIChat Mode = "aiChat"
)

// Config is the omnibar_getConfig response. EnableAi reflects the AI-chat
// shortcut flag; ShowAiSetting reflects whether the in-widget AI setting
// control is shown. Both are native-side decisions; the mode alone is
// FE-mutable.
type Config struct {
	Mode          Mode `json:"mode"`
	EnableAi      bool `json:"enableAi"`
	ShowAiSetting bool `json:"showAiSetting"`
}

// AIChatSettings supplies the native AI-chat flags.
type AIChatSettings interface {
	ShortcutEnabled() bool
	SettingVisible() bool
}

// StaticAIChat is a fixed AIChatSettings, used by the daemon config and
// tests.
type StaticAIChat struct {
	Shortcut bool
	Setting  bool
}

func (s StaticAIChat) ShortcutEnabled() bool { return s.Shortcut }
func (s StaticAIChat) SettingVisible() bool  { return s.Setting }

const modeKey = "omnibar.mode"

// Model holds the omnibar mode, persisted write-through.
type Model struct {
	mu       sync.RWMutex
	mode     Mode
	ai       AIChatSettings
	store    settings.Store
	onChange func(Config)
}

// NewModel creates the model, defaulting to search mode.
func NewModel(store settings.Store, ai AIChatSettings) *Model {
	return &Model{mode: ModeSearch, ai: ai, store: store}
}

// OnChange installs the change hook, called after every persisted mutation.
func (m *Model) OnChange(f func(Config)) {
	m.mu.Lock()
	m.onChange = f
	m.mu.Unlock()
}

// Load reads the persisted mode. A missing key leaves the default.
func (m *Model) Load(ctx context.Context) error {
	var mode Mode
	err := m.store.Get(ctx, modeKey, &mode)
	var notFound *settings.ErrNotFound
	if errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return err
	}
	m.mu.Lock()
	if mode == ModeSearch || mode == ModeAIChat {
		m.mode = mode
	}
	m.mu.Unlock()
	return nil
}

// Config composes the full omnibar config from the mode and the native
// AI-chat flags.
func (m *Model) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Config{
		Mode:          m.mode,
		EnableAi:      m.ai.ShortcutEnabled(),
		ShowAiSetting: m.ai.SettingVisible(),
	}
}

// SetMode sets the submit mode, persisting write-through. Unknown modes
// are rejected as a no-op. The store is written before the in-memory mode
// moves, so a failed persist leaves the model at its prior value.
func (m *Model) SetMode(ctx context.Context, mode Mode) error {
	if mode != ModeSearch && mode != ModeAIChat {
		return nil
	}
	m.mu.RLock()
	unchanged := m.mode == mode
	m.mu.RUnlock()
	if unchanged {
		return nil
	}

	if err := m.store.Set(ctx, modeKey, mode); err != nil {
		return err
	}

	m.mu.Lock()
	m.mode = mode
	hook := m.onChange
	m.mu.Unlock()

	if hook != nil {
		hook(m.Config())
	}
	return nil
}

// Message names answered and pushed by the omnibar client.
const (
	NameGetConfig      bridge.Name = "omnibar_getConfig"
	NameSetConfig      bridge.Name = "omnibar_setConfig"
	NameGetSuggestions bridge.Name = "omnibar_getSuggestions"
	NameOnConfigUpdate bridge.Name = "omnibar_onConfigUpdate"
)

// Client answers the omnibar messages.
type Client struct {
	bridge.Emitter

	model   *Model
	sources []Source
	limit   int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSources sets the suggestion sources, queried in order.
func WithSources(sources ...Source) ClientOption {
	return func(c *Client) { c.sources = sources }
}

// WithSuggestionLimit caps the suggestion list. Default 12.
func WithSuggestionLimit(n int) ClientOption {
	return func(c *Client) { c.limit = n }
}

// NewClient creates the omnibar client. The model's change hook is
// claimed: every mode change broadcasts the new config.
func NewClient(model *Model, opts ...ClientOption) *Client {
	c := &Client{model: model, limit: 12}
	for _, o := range opts {
		o(c)
	}
	model.OnChange(func(cfg Config) {
		c.Emit(NameOnConfigUpdate, cfg)
	})
	return c
}

// Names declares the client's complete message set.
func (c *Client) Names() []bridge.Name {
	return []bridge.Name{NameGetConfig, NameSetConfig, NameGetSuggestions}
}

// Register installs the client's handlers.
func (c *Client) Register(reg *bridge.Registry) error {
	handlers := map[bridge.Name]bridge.Handler{
		NameGetConfig:      c.handleGetConfig,
		NameSetConfig:      c.handleSetConfig,
		NameGetSuggestions: c.handleGetSuggestions,
	}
	for name, h := range handlers {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) handleGetConfig(_ context.Context, _ []byte) (any, error) {
	return c.model.Config(), nil
}

type setConfigParams struct {
	Mode Mode `json:"mode"`
}

func (c *Client) handleSetConfig(ctx context.Context, params []byte) (any, error) {
	req, err := bridge.DecodeParams[setConfigParams](params)
	if err != nil {
		return nil, err
	}
	return nil, c.model.SetMode(ctx, req.Mode)
}

type suggestionsParams struct {
	Term string `json:"term"`
}

type suggestionsResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

func (c *Client) handleGetSuggestions(ctx context.Context, params []byte) (any, error) {
	req, err := bridge.DecodeParams[suggestionsParams](params)
	if err != nil {
		return nil, err
	}
	suggestions, err := c.suggest(ctx, req.Term)
	if err != nil {
		return nil, err
	}
	return suggestionsResponse{Suggestions: suggestions}, nil
}
