package protections

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/ntab/bridge"
	"github.com/hazyhaar/ntab/privacystats"
)

// Message names answered and pushed by the protections report client.
const (
	NameGetConfig      bridge.Name = "protections_getConfig"
	NameSetConfig      bridge.Name = "protections_setConfig"
	NameGetData        bridge.Name = "protections_getData"
	NameOnConfigUpdate bridge.Name = "protections_onConfigUpdate"
	NameOnDataUpdate   bridge.Name = "protections_onDataUpdate"
)

// VisibilityFunc reports whether the protections widget is currently
// visible; data re-announcements are skipped while it returns false.
type VisibilityFunc func() bool

// Client answers the Protections Report messages. Config changes broadcast
// protections_onConfigUpdate; aggregator changes re-announce
// protections_onDataUpdate while the widget is visible.
type Client struct {
	bridge.Emitter

	model   *Model
	stats   privacystats.Source
	visible VisibilityFunc
	changes <-chan struct{}
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithVisibility sets the widget visibility gate.
func WithVisibility(v VisibilityFunc) ClientOption {
	return func(c *Client) { c.visible = v }
}

// WithChanges sets the stats-aggregator change signal drained by Watch.
func WithChanges(ch <-chan struct{}) ClientOption {
	return func(c *Client) { c.changes = ch }
}

// WithLogger sets a custom logger for the client.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates the protections report client. The model's change hook
// is claimed: every persisted mutation broadcasts the new config.
func NewClient(model *Model, stats privacystats.Source, opts ...ClientOption) *Client {
	c := &Client{
		model:  model,
		stats:  stats,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	model.OnChange(func(cfg Config) {
		c.Emit(NameOnConfigUpdate, configResponse{
			Expansion: expansionString(cfg.Expanded),
			Feed:      cfg.Feed,
		})
	})
	return c
}

// Names declares the client's complete message set.
func (c *Client) Names() []bridge.Name {
	return []bridge.Name{NameGetConfig, NameSetConfig, NameGetData}
}

// Register installs the client's handlers.
func (c *Client) Register(reg *bridge.Registry) error {
	handlers := map[bridge.Name]bridge.Handler{
		NameGetConfig: c.handleGetConfig,
		NameSetConfig: c.handleSetConfig,
		NameGetData:   c.handleGetData,
	}
	for name, h := range handlers {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

// Watch drains the aggregator change signal and re-announces data while
// the widget is visible. Blocks until ctx is cancelled; run in a goroutine.
func (c *Client) Watch(ctx context.Context) {
	if c.changes == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.changes:
			if c.visible != nil && !c.visible() {
				continue
			}
			data, err := c.data(ctx)
			if err != nil {
				c.logger.Warn("protections data fetch failed", "error", err)
				continue
			}
			c.Emit(NameOnDataUpdate, data)
		}
	}
}

type configResponse struct {
	Expansion string `json:"expansion"` // "expanded" or "collapsed"
	Feed      Feed   `json:"feed"`
}

type setConfigParams struct {
	Expansion *string `json:"expansion,omitempty"`
	Feed      *Feed   `json:"feed,omitempty"`
}

// Data is the protections_getData response and onDataUpdate payload. Feed
// data is present only for the visible feed; a collapsed widget carries the
// total alone.
type Data struct {
	TotalCount  int64                       `json:"totalCount"`
	VisibleFeed *Feed                       `json:"visibleFeed,omitempty"`
	Companies   []privacystats.CompanyCount `json:"trackerCompanies,omitempty"`
}

func expansionString(expanded bool) string {
	if expanded {
		return "expanded"
	}
	return "collapsed"
}

func (c *Client) handleGetConfig(_ context.Context, _ []byte) (any, error) {
	cfg := c.model.Config()
	return configResponse{
		Expansion: expansionString(cfg.Expanded),
		Feed:      cfg.Feed,
	}, nil
}

// handleSetConfig applies a partial update: absent fields keep their prior
// value. Last write wins across windows; arrival order on the manager's
// run loop decides.
func (c *Client) handleSetConfig(ctx context.Context, params []byte) (any, error) {
	req, err := bridge.DecodeParams[setConfigParams](params)
	if err != nil {
		return nil, err
	}
	cfg := c.model.Config()
	if req.Expansion != nil {
		cfg.Expanded = *req.Expansion == "expanded"
	}
	if req.Feed != nil {
		cfg.Feed = *req.Feed
	}
	return nil, c.model.SetConfig(ctx, cfg)
}

func (c *Client) handleGetData(ctx context.Context, _ []byte) (any, error) {
	return c.data(ctx)
}

func (c *Client) data(ctx context.Context) (Data, error) {
	total, err := c.stats.FetchPrivacyStatsTotalCount(ctx)
	if err != nil {
		return Data{}, err
	}
	data := Data{TotalCount: total, VisibleFeed: c.model.VisibleFeed()}
	if data.VisibleFeed != nil && *data.VisibleFeed == FeedPrivacyStats {
		companies, err := c.stats.FetchPrivacyStats(ctx)
		if err != nil {
			return Data{}, err
		}
		data.Companies = companies
	}
	return data, nil
}
