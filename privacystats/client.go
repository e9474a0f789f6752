package privacystats

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/hazyhaar/ntab/bridge"
	"github.com/hazyhaar/ntab/settings"
)

// Message names answered and pushed by the stats client.
const (
	NameGetData      bridge.Name = "stats_getData"
	NameShowLess     bridge.Name = "stats_showLess"
	NameShowMore     bridge.Name = "stats_showMore"
	NameOnDataUpdate bridge.Name = "stats_onDataUpdate"
)

// Source is the aggregation store consumed by the client.
// *Store implements it.
type Source interface {
	FetchPrivacyStats(ctx context.Context) ([]CompanyCount, error)
	FetchPrivacyStatsTotalCount(ctx context.Context) (int64, error)
}

// VisibilityFunc reports whether the hosting widget is currently visible.
// Data-update pushes are skipped while it returns false.
type VisibilityFunc func() bool

// DefaultCollapsedCount is how many companies the collapsed list shows.
const DefaultCollapsedCount = 5

const expandedKey = "stats.expanded"

// Client answers the Privacy Stats messages and re-announces
// stats_onDataUpdate whenever the aggregator signals a change, gated to
// fire only while the widget is visible.
type Client struct {
	bridge.Emitter

	source    Source
	trackers  TrackerDataProvider
	store     settings.Store
	visible   VisibilityFunc
	changes   <-chan struct{}
	logger    *slog.Logger
	collapsed int

	mu       sync.RWMutex
	expanded bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithVisibility sets the widget visibility gate.
func WithVisibility(v VisibilityFunc) ClientOption {
	return func(c *Client) { c.visible = v }
}

// WithTrackerData sets the prevalence provider used for tie-breaking.
func WithTrackerData(t TrackerDataProvider) ClientOption {
	return func(c *Client) { c.trackers = t }
}

// WithChanges sets the aggregator change signal drained by Watch.
func WithChanges(ch <-chan struct{}) ClientOption {
	return func(c *Client) { c.changes = ch }
}

// WithCollapsedCount overrides how many companies the collapsed list shows.
func WithCollapsedCount(n int) ClientOption {
	return func(c *Client) { c.collapsed = n }
}

// WithClientLogger sets a custom logger for the client.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates the stats client. The settings store persists the
// expansion toggle write-through.
func NewClient(source Source, store settings.Store, opts ...ClientOption) *Client {
	c := &Client{
		source:    source,
		trackers:  StaticTrackerData(nil),
		store:     store,
		logger:    slog.Default(),
		collapsed: DefaultCollapsedCount,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Load reads the persisted expansion state. A missing key means collapsed.
func (c *Client) Load(ctx context.Context) error {
	var expanded bool
	err := c.store.Get(ctx, expandedKey, &expanded)
	var notFound *settings.ErrNotFound
	if errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.expanded = expanded
	c.mu.Unlock()
	return nil
}

// Expanded reports the current expansion state.
func (c *Client) Expanded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expanded
}

// Names declares the client's complete message set.
func (c *Client) Names() []bridge.Name {
	return []bridge.Name{NameGetData, NameShowLess, NameShowMore}
}

// Register installs the client's handlers.
func (c *Client) Register(reg *bridge.Registry) error {
	handlers := map[bridge.Name]bridge.Handler{
		NameGetData:  c.handleGetData,
		NameShowLess: c.expansionHandler(false),
		NameShowMore: c.expansionHandler(true),
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
				c.logger.Warn("stats update fetch failed", "error", err)
				continue
			}
			c.Emit(NameOnDataUpdate, data)
		}
	}
}

// Data is the stats_getData response and stats_onDataUpdate payload.
type Data struct {
	TotalCount       int64          `json:"totalCount"`
	Expansion        string         `json:"expansion"` // "expanded" or "collapsed"
	TrackerCompanies []CompanyCount `json:"trackerCompanies"`
}

func (c *Client) handleGetData(ctx context.Context, _ []byte) (any, error) {
	return c.data(ctx)
}

func (c *Client) data(ctx context.Context) (Data, error) {
	total, err := c.source.FetchPrivacyStatsTotalCount(ctx)
	if err != nil {
		return Data{}, err
	}
	companies, err := c.source.FetchPrivacyStats(ctx)
	if err != nil {
		return Data{}, err
	}

	// Equal counts order by entity prevalence, then name.
	sort.SliceStable(companies, func(i, j int) bool {
		if companies[i].Count != companies[j].Count {
			return companies[i].Count > companies[j].Count
		}
		pi := c.trackers.Prevalence(companies[i].DisplayName)
		pj := c.trackers.Prevalence(companies[j].DisplayName)
		if pi != pj {
			return pi > pj
		}
		return companies[i].DisplayName < companies[j].DisplayName
	})

	expansion := "collapsed"
	if c.Expanded() {
		expansion = "expanded"
	} else if len(companies) > c.collapsed {
		companies = companies[:c.collapsed]
	}

	return Data{
		TotalCount:       total,
		Expansion:        expansion,
		TrackerCompanies: companies,
	}, nil
}

// expansionHandler persists the new expansion state synchronously, then
// re-announces data so every open NTP re-renders at the same cut. A failed
// persist rejects the request and keeps the prior expansion state.
func (c *Client) expansionHandler(expanded bool) bridge.Handler {
	return func(ctx context.Context, _ []byte) (any, error) {
		if c.Expanded() == expanded {
			return nil, nil
		}
		if err := c.store.Set(ctx, expandedKey, expanded); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.expanded = expanded
		c.mu.Unlock()
		if data, err := c.data(ctx); err == nil {
			c.Emit(NameOnDataUpdate, data)
		}
		return nil, nil
	}
}
