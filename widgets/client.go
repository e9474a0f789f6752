package widgets

import (
	"context"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/ntab/bridge"
	"github.com/hazyhaar/ntab/events"
	"github.com/hazyhaar/ntab/kit"
)

// Message names answered and pushed by the configuration client.
const (
	NameInitialSetup        bridge.Name = "widgets_initialSetup"
	NameSetConfig           bridge.Name = "widgets_setConfig"
	NameContextMenu         bridge.Name = "widgets_contextMenu"
	NameReportInitException bridge.Name = "widgets_reportInitException"
	NameReportPageException bridge.Name = "widgets_reportPageException"
	NameOnConfigUpdated     bridge.Name = "widgets_onConfigUpdated"
)

// MenuItem is one entry in the widget context menu. Title comes from the
// front end; Checked reflects current visibility.
type MenuItem struct {
	ID      ID     `json:"id"`
	Title   string `json:"title"`
	Checked bool   `json:"checked"`
}

// MenuPresenter renders a native context menu and returns the widget the
// user selected. ok is false when the menu was dismissed.
type MenuPresenter interface {
	Present(ctx context.Context, items []MenuItem) (selected ID, ok bool)
}

// ExceptionReporter records front-end exception reports.
// *events.Reporter implements it.
type ExceptionReporter interface {
	Report(ctx context.Context, ev events.Event)
}

// Client is the coordinating configuration client: it declares the widget
// set, answers setup and visibility messages, drives the context menu, and
// relays front-end exception reports.
type Client struct {
	bridge.Emitter

	model    *Model
	menu     MenuPresenter
	reporter ExceptionReporter
	env      string

	// Menu item titles are supplied by the front end; strip any markup
	// before they reach a native menu.
	sanitizer *bluemonday.Policy
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMenuPresenter sets the native context-menu presenter. Without one,
// widgets_contextMenu is a no-op.
func WithMenuPresenter(p MenuPresenter) ClientOption {
	return func(c *Client) { c.menu = p }
}

// WithExceptionReporter sets the telemetry sink for front-end exceptions.
func WithExceptionReporter(r ExceptionReporter) ClientOption {
	return func(c *Client) { c.reporter = r }
}

// WithEnv sets the environment string sent in initialSetup ("production",
// "development"). Default "production".
func WithEnv(env string) ClientOption {
	return func(c *Client) { c.env = env }
}

// NewClient creates the configuration client over a widget model. The
// model's change hook is claimed: every visibility change broadcasts
// widgets_onConfigUpdated to all instances.
func NewClient(model *Model, opts ...ClientOption) *Client {
	c := &Client{
		model:     model,
		env:       "production",
		sanitizer: bluemonday.StrictPolicy(),
	}
	for _, o := range opts {
		o(c)
	}
	model.OnChange(func(cfgs []Config) {
		c.Emit(NameOnConfigUpdated, configUpdate{WidgetConfigs: cfgs})
	})
	return c
}

// Names declares the client's complete message set.
func (c *Client) Names() []bridge.Name {
	return []bridge.Name{
		NameInitialSetup, NameSetConfig, NameContextMenu,
		NameReportInitException, NameReportPageException,
	}
}

// Register installs the client's handlers.
func (c *Client) Register(reg *bridge.Registry) error {
	handlers := map[bridge.Name]bridge.Handler{
		NameInitialSetup:        c.handleInitialSetup,
		NameSetConfig:           c.handleSetConfig,
		NameContextMenu:         c.handleContextMenu,
		NameReportInitException: c.exceptionHandler(events.KindInitException),
		NameReportPageException: c.exceptionHandler(events.KindPageException),
	}
	for name, h := range handlers {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

type widgetRef struct {
	ID ID `json:"id"`
}

type platformInfo struct {
	Name string `json:"name"`
}

type initialSetupResponse struct {
	Widgets       []widgetRef  `json:"widgets"`
	WidgetConfigs []Config     `json:"widgetConfigs"`
	Env           string       `json:"env"`
	Platform      platformInfo `json:"platform"`
}

type configUpdate struct {
	WidgetConfigs []Config `json:"widgetConfigs"`
}

func (c *Client) handleInitialSetup(_ context.Context, _ []byte) (any, error) {
	ids := c.model.Widgets()
	refs := make([]widgetRef, len(ids))
	for i, id := range ids {
		refs[i] = widgetRef{ID: id}
	}
	return initialSetupResponse{
		Widgets:       refs,
		WidgetConfigs: c.model.Configs(),
		Env:           c.env,
		Platform:      platformInfo{Name: "native"},
	}, nil
}

func (c *Client) handleSetConfig(ctx context.Context, params []byte) (any, error) {
	req, err := bridge.DecodeParams[[]Config](params)
	if err != nil {
		return nil, err
	}
	return nil, c.model.SetConfigs(ctx, req)
}

type contextMenuParams struct {
	MenuItems []struct {
		ID    ID     `json:"id"`
		Title string `json:"title"`
	} `json:"menuItems"`
}

// handleContextMenu renders a native menu from FE-supplied descriptors and
// maps the selection back into a visibility toggle. An empty item list, or
// no presenter, takes no action.
func (c *Client) handleContextMenu(ctx context.Context, params []byte) (any, error) {
	req, err := bridge.DecodeParams[contextMenuParams](params)
	if err != nil {
		return nil, err
	}
	if len(req.MenuItems) == 0 || c.menu == nil {
		return nil, nil
	}

	items := make([]MenuItem, 0, len(req.MenuItems))
	for _, it := range req.MenuItems {
		items = append(items, MenuItem{
			ID:      it.ID,
			Title:   c.sanitizer.Sanitize(it.Title),
			Checked: c.model.IsVisible(it.ID),
		})
	}

	selected, ok := c.menu.Present(ctx, items)
	if !ok {
		return nil, nil
	}
	return nil, c.model.SetVisible(ctx, selected, !c.model.IsVisible(selected))
}

type exceptionParams struct {
	Message string `json:"message"`
}

func (c *Client) exceptionHandler(kind string) bridge.Handler {
	return func(ctx context.Context, params []byte) (any, error) {
		req, err := bridge.DecodeParams[exceptionParams](params)
		if err != nil {
			return nil, err
		}
		if c.reporter != nil {
			c.reporter.Report(ctx, events.Event{
				Kind:       kind,
				InstanceID: kit.GetInstanceID(ctx),
				Message:    req.Message,
			})
		}
		return nil, nil
	}
}
