package favorites

import (
	"context"
	"strings"

	"github.com/hazyhaar/ntab/bridge"
	"github.com/hazyhaar/ntab/omnibar"
)

// Message names answered and pushed by the favorites client.
const (
	NameGetData      bridge.Name = "favorites_getData"
	NameAdd          bridge.Name = "favorites_add"
	NameRemove       bridge.Name = "favorites_remove"
	NameMove         bridge.Name = "favorites_move"
	NameOnDataUpdate bridge.Name = "favorites_onDataUpdate"
)

// Client answers the favorites messages. Every mutation broadcasts the
// full list so all open NTPs re-render in the same order.
type Client struct {
	bridge.Emitter

	store *Store
}

// NewClient creates the favorites client over a store.
func NewClient(store *Store) *Client {
	return &Client{store: store}
}

// Names declares the client's complete message set.
func (c *Client) Names() []bridge.Name {
	return []bridge.Name{NameGetData, NameAdd, NameRemove, NameMove}
}

// Register installs the client's handlers.
func (c *Client) Register(reg *bridge.Registry) error {
	handlers := map[bridge.Name]bridge.Handler{
		NameGetData: c.handleGetData,
		NameAdd:     c.handleAdd,
		NameRemove:  c.handleRemove,
		NameMove:    c.handleMove,
	}
	for name, h := range handlers {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

type data struct {
	Favorites []Favorite `json:"favorites"`
}

func (c *Client) handleGetData(ctx context.Context, _ []byte) (any, error) {
	favs, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return data{Favorites: favs}, nil
}

type addParams struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (c *Client) handleAdd(ctx context.Context, params []byte) (any, error) {
	req, err := bridge.DecodeParams[addParams](params)
	if err != nil {
		return nil, err
	}
	f, err := c.store.Add(ctx, req.Title, req.URL)
	if err != nil {
		return nil, err
	}
	c.announce(ctx)
	return f, nil
}

type removeParams struct {
	ID string `json:"id"`
}

func (c *Client) handleRemove(ctx context.Context, params []byte) (any, error) {
	req, err := bridge.DecodeParams[removeParams](params)
	if err != nil {
		return nil, err
	}
	if err := c.store.Remove(ctx, req.ID); err != nil {
		return nil, err
	}
	c.announce(ctx)
	return nil, nil
}

type moveParams struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

func (c *Client) handleMove(ctx context.Context, params []byte) (any, error) {
	req, err := bridge.DecodeParams[moveParams](params)
	if err != nil {
		return nil, err
	}
	if err := c.store.Move(ctx, req.ID, req.Position); err != nil {
		return nil, err
	}
	c.announce(ctx)
	return nil, nil
}

func (c *Client) announce(ctx context.Context) {
	favs, err := c.store.List(ctx)
	if err != nil {
		return
	}
	c.Emit(NameOnDataUpdate, data{Favorites: favs})
}

// SuggestionSource adapts the favorites store into an omnibar suggestion
// source: favorites surface as bookmark suggestions flagged as favorites.
type SuggestionSource struct {
	Store *Store
	Score int
}

func (s SuggestionSource) Suggest(ctx context.Context, term string) ([]omnibar.Scored, error) {
	favs, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(term)
	var out []omnibar.Scored
	for _, f := range favs {
		if term != "" &&
			!strings.Contains(strings.ToLower(f.Title), term) &&
			!strings.Contains(strings.ToLower(f.URL), term) {
			continue
		}
		out = append(out, omnibar.Scored{
			Suggestion: omnibar.Bookmark{Title: f.Title, URL: f.URL, IsFavorite: true},
			Score:      s.Score,
		})
	}
	return out, nil
}
