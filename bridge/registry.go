package bridge

import (
	"context"
	"sort"
	"sync"
)

// Handler answers one message name. It decodes params, calls into the
// feature model, and returns the encodable result (nil for notifications).
// A returned error rejects the front end's promise.
type Handler func(ctx context.Context, params []byte) (any, error)

// Client is a per-feature message client. Register installs the client's
// handlers into a registry; Names declares the client's complete message
// set so the registry can be verified for coverage.
type Client interface {
	Names() []Name
	Register(reg *Registry) error
}

// Publisher is implemented by clients that push server-side changes
// (subscription deliveries) to the web contexts. The actions manager drains
// Pushes and fans each one out to every live instance.
type Publisher interface {
	Pushes() <-chan Push
}

// Registry maps message names to handlers. One registry is shared by all
// script instances: the handler set is identical for every open window.
//
// Registration is strict: duplicate names and dispatch of unknown names are
// typed errors, never silent no-ops. A typo'd message name fails loudly.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Name]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Name]Handler)}
}

// Register installs a handler for a message name.
// Returns ErrDuplicateHandler if the name is already taken.
func (r *Registry) Register(name Name, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return &ErrDuplicateHandler{Name: name}
	}
	r.handlers[name] = h
	return nil
}

// Dispatch invokes the handler for name.
// Returns ErrNoHandler if the name is not registered.
func (r *Registry) Dispatch(ctx context.Context, name Name, params []byte) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrNoHandler{Name: name}
	}
	return h(ctx, params)
}

// Verify checks that every declared name has a handler. Called after all
// clients have registered, so a client that declares a name but forgets the
// handler fails at startup.
func (r *Registry) Verify(names ...Name) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range names {
		if _, ok := r.handlers[n]; !ok {
			return &ErrNoHandler{Name: n}
		}
	}
	return nil
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Name, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
