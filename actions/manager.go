// Package actions aggregates the per-feature message clients behind one
// manager: a single set of models and handlers shared by every open
// window's NTP, with state changes fanned out to all of them.
//
// The manager serializes all handler execution and all fan-out on one run
// loop goroutine, the bridge's analogue of a UI main run loop. Two windows
// mutating the same setting in the same instant resolve last-write-wins in
// the order their messages reach the loop.
//
//	m := actions.NewManager()
//	m.AddClient(widgetsClient)
//	m.AddClient(statsClient)
//	go m.Run(ctx)
//	mux.Handle("/ntp/bridge", bridge.NewWebSocketHandler(m))
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/ntab/bridge"
	"github.com/hazyhaar/ntab/events"
	"github.com/hazyhaar/ntab/idgen"
	"github.com/hazyhaar/ntab/kit"
)

// ErrStopped is returned when a message arrives after the manager's run
// loop has exited.
type ErrStopped struct{}

func (e *ErrStopped) Error() string { return "actions: manager stopped" }

// ErrNoInstance is returned by PushTo for an unknown instance ID.
type ErrNoInstance struct {
	ID string
}

func (e *ErrNoInstance) Error() string {
	return fmt.Sprintf("actions: no such instance: %s", e.ID)
}

// EventReporter records instance lifecycle events. *events.Reporter
// implements it.
type EventReporter interface {
	Report(ctx context.Context, ev events.Event)
}

// Manager owns exactly one instance of each feature model/client pair for
// the whole process and registers the same handler set against every
// connected web context.
type Manager struct {
	reg      *bridge.Registry
	logger   *slog.Logger
	newID    idgen.Generator
	reporter EventReporter

	names      []bridge.Name
	publishers []bridge.Publisher

	tasks   chan func()
	stopped chan struct{}

	mu        sync.Mutex
	instances []*bridge.Instance // attach order; fan-out delivery order
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger for the manager.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithIDGenerator sets a custom ID generator for instance IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(m *Manager) { m.newID = gen }
}

// WithEventReporter sets the telemetry sink for instance lifecycle events.
func WithEventReporter(r EventReporter) Option {
	return func(m *Manager) { m.reporter = r }
}

// NewManager creates an empty manager. Add all clients, then Verify, then
// Run.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		reg:     bridge.NewRegistry(),
		logger:  slog.Default(),
		newID:   idgen.Prefixed("ntp_", idgen.Default),
		tasks:   make(chan func()),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// AddClient registers a feature client's handlers. A duplicate message
// name anywhere across clients is a hard error. Clients that publish
// pushes are drained by Run.
func (m *Manager) AddClient(c bridge.Client) error {
	if err := c.Register(m.reg); err != nil {
		return err
	}
	m.names = append(m.names, c.Names()...)
	if p, ok := c.(bridge.Publisher); ok {
		m.publishers = append(m.publishers, p)
	}
	return nil
}

// Verify checks that every name declared by every added client has a
// handler. Call after the last AddClient, before Run.
func (m *Manager) Verify() error {
	return m.reg.Verify(m.names...)
}

// Run executes the run loop until ctx is cancelled: handler tasks from
// connected instances and push fan-out from client publishers, strictly
// in arrival order. Blocks; run it in a goroutine.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.stopped)

	var wg sync.WaitGroup
	for _, p := range m.publishers {
		wg.Add(1)
		go func(p bridge.Publisher) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case push := <-p.Pushes():
					m.enqueue(ctx, func() { m.broadcast(push.Name, push.Params) })
				}
			}
		}(p)
	}

	m.logger.Info("actions manager started", "messages", len(m.reg.Names()))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			m.logger.Info("actions manager stopped")
			return
		case task := <-m.tasks:
			task()
		}
	}
}

// enqueue submits a task to the run loop, dropping it if the loop is gone.
func (m *Manager) enqueue(ctx context.Context, task func()) {
	select {
	case m.tasks <- task:
	case <-ctx.Done():
	case <-m.stopped:
	}
}

// Dispatch implements bridge.Dispatcher. Handler execution happens on the
// run loop so every model mutation is serialized.
func (m *Manager) Dispatch(ctx context.Context, name bridge.Name, params []byte) (any, error) {
	type result struct {
		v   any
		err error
	}
	res := make(chan result, 1)
	task := func() {
		v, err := m.reg.Dispatch(ctx, name, params)
		res <- result{v, err}
	}

	select {
	case m.tasks <- task:
	case <-m.stopped:
		return nil, &ErrStopped{}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-res:
		return r.v, r.err
	case <-m.stopped:
		return nil, &ErrStopped{}
	}
}

// HandleConn implements bridge.InstanceHost: it attaches a new script
// instance for the connection, serves it until the connection drops, and
// detaches it. The manager holds the instance only between attach and
// detach, so closed windows are never retained.
func (m *Manager) HandleConn(ctx context.Context, conn bridge.Conn, remoteAddr string) {
	inst := bridge.NewInstance(m.newID(), conn, m,
		bridge.WithInstanceLogger(m.logger))

	m.mu.Lock()
	m.instances = append(m.instances, inst)
	n := len(m.instances)
	m.mu.Unlock()

	m.logger.Info("instance attached",
		"instance", inst.ID(), "remote", remoteAddr, "active", n)
	if m.reporter != nil {
		m.reporter.Report(ctx, events.Event{
			Kind: events.KindInstanceOpen, InstanceID: inst.ID(),
		})
	}

	inst.Run(kit.WithRemoteAddr(ctx, remoteAddr))

	m.detach(inst)
	m.logger.Info("instance detached", "instance", inst.ID())
	if m.reporter != nil {
		m.reporter.Report(context.WithoutCancel(ctx), events.Event{
			Kind: events.KindInstanceClose, InstanceID: inst.ID(),
		})
	}
}

func (m *Manager) detach(inst *bridge.Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, candidate := range m.instances {
		if candidate == inst {
			m.instances = append(m.instances[:i], m.instances[i+1:]...)
			return
		}
	}
}

// InstanceCount reports the number of attached instances.
func (m *Manager) InstanceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

// broadcast pushes to every attached instance in attach order. A closed
// instance is skipped; its own Run exit detaches it.
func (m *Manager) broadcast(name bridge.Name, params any) {
	m.mu.Lock()
	snapshot := append([]*bridge.Instance(nil), m.instances...)
	m.mu.Unlock()

	for _, inst := range snapshot {
		if err := inst.Push(name, params); err != nil {
			m.logger.Debug("broadcast skipped closed instance",
				"instance", inst.ID(), "message", name)
		}
	}
}

// PushTo sends a window-scoped push to a single instance.
func (m *Manager) PushTo(instanceID string, name bridge.Name, params any) error {
	m.mu.Lock()
	var target *bridge.Instance
	for _, inst := range m.instances {
		if inst.ID() == instanceID {
			target = inst
			break
		}
	}
	m.mu.Unlock()
	if target == nil {
		return &ErrNoInstance{ID: instanceID}
	}
	return target.Push(name, params)
}
