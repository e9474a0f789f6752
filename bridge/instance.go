package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/hazyhaar/ntab/kit"
)

// Conn is a single web-context connection. Read blocks until a frame
// arrives; Write sends one frame. Implementations need not be safe for
// concurrent writes: the instance serializes all writes through one
// goroutine.
type Conn interface {
	Read() ([]byte, error)
	Write(p []byte) error
	Close() error
}

// Dispatcher resolves a message name to its handler and invokes it.
// *Registry is the direct implementation; the actions manager wraps one to
// serialize handler execution on its run loop.
type Dispatcher interface {
	Dispatch(ctx context.Context, name Name, params []byte) (any, error)
}

// Instance is the native endpoint for one web context (one open window's
// NTP). It reads inbound frames, dispatches them, replies to requests, and
// accepts pushes from the native side.
//
// Instances are created when a web context connects and must be discarded
// when Run returns; the owner (the actions manager) holds them only between
// attach and detach, so a closed window is never retained.
type Instance struct {
	id         string
	conn       Conn
	dispatcher Dispatcher
	logger     *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// InstanceOption configures an Instance.
type InstanceOption func(*Instance)

// WithInstanceLogger sets a custom logger for the instance.
func WithInstanceLogger(l *slog.Logger) InstanceOption {
	return func(i *Instance) { i.logger = l }
}

// NewInstance wraps a connection. The id identifies the instance in logs
// and event records; generate it with idgen.Prefixed("ntp_", ...).
func NewInstance(id string, conn Conn, d Dispatcher, opts ...InstanceOption) *Instance {
	inst := &Instance{
		id:         id,
		conn:       conn,
		dispatcher: d,
		logger:     slog.Default(),
		send:       make(chan []byte, 64),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(inst)
	}
	return inst
}

// ID returns the instance identifier.
func (i *Instance) ID() string { return i.id }

// Run reads and dispatches inbound frames until the connection drops or ctx
// is cancelled. It blocks; run it in a goroutine. When Run returns the
// instance is closed and must be detached.
func (i *Instance) Run(ctx context.Context) {
	defer i.Close()

	go i.writeLoop()

	// Close the connection when ctx is cancelled so the blocking Read
	// below unblocks.
	stop := context.AfterFunc(ctx, func() { i.Close() })
	defer stop()

	for {
		frame, err := i.conn.Read()
		if err != nil {
			select {
			case <-i.done:
			default:
				i.logger.Debug("instance read ended", "instance", i.id, "error", err)
			}
			return
		}
		i.handleFrame(ctx, frame)
	}
}

// handleFrame decodes one inbound envelope and dispatches it. Requests
// (non-empty id) always get a reply: a handler or decode error becomes an
// error reply, which the front end sees as a rejected promise.
func (i *Instance) handleFrame(ctx context.Context, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		i.logger.Warn("instance dropped undecodable frame",
			"instance", i.id, "error", &ErrBadEnvelope{Cause: err})
		return
	}

	ctx = kit.WithInstanceID(ctx, i.id)
	ctx = kit.WithMessageName(ctx, string(env.Name))

	result, err := i.dispatcher.Dispatch(ctx, env.Name, env.Params)

	if env.ID == "" {
		// Notification: nothing to reply to.
		if err != nil {
			i.logger.Warn("notification handler failed",
				"instance", i.id, "message", env.Name, "error", err)
		}
		return
	}

	reply := Reply{ID: env.ID}
	if err != nil {
		i.logger.Warn("request handler failed",
			"instance", i.id, "message", env.Name, "error", err)
		reply.Error = &WireError{Message: err.Error()}
	} else {
		reply.Result = result
	}
	if err := i.write(reply); err != nil {
		i.logger.Warn("reply dropped", "instance", i.id, "message", env.Name, "error", err)
	}
}

// Push sends a notification or subscription delivery to this instance only.
// Returns ErrInstanceClosed if the instance is gone.
func (i *Instance) Push(name Name, params any) error {
	return i.write(PushFrame{Name: name, Params: params})
}

// write queues one outbound frame. It never blocks: fan-out runs on the
// actions manager's run loop, and a stalled web context must not wedge it.
// A full outbound buffer means the peer stopped reading, so the instance
// is closed and left for its owner to detach.
func (i *Instance) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case i.send <- b:
		return nil
	case <-i.done:
		return &ErrInstanceClosed{ID: i.id}
	default:
		i.logger.Warn("instance outbound buffer full, closing stalled instance",
			"instance", i.id)
		i.Close()
		return &ErrInstanceClosed{ID: i.id}
	}
}

// writeLoop is the single writer to the connection.
func (i *Instance) writeLoop() {
	for {
		select {
		case <-i.done:
			return
		case b := <-i.send:
			if err := i.conn.Write(b); err != nil {
				i.logger.Debug("instance write failed", "instance", i.id, "error", err)
				i.Close()
				return
			}
		}
	}
}

// Close shuts the instance down. Safe to call multiple times.
func (i *Instance) Close() error {
	i.closeOnce.Do(func() {
		close(i.done)
		i.conn.Close()
	})
	return nil
}
