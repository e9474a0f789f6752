package bridge

import (
	"log/slog"
	"sync"
)

// Emitter is the push side of a feature client. Clients embed one and call
// Emit when their model changes; the actions manager drains Pushes and
// fans each push out to every live instance.
//
// Emit never blocks the mutating caller: if the manager is not draining
// fast enough the push is dropped and logged. Subscription messages are
// re-announcements of current state, so a dropped one is superseded by the
// next.
type Emitter struct {
	once   sync.Once
	ch     chan Push
	logger *slog.Logger
}

// Pushes returns the channel the actions manager drains.
func (e *Emitter) Pushes() <-chan Push {
	e.init()
	return e.ch
}

// Emit queues a push for fan-out.
func (e *Emitter) Emit(name Name, params any) {
	e.init()
	select {
	case e.ch <- Push{Name: name, Params: params}:
	default:
		e.logger.Warn("push dropped, emitter full", "message", name)
	}
}

func (e *Emitter) init() {
	e.once.Do(func() {
		e.ch = make(chan Push, 64)
		if e.logger == nil {
			e.logger = slog.Default()
		}
	})
}
