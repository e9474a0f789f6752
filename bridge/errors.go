package bridge

import "fmt"

// ErrDuplicateHandler is returned when two handlers are registered under the
// same message name. Registration is strict so that a copy-pasted name fails
// at startup instead of silently shadowing a handler.
type ErrDuplicateHandler struct {
	Name Name
}

func (e *ErrDuplicateHandler) Error() string {
	return fmt.Sprintf("bridge: duplicate handler for %q", e.Name)
}

// ErrNoHandler is returned when a message arrives (or a declared name is
// verified) with no registered handler.
type ErrNoHandler struct {
	Name Name
}

func (e *ErrNoHandler) Error() string {
	return fmt.Sprintf("bridge: no handler for %q", e.Name)
}

// ErrInstanceClosed is returned when pushing to an instance whose connection
// has been closed or whose outbound queue is gone.
type ErrInstanceClosed struct {
	ID string
}

func (e *ErrInstanceClosed) Error() string {
	return fmt.Sprintf("bridge: instance closed: %s", e.ID)
}

// ErrBadEnvelope is returned when an inbound frame cannot be decoded.
type ErrBadEnvelope struct {
	Cause error
}

func (e *ErrBadEnvelope) Error() string {
	return fmt.Sprintf("bridge: bad envelope: %v", e.Cause)
}

func (e *ErrBadEnvelope) Unwrap() error { return e.Cause }
