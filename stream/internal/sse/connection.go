package sse

import (
	"errors"
	"sync/atomic"
	"time"
)

// State tracks a connection through its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateClosing
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// connection is the manager's bookkeeping for one live stream.
type connection struct {
	mode    string // "facility" or "region"
	channel string
	started time.Time

	stateAtomic atomic.Int32
}

func (c *connection) setState(s State) {
	c.stateAtomic.Store(int32(s))
}

// State returns the connection's current lifecycle state.
func (c *connection) State() State {
	return State(c.stateAtomic.Load())
}

// Errors surfaced by the connection manager.
var (
	// ErrGeoFilterInvalid rejects malformed lat/lon/radius at connection
	// setup; the connection is never opened.
	ErrGeoFilterInvalid = errors.New("sse: invalid geo filter")

	// ErrBadRequest rejects malformed connection parameters.
	ErrBadRequest = errors.New("sse: bad request")

	// ErrStreamUnsupported means the transport cannot flush incrementally.
	ErrStreamUnsupported = errors.New("sse: streaming unsupported")

	// ErrShuttingDown rejects new connections during server shutdown.
	ErrShuttingDown = errors.New("sse: server shutting down")
)
