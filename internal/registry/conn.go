package registry

import (
	"sync"
	"time"
)

type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateError     State = "error"
)

// Transport is the write side of a client connection. *websocket.Conn satisfies it.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type conn struct {
	id        string
	transport Transport

	writeMu sync.Mutex

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	connectedAt  time.Time
	closed       bool
}

func newConn(id string, t Transport, now time.Time) *conn {
	return &conn{
		id:           id,
		transport:    t,
		state:        StateIdle,
		lastActivity: now,
		connectedAt:  now,
	}
}

func (c *conn) write(messageType int, data []byte, deadline time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return ErrConnectionClosed
	}
	_ = c.transport.SetWriteDeadline(deadline)
	return c.transport.WriteMessage(messageType, data)
}

// close marks the slot closed and reports whether this call did it.
func (c *conn) close() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.transport.Close()
	return true
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) getState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *conn) touch(now time.Time) {
	c.mu.Lock()
	c.lastActivity = now
	c.mu.Unlock()
}

func (c *conn) idleSince() (time.Time, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity, c.state
}
