// Package registry tracks live client connections and serializes writes to each of them.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	cleanupInterval = 30 * time.Second
	idLength        = 8
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionClosed   = errors.New("connection closed")
)

type Registry struct {
	mu    sync.RWMutex
	conns map[string]*conn

	idleTimeout time.Duration
	log         *slog.Logger
	now         func() time.Time
}

func New(idleTimeout time.Duration, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		conns:       make(map[string]*conn),
		idleTimeout: idleTimeout,
		log:         log.With("component", "connection_registry"),
		now:         time.Now,
	}
}

// Register stores the transport under a new unique id with state idle.
func (r *Registry) Register(t Transport) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for {
		id = uuid.NewString()[:idLength]
		if _, exists := r.conns[id]; !exists {
			break
		}
	}
	r.conns[id] = newConn(id, t, r.now())

	r.log.Info("connection registered", "connection_id", id, "total", len(r.conns))
	return id
}

// Unregister removes the connection and closes its transport. It reports whether the
// connection was present; repeated calls are no-ops.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	total := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return false
	}
	c.close()
	r.log.Info("connection unregistered", "connection_id", id, "total", total)
	return true
}

func (r *Registry) lookup(id string) (*conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) send(id string, messageType int, data []byte) error {
	c, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}

	if err := c.write(messageType, data, r.now().Add(writeWait)); err != nil {
		r.Unregister(id)
		if errors.Is(err, ErrConnectionClosed) {
			return err
		}
		r.log.Debug("write failed, connection removed", "connection_id", id, "error", err)
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return nil
}

func (r *Registry) SendJSON(id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return r.send(id, websocket.TextMessage, data)
}

func (r *Registry) SendText(id, text string) error {
	return r.send(id, websocket.TextMessage, []byte(text))
}

func (r *Registry) SendBytes(id string, data []byte) error {
	return r.send(id, websocket.BinaryMessage, data)
}

func (r *Registry) Ping(id string) error {
	return r.send(id, websocket.PingMessage, nil)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) IsConnected(id string) bool {
	_, ok := r.lookup(id)
	return ok
}

func (r *Registry) GetState(id string) (State, bool) {
	c, ok := r.lookup(id)
	if !ok {
		return "", false
	}
	return c.getState(), true
}

func (r *Registry) SetState(id string, s State) bool {
	c, ok := r.lookup(id)
	if !ok {
		return false
	}
	c.setState(s)
	return true
}

func (r *Registry) Touch(id string) {
	if c, ok := r.lookup(id); ok {
		c.touch(r.now())
	}
}

func (r *Registry) LastActivity(id string) (time.Time, bool) {
	c, ok := r.lookup(id)
	if !ok {
		return time.Time{}, false
	}
	t, _ := c.idleSince()
	return t, true
}

// BroadcastJSON writes v to every live connection and returns how many received it.
func (r *Registry) BroadcastJSON(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		r.log.Error("marshal broadcast", "error", err)
		return 0
	}
	return r.broadcastText(data)
}

func (r *Registry) broadcastText(data []byte) int {
	delivered := 0
	for _, id := range r.IDs() {
		if err := r.send(id, websocket.TextMessage, data); err == nil {
			delivered++
		}
	}
	return delivered
}

// EvictIdle unregisters connections idle for longer than maxIdle. Connections that are
// streaming are kept.
func (r *Registry) EvictIdle(maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}

	now := r.now()
	r.mu.RLock()
	var stale []string
	for id, c := range r.conns {
		last, state := c.idleSince()
		if state != StateStreaming && now.Sub(last) > maxIdle {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	var evicted []string
	for _, id := range stale {
		if r.Unregister(id) {
			evicted = append(evicted, id)
		}
	}
	if len(evicted) > 0 {
		r.log.Info("evicted idle connections", "count", len(evicted))
	}
	return evicted
}

// Run evicts idle connections periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	if r.idleTimeout <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictIdle(r.idleTimeout)
		}
	}
}

func (r *Registry) CloseAll() {
	for _, id := range r.IDs() {
		r.Unregister(id)
	}
}
