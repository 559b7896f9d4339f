package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrNotReady = errors.New("engine not ready")

type State string

const (
	StateNotInitialized State = "not_initialized"
	StateInitializing   State = "initializing"
	StateReady          State = "ready"
	StateError          State = "error"
)

type Status struct {
	State      State     `json:"state"`
	Progress   string    `json:"progress,omitempty"`
	Error      string    `json:"error,omitempty"`
	SampleRate int       `json:"sample_rate,omitempty"`
	ReadyAt    time.Time `json:"ready_at,omitempty"`
}

// Manager owns the single shared engine instance and its initialization lifecycle.
type Manager struct {
	loader Loader
	log    *slog.Logger

	mu       sync.RWMutex
	state    State
	progress string
	initErr  error
	engine   Engine
	readyAt  time.Time
}

func NewManager(loader Loader, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		loader:   loader,
		log:      log.With("component", "engine_manager"),
		state:    StateNotInitialized,
		progress: "Waiting to initialize",
	}
}

// NewReadyManager wraps an already constructed engine.
func NewReadyManager(e Engine) *Manager {
	m := NewManager(nil, nil)
	m.engine = e
	m.state = StateReady
	m.progress = "Ready"
	m.readyAt = time.Now()
	return m
}

func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateInitializing || m.state == StateReady {
		m.mu.Unlock()
		return nil
	}
	if m.loader == nil {
		m.state = StateError
		m.initErr = errors.New("no engine loader configured")
		m.progress = "Failed: no loader"
		err := m.initErr
		m.mu.Unlock()
		return err
	}
	m.state = StateInitializing
	m.progress = "Loading engine"
	m.initErr = nil
	m.mu.Unlock()

	m.log.Info("initializing engine")
	start := time.Now()

	e, err := m.loader(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.state = StateError
		m.initErr = err
		m.progress = "Failed: " + err.Error()
		m.log.Error("engine initialization failed", "error", err)
		return fmt.Errorf("initialize engine: %w", err)
	}

	m.engine = e
	m.state = StateReady
	m.progress = "Ready"
	m.readyAt = time.Now()
	m.log.Info("engine ready", "sample_rate", e.SampleRate(), "took", time.Since(start))
	return nil
}

// Engine returns the engine when ready. The error wraps ErrNotReady and carries the
// initialization failure or current state.
func (m *Manager) Engine() (Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == StateReady && m.engine != nil {
		return m.engine, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotReady, m.reasonLocked())
}

func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.engine != nil
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Reason describes why the engine is unavailable.
func (m *Manager) Reason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reasonLocked()
}

func (m *Manager) reasonLocked() string {
	switch {
	case m.initErr != nil:
		return m.initErr.Error()
	case m.state == StateInitializing:
		return "Initializing"
	case m.state == StateReady:
		return ""
	default:
		return "Not initialized"
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Status{
		State:    m.state,
		Progress: m.progress,
		ReadyAt:  m.readyAt,
	}
	if m.initErr != nil {
		s.Error = m.initErr.Error()
	}
	if m.engine != nil {
		s.SampleRate = m.engine.SampleRate()
	}
	return s
}
