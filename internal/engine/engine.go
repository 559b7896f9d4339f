// Package engine defines the incremental audio generation contract consumed by the
// streaming bridge, together with the lifecycle that gates access to it.
package engine

import (
	"context"
	"time"
)

// Params is everything a generation call needs. Voice resolution has already happened.
type Params struct {
	Text          string
	VoicePath     string
	Language      string
	Exaggeration  float64
	CFGWeight     float64
	Temperature   float64
	ChunkSize     int
	ContextWindow int
	FadeDuration  time.Duration
	PrintMetrics  bool
}

// Unit is one increment of generated audio. Metrics is optional engine-provided data.
type Unit struct {
	Samples []float32
	Metrics map[string]any
}

// Engine produces audio incrementally. GenerateStream blocks until generation ends,
// calling yield once per unit in production order. A non-nil error from yield stops the
// generation and is returned.
type Engine interface {
	SampleRate() int
	GenerateStream(ctx context.Context, p Params, yield func(Unit) error) error
}

// Loader builds an engine. It may be slow (model weights, warm-up).
type Loader func(ctx context.Context) (Engine, error)
