package history

import (
	"context"
	"log/slog"
	"time"
)

const recordTimeout = 5 * time.Second

// Recorder persists generations without blocking the caller. A nil store drops records.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger.With("component", "history_recorder")}
}

func (r *Recorder) Enabled() bool {
	return r != nil && r.store != nil
}

func (r *Recorder) Record(g *Generation) {
	if !r.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := r.store.Create(ctx, g); err != nil {
			r.logger.Warn("record generation", "error", err, "connection_id", g.ConnectionID)
		}
	}()
}
