package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Connections(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()

	if got := testutil.ToFloat64(c.connectionsActive); got != 1 {
		t.Errorf("expected 1 active connection, got %f", got)
	}
	if got := testutil.ToFloat64(c.connectionsTotal); got != 2 {
		t.Errorf("expected 2 total connections, got %f", got)
	}
}

func TestCollector_Generations(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.GenerationStarted()
	c.GenerationStarted()
	c.GenerationFinished("completed", time.Second)
	c.GenerationFinished("cancelled", 2*time.Second)

	if got := testutil.ToFloat64(c.generationsActive); got != 0 {
		t.Errorf("expected 0 active generations, got %f", got)
	}
	if got := testutil.ToFloat64(c.generationsTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("expected 1 completed generation, got %f", got)
	}
	if got := testutil.ToFloat64(c.generationsTotal.WithLabelValues("cancelled")); got != 1 {
		t.Errorf("expected 1 cancelled generation, got %f", got)
	}
	if testutil.CollectAndCount(c.generationDuration) == 0 {
		t.Error("expected duration observations")
	}
}

func TestCollector_Chunks(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ChunkSent(100, 0.5)
	c.ChunkSent(50, 0)

	if got := testutil.ToFloat64(c.chunksTotal); got != 2 {
		t.Errorf("expected 2 chunks, got %f", got)
	}
	if got := testutil.ToFloat64(c.chunkBytesTotal); got != 150 {
		t.Errorf("expected 150 bytes, got %f", got)
	}
}

func TestCollector_Labels(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.MessageReceived("ping")
	c.MessageReceived("ping")
	c.ErrorSent("rate_limited")
	c.Broadcast("redis")

	if got := testutil.ToFloat64(c.messagesTotal.WithLabelValues("ping")); got != 2 {
		t.Errorf("expected 2 ping messages, got %f", got)
	}
	if got := testutil.ToFloat64(c.errorsTotal.WithLabelValues("rate_limited")); got != 1 {
		t.Errorf("expected 1 rate_limited error, got %f", got)
	}
	if got := testutil.ToFloat64(c.broadcastsTotal.WithLabelValues("redis")); got != 1 {
		t.Errorf("expected 1 redis broadcast, got %f", got)
	}
}

func TestCollector_Workers(t *testing.T) {
	c := New(nil)

	c.WorkerAcquired(10 * time.Millisecond)
	c.WorkerAcquired(0)
	c.WorkerReleased()

	if got := testutil.ToFloat64(c.workersInUse); got != 1 {
		t.Errorf("expected 1 worker in use, got %f", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	c.ConnectionOpened()
	c.ConnectionClosed()
	c.MessageReceived("ping")
	c.ErrorSent("x")
	c.GenerationStarted()
	c.GenerationFinished("completed", time.Second)
	c.ChunkSent(1, 1)
	c.FirstChunk(time.Second)
	c.WorkerAcquired(0)
	c.WorkerReleased()
	c.Broadcast("local")
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(reg)
}
