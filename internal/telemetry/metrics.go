// Package telemetry exposes Prometheus collectors for sessions and generations.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tts_stream"

// Collector groups the service metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	messagesTotal     *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec

	generationsActive  prometheus.Gauge
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	timeToFirstChunk   prometheus.Histogram
	realTimeFactor     prometheus.Histogram
	chunksTotal        prometheus.Counter
	chunkBytesTotal    prometheus.Counter

	workersInUse    prometheus.Gauge
	queueWait       prometheus.Histogram
	broadcastsTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open WebSocket sessions",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted WebSocket sessions",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound client messages by type",
		}, []string{"type"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_sent_total",
			Help:      "Error replies sent to clients by code",
		}, []string{"code"}),
		generationsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generations_active",
			Help:      "Number of generations currently streaming",
		}),
		generationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Completed generations by outcome",
		}, []string{"outcome"}), // outcome: completed, cancelled, failed
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time from request acceptance to terminal event",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		timeToFirstChunk: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_to_first_chunk_seconds",
			Help:      "Latency from request acceptance to the first audio chunk",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		}),
		realTimeFactor: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "real_time_factor",
			Help:      "Per-chunk elapsed time divided by audio produced",
			Buckets:   []float64{.1, .25, .5, .75, 1, 1.5, 2, 5},
		}),
		chunksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_sent_total",
			Help:      "Total audio chunks delivered",
		}),
		chunkBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_sent_total",
			Help:      "Total audio bytes delivered",
		}),
		workersInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_in_use",
			Help:      "Generation worker slots currently held",
		}),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_queue_wait_seconds",
			Help:      "Time spent waiting for a generation worker",
			Buckets:   []float64{.001, .01, .1, .5, 1, 5, 10, 30},
		}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcast messages fanned out to local connections by source",
		}, []string{"source"}), // source: local, redis
	}

	if reg != nil {
		reg.MustRegister(
			c.connectionsActive,
			c.connectionsTotal,
			c.messagesTotal,
			c.errorsTotal,
			c.generationsActive,
			c.generationsTotal,
			c.generationDuration,
			c.timeToFirstChunk,
			c.realTimeFactor,
			c.chunksTotal,
			c.chunkBytesTotal,
			c.workersInUse,
			c.queueWait,
			c.broadcastsTotal,
		)
	}
	return c
}

func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Inc()
	c.connectionsTotal.Inc()
}

func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Dec()
}

func (c *Collector) MessageReceived(msgType string) {
	if c == nil {
		return
	}
	c.messagesTotal.WithLabelValues(msgType).Inc()
}

func (c *Collector) ErrorSent(code string) {
	if c == nil {
		return
	}
	c.errorsTotal.WithLabelValues(code).Inc()
}

func (c *Collector) GenerationStarted() {
	if c == nil {
		return
	}
	c.generationsActive.Inc()
}

func (c *Collector) GenerationFinished(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.generationsActive.Dec()
	c.generationsTotal.WithLabelValues(outcome).Inc()
	c.generationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (c *Collector) ChunkSent(bytes int, rtf float64) {
	if c == nil {
		return
	}
	c.chunksTotal.Inc()
	c.chunkBytesTotal.Add(float64(bytes))
	if rtf > 0 {
		c.realTimeFactor.Observe(rtf)
	}
}

func (c *Collector) FirstChunk(d time.Duration) {
	if c == nil {
		return
	}
	c.timeToFirstChunk.Observe(d.Seconds())
}

func (c *Collector) WorkerAcquired(wait time.Duration) {
	if c == nil {
		return
	}
	c.workersInUse.Inc()
	c.queueWait.Observe(wait.Seconds())
}

func (c *Collector) WorkerReleased() {
	if c == nil {
		return
	}
	c.workersInUse.Dec()
}

func (c *Collector) Broadcast(source string) {
	if c == nil {
		return
	}
	c.broadcastsTotal.WithLabelValues(source).Inc()
}
