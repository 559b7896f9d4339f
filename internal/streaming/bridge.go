package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/tts-stream/internal/audio"
	"github.com/eleven-am/tts-stream/internal/engine"
	"github.com/eleven-am/tts-stream/internal/telemetry"
	"github.com/eleven-am/tts-stream/internal/voice"
)

var ErrGenerationFailed = errors.New("generation failed")

type EventKind string

const (
	EventHeader    EventKind = "header"
	EventChunk     EventKind = "chunk"
	EventDone      EventKind = "done"
	EventCancelled EventKind = "cancelled"
	EventFailed    EventKind = "failed"
)

// Event is one item of a generation's ordered output. Header and chunk events carry
// transport bytes; exactly one terminal event (done, cancelled or failed) ends the stream.
type Event struct {
	Kind    EventKind
	Data    []byte
	Index   int
	Metrics *Metrics
	Summary Summary
	Err     error
}

func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventCancelled || e.Kind == EventFailed
}

// Summary describes a finished generation.
type Summary struct {
	TotalChunks      int
	TotalBytes       int
	Samples          int
	SampleRate       int
	TimeToFirstChunk time.Duration
	Duration         time.Duration
}

func (s Summary) AudioSeconds() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(s.Samples) / float64(s.SampleRate)
}

func (s Summary) RTF() float64 {
	if d := s.AudioSeconds(); d > 0 {
		return s.Duration.Seconds() / d
	}
	return 0
}

// Bridge runs engine generations on the worker pool and relays their output in order.
type Bridge struct {
	engines   *engine.Manager
	pool      *Pool
	collector *telemetry.Collector
	log       *slog.Logger
}

func NewBridge(engines *engine.Manager, pool *Pool, collector *telemetry.Collector, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		engines:   engines,
		pool:      pool,
		collector: collector,
		log:       log.With("component", "generation_bridge"),
	}
}

func (b *Bridge) Pool() *Pool {
	return b.pool
}

// Stream starts a generation and returns its event channel. The channel is closed after
// the terminal event; callers must drain it. Cancelling ctx stops relaying further chunks
// and ends the stream with a cancelled event.
func (b *Bridge) Stream(ctx context.Context, req Request, v voice.Info) <-chan Event {
	out := make(chan Event, 1)
	go b.run(ctx, req, v, out)
	return out
}

func (b *Bridge) run(ctx context.Context, req Request, v voice.Info, out chan<- Event) {
	defer close(out)

	tracker := NewTracker()
	summary := Summary{}
	outcome := "failed"

	b.collector.GenerationStarted()
	defer func() {
		b.collector.GenerationFinished(outcome, summary.Duration)
		b.logSummary(req, summary, outcome)
	}()

	finish := func(kind EventKind, err error) {
		summary.Duration = tracker.Elapsed()
		if ttfc, ok := tracker.TimeToFirstChunk(); ok {
			summary.TimeToFirstChunk = ttfc
		}
		out <- Event{Kind: kind, Summary: summary, Err: err}
	}

	queued := time.Now()
	release, err := b.pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			outcome = "cancelled"
			finish(EventCancelled, nil)
			return
		}
		finish(EventFailed, err)
		return
	}
	b.collector.WorkerAcquired(time.Since(queued))
	defer func() {
		release()
		b.collector.WorkerReleased()
	}()

	eng, err := b.engines.Engine()
	if err != nil {
		finish(EventFailed, err)
		return
	}
	sampleRate := eng.SampleRate()
	summary.SampleRate = sampleRate

	send := func(ev Event) error {
		select {
		case out <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if req.OutputFormat == audio.FormatWAV {
		if err := send(Event{Kind: EventHeader, Data: audio.WAVHeader(sampleRate, 1, 16)}); err != nil {
			outcome = "cancelled"
			finish(EventCancelled, nil)
			return
		}
	}

	opts := req.EncodeOptions(sampleRate)
	params := req.EngineParams(v.Path, v.Language)

	genErr := eng.GenerateStream(ctx, params, func(u engine.Unit) error {
		if len(u.Samples) == 0 {
			return nil
		}
		index := summary.TotalChunks + 1
		data := audio.Encode(u.Samples, index, opts)
		m := tracker.Observe(index, len(u.Samples), sampleRate, len(data), u.Metrics)

		ev := Event{Kind: EventChunk, Data: data, Index: index}
		if req.IncludeMetrics {
			ev.Metrics = &m
		}
		if err := send(ev); err != nil {
			return err
		}

		summary.TotalChunks = index
		summary.TotalBytes += len(data)
		summary.Samples += len(u.Samples)
		if index == 1 {
			ttfc, _ := tracker.TimeToFirstChunk()
			b.collector.FirstChunk(ttfc)
		}
		b.collector.ChunkSent(len(data), m.RTF)

		if req.PrintMetrics {
			b.log.Info("chunk generated", "chunk", index, "rtf", m.RTF, "audio_duration", m.AudioDuration, "elapsed", m.ElapsedTime)
		}
		return nil
	})

	switch {
	case ctx.Err() != nil:
		outcome = "cancelled"
		finish(EventCancelled, nil)
	case genErr != nil:
		finish(EventFailed, fmt.Errorf("%w: %w", ErrGenerationFailed, genErr))
	default:
		outcome = "completed"
		finish(EventDone, nil)
	}
}

func (b *Bridge) logSummary(req Request, s Summary, outcome string) {
	level := slog.LevelDebug
	if req.PrintMetrics {
		level = slog.LevelInfo
	}

	var avg time.Duration
	if s.TotalChunks > 0 {
		avg = s.Duration / time.Duration(s.TotalChunks)
	}
	b.log.Log(context.Background(), level, "generation finished",
		"outcome", outcome,
		"chunks", s.TotalChunks,
		"total_time", s.Duration,
		"avg_per_chunk", avg,
		"time_to_first_chunk", s.TimeToFirstChunk,
		"audio_seconds", s.AudioSeconds(),
		"rtf", s.RTF(),
	)
}
