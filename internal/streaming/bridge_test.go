package streaming

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eleven-am/tts-stream/internal/audio"
	"github.com/eleven-am/tts-stream/internal/engine"
	"github.com/eleven-am/tts-stream/internal/voice"
)

type fakeEngine struct {
	sampleRate int
	units      [][]float32
	failAfter  int
	err        error
	block      chan struct{}
}

func (f *fakeEngine) SampleRate() int {
	return f.sampleRate
}

func (f *fakeEngine) GenerateStream(ctx context.Context, p engine.Params, yield func(engine.Unit) error) error {
	for i, u := range f.units {
		if f.err != nil && i == f.failAfter {
			return f.err
		}
		if err := yield(engine.Unit{Samples: u, Metrics: map[string]any{"step": i}}); err != nil {
			return err
		}
		if f.block != nil && i == 0 {
			select {
			case <-f.block:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if f.err != nil && f.failAfter >= len(f.units) {
		return f.err
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBridge(e engine.Engine, workers int) *Bridge {
	return NewBridge(engine.NewReadyManager(e), NewPool(workers, 50*time.Millisecond), nil, discardLogger())
}

func testRequest(format audio.OutputFormat) Request {
	r := DefaultRequest()
	r.Input = "hello"
	r.OutputFormat = format
	return r
}

func collect(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func units(n, size int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		u := make([]float32, size)
		for j := range u {
			u[j] = 0.5
		}
		out[i] = u
	}
	return out
}

func TestBridge_WAVOrdering(t *testing.T) {
	b := newTestBridge(&fakeEngine{sampleRate: 24000, units: units(3, 1000)}, 1)

	events := collect(b.Stream(context.Background(), testRequest(audio.FormatWAV), voice.Info{Name: "alloy"}))

	if len(events) != 5 {
		t.Fatalf("expected header + 3 chunks + done, got %d events", len(events))
	}
	if events[0].Kind != EventHeader {
		t.Fatalf("expected header first, got %s", events[0].Kind)
	}
	f, err := audio.ParseWAVHeader(events[0].Data)
	if err != nil {
		t.Fatalf("invalid header: %v", err)
	}
	if f.SampleRate != 24000 || f.Channels != 1 || f.BitsPerSample != 16 {
		t.Errorf("unexpected header format: %+v", f)
	}

	for i := 1; i <= 3; i++ {
		ev := events[i]
		if ev.Kind != EventChunk || ev.Index != i {
			t.Fatalf("expected chunk %d, got %s/%d", i, ev.Kind, ev.Index)
		}
		if len(ev.Data) != 2000 {
			t.Errorf("expected 2000 bytes, got %d", len(ev.Data))
		}
		if ev.Metrics == nil || ev.Metrics.Chunk != i {
			t.Errorf("expected metrics for chunk %d", i)
		}
		if ev.Metrics.Extra["step"] != i-1 {
			t.Errorf("expected engine metrics merged, got %v", ev.Metrics.Extra)
		}
	}

	last := events[4]
	if last.Kind != EventDone || last.Summary.TotalChunks != 3 {
		t.Errorf("expected done with 3 chunks, got %s/%d", last.Kind, last.Summary.TotalChunks)
	}
	if last.Summary.Samples != 3000 || last.Summary.TotalBytes != 6000 {
		t.Errorf("unexpected summary: %+v", last.Summary)
	}
}

func TestBridge_Base64NoHeader(t *testing.T) {
	b := newTestBridge(&fakeEngine{sampleRate: 24000, units: units(2, 10)}, 1)

	req := testRequest(audio.FormatBase64)
	req.IncludeMetrics = false
	events := collect(b.Stream(context.Background(), req, voice.Info{}))

	if len(events) != 3 {
		t.Fatalf("expected 2 chunks + done, got %d", len(events))
	}
	if events[0].Kind != EventChunk {
		t.Fatalf("expected chunk first, got %s", events[0].Kind)
	}
	if events[0].Metrics != nil {
		t.Error("expected no metrics when disabled")
	}
	raw, err := base64.StdEncoding.DecodeString(string(events[0].Data))
	if err != nil {
		t.Fatalf("expected base64 payload: %v", err)
	}
	if len(raw) != 20 {
		t.Errorf("expected 20 decoded bytes, got %d", len(raw))
	}
}

func TestBridge_ZeroUnits(t *testing.T) {
	b := newTestBridge(&fakeEngine{sampleRate: 24000}, 1)

	events := collect(b.Stream(context.Background(), testRequest(audio.FormatWAV), voice.Info{}))
	if len(events) != 2 {
		t.Fatalf("expected header + done, got %d", len(events))
	}
	if events[1].Kind != EventDone || events[1].Summary.TotalChunks != 0 {
		t.Errorf("expected done with 0 chunks, got %+v", events[1])
	}
}

func TestBridge_EmptyUnitsSkipped(t *testing.T) {
	b := newTestBridge(&fakeEngine{sampleRate: 24000, units: [][]float32{{}, {0.1}, {}}}, 1)

	events := collect(b.Stream(context.Background(), testRequest(audio.FormatBase64), voice.Info{}))
	if len(events) != 2 {
		t.Fatalf("expected 1 chunk + done, got %d", len(events))
	}
	if events[0].Index != 1 {
		t.Errorf("expected chunk index 1, got %d", events[0].Index)
	}
}

func TestBridge_EngineFailure(t *testing.T) {
	cause := errors.New("cuda out of memory")
	b := newTestBridge(&fakeEngine{sampleRate: 24000, units: units(3, 10), failAfter: 2, err: cause}, 1)

	events := collect(b.Stream(context.Background(), testRequest(audio.FormatBase64), voice.Info{}))
	if len(events) != 3 {
		t.Fatalf("expected 2 chunks + failed, got %d", len(events))
	}
	last := events[2]
	if last.Kind != EventFailed {
		t.Fatalf("expected failed, got %s", last.Kind)
	}
	if !errors.Is(last.Err, ErrGenerationFailed) || !errors.Is(last.Err, cause) {
		t.Errorf("expected wrapped cause, got %v", last.Err)
	}
	if last.Summary.TotalChunks != 2 {
		t.Errorf("expected 2 delivered chunks, got %d", last.Summary.TotalChunks)
	}
}

func TestBridge_EngineNotReady(t *testing.T) {
	b := NewBridge(engine.NewManager(nil, discardLogger()), NewPool(1, time.Second), nil, discardLogger())

	events := collect(b.Stream(context.Background(), testRequest(audio.FormatWAV), voice.Info{}))
	if len(events) != 1 || events[0].Kind != EventFailed {
		t.Fatalf("expected single failed event, got %+v", events)
	}
	if !errors.Is(events[0].Err, engine.ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", events[0].Err)
	}
}

func TestBridge_Cancel(t *testing.T) {
	block := make(chan struct{})
	b := newTestBridge(&fakeEngine{sampleRate: 24000, units: units(5, 10), block: block}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Stream(ctx, testRequest(audio.FormatBase64), voice.Info{})

	first := <-ch
	if first.Kind != EventChunk {
		t.Fatalf("expected first chunk, got %s", first.Kind)
	}
	cancel()

	rest := collect(ch)
	if len(rest) != 1 {
		t.Fatalf("expected only terminal event after cancel, got %d", len(rest))
	}
	if rest[0].Kind != EventCancelled || rest[0].Summary.TotalChunks != 1 {
		t.Errorf("expected cancelled with 1 chunk, got %s/%d", rest[0].Kind, rest[0].Summary.TotalChunks)
	}
	if b.Pool().InUse() != 0 {
		t.Errorf("expected worker released, got %d in use", b.Pool().InUse())
	}
}

func TestBridge_ServerBusy(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	b := newTestBridge(&fakeEngine{sampleRate: 24000, units: units(2, 10), block: block}, 1)

	first := b.Stream(context.Background(), testRequest(audio.FormatBase64), voice.Info{})
	<-first

	events := collect(b.Stream(context.Background(), testRequest(audio.FormatBase64), voice.Info{}))
	if len(events) != 1 || events[0].Kind != EventFailed {
		t.Fatalf("expected single failed event, got %+v", events)
	}
	if !errors.Is(events[0].Err, ErrServerBusy) {
		t.Errorf("expected ErrServerBusy, got %v", events[0].Err)
	}

	go collect(first)
}

func TestBridge_ConcurrentStreamsIndependent(t *testing.T) {
	b := newTestBridge(&fakeEngine{sampleRate: 16000, units: units(4, 10)}, 2)

	a := b.Stream(context.Background(), testRequest(audio.FormatBase64), voice.Info{})
	c := b.Stream(context.Background(), testRequest(audio.FormatBase64), voice.Info{})

	for _, ch := range []<-chan Event{a, c} {
		events := collect(ch)
		for i, ev := range events[:len(events)-1] {
			if ev.Index != i+1 {
				t.Errorf("expected index %d, got %d", i+1, ev.Index)
			}
		}
		if events[len(events)-1].Kind != EventDone {
			t.Errorf("expected done, got %s", events[len(events)-1].Kind)
		}
	}
}

func TestSummary_RTF(t *testing.T) {
	s := Summary{Samples: 48000, SampleRate: 24000, Duration: time.Second}
	if s.AudioSeconds() != 2 {
		t.Errorf("expected 2s audio, got %f", s.AudioSeconds())
	}
	if s.RTF() != 0.5 {
		t.Errorf("expected rtf 0.5, got %f", s.RTF())
	}
	if (Summary{}).RTF() != 0 {
		t.Error("expected zero rtf for empty summary")
	}
}
