package streaming

import (
	"encoding/json"
	"sync"
	"time"
)

var reservedMetricKeys = map[string]struct{}{
	"chunk":                  {},
	"elapsed_time":           {},
	"latency_to_first_chunk": {},
	"audio_duration":         {},
	"rtf":                    {},
	"chunk_size_bytes":       {},
	"sample_rate":            {},
}

// Metrics is the per-chunk snapshot attached to chunk results. Times are in seconds.
type Metrics struct {
	Chunk               int
	ElapsedTime         float64
	LatencyToFirstChunk float64
	AudioDuration       float64
	RTF                 float64
	ChunkSizeBytes      int
	SampleRate          int
	Extra               map[string]any
}

func (m Metrics) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(reservedMetricKeys)+len(m.Extra))
	for k, v := range m.Extra {
		if _, reserved := reservedMetricKeys[k]; !reserved {
			out[k] = v
		}
	}
	out["chunk"] = m.Chunk
	out["elapsed_time"] = m.ElapsedTime
	out["latency_to_first_chunk"] = m.LatencyToFirstChunk
	out["audio_duration"] = m.AudioDuration
	out["rtf"] = m.RTF
	out["chunk_size_bytes"] = m.ChunkSizeBytes
	out["sample_rate"] = m.SampleRate
	return json.Marshal(out)
}

// Tracker holds per-stream timing. Time to first chunk is recorded once.
type Tracker struct {
	mu         sync.Mutex
	start      time.Time
	firstChunk time.Duration
	recorded   bool
	now        func() time.Time
}

func NewTracker() *Tracker {
	return newTrackerAt(time.Now)
}

func newTrackerAt(now func() time.Time) *Tracker {
	return &Tracker{start: now(), now: now}
}

// Observe builds the snapshot for a chunk delivered now.
func (t *Tracker) Observe(chunkIndex, samples, sampleRate, outputBytes int, engineMetrics map[string]any) Metrics {
	t.mu.Lock()
	elapsed := t.now().Sub(t.start)
	if !t.recorded {
		t.firstChunk = elapsed
		t.recorded = true
	}
	ttfc := t.firstChunk
	t.mu.Unlock()

	return Compute(chunkIndex, elapsed, ttfc, samples, sampleRate, outputBytes, engineMetrics)
}

func (t *Tracker) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// TimeToFirstChunk reports the recorded latency and whether a chunk has been observed.
func (t *Tracker) TimeToFirstChunk() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firstChunk, t.recorded
}

func Compute(chunkIndex int, elapsed, firstChunk time.Duration, samples, sampleRate, outputBytes int, engineMetrics map[string]any) Metrics {
	var duration float64
	if sampleRate > 0 {
		duration = float64(samples) / float64(sampleRate)
	}
	var rtf float64
	if duration > 0 {
		rtf = elapsed.Seconds() / duration
	}
	return Metrics{
		Chunk:               chunkIndex,
		ElapsedTime:         elapsed.Seconds(),
		LatencyToFirstChunk: firstChunk.Seconds(),
		AudioDuration:       duration,
		RTF:                 rtf,
		ChunkSizeBytes:      outputBytes,
		SampleRate:          sampleRate,
		Extra:               engineMetrics,
	}
}
