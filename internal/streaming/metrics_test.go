package streaming

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestCompute(t *testing.T) {
	m := Compute(3, 2*time.Second, 500*time.Millisecond, 48000, 24000, 96000, nil)

	if m.Chunk != 3 {
		t.Errorf("expected chunk 3, got %d", m.Chunk)
	}
	if m.AudioDuration != 2 {
		t.Errorf("expected audio duration 2, got %f", m.AudioDuration)
	}
	if m.RTF != 1 {
		t.Errorf("expected rtf 1, got %f", m.RTF)
	}
	if m.LatencyToFirstChunk != 0.5 {
		t.Errorf("expected ttfc 0.5, got %f", m.LatencyToFirstChunk)
	}
	if m.ChunkSizeBytes != 96000 || m.SampleRate != 24000 {
		t.Errorf("unexpected sizes: %+v", m)
	}
}

func TestCompute_ZeroDuration(t *testing.T) {
	m := Compute(1, time.Second, time.Second, 0, 24000, 0, nil)
	if m.RTF != 0 {
		t.Errorf("expected rtf 0 for empty audio, got %f", m.RTF)
	}
	if math.IsNaN(m.RTF) || math.IsInf(m.RTF, 0) {
		t.Error("rtf must be finite")
	}

	m = Compute(1, time.Second, time.Second, 100, 0, 0, nil)
	if m.AudioDuration != 0 || m.RTF != 0 {
		t.Errorf("expected zero duration for zero sample rate, got %+v", m)
	}
}

func TestTracker_FirstChunkRecordedOnce(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	tr := newTrackerAt(clock)

	if _, ok := tr.TimeToFirstChunk(); ok {
		t.Fatal("expected no first chunk yet")
	}

	now = now.Add(300 * time.Millisecond)
	first := tr.Observe(1, 2400, 24000, 4800, nil)

	now = now.Add(time.Second)
	second := tr.Observe(2, 2400, 24000, 4800, nil)

	if first.LatencyToFirstChunk != 0.3 {
		t.Errorf("expected ttfc 0.3, got %f", first.LatencyToFirstChunk)
	}
	if second.LatencyToFirstChunk != first.LatencyToFirstChunk {
		t.Errorf("expected ttfc unchanged, got %f", second.LatencyToFirstChunk)
	}
	if second.ElapsedTime != 1.3 {
		t.Errorf("expected elapsed 1.3, got %f", second.ElapsedTime)
	}
}

func TestMetrics_MarshalJSON(t *testing.T) {
	m := Compute(1, time.Second, time.Second, 24000, 24000, 48000, map[string]any{
		"tokens_generated": 25,
		"chunk":            99,
		"rtf":              "override",
	})

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if got["chunk"] != float64(1) {
		t.Errorf("engine metrics must not override chunk, got %v", got["chunk"])
	}
	if got["rtf"] != float64(1) {
		t.Errorf("engine metrics must not override rtf, got %v", got["rtf"])
	}
	if got["tokens_generated"] != float64(25) {
		t.Errorf("expected engine metric merged, got %v", got["tokens_generated"])
	}
	for _, k := range []string{"chunk", "elapsed_time", "latency_to_first_chunk", "audio_duration", "rtf", "chunk_size_bytes", "sample_rate"} {
		if _, ok := got[k]; !ok {
			t.Errorf("missing key %s", k)
		}
	}
}
