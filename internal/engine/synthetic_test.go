package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSynthetic_ChunkCount(t *testing.T) {
	e := NewSynthetic(24000, 0)

	var units []Unit
	err := e.GenerateStream(context.Background(), Params{Text: "hello world", ChunkSize: 10}, func(u Unit) error {
		units = append(units, u)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}

	// 11 runes -> 22 tokens -> 3 units of at most 10 tokens
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}

	samplesPerToken := 24000 * 40 / 1000
	if len(units[0].Samples) != 10*samplesPerToken {
		t.Errorf("expected %d samples in first unit, got %d", 10*samplesPerToken, len(units[0].Samples))
	}
	if len(units[2].Samples) != 2*samplesPerToken {
		t.Errorf("expected %d samples in last unit, got %d", 2*samplesPerToken, len(units[2].Samples))
	}
	if units[2].Metrics["tokens_generated"] != 22 {
		t.Errorf("expected tokens_generated 22, got %v", units[2].Metrics["tokens_generated"])
	}
}

func TestSynthetic_SamplesInRange(t *testing.T) {
	e := NewSynthetic(16000, 0)
	err := e.GenerateStream(context.Background(), Params{Text: "abc", ChunkSize: 25, Exaggeration: 2}, func(u Unit) error {
		for _, s := range u.Samples {
			if s > 1 || s < -1 {
				t.Fatalf("sample out of range: %f", s)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}
}

func TestSynthetic_YieldErrorStops(t *testing.T) {
	e := NewSynthetic(24000, 0)
	stop := errors.New("stop")

	calls := 0
	err := e.GenerateStream(context.Background(), Params{Text: "a long enough sentence", ChunkSize: 10}, func(u Unit) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected yield error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestSynthetic_ContextCancel(t *testing.T) {
	e := NewSynthetic(24000, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := e.GenerateStream(ctx, Params{Text: "a long enough sentence", ChunkSize: 10}, func(u Unit) error {
		calls++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 unit before cancel, got %d", calls)
	}
}

func TestSynthetic_DefaultSampleRate(t *testing.T) {
	if NewSynthetic(0, 0).SampleRate() != 24000 {
		t.Error("expected default sample rate 24000")
	}
}
