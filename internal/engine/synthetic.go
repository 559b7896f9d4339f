package engine

import (
	"context"
	"math"
	"time"
	"unicode/utf8"
)

const (
	syntheticTokensPerRune = 2
	syntheticTokenDuration = 40 * time.Millisecond
)

// Synthetic renders a tone whose length follows the input text. It stands in for a real
// model in development and tests.
type Synthetic struct {
	sampleRate int
	unitDelay  time.Duration
}

func NewSynthetic(sampleRate int, unitDelay time.Duration) *Synthetic {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &Synthetic{sampleRate: sampleRate, unitDelay: unitDelay}
}

func SyntheticLoader(sampleRate int, unitDelay time.Duration) Loader {
	return func(ctx context.Context) (Engine, error) {
		return NewSynthetic(sampleRate, unitDelay), nil
	}
}

func (s *Synthetic) SampleRate() int {
	return s.sampleRate
}

func (s *Synthetic) GenerateStream(ctx context.Context, p Params, yield func(Unit) error) error {
	chunkSize := p.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 25
	}

	totalTokens := utf8.RuneCountInString(p.Text) * syntheticTokensPerRune
	samplesPerToken := int(float64(s.sampleRate) * syntheticTokenDuration.Seconds())
	freq := 220.0 * (1 + p.Exaggeration)

	phase := 0
	for generated := 0; generated < totalTokens; generated += chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.unitDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.unitDelay):
			}
		}

		tokens := min(chunkSize, totalTokens-generated)
		samples := make([]float32, tokens*samplesPerToken)
		for i := range samples {
			t := float64(phase+i) / float64(s.sampleRate)
			samples[i] = float32(0.3 * math.Sin(2*math.Pi*freq*t))
		}
		phase += len(samples)

		err := yield(Unit{
			Samples: samples,
			Metrics: map[string]any{
				"tokens_generated": generated + tokens,
				"chunk_tokens":     tokens,
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
