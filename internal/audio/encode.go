package audio

import "encoding/base64"

type OutputFormat string

const (
	FormatWAV    OutputFormat = "wav"
	FormatBase64 OutputFormat = "base64"
)

func (f OutputFormat) Valid() bool {
	return f == FormatWAV || f == FormatBase64
}

type EncodeOptions struct {
	SampleRate     int
	FadeIn         bool
	FadeDurationMs int
	Format         OutputFormat
}

func FadeSamples(durationMs, sampleRate int) int {
	return durationMs * sampleRate / 1000
}

// Encode turns one chunk of float samples into transport bytes. The first chunk of a
// stream is never faded, and neither is a chunk shorter than the fade window.
func Encode(samples []float32, chunkIndex int, opts EncodeOptions) []byte {
	pcm := Float32ToInt16(samples)

	if opts.FadeIn && chunkIndex > 1 {
		ApplyFadeIn(pcm, FadeSamples(opts.FadeDurationMs, opts.SampleRate))
	}

	data := Int16ToPCMBytes(pcm)
	if opts.Format == FormatBase64 {
		out := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
		base64.StdEncoding.Encode(out, data)
		return out
	}
	return data
}

// ApplyFadeIn multiplies the first n samples by a linear ramp running from 0.0 to 1.0
// inclusive. It reports whether the fade was applied.
func ApplyFadeIn(pcm []int16, n int) bool {
	if n <= 0 || len(pcm) < n {
		return false
	}
	if n == 1 {
		pcm[0] = 0
		return true
	}

	last := float64(n - 1)
	for i := 0; i < n; i++ {
		pcm[i] = int16(float64(pcm[i]) * (float64(i) / last))
	}
	return true
}
