package audio

import (
	"encoding/base64"
	"testing"
)

func constantSamples(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestEncode_RawPCM(t *testing.T) {
	data := Encode([]float32{0, 1, -1, 2}, 1, EncodeOptions{SampleRate: 24000, Format: FormatWAV})
	if len(data) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(data))
	}
	samples := PCMBytesToInt16(data)
	want := []int16{0, 32767, -32767, 32767}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], samples[i])
		}
	}
}

func TestEncode_Base64(t *testing.T) {
	samples := []float32{0.5, -0.5}
	raw := Encode(samples, 1, EncodeOptions{SampleRate: 24000, Format: FormatWAV})
	encoded := Encode(samples, 1, EncodeOptions{SampleRate: 24000, Format: FormatBase64})

	if string(encoded) != base64.StdEncoding.EncodeToString(raw) {
		t.Errorf("base64 output mismatch: %s", encoded)
	}
}

func TestEncode_FirstChunkNeverFaded(t *testing.T) {
	opts := EncodeOptions{SampleRate: 1000, FadeIn: true, FadeDurationMs: 10, Format: FormatWAV}
	samples := PCMBytesToInt16(Encode(constantSamples(50, 0.5), 1, opts))

	for i, s := range samples {
		if s != 16383 {
			t.Fatalf("sample %d: expected unfaded 16383, got %d", i, s)
		}
	}
}

func TestEncode_FadeApplied(t *testing.T) {
	opts := EncodeOptions{SampleRate: 1000, FadeIn: true, FadeDurationMs: 10, Format: FormatWAV}
	samples := PCMBytesToInt16(Encode(constantSamples(50, 0.5), 2, opts))

	window := FadeSamples(10, 1000)
	if window != 10 {
		t.Fatalf("expected 10 fade samples, got %d", window)
	}
	if samples[0] != 0 {
		t.Errorf("expected first sample 0, got %d", samples[0])
	}
	if samples[window-1] != 16383 {
		t.Errorf("expected boundary sample to be unfaded 16383, got %d", samples[window-1])
	}
	for i := 1; i < window; i++ {
		if samples[i] < samples[i-1] {
			t.Errorf("ramp not monotonic at %d: %d < %d", i, samples[i], samples[i-1])
		}
	}
	for i := window; i < len(samples); i++ {
		if samples[i] != 16383 {
			t.Fatalf("sample %d beyond the window changed: %d", i, samples[i])
		}
	}
}

func TestEncode_FadeDisabled(t *testing.T) {
	opts := EncodeOptions{SampleRate: 1000, FadeIn: false, FadeDurationMs: 10, Format: FormatWAV}
	samples := PCMBytesToInt16(Encode(constantSamples(20, 0.5), 3, opts))
	if samples[0] != 16383 {
		t.Errorf("expected unfaded first sample, got %d", samples[0])
	}
}

func TestEncode_ShortChunkNotFaded(t *testing.T) {
	opts := EncodeOptions{SampleRate: 1000, FadeIn: true, FadeDurationMs: 20, Format: FormatWAV}
	samples := PCMBytesToInt16(Encode(constantSamples(10, 0.5), 2, opts))
	for i, s := range samples {
		if s != 16383 {
			t.Fatalf("sample %d: expected unfaded 16383, got %d", i, s)
		}
	}
}

func TestApplyFadeIn(t *testing.T) {
	tests := []struct {
		name    string
		pcm     []int16
		n       int
		applied bool
		want    []int16
	}{
		{"zero window", []int16{100, 100}, 0, false, []int16{100, 100}},
		{"single sample window", []int16{100, 100}, 1, true, []int16{0, 100}},
		{"two sample window", []int16{100, 100, 100}, 2, true, []int16{0, 100, 100}},
		{"three sample window", []int16{100, 100, 100}, 3, true, []int16{0, 50, 100}},
		{"window longer than chunk", []int16{100}, 2, false, []int16{100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applied := ApplyFadeIn(tt.pcm, tt.n)
			if applied != tt.applied {
				t.Errorf("expected applied=%v, got %v", tt.applied, applied)
			}
			for i := range tt.want {
				if tt.pcm[i] != tt.want[i] {
					t.Errorf("sample %d: expected %d, got %d", i, tt.want[i], tt.pcm[i])
				}
			}
		})
	}
}

func TestOutputFormat_Valid(t *testing.T) {
	if !FormatWAV.Valid() || !FormatBase64.Valid() {
		t.Error("expected wav and base64 to be valid")
	}
	if OutputFormat("mp3").Valid() {
		t.Error("expected mp3 to be invalid")
	}
}
