package audio

import (
	"encoding/binary"
	"testing"
)

func TestWAVHeader_Layout(t *testing.T) {
	tests := []struct {
		sampleRate    int
		channels      int
		bitsPerSample int
	}{
		{8000, 1, 8},
		{16000, 1, 16},
		{22050, 2, 16},
		{24000, 1, 16},
		{44100, 2, 24},
		{48000, 6, 32},
	}

	for _, tt := range tests {
		h := WAVHeader(tt.sampleRate, tt.channels, tt.bitsPerSample)
		if len(h) != WAVHeaderSize {
			t.Fatalf("expected %d bytes, got %d", WAVHeaderSize, len(h))
		}

		f, err := ParseWAVHeader(h)
		if err != nil {
			t.Fatalf("ParseWAVHeader error: %v", err)
		}

		bytesPerSample := tt.bitsPerSample / 8
		if f.AudioFormat != 1 {
			t.Errorf("expected PCM format tag 1, got %d", f.AudioFormat)
		}
		if int(f.Channels) != tt.channels {
			t.Errorf("expected %d channels, got %d", tt.channels, f.Channels)
		}
		if int(f.SampleRate) != tt.sampleRate {
			t.Errorf("expected sample rate %d, got %d", tt.sampleRate, f.SampleRate)
		}
		if int(f.ByteRate) != tt.sampleRate*tt.channels*bytesPerSample {
			t.Errorf("unexpected byte rate %d", f.ByteRate)
		}
		if int(f.BlockAlign) != tt.channels*bytesPerSample {
			t.Errorf("unexpected block align %d", f.BlockAlign)
		}
		if int(f.BitsPerSample) != tt.bitsPerSample {
			t.Errorf("expected %d bits, got %d", tt.bitsPerSample, f.BitsPerSample)
		}
		if f.RIFFSize != 0x7FFFFFFF-36 {
			t.Errorf("unexpected riff size sentinel %#x", f.RIFFSize)
		}
		if f.DataSize != 0xFFFFFFFF {
			t.Errorf("unexpected data size sentinel %#x", f.DataSize)
		}
	}
}

func TestWAVHeader_LittleEndian(t *testing.T) {
	h := WAVHeader(24000, 1, 16)

	if got := binary.LittleEndian.Uint32(h[16:20]); got != 16 {
		t.Errorf("expected fmt chunk size 16, got %d", got)
	}
	if h[24] != 0xC0 || h[25] != 0x5D || h[26] != 0x00 || h[27] != 0x00 {
		t.Errorf("sample rate not little-endian: % x", h[24:28])
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" || string(h[12:16]) != "fmt " || string(h[36:40]) != "data" {
		t.Error("unexpected chunk tags")
	}
}

func TestParseWAVHeader_Invalid(t *testing.T) {
	if _, err := ParseWAVHeader([]byte("RIFF")); err != ErrInvalidWAVHeader {
		t.Errorf("expected ErrInvalidWAVHeader for short input, got %v", err)
	}

	h := WAVHeader(16000, 1, 16)
	copy(h[8:12], "AVI ")
	if _, err := ParseWAVHeader(h); err != ErrInvalidWAVHeader {
		t.Errorf("expected ErrInvalidWAVHeader for bad tag, got %v", err)
	}
}
