package audio

import (
	"encoding/binary"
	"errors"
)

const (
	WAVHeaderSize = 44

	// Total length is unknown when the header goes out, so both size fields carry
	// sentinels and are never patched afterwards.
	riffSizeUnknown uint32 = 0x7FFFFFFF - 36
	dataSizeUnknown uint32 = 0xFFFFFFFF

	formatPCM uint16 = 1
)

var ErrInvalidWAVHeader = errors.New("invalid wav header")

type WAVFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	RIFFSize      uint32
	DataSize      uint32
}

func WAVHeader(sampleRate, channels, bitsPerSample int) []byte {
	bytesPerSample := bitsPerSample / 8
	byteRate := sampleRate * channels * bytesPerSample
	blockAlign := channels * bytesPerSample

	h := make([]byte, WAVHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], riffSizeUnknown)
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], formatPCM)
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], uint16(bitsPerSample))

	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSizeUnknown)
	return h
}

func ParseWAVHeader(h []byte) (WAVFormat, error) {
	if len(h) < WAVHeaderSize {
		return WAVFormat{}, ErrInvalidWAVHeader
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" || string(h[12:16]) != "fmt " || string(h[36:40]) != "data" {
		return WAVFormat{}, ErrInvalidWAVHeader
	}

	return WAVFormat{
		RIFFSize:      binary.LittleEndian.Uint32(h[4:8]),
		AudioFormat:   binary.LittleEndian.Uint16(h[20:22]),
		Channels:      binary.LittleEndian.Uint16(h[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(h[24:28]),
		ByteRate:      binary.LittleEndian.Uint32(h[28:32]),
		BlockAlign:    binary.LittleEndian.Uint16(h[32:34]),
		BitsPerSample: binary.LittleEndian.Uint16(h[34:36]),
		DataSize:      binary.LittleEndian.Uint32(h[40:44]),
	}, nil
}
