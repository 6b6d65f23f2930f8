// Package audio provides the canonical sample buffer used throughout the KB
// audio test harness, plus the PCM format conversions the pipeline depends on:
// int16 ↔ float32 sample mapping, channel mixdown, linear-interpolation
// resampling, and a RIFF/WAVE codec for prerecorded fixtures and whisper
// uploads.
//
// Buffers hold non-interleaved float32 samples; raw byte payloads (TTS chunks,
// WAV data, STT wire format) are described by a Format that additionally names
// their Encoding.
package audio

import "fmt"

// Encoding identifies the sample representation of raw interleaved PCM bytes.
type Encoding int

const (
	// EncodingInt16 is little-endian signed 16-bit PCM.
	EncodingInt16 Encoding = iota

	// EncodingFloat32 is little-endian IEEE-754 32-bit float PCM.
	EncodingFloat32
)

// String returns a short human-readable encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingInt16:
		return "int16"
	case EncodingFloat32:
		return "float32"
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// BytesPerSample returns the storage size of one sample in this encoding.
func (e Encoding) BytesPerSample() int {
	if e == EncodingFloat32 {
		return 4
	}
	return 2
}

// Format describes a PCM stream: sample rate, channel count, and the sample
// representation of its raw byte form.
type Format struct {
	SampleRate int
	Channels   int
	Encoding   Encoding
}

// STTFormat is the canonical speech-to-text input format the harness
// normalises all audio to before injection: 16 kHz, mono, 32-bit float.
var STTFormat = Format{SampleRate: 16000, Channels: 1, Encoding: EncodingFloat32}

// BytesPerFrame returns the byte size of one frame (one sample per channel).
func (f Format) BytesPerFrame() int {
	return f.Channels * f.Encoding.BytesPerSample()
}

// Valid reports whether f describes a usable PCM format.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// String returns a human-readable format description, e.g. "16000Hz mono float32".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s %s", f.SampleRate, ch, f.Encoding)
}
