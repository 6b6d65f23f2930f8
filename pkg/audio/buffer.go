package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrBufferCreation is returned when a buffer cannot be allocated with the
// requested sample rate, channel count, or frame capacity.
var ErrBufferCreation = errors.New("audio: buffer creation failed")

// ErrConversionFailed wraps any failure inside a format conversion.
var ErrConversionFailed = errors.New("audio: conversion failed")

// int16Max is the magnitude used for the int16 ↔ float32 sample mapping.
// The mapping is symmetric: float −1.0 maps to −32767, not −32768.
const int16Max = 32767

// Buffer holds non-interleaved float32 PCM samples. The frame length may be
// less than the allocated capacity; single-shot converters legitimately
// produce fewer frames than the capacity computed up front.
type Buffer struct {
	sampleRate  int
	channels    [][]float32
	frameLength int
}

// NewBuffer allocates a buffer with the given sample rate, channel count, and
// frame capacity. The frame length starts at 0; callers fill the channel data
// and then set the length. Returns ErrBufferCreation for non-positive rates or
// channel counts, or a negative capacity.
func NewBuffer(sampleRate, channels, capacity int) (*Buffer, error) {
	if sampleRate <= 0 || channels <= 0 || capacity < 0 {
		return nil, fmt.Errorf("%w: %dHz, %d channels, capacity %d",
			ErrBufferCreation, sampleRate, channels, capacity)
	}
	data := make([][]float32, channels)
	for i := range data {
		data[i] = make([]float32, capacity)
	}
	return &Buffer{sampleRate: sampleRate, channels: data}, nil
}

// FromSamples wraps non-interleaved sample slices in a Buffer without
// copying. All channel slices must have equal length; the frame length is set
// to that length.
func FromSamples(sampleRate int, channels [][]float32) (*Buffer, error) {
	if sampleRate <= 0 || len(channels) == 0 {
		return nil, fmt.Errorf("%w: %dHz, %d channels", ErrBufferCreation, sampleRate, len(channels))
	}
	frames := len(channels[0])
	for i, ch := range channels {
		if len(ch) != frames {
			return nil, fmt.Errorf("%w: channel %d has %d frames, channel 0 has %d",
				ErrBufferCreation, i, len(ch), frames)
		}
	}
	return &Buffer{sampleRate: sampleRate, channels: channels, frameLength: frames}, nil
}

// SampleRate returns the buffer's sample rate in Hz.
func (b *Buffer) SampleRate() int { return b.sampleRate }

// Channels returns the channel count.
func (b *Buffer) Channels() int { return len(b.channels) }

// Capacity returns the allocated frame capacity.
func (b *Buffer) Capacity() int {
	if len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// FrameLength returns the number of valid frames currently in the buffer.
func (b *Buffer) FrameLength() int { return b.frameLength }

// SetFrameLength sets the number of valid frames. n must be in [0, Capacity].
func (b *Buffer) SetFrameLength(n int) error {
	if n < 0 || n > b.Capacity() {
		return fmt.Errorf("audio: frame length %d out of range [0, %d]", n, b.Capacity())
	}
	b.frameLength = n
	return nil
}

// Channel returns the valid samples of channel i (length == FrameLength).
func (b *Buffer) Channel(i int) []float32 {
	return b.channels[i][:b.frameLength]
}

// channelCap returns the full capacity slice of channel i for writers.
func (b *Buffer) channelCap(i int) []float32 {
	return b.channels[i]
}

// Format returns the buffer's format. In-memory buffers are always float32.
func (b *Buffer) Format() Format {
	return Format{SampleRate: b.sampleRate, Channels: len(b.channels), Encoding: EncodingFloat32}
}

// Duration returns the play time of the valid frames.
func (b *Buffer) Duration() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.frameLength) / float64(b.sampleRate) * float64(time.Second))
}

// SampleToInt16 maps a float sample to int16. Values outside [−1.0, 1.0] are
// clamped to ±32767, never wrapped.
func SampleToInt16(v float32) int16 {
	if v > 1.0 {
		v = 1.0
	} else if v < -1.0 {
		v = -1.0
	}
	return int16(math.Round(float64(v) * int16Max))
}

// SampleFromInt16 maps an int16 sample to float via division by 32767.
func SampleFromInt16(s int16) float32 {
	return float32(s) / int16Max
}

// DecodePCM interprets raw interleaved PCM bytes in the given format and
// returns a buffer holding the deinterleaved float32 samples. The frame count
// is the byte count divided by the format's bytes-per-frame; trailing bytes
// that do not fill a whole frame are dropped.
func DecodePCM(data []byte, f Format) (*Buffer, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: invalid source format %v", ErrConversionFailed, f)
	}
	frames := len(data) / f.BytesPerFrame()
	buf, err := NewBuffer(f.SampleRate, f.Channels, frames)
	if err != nil {
		return nil, err
	}
	bps := f.Encoding.BytesPerSample()
	for fr := 0; fr < frames; fr++ {
		base := fr * f.BytesPerFrame()
		for ch := 0; ch < f.Channels; ch++ {
			off := base + ch*bps
			switch f.Encoding {
			case EncodingInt16:
				s := int16(binary.LittleEndian.Uint16(data[off : off+2]))
				buf.channels[ch][fr] = SampleFromInt16(s)
			case EncodingFloat32:
				bits := binary.LittleEndian.Uint32(data[off : off+4])
				buf.channels[ch][fr] = math.Float32frombits(bits)
			}
		}
	}
	buf.frameLength = frames
	return buf, nil
}

// EncodePCM serialises the buffer's valid frames to interleaved little-endian
// PCM bytes in the requested encoding. Int16 output clamps out-of-range floats.
func EncodePCM(b *Buffer, enc Encoding) []byte {
	frames := b.frameLength
	channels := len(b.channels)
	bps := enc.BytesPerSample()
	out := make([]byte, frames*channels*bps)
	for fr := 0; fr < frames; fr++ {
		base := fr * channels * bps
		for ch := 0; ch < channels; ch++ {
			off := base + ch*bps
			v := b.channels[ch][fr]
			switch enc {
			case EncodingInt16:
				binary.LittleEndian.PutUint16(out[off:off+2], uint16(SampleToInt16(v)))
			case EncodingFloat32:
				binary.LittleEndian.PutUint32(out[off:off+4], math.Float32bits(v))
			}
		}
	}
	return out
}

// EncodeFrames serialises frames [offset, offset+n) like EncodePCM. It is used
// by the injector to slice chunk payloads without copying the whole buffer.
func EncodeFrames(b *Buffer, offset, n int, enc Encoding) []byte {
	if offset < 0 || n <= 0 || offset+n > b.frameLength {
		return nil
	}
	channels := len(b.channels)
	bps := enc.BytesPerSample()
	out := make([]byte, n*channels*bps)
	for fr := 0; fr < n; fr++ {
		base := fr * channels * bps
		for ch := 0; ch < channels; ch++ {
			off := base + ch*bps
			v := b.channels[ch][offset+fr]
			switch enc {
			case EncodingInt16:
				binary.LittleEndian.PutUint16(out[off:off+2], uint16(SampleToInt16(v)))
			case EncodingFloat32:
				binary.LittleEndian.PutUint32(out[off:off+4], math.Float32bits(v))
			}
		}
	}
	return out
}
