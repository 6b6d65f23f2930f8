package audio

import (
	"fmt"
	"math"
)

// Convert renders b into the target sample rate and channel count. When b
// already matches, the same buffer is returned unchanged; callers must treat
// the result as shared in that case.
//
// Channel handling: many→1 averages channels, 1→many duplicates the mono
// channel, and any other mismatch maps source channel i to target channel
// i%srcChannels. Resampling is linear interpolation; the output buffer is
// allocated with capacity ceil(inFrames·dstRate/srcRate) and the written frame
// count never exceeds it.
func Convert(b *Buffer, target Format) (*Buffer, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: invalid target format %v", ErrConversionFailed, target)
	}
	if b.sampleRate == target.SampleRate && len(b.channels) == target.Channels {
		return b, nil
	}

	mixed := b
	if len(b.channels) != target.Channels {
		var err error
		mixed, err = remapChannels(b, target.Channels)
		if err != nil {
			return nil, err
		}
	}
	if mixed.sampleRate == target.SampleRate {
		return mixed, nil
	}
	return resample(mixed, target.SampleRate)
}

// remapChannels converts the channel count without touching the sample rate.
func remapChannels(b *Buffer, channels int) (*Buffer, error) {
	out, err := NewBuffer(b.sampleRate, channels, b.frameLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	src := len(b.channels)
	switch {
	case channels == 1:
		dst := out.channelCap(0)
		for fr := 0; fr < b.frameLength; fr++ {
			var sum float32
			for ch := 0; ch < src; ch++ {
				sum += b.channels[ch][fr]
			}
			dst[fr] = sum / float32(src)
		}
	case src == 1:
		mono := b.channels[0]
		for ch := 0; ch < channels; ch++ {
			copy(out.channelCap(ch), mono[:b.frameLength])
		}
	default:
		for ch := 0; ch < channels; ch++ {
			copy(out.channelCap(ch), b.channels[ch%src][:b.frameLength])
		}
	}
	out.frameLength = b.frameLength
	return out, nil
}

// resample converts b to the given rate with linear interpolation.
func resample(b *Buffer, rate int) (*Buffer, error) {
	capacity := int(math.Ceil(float64(b.frameLength) * float64(rate) / float64(b.sampleRate)))
	out, err := NewBuffer(rate, len(b.channels), capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	if b.frameLength == 0 {
		return out, nil
	}

	ratio := float64(b.sampleRate) / float64(rate)
	written := 0
	for fr := 0; fr < capacity; fr++ {
		pos := float64(fr) * ratio
		idx := int(pos)
		if idx >= b.frameLength {
			break
		}
		frac := float32(pos - float64(idx))
		for ch := range b.channels {
			src := b.channels[ch]
			v := src[idx]
			if idx+1 < b.frameLength {
				v += frac * (src[idx+1] - v)
			}
			out.channels[ch][fr] = v
		}
		written++
	}
	out.frameLength = written
	return out, nil
}
