package audio

import (
	"math"
	"testing"
	"time"
)

func TestNewBufferRejectsInvalidParams(t *testing.T) {
	cases := []struct {
		name                     string
		rate, channels, capacity int
	}{
		{"zero rate", 0, 1, 100},
		{"negative rate", -16000, 1, 100},
		{"zero channels", 16000, 0, 100},
		{"negative capacity", 16000, 1, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewBuffer(tc.rate, tc.channels, tc.capacity); err == nil {
				t.Fatalf("NewBuffer(%d, %d, %d) succeeded, want error",
					tc.rate, tc.channels, tc.capacity)
			}
		})
	}
}

func TestFrameLengthBoundedByCapacity(t *testing.T) {
	b, err := NewBuffer(16000, 1, 10)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if err := b.SetFrameLength(10); err != nil {
		t.Fatalf("SetFrameLength(10): %v", err)
	}
	if err := b.SetFrameLength(11); err == nil {
		t.Fatal("SetFrameLength(11) beyond capacity succeeded")
	}
	if err := b.SetFrameLength(-1); err == nil {
		t.Fatal("SetFrameLength(-1) succeeded")
	}
	if got := b.FrameLength(); got != 10 {
		t.Fatalf("FrameLength = %d after rejected sets, want 10", got)
	}
}

func TestSampleToInt16Clamps(t *testing.T) {
	in := []float32{2.0, -2.0, 1.0, -1.0}
	want := []int16{32767, -32767, 32767, -32767}
	for i, v := range in {
		if got := SampleToInt16(v); got != want[i] {
			t.Errorf("SampleToInt16(%v) = %d, want %d", v, got, want[i])
		}
	}
}

func TestSampleRoundTripWithinOneStep(t *testing.T) {
	for _, v := range []float32{0, 0.25, -0.25, 0.5, -0.99, 0.999, 1.0, -1.0, 0.123456} {
		back := SampleFromInt16(SampleToInt16(v))
		if diff := math.Abs(float64(back - v)); diff > 1.0/32767 {
			t.Errorf("round trip of %v drifted by %v (> 1/32767)", v, diff)
		}
	}
}

func TestDecodeEncodePCMInt16(t *testing.T) {
	// two frames of stereo int16, little endian
	data := []byte{
		0xFF, 0x7F, // L: 32767
		0x01, 0x80, // R: -32767
		0x00, 0x00, // L: 0
		0xFF, 0x7F, // R: 32767
	}
	f := Format{SampleRate: 48000, Channels: 2, Encoding: EncodingInt16}
	b, err := DecodePCM(data, f)
	if err != nil {
		t.Fatalf("DecodePCM: %v", err)
	}
	if b.FrameLength() != 2 || b.Channels() != 2 {
		t.Fatalf("got %d frames x %d channels, want 2x2", b.FrameLength(), b.Channels())
	}
	if got := b.Channel(0)[0]; got != 1.0 {
		t.Errorf("left[0] = %v, want 1.0", got)
	}
	if got := b.Channel(1)[0]; got != -1.0 {
		t.Errorf("right[0] = %v, want -1.0", got)
	}

	out := EncodePCM(b, EncodingInt16)
	if len(out) != len(data) {
		t.Fatalf("EncodePCM produced %d bytes, want %d", len(out), len(data))
	}
	for i := range data {
		if out[i] != data[i] {
			t.Fatalf("EncodePCM byte %d = %#x, want %#x", i, out[i], data[i])
		}
	}
}

func TestDecodePCMDropsPartialFrame(t *testing.T) {
	f := Format{SampleRate: 16000, Channels: 1, Encoding: EncodingInt16}
	b, err := DecodePCM([]byte{0x00, 0x00, 0x01}, f)
	if err != nil {
		t.Fatalf("DecodePCM: %v", err)
	}
	if b.FrameLength() != 1 {
		t.Fatalf("FrameLength = %d, want 1 (trailing byte dropped)", b.FrameLength())
	}
}

func TestEncodeFramesSlices(t *testing.T) {
	b, _ := NewBuffer(16000, 1, 4)
	copy(b.channelCap(0), []float32{0.1, 0.2, 0.3, 0.4})
	b.SetFrameLength(4)

	part := EncodeFrames(b, 1, 2, EncodingFloat32)
	if len(part) != 8 {
		t.Fatalf("EncodeFrames returned %d bytes, want 8", len(part))
	}
	whole := EncodePCM(b, EncodingFloat32)
	for i := 0; i < 8; i++ {
		if part[i] != whole[4+i] {
			t.Fatalf("EncodeFrames byte %d differs from EncodePCM slice", i)
		}
	}

	if got := EncodeFrames(b, 3, 2, EncodingFloat32); got != nil {
		t.Errorf("EncodeFrames past frame length returned %d bytes, want nil", len(got))
	}
}

func TestDuration(t *testing.T) {
	b, _ := NewBuffer(16000, 1, 16000)
	b.SetFrameLength(8000)
	if got := b.Duration(); got != 500*time.Millisecond {
		t.Fatalf("Duration = %v, want 500ms", got)
	}
}
