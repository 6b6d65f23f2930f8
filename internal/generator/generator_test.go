package generator

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/unamentis/kbharness/pkg/audio"
	"github.com/unamentis/kbharness/pkg/provider/tts"
	ttsmock "github.com/unamentis/kbharness/pkg/provider/tts/mock"
)

// int16PCM builds interleaved little-endian int16 bytes for n mono frames.
func int16PCM(n int, value int16) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(value))
	}
	return out
}

func TestGenerateAssemblesChunks(t *testing.T) {
	format := audio.Format{SampleRate: 22050, Channels: 1, Encoding: audio.EncodingInt16}
	p := &ttsmock.Provider{
		SynthesizeChunks: []tts.Chunk{
			{PCM: int16PCM(2205, 8000), Format: format},
			{PCM: int16PCM(2205, 8000), Format: format},
		},
	}
	g := New(WithProvider("coqui", p))

	out, err := g.Generate(context.Background(), "What is the capital of France?", "coqui", tts.VoiceProfile{}, true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := out.Buffer.Format(); got != audio.STTFormat {
		t.Errorf("normalized format = %v, want %v", got, audio.STTFormat)
	}
	if out.Buffer.FrameLength() == 0 {
		t.Error("buffer is empty")
	}
	if out.Provider == nil || *out.Provider != "coqui" {
		t.Errorf("Provider = %v, want coqui", out.Provider)
	}
	if out.DurationMs < 150 || out.DurationMs > 250 {
		t.Errorf("DurationMs = %v, want ~200 for 4410 frames at 22050 Hz", out.DurationMs)
	}
	if len(p.SynthesizeCalls) != 1 || p.SynthesizeCalls[0].Text != "What is the capital of France?" {
		t.Errorf("SynthesizeCalls = %+v", p.SynthesizeCalls)
	}
}

func TestGenerateWithoutNormalization(t *testing.T) {
	format := audio.Format{SampleRate: 22050, Channels: 1, Encoding: audio.EncodingInt16}
	p := &ttsmock.Provider{
		SynthesizeChunks: []tts.Chunk{{PCM: int16PCM(441, 0), Format: format}},
	}
	g := New(WithProvider("coqui", p))

	out, err := g.Generate(context.Background(), "hi", "coqui", tts.VoiceProfile{}, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Buffer.SampleRate() != 22050 {
		t.Errorf("SampleRate = %d, want provider-native 22050", out.Buffer.SampleRate())
	}
	if out.Buffer.FrameLength() != 441 {
		t.Errorf("FrameLength = %d, want 441", out.Buffer.FrameLength())
	}
}

func TestGenerateEmptyStream(t *testing.T) {
	g := New(WithProvider("coqui", &ttsmock.Provider{}))
	_, err := g.Generate(context.Background(), "hi", "coqui", tts.VoiceProfile{}, true)
	if !errors.Is(err, ErrNoAudioGenerated) {
		t.Errorf("err = %v, want ErrNoAudioGenerated", err)
	}
}

func TestGenerateUnknownProvider(t *testing.T) {
	g := New()
	_, err := g.Generate(context.Background(), "hi", "elevenlabs", tts.VoiceProfile{}, true)
	if !errors.Is(err, ErrProviderNotSupported) {
		t.Errorf("err = %v, want ErrProviderNotSupported", err)
	}
}

func TestGenerateStreamError(t *testing.T) {
	p := &ttsmock.Provider{
		SynthesizeChunks: []tts.Chunk{{Err: errors.New("backend crashed")}},
	}
	g := New(WithProvider("coqui", p))
	_, err := g.Generate(context.Background(), "hi", "coqui", tts.VoiceProfile{}, true)
	if err == nil {
		t.Fatal("Generate succeeded despite stream error")
	}
}

// testWAVFile writes a 0.1 s 44.1 kHz mono WAV and returns its path.
func testWAVFile(t *testing.T, dir string) string {
	t.Helper()
	samples := make([]float32, 4410)
	for i := range samples {
		samples[i] = 0.25
	}
	buf, err := audio.FromSamples(44100, [][]float32{samples})
	if err != nil {
		t.Fatalf("FromSamples: %v", err)
	}
	path := filepath.Join(dir, "question.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(buf, audio.EncodingInt16), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := testWAVFile(t, t.TempDir())
	g := New()

	out, err := g.LoadFile(path, true)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := out.Buffer.Format(); got != audio.STTFormat {
		t.Errorf("format = %v, want %v", got, audio.STTFormat)
	}
	if out.Provider != nil {
		t.Errorf("Provider = %v, want nil for file sources", out.Provider)
	}
}

func TestLoadFileNative(t *testing.T) {
	path := testWAVFile(t, t.TempDir())
	g := New()

	out, err := g.LoadFile(path, false)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if out.Buffer.SampleRate() != 44100 || out.Buffer.FrameLength() != 4410 {
		t.Errorf("got %d Hz, %d frames; want native 44100 Hz, 4410 frames",
			out.Buffer.SampleRate(), out.Buffer.FrameLength())
	}
}

func TestLoadFileMissing(t *testing.T) {
	g := New()
	_, err := g.LoadFile(filepath.Join(t.TempDir(), "nope.wav"), true)
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("err = %v, want ErrFileNotFound", err)
	}
}

func TestLoadResource(t *testing.T) {
	samples := make([]float32, 1600)
	buf, err := audio.FromSamples(16000, [][]float32{samples})
	if err != nil {
		t.Fatalf("FromSamples: %v", err)
	}
	fsys := fstest.MapFS{
		"capital_question.wav": &fstest.MapFile{Data: audio.EncodeWAV(buf, audio.EncodingInt16)},
	}
	g := New(WithResources(fsys))

	out, err := g.LoadResource("capital_question", "wav", true)
	if err != nil {
		t.Fatalf("LoadResource: %v", err)
	}
	if got := out.Buffer.Format(); got != audio.STTFormat {
		t.Errorf("format = %v, want %v", got, audio.STTFormat)
	}

	if _, err := g.LoadResource("missing", "wav", true); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("err = %v, want ErrResourceNotFound", err)
	}
}

func TestLoadResourceWithoutFilesystem(t *testing.T) {
	g := New()
	_, err := g.LoadResource("anything", "wav", true)
	if !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("err = %v, want ErrResourceNotFound", err)
	}
}

func TestFromSource(t *testing.T) {
	format := audio.Format{SampleRate: 22050, Channels: 1, Encoding: audio.EncodingInt16}
	p := &ttsmock.Provider{
		SynthesizeChunks: []tts.Chunk{{PCM: int16PCM(2205, 1000), Format: format}},
	}
	path := testWAVFile(t, t.TempDir())
	g := New(WithProvider("coqui", p))

	sources := []struct {
		name   string
		source AudioSource
	}{
		{"tts", SourceTTS{Provider: "coqui"}},
		{"file", SourceFile{Path: path}},
		{"raw", SourceRaw{
			Data:   int16PCM(4800, 500),
			Format: audio.Format{SampleRate: 48000, Channels: 1, Encoding: audio.EncodingInt16},
		}},
	}
	for _, tt := range sources {
		t.Run(tt.name, func(t *testing.T) {
			out, err := g.FromSource(context.Background(), tt.source, "What is the capital of France?")
			if err != nil {
				t.Fatalf("FromSource: %v", err)
			}
			if got := out.Buffer.Format(); got != audio.STTFormat {
				t.Errorf("format = %v, want %v", got, audio.STTFormat)
			}
		})
	}
}
