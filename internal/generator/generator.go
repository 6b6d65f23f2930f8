// Package generator produces audio buffers for test questions, either by
// driving a TTS provider and assembling its streamed chunks or by loading
// prerecorded audio, normalized on request to the canonical STT input format.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/unamentis/kbharness/pkg/audio"
	"github.com/unamentis/kbharness/pkg/provider/tts"
)

var (
	// ErrNoAudioGenerated reports a synthesis stream that completed without
	// yielding a single chunk.
	ErrNoAudioGenerated = errors.New("generator: no audio generated")

	// ErrProviderNotSupported reports a TTS provider name with no registered
	// backend. Only locally runnable backends are wired in; cloud providers
	// needing network credentials stay out of this offline harness.
	ErrProviderNotSupported = errors.New("generator: provider not supported")

	// ErrFileNotFound reports a prerecorded audio path that does not exist.
	ErrFileNotFound = errors.New("generator: audio file not found")

	// ErrResourceNotFound reports a bundled resource name with no backing file.
	ErrResourceNotFound = errors.New("generator: bundle resource not found")
)

// AudioSource describes where a test case's spoken question comes from. It is
// a closed set: SourceTTS, SourceFile, SourceResource, and SourceRaw.
type AudioSource interface {
	isAudioSource()
}

// SourceTTS synthesizes the question text with a named TTS backend.
type SourceTTS struct {
	// Provider names a backend registered on the Generator.
	Provider string
	// Voice selects the voice; its zero value uses the backend default.
	Voice tts.VoiceProfile
}

// SourceFile plays a prerecorded WAV file from disk.
type SourceFile struct {
	Path string
}

// SourceResource plays a WAV bundled with the test suite, addressed by
// name and extension relative to the Generator's resource filesystem.
type SourceResource struct {
	Name      string
	Extension string
}

// SourceRaw wraps already-decoded PCM bytes in a known format.
type SourceRaw struct {
	Data   []byte
	Format audio.Format
}

func (SourceTTS) isAudioSource()      {}
func (SourceFile) isAudioSource()     {}
func (SourceResource) isAudioSource() {}
func (SourceRaw) isAudioSource()      {}

// GeneratedAudio is the generator's output for one question.
type GeneratedAudio struct {
	// Buffer holds the produced audio.
	Buffer *audio.Buffer
	// LatencyMs is the wall-clock time spent producing the buffer.
	LatencyMs float64
	// DurationMs is the audio's play length.
	DurationMs float64
	// Provider names the TTS backend used, nil when loaded from file or
	// raw bytes.
	Provider *string
}

// Option is a functional option for configuring a [Generator].
type Option func(*Generator)

// WithProvider registers a TTS backend under a name referenced by SourceTTS.
func WithProvider(name string, p tts.Provider) Option {
	return func(g *Generator) {
		g.providers[name] = p
	}
}

// WithResources sets the filesystem bundled suite audio is resolved against.
func WithResources(fsys fs.FS) Option {
	return func(g *Generator) {
		g.resources = fsys
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// Generator produces GeneratedAudio values. It is read-only after
// construction and safe for concurrent use.
type Generator struct {
	providers map[string]tts.Provider
	resources fs.FS
	logger    *slog.Logger
}

// New returns a Generator configured with the supplied options.
func New(opts ...Option) *Generator {
	g := &Generator{
		providers: make(map[string]tts.Provider),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate synthesizes text with the named backend, accumulating every
// streamed chunk in arrival order into one buffer. When normalizeToSTT is
// true the result is converted to the canonical STT input format.
func (g *Generator) Generate(ctx context.Context, text, providerName string, voice tts.VoiceProfile, normalizeToSTT bool) (*GeneratedAudio, error) {
	provider, ok := g.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotSupported, providerName)
	}

	start := time.Now()
	chunks, err := provider.Synthesize(ctx, text, voice)
	if err != nil {
		return nil, fmt.Errorf("generator: synthesize: %w", err)
	}

	var pcm []byte
	var format audio.Format
	chunkCount := 0
	for chunk := range chunks {
		if chunk.Err != nil {
			return nil, fmt.Errorf("generator: synthesis stream: %w", chunk.Err)
		}
		pcm = append(pcm, chunk.PCM...)
		format = chunk.Format
		chunkCount++
	}
	if chunkCount == 0 {
		return nil, fmt.Errorf("%w: provider %q yielded no chunks", ErrNoAudioGenerated, providerName)
	}

	buf, err := audio.DecodePCM(pcm, format)
	if err != nil {
		return nil, fmt.Errorf("generator: assemble buffer: %w", err)
	}
	if normalizeToSTT {
		if buf, err = g.ConvertToSTTFormat(buf); err != nil {
			return nil, err
		}
	}

	out := &GeneratedAudio{
		Buffer:     buf,
		LatencyMs:  float64(time.Since(start)) / float64(time.Millisecond),
		DurationMs: float64(buf.Duration()) / float64(time.Millisecond),
		Provider:   &providerName,
	}
	g.logger.Debug("generated audio",
		"provider", providerName,
		"chunks", chunkCount,
		"latencyMs", out.LatencyMs,
		"durationMs", out.DurationMs)
	return out, nil
}

// LoadFile decodes a WAV file in its native format, optionally normalizing
// to the canonical STT input format.
func (g *Generator) LoadFile(path string, normalizeToSTT bool) (*GeneratedAudio, error) {
	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("generator: read %s: %w", path, err)
	}
	return g.finishLoad(data, path, start, normalizeToSTT)
}

// LoadResource resolves a bundled resource by name and extension against the
// configured resource filesystem and decodes it like LoadFile.
func (g *Generator) LoadResource(name, extension string, normalizeToSTT bool) (*GeneratedAudio, error) {
	if g.resources == nil {
		return nil, fmt.Errorf("%w: no resource filesystem configured", ErrResourceNotFound)
	}
	start := time.Now()
	filename := name + "." + extension
	data, err := fs.ReadFile(g.resources, filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, filename)
		}
		return nil, fmt.Errorf("generator: read resource %s: %w", filename, err)
	}
	return g.finishLoad(data, filename, start, normalizeToSTT)
}

func (g *Generator) finishLoad(data []byte, name string, start time.Time, normalizeToSTT bool) (*GeneratedAudio, error) {
	buf, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("generator: decode %s: %w", name, err)
	}
	if normalizeToSTT {
		if buf, err = g.ConvertToSTTFormat(buf); err != nil {
			return nil, err
		}
	}
	out := &GeneratedAudio{
		Buffer:     buf,
		LatencyMs:  float64(time.Since(start)) / float64(time.Millisecond),
		DurationMs: float64(buf.Duration()) / float64(time.Millisecond),
	}
	g.logger.Debug("loaded audio", "source", name, "durationMs", out.DurationMs)
	return out, nil
}

// FromSource dispatches on the AudioSource variant: TTS synthesis, file
// load, bundled resource load, or wrapping raw PCM bytes. The result is
// always in the canonical STT input format.
func (g *Generator) FromSource(ctx context.Context, source AudioSource, text string) (*GeneratedAudio, error) {
	switch src := source.(type) {
	case SourceTTS:
		return g.Generate(ctx, text, src.Provider, src.Voice, true)
	case SourceFile:
		return g.LoadFile(src.Path, true)
	case SourceResource:
		return g.LoadResource(src.Name, src.Extension, true)
	case SourceRaw:
		start := time.Now()
		buf, err := audio.DecodePCM(src.Data, src.Format)
		if err != nil {
			return nil, fmt.Errorf("generator: raw audio: %w", err)
		}
		if buf, err = g.ConvertToSTTFormat(buf); err != nil {
			return nil, err
		}
		return &GeneratedAudio{
			Buffer:     buf,
			LatencyMs:  float64(time.Since(start)) / float64(time.Millisecond),
			DurationMs: float64(buf.Duration()) / float64(time.Millisecond),
		}, nil
	default:
		return nil, fmt.Errorf("generator: unknown audio source %T", source)
	}
}

// ConvertToSTTFormat converts a buffer to 16 kHz mono float32. Buffers
// already in that format pass through untouched; a redundant resample pass
// would add artifacts.
func (g *Generator) ConvertToSTTFormat(b *audio.Buffer) (*audio.Buffer, error) {
	return audio.Convert(b, audio.STTFormat)
}
