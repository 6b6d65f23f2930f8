// Package injector feeds a fully generated audio buffer into a streaming
// transcription session in bounded-size chunks, standing in for a live
// microphone, and collects the final transcript.
package injector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unamentis/kbharness/pkg/audio"
	"github.com/unamentis/kbharness/pkg/provider/stt"
)

// DefaultChunkFrames is the injection chunk size: 1600 frames is 100 ms of
// audio at 16 kHz, matching what a capture device would deliver.
const DefaultChunkFrames = 1600

// TranscriptionResult is the injector's output for one buffer.
type TranscriptionResult struct {
	// Transcript is the final recognized text; empty when the session closed
	// without a final result.
	Transcript string
	// Confidence is the STT confidence in [0, 1]; zero when no final result
	// arrived. An empty transcript at zero confidence is a normal outcome,
	// not an error; validation downstream will fail it.
	Confidence float64
	// LatencyMs is the wall-clock time from session open to final result.
	LatencyMs float64
	// FramesProcessed is the number of frames sent into the session.
	FramesProcessed int
}

// Option is a functional option for configuring an [Injector].
type Option func(*Injector)

// WithChunkFrames overrides the injection chunk size.
func WithChunkFrames(frames int) Option {
	return func(i *Injector) {
		if frames > 0 {
			i.chunkFrames = frames
		}
	}
}

// WithLanguage sets the recognition language hint. Default: "en".
func WithLanguage(language string) Option {
	return func(i *Injector) {
		i.language = language
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Injector) {
		i.logger = logger
	}
}

// Injector drives STT sessions from in-memory buffers. It is read-only after
// construction and safe for concurrent use.
type Injector struct {
	chunkFrames int
	language    string
	logger      *slog.Logger
}

// New returns an Injector configured with the supplied options.
func New(opts ...Option) *Injector {
	i := &Injector{
		chunkFrames: DefaultChunkFrames,
		language:    "en",
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// EnsureSTTFormat converts a buffer to 16 kHz mono float32; buffers already
// in that format pass through unchanged.
func (i *Injector) EnsureSTTFormat(b *audio.Buffer) (*audio.Buffer, error) {
	return audio.Convert(b, audio.STTFormat)
}

// InjectAndTranscribe streams the buffer into a new session on the provider
// in strict order: each chunk's send completes before the next is issued, the
// last chunk may be short, then end-of-stream is signalled and the result
// stream drained. The first transcript marked final wins; if the stream
// closes without one, the result carries an empty transcript at zero
// confidence.
func (i *Injector) InjectAndTranscribe(ctx context.Context, b *audio.Buffer, provider stt.Provider) (*TranscriptionResult, error) {
	buf, err := i.EnsureSTTFormat(b)
	if err != nil {
		return nil, fmt.Errorf("injector: ensure format: %w", err)
	}

	start := time.Now()
	session, err := provider.StartStream(ctx, stt.StreamConfig{
		Format:   audio.STTFormat,
		Language: i.language,
	})
	if err != nil {
		return nil, fmt.Errorf("injector: start stream: %w", err)
	}
	defer session.Close()

	samples := buf.Channel(0)
	total := buf.FrameLength()
	sent := 0
	for offset := 0; offset < total; offset += i.chunkFrames {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("injector: %w", err)
		}
		n := min(i.chunkFrames, total-offset)
		if err := session.SendAudio(samples[offset : offset+n]); err != nil {
			return nil, fmt.Errorf("injector: send chunk at frame %d: %w", offset, err)
		}
		sent += n
	}

	if err := session.CloseSend(); err != nil {
		return nil, fmt.Errorf("injector: close send: %w", err)
	}

	result := &TranscriptionResult{FramesProcessed: sent}
	for transcript := range session.Results() {
		if !transcript.IsFinal {
			continue
		}
		result.Transcript = transcript.Text
		result.Confidence = transcript.Confidence
		break
	}
	result.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)

	i.logger.Debug("injected audio",
		"frames", sent,
		"transcript", result.Transcript,
		"confidence", result.Confidence,
		"latencyMs", result.LatencyMs)
	return result, nil
}

// InjectAndTranscribeOnDevice submits the whole buffer to a batch backend in
// one call. This is the headless path for CI and simulators, where no audio
// capture hardware exists to stream against.
func (i *Injector) InjectAndTranscribeOnDevice(ctx context.Context, b *audio.Buffer, transcriber stt.BatchTranscriber) (*TranscriptionResult, error) {
	buf, err := i.EnsureSTTFormat(b)
	if err != nil {
		return nil, fmt.Errorf("injector: ensure format: %w", err)
	}

	start := time.Now()
	transcript, err := transcriber.Transcribe(ctx, buf, i.language)
	if err != nil {
		return nil, fmt.Errorf("injector: transcribe: %w", err)
	}
	return &TranscriptionResult{
		Transcript:      transcript.Text,
		Confidence:      transcript.Confidence,
		LatencyMs:       float64(time.Since(start)) / float64(time.Millisecond),
		FramesProcessed: buf.FrameLength(),
	}, nil
}
