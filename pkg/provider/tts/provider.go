// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Coqui server, or
// any HTTP synthesis API) and presents a uniform streaming interface. The
// primary entry point is Synthesize, which accepts the full text to speak and
// returns a channel of PCM chunks as they become available, each tagged with
// the format the backend produced so the caller can convert afterwards.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/unamentis/kbharness/pkg/audio"
)

// Chunk is one piece of synthesised audio. PCM holds raw interleaved bytes in
// the encoding named by Format.
//
// A Chunk with Err != nil signals a synthesis failure; it is the last value
// emitted before the channel closes and carries no PCM.
type Chunk struct {
	PCM    []byte
	Format audio.Format
	Err    error
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel.
type Provider interface {
	// Synthesize speaks text using the given voice profile and returns a
	// channel emitting audio chunks in order. The channel is closed when
	// synthesis completes, fails (after a terminal Err chunk), or ctx is
	// cancelled. The caller must drain the channel to avoid blocking the
	// provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started at all.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (<-chan Chunk, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
