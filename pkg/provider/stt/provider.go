// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (a local whisper.cpp server,
// or any HTTP/streaming recognizer) and exposes a uniform streaming interface.
// The central abstraction is SessionHandle: once opened, a session accepts
// float32 PCM frames and emits Transcript values on a single results channel;
// interim guesses carry IsFinal=false, committed results IsFinal=true.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/unamentis/kbharness/pkg/audio"
)

// ErrSessionClosed is returned by SendAudio and CloseSend after the session
// has been closed or end-of-stream has been signalled.
var ErrSessionClosed = errors.New("stt: session closed")

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// Format describes the PCM frames the caller will send. Providers in this
	// module expect audio.STTFormat (16 kHz mono float32); implementations may
	// reject anything else.
	Format audio.Format

	// Language is the BCP-47 language tag for recognition (e.g. "en-US").
	// Empty lets the provider auto-detect, if supported.
	Language string
}

// SessionHandle represents an open STT streaming session. It is an interface
// so test code can provide mock implementations without a live backend.
//
// The intended call sequence is: SendAudio any number of times, CloseSend to
// signal end of stream and flush the final result, then drain Results until it
// closes. Close aborts the session at any point; calling it more than once is
// safe. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers one chunk of mono float32 PCM frames for
	// transcription. Chunks are processed strictly in the order sent.
	// Returns ErrSessionClosed after CloseSend or Close.
	SendAudio(pcm []float32) error

	// Results returns a read-only channel of transcripts. Providers may emit
	// any number of interim transcripts (IsFinal=false) followed by at most
	// one final per utterance. The channel is closed once the session ends
	// and all buffered results have been delivered.
	Results() <-chan Transcript

	// CloseSend signals end of stream: no more audio will arrive, and the
	// provider should finalise recognition of everything buffered. Results
	// stays open until the flush completes.
	CloseSend() error

	// Close aborts the session and releases all associated resources without
	// waiting for pending recognition. The Results channel is closed.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
//
// Implementations must be safe for concurrent use; multiple sessions may be
// open simultaneously.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately. The caller owns the
	// handle and must call Close (or CloseSend plus draining Results) when
	// done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// BatchTranscriber is the single-shot alternative to streaming: the whole
// utterance is submitted at once and one final transcript comes back. The
// whisper server provider implements both this and Provider.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, buf *audio.Buffer, language string) (Transcript, error)
}
