// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to feed controlled Transcript values and inspect
// which audio chunks were delivered.
//
// Example:
//
//	sess := mock.NewSession(stt.Transcript{Text: "paris", IsFinal: true})
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/unamentis/kbharness/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by StartStream. If nil, StartStream
	// returns a fresh empty Session.
	Session stt.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// PCM is a copy of the frames that were passed to SendAudio.
	PCM []float32
}

// Session is a mock implementation of stt.SessionHandle. The transcripts
// given to NewSession are delivered on Results after CloseSend, matching the
// flush-on-end-of-stream behaviour of the real providers.
type Session struct {
	mu sync.Mutex

	// Transcripts are emitted on Results when CloseSend is called.
	Transcripts []stt.Transcript

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseSendErr, if non-nil, is returned by CloseSend. The transcripts are
	// still not emitted in that case.
	CloseSendErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// CloseSendCallCount is the number of times CloseSend was called.
	CloseSendCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	results chan stt.Transcript
	closed  bool
}

// NewSession returns a Session that will emit the given transcripts on
// Results once CloseSend is called.
func NewSession(transcripts ...stt.Transcript) *Session {
	return &Session{
		Transcripts: transcripts,
		results:     make(chan stt.Transcript, len(transcripts)+1),
	}
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(pcm []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	cp := make([]float32, len(pcm))
	copy(cp, pcm)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{PCM: cp})
	return s.SendAudioErr
}

// Results returns the transcript channel.
func (s *Session) Results() <-chan stt.Transcript {
	return s.results
}

// CloseSend emits the configured transcripts and closes Results.
func (s *Session) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	s.closed = true
	s.CloseSendCallCount++
	if s.CloseSendErr != nil {
		close(s.results)
		return s.CloseSendErr
	}
	for _, t := range s.Transcripts {
		s.results <- t
	}
	close(s.results)
	return nil
}

// Close records the call and closes Results if still open.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.results)
	}
	return s.CloseErr
}

// SentFrameCount returns the total number of frames delivered via SendAudio.
// Thread-safe.
func (s *Session) SentFrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.SendAudioCalls {
		n += len(c.PCM)
	}
	return n
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.CloseSendCallCount = 0
	s.CloseCallCount = 0
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
