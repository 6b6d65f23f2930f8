// Package whisper provides a whisper.cpp-backed STT provider.
//
// It connects to a running whisper-server binary (which exposes a REST API at
// POST /inference). whisper.cpp is a batch transcription engine, so the
// streaming session buffers incoming PCM frames and submits the whole
// utterance as one inference request when the caller signals end of stream.
// An energy gate skips inference entirely when the buffered audio never rose
// above the silence floor, so pure-silence injections produce no transcript.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	handle, err := p.StartStream(ctx, cfg)
//	handle.SendAudio(frames)
//	handle.CloseSend()
//	transcript := <-handle.Results()
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/unamentis/kbharness/pkg/audio"
	"github.com/unamentis/kbharness/pkg/provider/stt"
)

const (
	// defaultRMSThreshold is the root-mean-square energy below which a whole
	// utterance is considered silent. Samples are float32 in [−1, 1]; 0.009
	// corresponds to near-silence (≈300 in 16-bit PCM units).
	defaultRMSThreshold = 0.009

	defaultLanguage      = "en"
	defaultInferTimeout  = 30 * time.Second
	defaultMaxBufferSecs = 120
)

// Compile-time assertions.
var (
	_ stt.Provider         = (*Provider)(nil)
	_ stt.BatchTranscriber = (*Provider)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with; this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper-server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithMaxBufferSeconds caps the audio a session will buffer before SendAudio
// starts returning errors. Defaults to 120 s.
func WithMaxBufferSeconds(secs int) Option {
	return func(p *Provider) {
		p.maxBufferSecs = secs
	}
}

// Provider implements stt.Provider and stt.BatchTranscriber backed by a
// whisper.cpp HTTP server. Multiple sessions may be open simultaneously; each
// session maintains its own audio buffer.
type Provider struct {
	serverURL     string
	model         string
	language      string
	maxBufferSecs int
	httpClient    *http.Client
}

// New creates a Provider connecting to the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:     serverURL,
		language:      defaultLanguage,
		maxBufferSecs: defaultMaxBufferSecs,
		httpClient:    &http.Client{Timeout: defaultInferTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a buffering transcription session. No network connection
// is established until CloseSend triggers the inference request.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	f := cfg.Format
	if !f.Valid() {
		f = audio.STTFormat
	}
	if f.Channels != 1 {
		return nil, fmt.Errorf("whisper: %d-channel audio not supported, mono required", f.Channels)
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	s := &session{
		provider:   p,
		ctx:        ctx,
		language:   lang,
		sampleRate: f.SampleRate,
		maxFrames:  p.maxBufferSecs * f.SampleRate,
		results:    make(chan stt.Transcript, 4),
	}
	return s, nil
}

// Transcribe submits the buffer's valid frames as a single inference request
// and returns the final transcript. Buffers must be mono; callers convert
// first. A silent buffer yields an empty final transcript without touching
// the server.
func (p *Provider) Transcribe(ctx context.Context, buf *audio.Buffer, language string) (stt.Transcript, error) {
	if buf.Channels() != 1 {
		return stt.Transcript{}, fmt.Errorf("whisper: %d-channel audio not supported, mono required", buf.Channels())
	}
	if language == "" {
		language = p.language
	}
	samples := buf.Channel(0)
	if computeRMS(samples) < defaultRMSThreshold {
		return stt.Transcript{IsFinal: true, Duration: buf.Duration()}, nil
	}
	text, err := p.infer(ctx, audio.EncodeWAV(buf, audio.EncodingInt16), language)
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{Text: text, IsFinal: true, Confidence: 1.0, Duration: buf.Duration()}, nil
}

// infer POSTs WAV data to the whisper-server /inference endpoint as
// multipart/form-data and returns the transcribed text.
func (p *Provider) infer(ctx context.Context, wav []byte, language string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}

// ---- session ----------------------------------------------------------------

// session buffers PCM frames until CloseSend, then runs one inference and
// emits the final transcript on Results.
type session struct {
	provider   *Provider
	ctx        context.Context
	language   string
	sampleRate int
	maxFrames  int

	mu      sync.Mutex
	frames  []float32
	closed  bool
	results chan stt.Transcript
}

// SendAudio appends a chunk of mono float32 frames to the session buffer.
func (s *session) SendAudio(pcm []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	if s.maxFrames > 0 && len(s.frames)+len(pcm) > s.maxFrames {
		return fmt.Errorf("whisper: session buffer exceeds %d frames", s.maxFrames)
	}
	s.frames = append(s.frames, pcm...)
	return nil
}

// Results returns the transcript channel. It delivers at most one final
// transcript after CloseSend, then closes.
func (s *session) Results() <-chan stt.Transcript { return s.results }

// CloseSend runs inference over everything buffered and emits the final
// transcript. The flush happens synchronously; by the time CloseSend returns
// the result is buffered in Results.
func (s *session) CloseSend() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stt.ErrSessionClosed
	}
	s.closed = true
	frames := s.frames
	s.frames = nil
	s.mu.Unlock()

	defer close(s.results)

	if computeRMS(frames) < defaultRMSThreshold {
		return nil
	}

	buf, err := audio.FromSamples(s.sampleRate, [][]float32{frames})
	if err != nil {
		return fmt.Errorf("whisper: %w", err)
	}
	text, err := s.provider.infer(s.ctx, audio.EncodeWAV(buf, audio.EncodingInt16), s.language)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	s.results <- stt.Transcript{Text: text, IsFinal: true, Confidence: 1.0, Duration: buf.Duration()}
	return nil
}

// Close aborts the session, discarding buffered audio.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.frames = nil
		close(s.results)
	}
	return nil
}

// computeRMS returns the root-mean-square energy of float32 PCM samples.
func computeRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
