// Package coqui provides a Coqui TTS-backed provider that connects to either
// a Coqui XTTS v2 server or a standard Coqui TTS server via its REST API. It
// implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters; voice catalogue is retrieved from GET /details.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is
//     performed via POST /tts_to_audio/ with a JSON body; voice catalogue is
//     retrieved from GET /studio_speakers; voice cloning is available via
//     POST /clone_speaker.
//
// Both servers operate in batch mode (one HTTP call per utterance rather than
// a streaming socket), so Synthesize splits the input text into sentences and
// dispatches concurrent HTTP requests with a small lookahead buffer, emitting
// the resulting PCM chunks in sentence order.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	chunks, err := p.Synthesize(ctx, "What is the capital of France?", voice)
package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/unamentis/kbharness/pkg/audio"
	"github.com/unamentis/kbharness/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	cloneSpeakerEndpoint   = "/clone_speaker"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	// sentenceLookaheadBuf controls how many concurrent HTTP synthesis
	// requests may be in-flight simultaneously.
	sentenceLookaheadBuf = 4

	// chunkChanBuf is the buffer depth of the returned chunk channel.
	chunkChanBuf = 256

	// pcmChunkSize is the byte size of each PCM chunk emitted on the channel.
	pcmChunkSize = 4096
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code sent to the TTS server (e.g.,
// "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for the
// standard Coqui TTS Docker image or APIModeXTTS for the XTTS v2 API server.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server. It is safe
// for concurrent use; multiple Synthesize calls may run in parallel.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
}

// New creates a Provider targeting the TTS server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// sentenceAudio carries the synthesised PCM of one sentence, its format, or
// an error from a worker goroutine.
type sentenceAudio struct {
	pcm    []byte
	format audio.Format
	err    error
}

// studioSpeakersResponse represents the raw map[name]any returned by GET
// /studio_speakers. Only the keys (voice names) matter, so values stay raw.
type studioSpeakersResponse map[string]json.RawMessage

// cloneSpeakerResponse is the JSON body returned by POST /clone_speaker.
type cloneSpeakerResponse struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize splits text into sentences (on '.', '!', '?' followed by
// whitespace or end of string), issues one HTTP synthesis request per
// sentence with up to sentenceLookaheadBuf requests in flight, and emits the
// resulting PCM in fixed-size chunks in sentence order. Each chunk carries
// the format parsed from the server's WAV response.
//
// A synthesis failure is delivered as a terminal Chunk with Err set; the
// channel then closes.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (<-chan tts.Chunk, error) {
	// XTTS mode always requires a voice ID (speaker_wav). Standard mode works
	// without one for single-speaker models.
	if voice.ID == "" && p.apiMode == APIModeXTTS {
		return nil, errors.New("coqui: voice.ID must not be empty (required for XTTS mode)")
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, errors.New("coqui: text must not be empty")
	}

	out := make(chan tts.Chunk, chunkChanBuf)

	// Ordered future channels: the dispatcher fills them concurrently, the
	// collector drains them in sentence order.
	results := make(chan chan sentenceAudio, sentenceLookaheadBuf)

	go func() {
		defer close(results)
		for _, sentence := range sentences {
			ch := make(chan sentenceAudio, 1)
			select {
			case results <- ch:
			case <-ctx.Done():
				return
			}
			go func(s string, fut chan<- sentenceAudio) {
				pcm, format, err := p.synthesize(ctx, s, voice)
				fut <- sentenceAudio{pcm: pcm, format: format, err: err}
			}(sentence, ch)
		}
	}()

	go func() {
		defer close(out)
		for fut := range results {
			var res sentenceAudio
			select {
			case res = <-fut:
			case <-ctx.Done():
				return
			}
			if res.err != nil {
				select {
				case out <- tts.Chunk{Err: res.err}:
				case <-ctx.Done():
				}
				return
			}
			pcm := res.pcm
			for len(pcm) > 0 {
				end := min(pcmChunkSize, len(pcm))
				select {
				case out <- tts.Chunk{PCM: pcm[:end], Format: res.format}:
				case <-ctx.Done():
					return
				}
				pcm = pcm[end:]
			}
		}
	}()

	return out, nil
}

// synthesize dispatches to the appropriate implementation based on the
// configured API mode and returns raw PCM with the format parsed from the
// server's WAV header.
func (p *Provider) synthesize(ctx context.Context, sentence string, voice tts.VoiceProfile) ([]byte, audio.Format, error) {
	var wav []byte
	var err error
	if p.apiMode == APIModeStandard {
		wav, err = p.fetchStandard(ctx, sentence, voice)
	} else {
		wav, err = p.fetchXTTS(ctx, sentence, voice)
	}
	if err != nil {
		return nil, audio.Format{}, err
	}
	info, err := parseWAV(wav)
	if err != nil {
		return nil, audio.Format{}, err
	}
	return wav[info.dataOffset:], info.format, nil
}

// fetchXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode) and
// returns the raw WAV response.
func (p *Provider) fetchXTTS(ctx context.Context, sentence string, voice tts.VoiceProfile) ([]byte, error) {
	body := ttsRequest{
		Text:       sentence,
		SpeakerWav: voice.ID,
		Language:   p.language,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: POST %s: %w", ttsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: POST %s returned status %d", ttsEndpoint, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// fetchStandard performs a single GET /api/tts request (standard server mode)
// using URL query parameters and returns the raw WAV response.
func (p *Provider) fetchStandard(ctx context.Context, sentence string, voice tts.VoiceProfile) ([]byte, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	reqURL := p.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", apiTTSEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", apiTTSEndpoint, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// ListVoices retrieves the list of available voices from the Coqui server.
//
// In APIModeXTTS it calls GET /studio_speakers and maps each entry to a
// VoiceProfile. In APIModeStandard it calls GET /details and returns one
// VoiceProfile per speaker for multi-speaker models, or a single profile
// (identified by model name) for single-speaker models.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if p.apiMode == APIModeStandard {
		return p.listVoicesStandard(ctx)
	}
	return p.listVoicesXTTS(ctx)
}

func (p *Provider) listVoicesXTTS(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+studioSpeakersEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", studioSpeakersEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", studioSpeakersEndpoint, resp.StatusCode)
	}

	var raw studioSpeakersResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("coqui: decode studio speakers: %w", err)
	}

	// Sort keys for deterministic output.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	profiles := make([]tts.VoiceProfile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       name,
			Name:     name,
			Provider: "coqui",
			Metadata: map[string]string{
				"type": "studio",
			},
		})
	}
	return profiles, nil
}

func (p *Provider) listVoicesStandard(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+detailsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", detailsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", detailsEndpoint, resp.StatusCode)
	}

	var details detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}

	if len(details.Speakers) > 0 {
		speakers := make([]string, len(details.Speakers))
		copy(speakers, details.Speakers)
		sort.Strings(speakers)

		profiles := make([]tts.VoiceProfile, 0, len(speakers))
		for _, spk := range speakers {
			profiles = append(profiles, tts.VoiceProfile{
				ID:       spk,
				Name:     spk,
				Provider: "coqui",
				Metadata: map[string]string{
					"type":       "speaker",
					"model_name": details.ModelName,
				},
			})
		}
		return profiles, nil
	}

	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []tts.VoiceProfile{
		{
			ID:       name,
			Name:     name,
			Provider: "coqui",
			Metadata: map[string]string{
				"type":       "single-speaker",
				"model_name": name,
			},
		},
	}, nil
}

// CloneVoice creates a new speaker voice by uploading WAV audio samples to
// the XTTS server via POST /clone_speaker. Each element of samples must be a
// valid WAV-encoded audio file. Only supported in APIModeXTTS.
func (p *Provider) CloneVoice(ctx context.Context, samples [][]byte) (*tts.VoiceProfile, error) {
	if p.apiMode == APIModeStandard {
		return nil, errors.New("coqui: voice cloning is not supported in standard API mode")
	}
	if len(samples) == 0 {
		return nil, errors.New("coqui: CloneVoice requires at least one audio sample")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for i, sample := range samples {
		fw, err := mw.CreateFormFile("wav_files", fmt.Sprintf("sample_%02d.wav", i))
		if err != nil {
			return nil, fmt.Errorf("coqui: create form file %d: %w", i, err)
		}
		if _, err := fw.Write(sample); err != nil {
			return nil, fmt.Errorf("coqui: write form file %d: %w", i, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("coqui: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+cloneSpeakerEndpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("coqui: create clone-speaker request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: POST %s: %w", cloneSpeakerEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: POST %s returned status %d", cloneSpeakerEndpoint, resp.StatusCode)
	}

	var cloneResp cloneSpeakerResponse
	if err := json.NewDecoder(resp.Body).Decode(&cloneResp); err != nil {
		return nil, fmt.Errorf("coqui: decode clone-speaker response: %w", err)
	}
	if cloneResp.Name == "" {
		return nil, errors.New("coqui: clone-speaker response missing name")
	}
	return &tts.VoiceProfile{
		ID:       cloneResp.Name,
		Name:     cloneResp.Name,
		Provider: "coqui",
		Metadata: map[string]string{
			"type": "cloned",
		},
	}, nil
}

// ---- helpers ----------------------------------------------------------------

// splitSentences breaks text on '.', '!', '?' followed by whitespace or end
// of string. Abbreviations like "Dr." and decimals like "3.14" are not split
// because the terminator is followed by a non-space character. A trailing
// fragment without a terminator becomes the final sentence.
func splitSentences(text string) []string {
	var out []string
	rest := text
	for {
		idx := findSentenceBoundary(rest)
		if idx < 0 {
			break
		}
		if s := strings.TrimSpace(rest[:idx+1]); s != "" {
			out = append(out, s)
		}
		rest = rest[idx+1:]
	}
	if s := strings.TrimSpace(rest); s != "" {
		out = append(out, s)
	}
	return out
}

// findSentenceBoundary returns the index of the first sentence-ending
// character that is either at the end of s or immediately followed by
// whitespace. Returns -1 if none is found.
func findSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}

// wavInfo holds the metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	dataOffset int
	format     audio.Format
}

// parseWAV scans the RIFF/WAVE container in wav and returns the data offset
// and audio format from the "fmt " sub-chunk. This is more robust than
// hardcoding a fixed 44-byte offset because the fmt chunk size may vary.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("coqui: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("coqui: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("coqui: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				audioFormat := int(binary.LittleEndian.Uint16(fmtData[0:2]))
				info.format.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.format.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				bits := int(binary.LittleEndian.Uint16(fmtData[14:16]))
				switch {
				case audioFormat == 1 && bits == 16:
					info.format.Encoding = audio.EncodingInt16
				case audioFormat == 3 && bits == 32:
					info.format.Encoding = audio.EncodingFloat32
				default:
					return wavInfo{}, fmt.Errorf("coqui: unsupported WAV sample format %d/%d-bit", audioFormat, bits)
				}
				foundFmt = true
			}
		case "data":
			info.dataOffset = offset + 8
			if !foundFmt {
				// fmt chunk should appear before data, but tolerate servers
				// that reorder; Coqui's default model rate applies.
				info.format = audio.Format{SampleRate: 22050, Channels: 1, Encoding: audio.EncodingInt16}
			}
			return info, nil
		}

		// chunks are word-aligned
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("coqui: WAV response missing data chunk")
}
