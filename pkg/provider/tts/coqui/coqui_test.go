package coqui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/unamentis/kbharness/pkg/audio"
	"github.com/unamentis/kbharness/pkg/provider/tts"
)

// testWAV builds a small WAV file with the given frame count at 22050 Hz mono
// int16.
func testWAV(t *testing.T, frames int) []byte {
	t.Helper()
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = 0.25
	}
	buf, err := audio.FromSamples(22050, [][]float32{samples})
	if err != nil {
		t.Fatalf("FromSamples: %v", err)
	}
	return audio.EncodeWAV(buf, audio.EncodingInt16)
}

func collect(t *testing.T, ch <-chan tts.Chunk) ([]tts.Chunk, error) {
	t.Helper()
	var out []tts.Chunk
	for c := range ch {
		if c.Err != nil {
			return out, c.Err
		}
		out = append(out, c)
	}
	return out, nil
}

func TestNewRequiresServerURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") succeeded, want error")
	}
}

func TestSynthesizeStandardMode(t *testing.T) {
	wav := testWAV(t, 4410)
	var gotText []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" {
			http.NotFound(w, r)
			return
		}
		gotText = append(gotText, r.URL.Query().Get("text"))
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.Synthesize(context.Background(), "What is the capital of France? Answer briefly.", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	chunks, err := collect(t, ch)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	want := []string{"What is the capital of France?", "Answer briefly."}
	if !reflect.DeepEqual(gotText, want) {
		t.Errorf("server saw sentences %q, want %q", gotText, want)
	}

	var total int
	for _, c := range chunks {
		total += len(c.PCM)
		if c.Format.SampleRate != 22050 || c.Format.Channels != 1 || c.Format.Encoding != audio.EncodingInt16 {
			t.Errorf("chunk format = %v, want 22050Hz mono int16", c.Format)
		}
	}
	if wantBytes := 2 * 4410 * 2; total != wantBytes {
		t.Errorf("received %d PCM bytes, want %d (two sentences)", total, wantBytes)
	}
}

func TestSynthesizeXTTSRequiresVoiceID(t *testing.T) {
	p, _ := New("http://localhost:1", WithAPIMode(APIModeXTTS))
	if _, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{}); err == nil {
		t.Fatal("Synthesize without voice ID succeeded in XTTS mode")
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	p, _ := New("http://localhost:1")
	if _, err := p.Synthesize(context.Background(), "   ", tts.VoiceProfile{}); err == nil {
		t.Fatal("Synthesize with blank text succeeded")
	}
}

func TestSynthesizeServerErrorEmitsErrChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	ch, err := p.Synthesize(context.Background(), "hello there", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	chunks, err := collect(t, ch)
	if err == nil {
		t.Fatal("stream completed without error against failing server")
	}
	if len(chunks) != 0 {
		t.Errorf("received %d chunks before error, want 0", len(chunks))
	}
}

func TestListVoicesStandardMultiSpeaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/details" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model_name": "vits", "language": "en", "speakers": ["p330", "p225"]}`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	// sorted
	if voices[0].ID != "p225" || voices[1].ID != "p330" {
		t.Errorf("voices = %q, %q; want p225, p330", voices[0].ID, voices[1].ID)
	}
}

func TestListVoicesXTTS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/studio_speakers" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Claribel Dervla": {}, "Ana Florence": {}}`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL, WithAPIMode(APIModeXTTS))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].Name != "Ana Florence" {
		t.Errorf("voices = %+v", voices)
	}
}

func TestCloneVoiceStandardModeUnsupported(t *testing.T) {
	p, _ := New("http://localhost:1")
	if _, err := p.CloneVoice(context.Background(), [][]byte{{1}}); err == nil {
		t.Fatal("CloneVoice succeeded in standard mode")
	}
}

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"No terminator", []string{"No terminator"}},
		{"Dr. Smith weighs 3.14 kilos.", []string{"Dr.", "Smith weighs 3.14 kilos."}},
		{"", nil},
	}
	for _, tc := range cases {
		if got := splitSentences(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitSentences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
