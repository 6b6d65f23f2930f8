package anyllm

import (
	"testing"

	"github.com/unamentis/kbharness/pkg/provider/llm"
)

func TestNewValidation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("New with empty provider name succeeded")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("New with empty model succeeded")
	}
	if _, err := New("not-a-provider", "some-model"); err == nil {
		t.Error("New with unsupported provider succeeded")
	}
}

func TestNewSupportedProviders(t *testing.T) {
	// Backend construction must not require credentials; those are checked at
	// request time.
	for _, name := range []string{"ollama", "llamacpp", "llamafile"} {
		if _, err := New(name, "test-model"); err != nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "llama3.2"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a strict grader.",
		Messages: []llm.Message{
			{Role: "user", Content: "Judge this transcript."},
		},
		Temperature: 0.1,
		MaxTokens:   128,
	})
	if params.Model != "llama3.2" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != "system" || params.Messages[0].Content != "You are a strict grader." {
		t.Errorf("first message = %+v, want the system prompt", params.Messages[0])
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("second message role = %q, want user", params.Messages[1].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.1 {
		t.Error("Temperature not forwarded")
	}
	if params.MaxTokens == nil || *params.MaxTokens != 128 {
		t.Error("MaxTokens not forwarded")
	}
}

func TestBuildParamsZeroLimitsOmitted(t *testing.T) {
	p := &Provider{model: "llama3.2"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "u"}},
	})
	if params.Temperature != nil {
		t.Error("zero Temperature should be omitted")
	}
	if params.MaxTokens != nil {
		t.Error("zero MaxTokens should be omitted")
	}
	if len(params.Messages) != 1 {
		t.Errorf("got %d messages, want 1 (no empty system prompt)", len(params.Messages))
	}
}

func TestModelID(t *testing.T) {
	p := &Provider{model: "claude-3-5-sonnet-latest"}
	if got := p.ModelID(); got != "claude-3-5-sonnet-latest" {
		t.Errorf("ModelID = %q", got)
	}
}
