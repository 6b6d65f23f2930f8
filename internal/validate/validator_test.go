package validate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/unamentis/kbharness/pkg/provider/llm"
	llmmock "github.com/unamentis/kbharness/pkg/provider/llm/mock"

	embmock "github.com/unamentis/kbharness/pkg/provider/embeddings/mock"
)

func TestValidateStrictExact(t *testing.T) {
	v := New()
	out := v.Validate(context.Background(), Request{
		Transcript: "Paris.",
		Expected:   "paris",
		AnswerType: AnswerPlace,
		Config:     StrictConfig(),
	})
	if !out.IsPass || out.MatchType != MatchExact || out.Confidence != 1.0 {
		t.Errorf("got %+v, want exact pass at confidence 1", out)
	}
}

func TestValidateStandardCaseInsensitive(t *testing.T) {
	v := New()
	out := v.Validate(context.Background(), Request{
		Transcript: "Paris",
		Expected:   "paris",
		AnswerType: AnswerPlace,
		Config:     StandardConfig(),
	})
	if !out.IsPass || out.Confidence < 0.6 {
		t.Errorf("got %+v, want pass with confidence >= 0.6", out)
	}
}

func TestValidateNumberWordsByStrictness(t *testing.T) {
	v := New()
	req := Request{
		Transcript: "nineteen forty five",
		Expected:   "1945",
		AnswerType: AnswerNumeric,
	}

	req.Config = StrictConfig()
	if out := v.Validate(context.Background(), req); out.IsPass {
		t.Errorf("strict accepted number words: %+v", out)
	}

	req.Config = StandardConfig()
	out := v.Validate(context.Background(), req)
	if !out.IsPass || out.MatchType != MatchLinguistic {
		t.Errorf("standard rejected number words: %+v", out)
	}
}

func TestValidateEmptyTranscript(t *testing.T) {
	v := New()
	out := v.Validate(context.Background(), Request{
		Transcript: "   ",
		Expected:   "paris",
		Config:     StandardConfig(),
	})
	if out.IsPass || out.MatchType != MatchNone {
		t.Errorf("got %+v, want failing outcome with no match", out)
	}
	if out.Reasoning == "" {
		t.Error("empty transcript should be explained in Reasoning")
	}
}

func TestValidateNoMatchWithoutLenientTiers(t *testing.T) {
	v := New()
	out := v.Validate(context.Background(), Request{
		Transcript: "the city of light",
		Expected:   "paris",
		Config:     StandardConfig(),
	})
	if out.IsPass || out.MatchType != MatchNone || out.Confidence != 0 {
		t.Errorf("got %+v, want failing outcome", out)
	}
}

func TestValidateEmbeddingsTier(t *testing.T) {
	emb := &embmock.Provider{
		EmbedBatchResult: [][]float32{
			{0.6, 0.8, 0},
			{0.6, 0.8, 0.01},
		},
	}
	v := New(WithEmbeddings(emb))
	out := v.Validate(context.Background(), Request{
		Transcript: "the city of light",
		Expected:   "paris",
		Config:     LenientConfig(),
	})
	if !out.IsPass || out.MatchType != MatchEmbeddings {
		t.Fatalf("got %+v, want embeddings pass", out)
	}
	if out.EmbeddingsSimilarity == nil || *out.EmbeddingsSimilarity < 0.99 {
		t.Errorf("EmbeddingsSimilarity = %v, want ~1", out.EmbeddingsSimilarity)
	}
	if len(emb.EmbedBatchCalls) != 1 {
		t.Fatalf("EmbedBatch called %d times, want 1", len(emb.EmbedBatchCalls))
	}
	if got := emb.EmbedBatchCalls[0].Texts; got[0] != "the city of light" || got[1] != "paris" {
		t.Errorf("embedded texts = %v", got)
	}
}

func TestValidateEmbeddingsSkippedOnRuleMatch(t *testing.T) {
	emb := &embmock.Provider{}
	v := New(WithEmbeddings(emb))
	out := v.Validate(context.Background(), Request{
		Transcript: "paris",
		Expected:   "Paris",
		Config:     LenientConfig(),
	})
	if !out.IsPass || out.MatchType != MatchExact {
		t.Fatalf("got %+v, want exact pass", out)
	}
	if len(emb.EmbedBatchCalls) != 0 {
		t.Error("embeddings tier ran despite a rule-tier verdict")
	}
}

func TestValidateEmbeddingsFailureDegrades(t *testing.T) {
	emb := &embmock.Provider{EmbedBatchErr: errors.New("model offline")}
	v := New(WithEmbeddings(emb))
	out := v.Validate(context.Background(), Request{
		Transcript: "the city of light",
		Expected:   "paris",
		Config: ValidationConfig{
			MinimumConfidence: 0.5,
			UseFuzzyMatching:  true,
			UseEmbeddings:     true,
		},
	})
	if out.IsPass {
		t.Fatalf("got %+v, want failing outcome", out)
	}
	if !strings.Contains(out.Reasoning, "model offline") {
		t.Errorf("Reasoning = %q, want the provider error surfaced", out.Reasoning)
	}
}

func TestValidateLLMTier(t *testing.T) {
	judge := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"match": true, "confidence": 0.92, "reasoning": "paraphrase of the expected answer"}`,
		},
	}
	v := New(WithJudge(judge))
	out := v.Validate(context.Background(), Request{
		Transcript: "the city of light",
		Expected:   "paris",
		Config:     ValidationConfig{MinimumConfidence: 0.5, UseLLMValidation: true},
	})
	if !out.IsPass || out.MatchType != MatchLLM || out.Confidence != 0.92 {
		t.Fatalf("got %+v, want llm pass at 0.92", out)
	}
	if out.LLMJudgment == nil || !*out.LLMJudgment {
		t.Error("LLMJudgment not recorded")
	}

	if len(judge.CompleteCalls) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(judge.CompleteCalls))
	}
	req := judge.CompleteCalls[0].Req
	if req.SystemPrompt == "" {
		t.Error("judge request has no system prompt")
	}
	user := req.Messages[0].Content
	for _, want := range []string{"paris", "the city of light"} {
		if !strings.Contains(user, want) {
			t.Errorf("judge prompt missing %q:\n%s", want, user)
		}
	}
}

func TestValidateLLMRejection(t *testing.T) {
	judge := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "Sure, here is the verdict:\n```json\n{\"match\": false, \"confidence\": 0.88, \"reasoning\": \"different city\"}\n```",
		},
	}
	v := New(WithJudge(judge))
	out := v.Validate(context.Background(), Request{
		Transcript:   "london",
		Expected:     "paris",
		Alternatives: []string{"rome"},
		Config:       ValidationConfig{MinimumConfidence: 0.5, UseLLMValidation: true},
	})
	if out.IsPass {
		t.Fatalf("got %+v, want failing outcome", out)
	}
	if out.MatchType != MatchLLM || out.LLMJudgment == nil || *out.LLMJudgment {
		t.Errorf("got %+v, want recorded negative judgment", out)
	}
	if out.Reasoning != "different city" {
		t.Errorf("Reasoning = %q", out.Reasoning)
	}
	if !strings.Contains(judge.CompleteCalls[0].Req.Messages[0].Content, "rome") {
		t.Error("alternatives not surfaced in the judge prompt")
	}
}

func TestValidateLLMFailureDegrades(t *testing.T) {
	judge := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	v := New(WithJudge(judge))
	out := v.Validate(context.Background(), Request{
		Transcript: "the city of light",
		Expected:   "paris",
		Config:     ValidationConfig{MinimumConfidence: 0.5, UseLLMValidation: true},
	})
	if out.IsPass {
		t.Fatalf("got %+v, want failing outcome", out)
	}
	if !strings.Contains(out.Reasoning, "rate limited") {
		t.Errorf("Reasoning = %q, want the provider error surfaced", out.Reasoning)
	}
}

func TestParseJudgeVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"bare object", `{"match": true, "confidence": 1, "reasoning": "r"}`, false},
		{"fenced", "```json\n{\"match\": false, \"confidence\": 0.2, \"reasoning\": \"r\"}\n```", false},
		{"prose wrapped", `Verdict: {"match": true, "confidence": 0.7, "reasoning": "r"} as requested.`, false},
		{"no json", "I cannot judge this.", true},
		{"malformed", `{"match": maybe}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseJudgeVerdict(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseJudgeVerdict(%q) error = %v, wantErr %v", tt.content, err, tt.wantErr)
			}
		})
	}
}

func TestStrictnessDerivation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ValidationConfig
		want Strictness
	}{
		{"nothing enabled", ValidationConfig{MinimumConfidence: 0.95}, StrictnessStrict},
		{"fuzzy only", ValidationConfig{MinimumConfidence: 0.6, UseFuzzyMatching: true}, StrictnessStandard},
		{"embeddings", ValidationConfig{UseEmbeddings: true}, StrictnessLenient},
		{"llm only", ValidationConfig{UseLLMValidation: true}, StrictnessLenient},
		{"presets", LenientConfig(), StrictnessLenient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Strictness(); got != tt.want {
				t.Errorf("Strictness() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQuickMatch(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		expected   string
		answerType AnswerType
		want       bool
	}{
		{"punctuation and case", "PARIS.", "paris", AnswerPlace, true},
		{"within tolerance", "pariss", "paris", AnswerPlace, true},
		{"short answers get floor of two", "no", "ok", AnswerFreeText, true},
		{"far off", "completely different", "paris", AnswerPlace, false},
		{"leading article on place", "The Netherlands", "netherlands", AnswerPlace, true},
		{"both empty", "", "", AnswerFreeText, true},
		{"nonempty vs empty", "paris", "", AnswerFreeText, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QuickMatch(tt.transcript, tt.expected, tt.answerType); got != tt.want {
				t.Errorf("QuickMatch(%q, %q, %s) = %v, want %v",
					tt.transcript, tt.expected, tt.answerType, got, tt.want)
			}
		})
	}
}
