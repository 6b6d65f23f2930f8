package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/unamentis/kbharness/pkg/provider/embeddings"
	"github.com/unamentis/kbharness/pkg/provider/llm"
)

const (
	defaultSemanticThreshold = 0.80

	judgeSystemPrompt = `You grade speech-to-text transcripts of spoken answers to knowledge questions.
Decide whether the transcript conveys the expected answer, allowing for
transcription artifacts, paraphrase, and spoken number forms.
Respond with a single JSON object and nothing else:
{"match": true|false, "confidence": 0.0-1.0, "reasoning": "one sentence"}`

	judgeMaxTokens = 256
)

// Option is a functional option for configuring a [Validator].
type Option func(*Validator)

// WithEmbeddings supplies the provider backing tier-2 semantic validation.
// Without it, lenient configs skip straight from rules to the LLM tier.
func WithEmbeddings(p embeddings.Provider) Option {
	return func(v *Validator) {
		v.embedder = p
	}
}

// WithJudge supplies the LLM backing tier-3 adjudication.
func WithJudge(p llm.Provider) Option {
	return func(v *Validator) {
		v.judge = p
	}
}

// WithSemanticThreshold sets the cosine similarity a transcript/answer pair
// must reach for tier 2 to pass. Default: 0.80.
func WithSemanticThreshold(threshold float64) Option {
	return func(v *Validator) {
		v.semanticThreshold = threshold
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// Validator runs the tiered answer-validation pipeline. It is read-only after
// construction and safe for concurrent use.
type Validator struct {
	embedder          embeddings.Provider
	judge             llm.Provider
	semanticThreshold float64
	logger            *slog.Logger
}

// New returns a Validator configured with the supplied options. Both backing
// providers are optional; tiers without a provider are skipped.
func New(opts ...Option) *Validator {
	v := &Validator{
		semanticThreshold: defaultSemanticThreshold,
		logger:            slog.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Request carries one transcript through validation.
type Request struct {
	// Transcript is the raw STT output.
	Transcript string
	// Expected is the canonical expected answer.
	Expected string
	// Alternatives are explicitly acceptable alternative phrasings.
	Alternatives []string
	// AnswerType steers normalization and the linguistic matcher.
	AnswerType AnswerType
	// Config selects tiers and the confidence floor.
	Config ValidationConfig
}

// Validate decides whether the transcript is an acceptable rendering of the
// expected answer. Tiers run cheapest-first and the first confident verdict
// wins. Tier-2 and tier-3 service failures never surface as errors; they
// degrade the outcome to a failing verdict with an explanatory Reasoning.
func (v *Validator) Validate(ctx context.Context, req Request) Outcome {
	in := matchInput{
		transcript: Normalize(req.Transcript, req.AnswerType),
		expected:   Normalize(req.Expected, req.AnswerType),
		answerType: req.AnswerType,
	}
	for _, alt := range req.Alternatives {
		in.alternatives = append(in.alternatives, Normalize(alt, req.AnswerType))
	}

	if in.transcript == "" {
		return Outcome{MatchType: MatchNone, Reasoning: "empty transcript"}
	}

	strictness := req.Config.Strictness()
	chain := ruleMatchers()
	if strictness == StrictnessStrict {
		chain = strictMatchers()
	}

	var degradations []string

	for _, m := range chain {
		out := m.attempt(in)
		if out == nil {
			continue
		}
		if out.Confidence >= req.Config.MinimumConfidence {
			v.logger.Debug("rule tier accepted transcript",
				"matchType", out.MatchType, "confidence", out.Confidence)
			return *out
		}
		degradations = append(degradations,
			fmt.Sprintf("%s matched at %.2f, below floor %.2f",
				m.kind(), out.Confidence, req.Config.MinimumConfidence))
	}

	result := Outcome{MatchType: MatchNone}

	if strictness == StrictnessLenient {
		if out, done := v.semanticTier(ctx, req, &result, &degradations); done {
			return out
		}
		if out, done := v.judgmentTier(ctx, req, &result, &degradations); done {
			return out
		}
	}

	if len(degradations) > 0 {
		result.Reasoning = strings.Join(degradations, "; ")
	}
	return result
}

// semanticTier runs tier 2. It reports done=true only on a passing verdict;
// failures and provider errors leave their trace on result and fall through.
func (v *Validator) semanticTier(ctx context.Context, req Request, result *Outcome, degradations *[]string) (Outcome, bool) {
	if !req.Config.UseEmbeddings || v.embedder == nil {
		return Outcome{}, false
	}

	vecs, err := v.embedder.EmbedBatch(ctx, []string{req.Transcript, req.Expected})
	if err != nil || len(vecs) != 2 {
		if err == nil {
			err = fmt.Errorf("expected 2 vectors, got %d", len(vecs))
		}
		v.logger.Warn("embeddings tier unavailable", "error", err)
		*degradations = append(*degradations, fmt.Sprintf("embeddings tier failed: %v", err))
		return Outcome{}, false
	}

	sim := embeddings.CosineSimilarity(vecs[0], vecs[1])
	result.EmbeddingsSimilarity = &sim

	if sim >= v.semanticThreshold && sim >= req.Config.MinimumConfidence {
		return Outcome{
			IsPass:               true,
			Confidence:           sim,
			MatchType:            MatchEmbeddings,
			EmbeddingsSimilarity: &sim,
		}, true
	}
	*degradations = append(*degradations,
		fmt.Sprintf("embeddings similarity %.2f below threshold %.2f", sim, v.semanticThreshold))
	return Outcome{}, false
}

// judgeVerdict is the JSON object the tier-3 model is instructed to return.
type judgeVerdict struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// judgmentTier runs tier 3. A match verdict at or above the confidence floor
// is final either way; provider or parse errors degrade instead.
func (v *Validator) judgmentTier(ctx context.Context, req Request, result *Outcome, degradations *[]string) (Outcome, bool) {
	if !req.Config.UseLLMValidation || v.judge == nil {
		return Outcome{}, false
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Expected answer: %q\n", req.Expected)
	if len(req.Alternatives) > 0 {
		fmt.Fprintf(&user, "Also acceptable: %s\n", strings.Join(req.Alternatives, ", "))
	}
	fmt.Fprintf(&user, "Answer type: %s\n", req.AnswerType)
	fmt.Fprintf(&user, "Transcript: %q", req.Transcript)

	resp, err := v.judge.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: judgeSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: user.String()}},
		MaxTokens:    judgeMaxTokens,
	})
	if err != nil {
		v.logger.Warn("llm tier unavailable", "error", err)
		*degradations = append(*degradations, fmt.Sprintf("llm tier failed: %v", err))
		return Outcome{}, false
	}

	verdict, err := parseJudgeVerdict(resp.Content)
	if err != nil {
		v.logger.Warn("llm tier returned malformed verdict", "error", err)
		*degradations = append(*degradations, fmt.Sprintf("llm verdict unparseable: %v", err))
		return Outcome{}, false
	}

	conf := math.Min(math.Max(verdict.Confidence, 0), 1)
	out := Outcome{
		IsPass:               verdict.Match && conf >= req.Config.MinimumConfidence,
		Confidence:           conf,
		MatchType:            MatchLLM,
		LLMJudgment:          &verdict.Match,
		EmbeddingsSimilarity: result.EmbeddingsSimilarity,
		Reasoning:            verdict.Reasoning,
	}
	return out, true
}

// parseJudgeVerdict extracts the verdict object from the model's reply,
// tolerating prose or code fences around the JSON.
func parseJudgeVerdict(content string) (judgeVerdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return judgeVerdict{}, fmt.Errorf("no JSON object in %q", content)
	}
	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &verdict); err != nil {
		return judgeVerdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	return verdict, nil
}

// QuickMatch is a dependency-free sanity check: normalized equality or an
// edit distance within a tolerance scaled to the expected answer's length,
// never below 2. It runs no providers and is safe on hot paths.
func QuickMatch(transcript, expected string, answerType AnswerType) bool {
	t := Normalize(transcript, answerType)
	e := Normalize(expected, answerType)
	if e == "" {
		return t == ""
	}
	if t == e {
		return true
	}
	tolerance := max(2, int(math.Round(0.25*float64(len([]rune(e))))))
	return Levenshtein(t, e) <= tolerance
}
