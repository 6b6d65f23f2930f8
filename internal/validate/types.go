// Package validate decides whether a speech transcript is an acceptable
// rendering of an expected answer.
//
// Validation is layered in increasing cost order: tier 1 is rule-based string
// matching (exact, acceptable alternatives, and, outside strict mode,
// fuzzy, phonetic, n-gram, token, and linguistic matchers); tier 2 compares
// embedding vectors; tier 3 asks an LLM to adjudicate. Tier escalation is a
// short-circuiting OR: the first tier to reach a confident decision wins and
// later tiers are skipped entirely.
package validate

// AnswerType tags what kind of answer a question expects. It steers
// normalization (place answers drop a leading article) and the linguistic
// matcher (numeric answers bridge numerals and number words).
type AnswerType string

const (
	AnswerFreeText   AnswerType = "free_text"
	AnswerPlace      AnswerType = "place"
	AnswerPerson     AnswerType = "person"
	AnswerNumeric    AnswerType = "numeric"
	AnswerScientific AnswerType = "scientific"
)

// IsValid reports whether t is a recognised answer type.
func (t AnswerType) IsValid() bool {
	switch t {
	case AnswerFreeText, AnswerPlace, AnswerPerson, AnswerNumeric, AnswerScientific:
		return true
	}
	return false
}

// MatchType names which matcher produced a validation decision.
type MatchType string

const (
	MatchExact      MatchType = "exact"
	MatchAcceptable MatchType = "acceptable"
	MatchFuzzy      MatchType = "fuzzy"
	MatchPhonetic   MatchType = "phonetic"
	MatchNGram      MatchType = "ngram"
	MatchToken      MatchType = "token"
	MatchLinguistic MatchType = "linguistic"
	MatchEmbeddings MatchType = "embeddings"
	MatchLLM        MatchType = "llm"
	MatchNone       MatchType = "none"
)

// Strictness is the validator's internal classification derived from a
// ValidationConfig; it selects which matcher tiers run.
type Strictness string

const (
	// StrictnessStrict runs tier 1 exact/acceptable matching only.
	StrictnessStrict Strictness = "strict"

	// StrictnessStandard adds the fuzzy, phonetic, n-gram, token, and
	// linguistic tier-1 matchers.
	StrictnessStandard Strictness = "standard"

	// StrictnessLenient additionally escalates to embeddings (tier 2) and
	// LLM adjudication (tier 3) when tier 1 does not decide.
	StrictnessLenient Strictness = "lenient"
)

// ValidationConfig controls how a transcript is validated.
type ValidationConfig struct {
	// MinimumConfidence is the confidence floor in [0, 1] a matcher verdict
	// must reach for the outcome to pass.
	MinimumConfidence float64 `yaml:"minimumConfidence"`

	// UseFuzzyMatching enables the non-exact tier-1 matchers.
	UseFuzzyMatching bool `yaml:"useFuzzyMatching"`

	// UseEmbeddings enables tier-2 semantic similarity.
	UseEmbeddings bool `yaml:"useEmbeddings"`

	// UseLLMValidation enables tier-3 LLM adjudication.
	UseLLMValidation bool `yaml:"useLLMValidation"`

	// MaxPipelineLatencyMs, when non-nil, is the latency budget a passing
	// test is additionally expected to meet. Advisory; recorded with
	// results, not enforced by the validator.
	MaxPipelineLatencyMs *float64 `yaml:"maxPipelineLatencyMs,omitempty"`

	// TimeoutSeconds bounds one test's whole pipeline run. Enforced by the
	// harness via a context deadline; zero means no timeout.
	TimeoutSeconds float64 `yaml:"timeoutSeconds"`
}

// Strictness derives the tier selection from the enabled features: embeddings
// or LLM validation imply lenient, fuzzy matching alone implies standard,
// neither implies strict.
func (c ValidationConfig) Strictness() Strictness {
	switch {
	case c.UseEmbeddings || c.UseLLMValidation:
		return StrictnessLenient
	case c.UseFuzzyMatching:
		return StrictnessStandard
	default:
		return StrictnessStrict
	}
}

// StrictConfig is the canonical strict preset: rule matching only,
// confidence floor 0.95.
func StrictConfig() ValidationConfig {
	return ValidationConfig{MinimumConfidence: 0.95, TimeoutSeconds: 30}
}

// StandardConfig is the canonical standard preset: fuzzy rules, confidence
// floor 0.6.
func StandardConfig() ValidationConfig {
	return ValidationConfig{MinimumConfidence: 0.6, UseFuzzyMatching: true, TimeoutSeconds: 30}
}

// LenientConfig is the canonical lenient preset: all tiers, confidence
// floor 0.5.
func LenientConfig() ValidationConfig {
	return ValidationConfig{
		MinimumConfidence: 0.5,
		UseFuzzyMatching:  true,
		UseEmbeddings:     true,
		UseLLMValidation:  true,
		TimeoutSeconds:    30,
	}
}

// Outcome is the structured result of validating one transcript.
type Outcome struct {
	// IsPass reports whether the transcript was accepted.
	IsPass bool

	// Confidence is the winning tier's confidence in [0, 1].
	Confidence float64

	// MatchType names the matcher that fired, or MatchNone.
	MatchType MatchType

	// MatchedAnswer is set when the winning match was against an alternative
	// acceptable phrasing rather than the primary expected string.
	MatchedAnswer string

	// EmbeddingsSimilarity is set when tier 2 ran, regardless of verdict.
	EmbeddingsSimilarity *float64

	// LLMJudgment is set when tier 3 ran.
	LLMJudgment *bool

	// Reasoning carries a human-readable account of non-obvious decisions,
	// including degraded tier-2/3 service failures.
	Reasoning string
}
