// Package harness coordinates one knowledge-base audio test end to end:
// generate the spoken question, inject it through speech-to-text, validate
// the transcript, and aggregate timing, telemetry, and pass/fail across a
// suite of cases with repetitions.
package harness

import (
	"github.com/unamentis/kbharness/internal/generator"
	"github.com/unamentis/kbharness/internal/validate"
)

// KBQuestion is the knowledge-base question a test case speaks aloud.
type KBQuestion struct {
	// Text is the question as it will be synthesized or was prerecorded.
	Text string `yaml:"text"`
	// Domain is the knowledge domain, used for grouping in reports.
	Domain string `yaml:"domain"`
}

// TestCase is an immutable description of one trial. Construct it once, via
// a suite builder or fixture; the harness never mutates it.
type TestCase struct {
	// ID uniquely identifies the case within its suite.
	ID string `yaml:"id"`
	// Name is the human-readable display name.
	Name string `yaml:"name"`
	// Question is the spoken prompt.
	Question KBQuestion `yaml:"question"`
	// ExpectedAnswer is the canonical answer the transcript must convey.
	ExpectedAnswer string `yaml:"expectedAnswer"`
	// AcceptableAnswers lists alternative phrasings that also pass.
	AcceptableAnswers []string `yaml:"acceptableAnswers,omitempty"`
	// AnswerType steers validation normalization and matching.
	AnswerType validate.AnswerType `yaml:"answerType"`
	// Source says where the spoken-answer audio comes from.
	Source generator.AudioSource `yaml:"-"`
	// Validation selects tiers and the confidence floor.
	Validation validate.ValidationConfig `yaml:"validation"`
}

// TestSuite is an ordered collection of cases run as a unit.
type TestSuite struct {
	// ID uniquely identifies the suite.
	ID string `yaml:"id"`
	// Name is the human-readable display name.
	Name string `yaml:"name"`
	// Repetitions is how many times the whole case list runs. Values below 1
	// are treated as 1.
	Repetitions int `yaml:"repetitions"`
	// Cases are run in order within each repetition.
	Cases []TestCase `yaml:"cases"`
}

// QuickValidationSuite is a small smoke suite covering each strictness
// preset, suitable for verifying a freshly configured pipeline. All cases
// synthesize their question through the named TTS provider.
func QuickValidationSuite(ttsProvider string) TestSuite {
	return TestSuite{
		ID:          "quick_validation",
		Name:        "Quick Validation",
		Repetitions: 1,
		Cases: []TestCase{
			{
				ID:             "qv_capital_france",
				Name:           "Capital of France (strict)",
				Question:       KBQuestion{Text: "Paris", Domain: "geography"},
				ExpectedAnswer: "Paris",
				AnswerType:     validate.AnswerPlace,
				Source:         generator.SourceTTS{Provider: ttsProvider},
				Validation:     validate.StrictConfig(),
			},
			{
				ID:                "qv_ww2_end",
				Name:              "End of World War II (standard)",
				Question:          KBQuestion{Text: "Nineteen forty five", Domain: "history"},
				ExpectedAnswer:    "1945",
				AcceptableAnswers: []string{"nineteen forty five"},
				AnswerType:        validate.AnswerNumeric,
				Source:            generator.SourceTTS{Provider: ttsProvider},
				Validation:        validate.StandardConfig(),
			},
			{
				ID:             "qv_water_formula",
				Name:           "Chemical formula of water (lenient)",
				Question:       KBQuestion{Text: "H two O", Domain: "science"},
				ExpectedAnswer: "H2O",
				AnswerType:     validate.AnswerScientific,
				Source:         generator.SourceTTS{Provider: ttsProvider},
				Validation:     validate.LenientConfig(),
			},
		},
	}
}
