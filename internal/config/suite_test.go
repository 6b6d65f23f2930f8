package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/unamentis/kbharness/internal/config"
	"github.com/unamentis/kbharness/internal/generator"
	"github.com/unamentis/kbharness/internal/validate"
)

const sampleSuiteYAML = `
id: geography_basics
name: Geography Basics
repetitions: 3
cases:
  - id: capital_france
    name: Capital of France
    question:
      text: Paris
      domain: geography
    expectedAnswer: Paris
    answerType: place
    preset: strict
    source:
      type: tts
      provider: coqui
      voice: en_vctk_p225
  - id: longest_river
    question:
      text: The Nile
      domain: geography
    expectedAnswer: the Nile
    acceptableAnswers:
      - the Amazon
    answerType: place
    source:
      type: file
      path: testdata/nile.wav
    validation:
      minimumConfidence: 0.7
      useFuzzyMatching: true
      timeoutSeconds: 10
  - id: tallest_mountain
    question:
      text: Mount Everest
      domain: geography
    expectedAnswer: Mount Everest
    source:
      type: resource
      name: everest
`

func TestLoadSuiteFromReader_Valid(t *testing.T) {
	suite, err := config.LoadSuiteFromReader(strings.NewReader(sampleSuiteYAML), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if suite.ID != "geography_basics" || suite.Repetitions != 3 {
		t.Errorf("suite header: %+v", suite)
	}
	if len(suite.Cases) != 3 {
		t.Fatalf("cases: got %d, want 3", len(suite.Cases))
	}

	first := suite.Cases[0]
	if first.Question.Text != "Paris" || first.AnswerType != validate.AnswerPlace {
		t.Errorf("cases[0] = %+v", first)
	}
	src, ok := first.Source.(generator.SourceTTS)
	if !ok || src.Provider != "coqui" || src.Voice.ID != "en_vctk_p225" {
		t.Errorf("cases[0].Source = %#v", first.Source)
	}
	// preset: strict
	if first.Validation != validate.StrictConfig() {
		t.Errorf("cases[0].Validation = %+v, want strict preset", first.Validation)
	}

	second := suite.Cases[1]
	if _, ok := second.Source.(generator.SourceFile); !ok {
		t.Errorf("cases[1].Source = %#v", second.Source)
	}
	if len(second.AcceptableAnswers) != 1 || second.AcceptableAnswers[0] != "the Amazon" {
		t.Errorf("cases[1].AcceptableAnswers = %v", second.AcceptableAnswers)
	}
	// explicit validation block
	if second.Validation.MinimumConfidence != 0.7 || !second.Validation.UseFuzzyMatching ||
		second.Validation.TimeoutSeconds != 10 {
		t.Errorf("cases[1].Validation = %+v", second.Validation)
	}

	third := suite.Cases[2]
	res, ok := third.Source.(generator.SourceResource)
	if !ok || res.Name != "everest" || res.Extension != "wav" {
		t.Errorf("cases[2].Source = %#v, want resource with wav extension default", third.Source)
	}
	// no preset, no validation: falls back to the default preset (standard)
	if third.Validation != validate.StandardConfig() {
		t.Errorf("cases[2].Validation = %+v, want standard preset", third.Validation)
	}
	// answerType omitted: defaults to free_text
	if third.AnswerType != validate.AnswerFreeText {
		t.Errorf("cases[2].AnswerType = %q, want free_text", third.AnswerType)
	}
}

func TestLoadSuiteFromReader_DefaultPresetApplies(t *testing.T) {
	yaml := `
id: s1
cases:
  - id: c1
    expectedAnswer: paris
    source:
      type: tts
      provider: coqui
`
	suite, err := config.LoadSuiteFromReader(strings.NewReader(yaml), config.PresetLenient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if suite.Cases[0].Validation != validate.LenientConfig() {
		t.Errorf("Validation = %+v, want lenient preset", suite.Cases[0].Validation)
	}
}

func TestLoadSuiteFromReader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"missing suite id",
			"cases:\n  - id: c1\n    expectedAnswer: x\n    source: {type: tts, provider: coqui}\n",
			"suite id is required",
		},
		{
			"no cases",
			"id: s1\n",
			"no cases",
		},
		{
			"missing case id",
			"id: s1\ncases:\n  - expectedAnswer: x\n    source: {type: tts, provider: coqui}\n",
			"cases[0].id is required",
		},
		{
			"duplicate case ids",
			"id: s1\ncases:\n  - {id: c1, expectedAnswer: x, source: {type: tts, provider: coqui}}\n  - {id: c1, expectedAnswer: y, source: {type: tts, provider: coqui}}\n",
			"duplicate",
		},
		{
			"missing expected answer",
			"id: s1\ncases:\n  - id: c1\n    source: {type: tts, provider: coqui}\n",
			"expectedAnswer is required",
		},
		{
			"invalid answer type",
			"id: s1\ncases:\n  - {id: c1, expectedAnswer: x, answerType: riddle, source: {type: tts, provider: coqui}}\n",
			"answerType",
		},
		{
			"invalid preset",
			"id: s1\ncases:\n  - {id: c1, expectedAnswer: x, preset: paranoid, source: {type: tts, provider: coqui}}\n",
			"preset",
		},
		{
			"preset and validation both set",
			"id: s1\ncases:\n  - id: c1\n    expectedAnswer: x\n    preset: strict\n    validation: {minimumConfidence: 0.5}\n    source: {type: tts, provider: coqui}\n",
			"mutually exclusive",
		},
		{
			"missing source type",
			"id: s1\ncases:\n  - {id: c1, expectedAnswer: x}\n",
			"source.type is required",
		},
		{
			"unknown source type",
			"id: s1\ncases:\n  - {id: c1, expectedAnswer: x, source: {type: microphone}}\n",
			"source.type",
		},
		{
			"tts source without provider",
			"id: s1\ncases:\n  - {id: c1, expectedAnswer: x, source: {type: tts}}\n",
			"source.provider is required",
		},
		{
			"file source without path",
			"id: s1\ncases:\n  - {id: c1, expectedAnswer: x, source: {type: file}}\n",
			"source.path is required",
		},
		{
			"unknown field",
			"id: s1\nrepeat: 3\ncases:\n  - {id: c1, expectedAnswer: x, source: {type: tts, provider: coqui}}\n",
			"decode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadSuiteFromReader(strings.NewReader(tt.yaml), "")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadSuite_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	if err := os.WriteFile(path, []byte(sampleSuiteYAML), 0o644); err != nil {
		t.Fatalf("write suite: %v", err)
	}

	suite, err := config.LoadSuite(path, config.PresetStandard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if suite.ID != "geography_basics" {
		t.Errorf("suite.ID = %q", suite.ID)
	}
}

func TestLoadSuite_MissingFile(t *testing.T) {
	if _, err := config.LoadSuite("/nonexistent/suite.yaml", ""); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestPresetConfig(t *testing.T) {
	if got := config.PresetConfig(config.PresetStrict); got != validate.StrictConfig() {
		t.Errorf("strict = %+v", got)
	}
	if got := config.PresetConfig(config.PresetLenient); got != validate.LenientConfig() {
		t.Errorf("lenient = %+v", got)
	}
	if got := config.PresetConfig(""); got != validate.StandardConfig() {
		t.Errorf("empty should resolve to standard, got %+v", got)
	}
}
