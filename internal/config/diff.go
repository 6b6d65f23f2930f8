package config

import (
	"bytes"
	"maps"
	"slices"

	"github.com/unamentis/kbharness/internal/generator"
	"github.com/unamentis/kbharness/internal/harness"
	"github.com/unamentis/kbharness/internal/validate"
	"github.com/unamentis/kbharness/pkg/provider/tts"
)

// SuiteDiff describes what changed between two revisions of a suite, so a
// reload can report which cases need re-running.
type SuiteDiff struct {
	RepetitionsChanged bool
	CasesChanged       bool      // true if any case was added, removed, or modified
	CaseChanges        []CaseDiff // per-case diffs
}

// CaseDiff describes what changed for a single case between two suite revisions.
type CaseDiff struct {
	ID                string
	QuestionChanged   bool
	AnswersChanged    bool
	SourceChanged     bool
	ValidationChanged bool
	Added             bool
	Removed           bool
}

// DiffSuites compares old and new suites and returns what changed.
// Cases are matched by ID.
func DiffSuites(old, new *harness.TestSuite) SuiteDiff {
	d := SuiteDiff{}

	if old.Repetitions != new.Repetitions {
		d.RepetitionsChanged = true
	}

	// Build case lookup maps keyed by ID.
	oldCases := make(map[string]*harness.TestCase, len(old.Cases))
	for i := range old.Cases {
		oldCases[old.Cases[i].ID] = &old.Cases[i]
	}
	newCases := make(map[string]*harness.TestCase, len(new.Cases))
	for i := range new.Cases {
		newCases[new.Cases[i].ID] = &new.Cases[i]
	}

	// Detect modified and removed cases.
	for id, oldCase := range oldCases {
		newCase, exists := newCases[id]
		if !exists {
			d.CaseChanges = append(d.CaseChanges, CaseDiff{
				ID:      id,
				Removed: true,
			})
			d.CasesChanged = true
			continue
		}
		cd := diffCase(id, oldCase, newCase)
		if cd.QuestionChanged || cd.AnswersChanged || cd.SourceChanged || cd.ValidationChanged {
			d.CaseChanges = append(d.CaseChanges, cd)
			d.CasesChanged = true
		}
	}

	// Detect added cases.
	for id := range newCases {
		if _, exists := oldCases[id]; !exists {
			d.CaseChanges = append(d.CaseChanges, CaseDiff{
				ID:    id,
				Added: true,
			})
			d.CasesChanged = true
		}
	}

	return d
}

// diffCase compares two cases with the same ID.
func diffCase(id string, old, new *harness.TestCase) CaseDiff {
	cd := CaseDiff{ID: id}

	if old.Question != new.Question {
		cd.QuestionChanged = true
	}

	if old.ExpectedAnswer != new.ExpectedAnswer ||
		old.AnswerType != new.AnswerType ||
		!slices.Equal(old.AcceptableAnswers, new.AcceptableAnswers) {
		cd.AnswersChanged = true
	}

	if !sameSource(old.Source, new.Source) {
		cd.SourceChanged = true
	}

	if !sameValidation(old.Validation, new.Validation) {
		cd.ValidationChanged = true
	}

	return cd
}

// sameSource compares audio sources without relying on interface equality,
// which would panic on the non-comparable raw variant.
func sameSource(a, b generator.AudioSource) bool {
	switch av := a.(type) {
	case generator.SourceTTS:
		bv, ok := b.(generator.SourceTTS)
		return ok && av.Provider == bv.Provider && sameVoice(av.Voice, bv.Voice)
	case generator.SourceFile:
		bv, ok := b.(generator.SourceFile)
		return ok && av == bv
	case generator.SourceResource:
		bv, ok := b.(generator.SourceResource)
		return ok && av == bv
	case generator.SourceRaw:
		bv, ok := b.(generator.SourceRaw)
		return ok && av.Format == bv.Format && bytes.Equal(av.Data, bv.Data)
	case nil:
		return b == nil
	default:
		return false
	}
}

// sameVoice compares voice profiles field by field because the metadata map
// makes the struct non-comparable.
func sameVoice(a, b tts.VoiceProfile) bool {
	return a.ID == b.ID &&
		a.Name == b.Name &&
		a.Provider == b.Provider &&
		a.SpeedFactor == b.SpeedFactor &&
		maps.Equal(a.Metadata, b.Metadata)
}

// sameValidation compares validation configs, treating the latency budget
// pointer by value.
func sameValidation(a, b validate.ValidationConfig) bool {
	if a.MinimumConfidence != b.MinimumConfidence ||
		a.UseFuzzyMatching != b.UseFuzzyMatching ||
		a.UseEmbeddings != b.UseEmbeddings ||
		a.UseLLMValidation != b.UseLLMValidation ||
		a.TimeoutSeconds != b.TimeoutSeconds {
		return false
	}
	switch {
	case a.MaxPipelineLatencyMs == nil && b.MaxPipelineLatencyMs == nil:
		return true
	case a.MaxPipelineLatencyMs == nil || b.MaxPipelineLatencyMs == nil:
		return false
	default:
		return *a.MaxPipelineLatencyMs == *b.MaxPipelineLatencyMs
	}
}
