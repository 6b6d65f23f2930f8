package harness

import (
	"time"

	"github.com/unamentis/kbharness/internal/validate"
)

// TestResult is the full trace of one test execution. It is produced once by
// RunTest and never mutated afterwards.
type TestResult struct {
	// TestID and TestName identify the case.
	TestID   string
	TestName string
	// Timestamp is when the pipeline started.
	Timestamp time.Time

	// Per-phase latencies in milliseconds.
	GenerationMs float64
	STTMs        float64
	ValidationMs float64
	// TotalPipelineMs is wall-clock from just before generation to just
	// after validation; it can exceed the phase sum due to scheduling.
	TotalPipelineMs float64

	// Transcript is the recognized text, empty when injection failed or the
	// session produced no final result.
	Transcript string
	// STTConfidence is the recognizer's confidence in [0, 1].
	STTConfidence float64
	// Validation is the validator's verdict; synthetic failing outcome when
	// an earlier phase errored.
	Validation validate.Outcome

	// PeakMemoryBytes is the process peak RSS sampled after the test.
	PeakMemoryBytes uint64
	// ThermalState is the coarse platform thermal reading ("nominal" when
	// unavailable).
	ThermalState string

	// Errors holds descriptions of phase failures. Empty on a clean run.
	Errors []string
}

// IsSuccess reports whether the test passed: no phase errors and a passing
// validation verdict.
func (r *TestResult) IsSuccess() bool {
	return len(r.Errors) == 0 && r.Validation.IsPass
}

// SuiteResult aggregates the results of one suite run. All derived values
// are pure functions of the results list.
type SuiteResult struct {
	SuiteID   string
	SuiteName string
	StartedAt time.Time
	EndedAt   time.Time
	Results   []TestResult
}

// PassedTests counts successful results.
func (s *SuiteResult) PassedTests() int {
	n := 0
	for i := range s.Results {
		if s.Results[i].IsSuccess() {
			n++
		}
	}
	return n
}

// FailedTests counts unsuccessful results.
func (s *SuiteResult) FailedTests() int {
	return len(s.Results) - s.PassedTests()
}

// PassRate is passed/total in [0, 1]; zero for an empty suite.
func (s *SuiteResult) PassRate() float64 {
	if len(s.Results) == 0 {
		return 0
	}
	return float64(s.PassedTests()) / float64(len(s.Results))
}

// AveragePipelineMs is the mean end-to-end latency across all results.
func (s *SuiteResult) AveragePipelineMs() float64 {
	return s.average(func(r *TestResult) float64 { return r.TotalPipelineMs })
}

// AverageSTTLatencyMs is the mean transcription latency across all results.
func (s *SuiteResult) AverageSTTLatencyMs() float64 {
	return s.average(func(r *TestResult) float64 { return r.STTMs })
}

// AverageSTTConfidence is the mean recognizer confidence across all results.
func (s *SuiteResult) AverageSTTConfidence() float64 {
	return s.average(func(r *TestResult) float64 { return r.STTConfidence })
}

// AverageValidationConfidence is the mean validation confidence computed
// over passed tests only; failed tests carry degenerate confidences that
// would distort the figure.
func (s *SuiteResult) AverageValidationConfidence() float64 {
	sum, n := 0.0, 0
	for i := range s.Results {
		if s.Results[i].IsSuccess() {
			sum += s.Results[i].Validation.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (s *SuiteResult) average(f func(*TestResult) float64) float64 {
	if len(s.Results) == 0 {
		return 0
	}
	sum := 0.0
	for i := range s.Results {
		sum += f(&s.Results[i])
	}
	return sum / float64(len(s.Results))
}
