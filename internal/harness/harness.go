package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unamentis/kbharness/internal/generator"
	"github.com/unamentis/kbharness/internal/injector"
	"github.com/unamentis/kbharness/internal/observe"
	"github.com/unamentis/kbharness/internal/validate"
	"github.com/unamentis/kbharness/pkg/provider/stt"
)

var (
	// ErrAlreadyRunning reports a RunTest call while another test is in
	// flight on the same harness; trials never queue or interleave.
	ErrAlreadyRunning = errors.New("harness: test already running")

	// ErrCancelled reports that Cancel was observed at a phase checkpoint.
	ErrCancelled = errors.New("harness: cancelled")
)

// settleDelay is the pause between suite tests, letting transient system
// state (thermal, audio backends) stabilise. Best effort, not correctness.
const settleDelay = 100 * time.Millisecond

// Option is a functional option for configuring a [Harness].
type Option func(*Harness)

// WithMetrics attaches metric instruments; without it no metrics are
// recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Harness) {
		h.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// WithSettleDelay overrides the inter-test settling pause.
func WithSettleDelay(d time.Duration) Option {
	return func(h *Harness) {
		h.settle = d
	}
}

// WithSystemProbe overrides the telemetry probe.
func WithSystemProbe(probe func() (uint64, string)) Option {
	return func(h *Harness) {
		h.probe = probe
	}
}

// Harness drives Generator -> Injector -> Validator for one test at a time.
// It keeps no result history; single-flight state is the only mutation.
type Harness struct {
	gen       *generator.Generator
	inj       *injector.Injector
	validator *validate.Validator
	stt       stt.Provider

	metrics *observe.Metrics
	logger  *slog.Logger
	settle  time.Duration
	probe   systemProbe

	mu          sync.Mutex
	running     bool
	currentTest string

	cancelled atomic.Bool
}

// New returns a Harness wired to the given pipeline stages.
func New(gen *generator.Generator, inj *injector.Injector, validator *validate.Validator, sttProvider stt.Provider, opts ...Option) *Harness {
	h := &Harness{
		gen:       gen,
		inj:       inj,
		validator: validator,
		stt:       sttProvider,
		logger:    slog.Default(),
		settle:    settleDelay,
		probe:     defaultProbe,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Cancel requests cancellation. It returns immediately; the in-flight test
// observes the flag at its next phase checkpoint.
func (h *Harness) Cancel() {
	h.cancelled.Store(true)
}

// CurrentTest returns the ID of the in-flight test case, or "" when idle.
func (h *Harness) CurrentTest() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentTest
}

// acquire claims the single-flight slot.
func (h *Harness) acquire(testID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return fmt.Errorf("%w: %s in flight", ErrAlreadyRunning, h.currentTest)
	}
	h.running = true
	h.currentTest = testID
	return nil
}

// release clears the single-flight slot. Deferred on every RunTest exit path.
func (h *Harness) release() {
	h.mu.Lock()
	h.running = false
	h.currentTest = ""
	h.mu.Unlock()
}

// RunTest executes one case through all three phases. Generation and
// injection failures do not propagate: they are captured in the result's
// Errors with a synthetic failing validation, so every call that passes the
// entry guards returns a result. Only ErrAlreadyRunning and ErrCancelled
// surface as errors. Cancellation is checkpointed before each phase; a phase
// already under way completes first.
func (h *Harness) RunTest(ctx context.Context, tc TestCase) (*TestResult, error) {
	if err := h.acquire(tc.ID); err != nil {
		return nil, err
	}
	defer h.release()

	if h.metrics != nil {
		h.metrics.ActiveRuns.Add(ctx, 1)
		defer h.metrics.ActiveRuns.Add(ctx, -1)
	}

	if tc.Validation.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx,
			time.Duration(tc.Validation.TimeoutSeconds*float64(time.Second)))
		defer cancel()
	}

	result := &TestResult{
		TestID:    tc.ID,
		TestName:  tc.Name,
		Timestamp: time.Now(),
	}
	start := time.Now()

	// Phase 1: generation.
	if h.cancelled.Load() {
		return nil, ErrCancelled
	}
	generated, err := h.gen.FromSource(ctx, tc.Source, tc.Question.Text)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("audio generation: %v", err))
		return h.finish(ctx, tc, result, start), nil
	}
	result.GenerationMs = generated.LatencyMs

	// Phase 2: injection.
	if h.cancelled.Load() {
		return nil, ErrCancelled
	}
	transcription, err := h.inj.InjectAndTranscribe(ctx, generated.Buffer, h.stt)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("transcription: %v", err))
		return h.finish(ctx, tc, result, start), nil
	}
	result.STTMs = transcription.LatencyMs
	result.Transcript = transcription.Transcript
	result.STTConfidence = transcription.Confidence

	// Phase 3: validation. Never errors; degraded tiers fail the outcome.
	if h.cancelled.Load() {
		return nil, ErrCancelled
	}
	validationStart := time.Now()
	result.Validation = h.validator.Validate(ctx, validate.Request{
		Transcript:   transcription.Transcript,
		Expected:     tc.ExpectedAnswer,
		Alternatives: tc.AcceptableAnswers,
		AnswerType:   tc.AnswerType,
		Config:       tc.Validation,
	})
	result.ValidationMs = float64(time.Since(validationStart)) / float64(time.Millisecond)

	return h.finish(ctx, tc, result, start), nil
}

// finish stamps totals and telemetry, records metrics, and logs the outcome.
func (h *Harness) finish(ctx context.Context, tc TestCase, result *TestResult, start time.Time) *TestResult {
	result.TotalPipelineMs = float64(time.Since(start)) / float64(time.Millisecond)
	result.PeakMemoryBytes, result.ThermalState = h.probe()

	// A phase error means validation never ran; report it as a no-match
	// outcome rather than an empty match type.
	if result.Validation.MatchType == "" {
		result.Validation.MatchType = validate.MatchNone
	}

	status := "fail"
	if result.IsSuccess() {
		status = "pass"
	}
	if h.metrics != nil {
		h.metrics.GenerationDuration.Record(ctx, result.GenerationMs/1000)
		h.metrics.STTDuration.Record(ctx, result.STTMs/1000)
		h.metrics.ValidationDuration.Record(ctx, result.ValidationMs/1000)
		h.metrics.PipelineDuration.Record(ctx, result.TotalPipelineMs/1000)
		h.metrics.RecordValidation(ctx, string(result.Validation.MatchType))
		h.metrics.RecordTest(ctx, tc.ID, status)
	}
	h.logger.Info("test completed",
		"test", tc.ID,
		"status", status,
		"transcript", result.Transcript,
		"matchType", result.Validation.MatchType,
		"confidence", result.Validation.Confidence,
		"pipelineMs", result.TotalPipelineMs,
		"errors", len(result.Errors))
	return result
}

// RunSuite runs every case, repeated Repetitions times, in order. Each
// repetition runs the whole case list. Per-test failures never abort the
// suite; only cancellation does, propagating ErrCancelled. The cancellation
// flag is reset when a suite starts so a cancelled harness can be reused.
func (h *Harness) RunSuite(ctx context.Context, suite TestSuite) (*SuiteResult, error) {
	h.cancelled.Store(false)

	reps := max(suite.Repetitions, 1)
	out := &SuiteResult{
		SuiteID:   suite.ID,
		SuiteName: suite.Name,
		StartedAt: time.Now(),
	}

	h.logger.Info("suite started",
		"suite", suite.ID, "cases", len(suite.Cases), "repetitions", reps)

	for rep := 0; rep < reps; rep++ {
		for _, tc := range suite.Cases {
			result, err := h.RunTest(ctx, tc)
			switch {
			case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
				return nil, ErrCancelled
			case err != nil:
				// RunTest catches its own phase errors; anything else still
				// becomes a failed result so one bad case cannot sink the suite.
				result = &TestResult{
					TestID:    tc.ID,
					TestName:  tc.Name,
					Timestamp: time.Now(),
					Errors:    []string{err.Error()},
				}
			}
			out.Results = append(out.Results, *result)

			select {
			case <-time.After(h.settle):
			case <-ctx.Done():
				return nil, ErrCancelled
			}
		}
	}

	out.EndedAt = time.Now()
	h.logger.Info("suite completed",
		"suite", suite.ID,
		"passed", out.PassedTests(),
		"failed", out.FailedTests(),
		"passRate", out.PassRate())
	return out, nil
}
