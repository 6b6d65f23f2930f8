package harness

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// LatencyStats summarises one latency series in milliseconds.
type LatencyStats struct {
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	P95    float64
	P99    float64
}

// Report is the statistical summary of a suite run.
type Report struct {
	SuiteID    string
	SuiteName  string
	TotalTests int
	Passed     int
	Failed     int
	PassRate   float64

	Pipeline   LatencyStats
	Generation LatencyStats
	STT        LatencyStats
	Validation LatencyStats

	// MatchTypes counts passing results by winning match type.
	MatchTypes map[string]int
	// ErrorCounts counts failing results by their first error line; results
	// failing on validation alone are keyed "validation failed".
	ErrorCounts map[string]int
}

// Analyze computes the statistical report for a suite result.
func Analyze(sr *SuiteResult) *Report {
	r := &Report{
		SuiteID:     sr.SuiteID,
		SuiteName:   sr.SuiteName,
		TotalTests:  len(sr.Results),
		Passed:      sr.PassedTests(),
		Failed:      sr.FailedTests(),
		PassRate:    sr.PassRate(),
		MatchTypes:  make(map[string]int),
		ErrorCounts: make(map[string]int),
	}

	var pipeline, generation, stt, validation []float64
	for i := range sr.Results {
		res := &sr.Results[i]
		pipeline = append(pipeline, res.TotalPipelineMs)
		generation = append(generation, res.GenerationMs)
		stt = append(stt, res.STTMs)
		validation = append(validation, res.ValidationMs)

		if res.IsSuccess() {
			r.MatchTypes[string(res.Validation.MatchType)]++
			continue
		}
		if len(res.Errors) > 0 {
			r.ErrorCounts[res.Errors[0]]++
		} else {
			r.ErrorCounts["validation failed"]++
		}
	}

	r.Pipeline = computeStats(pipeline)
	r.Generation = computeStats(generation)
	r.STT = computeStats(stt)
	r.Validation = computeStats(validation)
	return r
}

// computeStats summarises a series; the zero LatencyStats for empty input.
func computeStats(series []float64) LatencyStats {
	if len(series) == 0 {
		return LatencyStats{}
	}
	sorted := make([]float64, len(series))
	copy(sorted, series)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return LatencyStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   sum / float64(len(sorted)),
		Median: percentile(sorted, 50),
		P95:    percentile(sorted, 95),
		P99:    percentile(sorted, 99),
	}
}

// percentile returns the p-th percentile of a sorted series using linear
// interpolation between the two nearest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// String renders the report as a plain-text summary for CLI output.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suite %s (%s): %d tests, %d passed, %d failed (%.1f%% pass rate)\n",
		r.SuiteID, r.SuiteName, r.TotalTests, r.Passed, r.Failed, r.PassRate*100)
	writeStats := func(name string, s LatencyStats) {
		fmt.Fprintf(&b, "  %-11s min %.1fms  median %.1fms  mean %.1fms  p95 %.1fms  p99 %.1fms  max %.1fms\n",
			name, s.Min, s.Median, s.Mean, s.P95, s.P99, s.Max)
	}
	writeStats("pipeline", r.Pipeline)
	writeStats("generation", r.Generation)
	writeStats("stt", r.STT)
	writeStats("validation", r.Validation)
	if len(r.MatchTypes) > 0 {
		types := make([]string, 0, len(r.MatchTypes))
		for mt := range r.MatchTypes {
			types = append(types, mt)
		}
		sort.Strings(types)
		fmt.Fprintf(&b, "  match types:")
		for _, mt := range types {
			fmt.Fprintf(&b, " %s=%d", mt, r.MatchTypes[mt])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
