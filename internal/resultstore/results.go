package resultstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/unamentis/kbharness/internal/harness"
)

// ErrNoEmbedder is returned by SimilarFailures when the store was built
// without an embeddings provider.
var ErrNoEmbedder = errors.New("result store: no embeddings provider attached")

// RunSummary is one row of suite run history.
type RunSummary struct {
	ID         int64
	SuiteID    string
	SuiteName  string
	StartedAt  time.Time
	EndedAt    time.Time
	TotalTests int
	Passed     int
	Failed     int
}

// PassRate is passed/total in [0, 1]; zero for an empty run.
func (r RunSummary) PassRate() float64 {
	if r.TotalTests == 0 {
		return 0
	}
	return float64(r.Passed) / float64(r.TotalTests)
}

// FailureMatch is one past failure returned by [Store.SimilarFailures],
// ordered by ascending cosine distance to the query transcript.
type FailureMatch struct {
	RunID      int64
	TestID     string
	TestName   string
	Transcript string
	MatchType  string
	Reasoning  string
	Errors     []string
	Distance   float64
}

// SaveSuiteRun persists a completed suite run and all its test results in one
// transaction, returning the run's assigned ID.
//
// When an embeddings provider is attached, the transcripts of failing results
// are embedded and stored alongside them; embedding failures are logged and
// the run is saved without vectors rather than aborted.
func (s *Store) SaveSuiteRun(ctx context.Context, sr *harness.SuiteResult) (int64, error) {
	vectors := s.embedFailures(ctx, sr)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("result store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertRun = `
		INSERT INTO suite_runs
		    (suite_id, suite_name, started_at, ended_at, total_tests, passed, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var runID int64
	err = tx.QueryRow(ctx, insertRun,
		sr.SuiteID,
		sr.SuiteName,
		sr.StartedAt,
		sr.EndedAt,
		len(sr.Results),
		sr.PassedTests(),
		sr.FailedTests(),
	).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("result store: insert run: %w", err)
	}

	const insertResult = `
		INSERT INTO test_results
		    (run_id, test_id, test_name, started_at,
		     generation_ms, stt_ms, validation_ms, total_pipeline_ms,
		     transcript, stt_confidence,
		     is_pass, confidence, match_type, matched_answer, reasoning,
		     errors, peak_memory_bytes, thermal_state, transcript_embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	for i := range sr.Results {
		res := &sr.Results[i]

		var embedding any
		if vec, ok := vectors[i]; ok {
			embedding = pgvector.NewVector(vec)
		}

		_, err := tx.Exec(ctx, insertResult,
			runID,
			res.TestID,
			res.TestName,
			res.Timestamp,
			res.GenerationMs,
			res.STTMs,
			res.ValidationMs,
			res.TotalPipelineMs,
			res.Transcript,
			res.STTConfidence,
			res.Validation.IsPass,
			res.Validation.Confidence,
			string(res.Validation.MatchType),
			res.Validation.MatchedAnswer,
			res.Validation.Reasoning,
			res.Errors,
			int64(res.PeakMemoryBytes),
			res.ThermalState,
			embedding,
		)
		if err != nil {
			return 0, fmt.Errorf("result store: insert result %q: %w", res.TestID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("result store: commit: %w", err)
	}
	return runID, nil
}

// embedFailures returns embeddings for failing results with a non-empty
// transcript, keyed by result index. Missing embedder or provider errors
// yield an empty map; persistence proceeds without vectors.
func (s *Store) embedFailures(ctx context.Context, sr *harness.SuiteResult) map[int][]float32 {
	vectors := make(map[int][]float32)
	if s.embedder == nil {
		return vectors
	}

	var indices []int
	var texts []string
	for i := range sr.Results {
		res := &sr.Results[i]
		if res.IsSuccess() || res.Transcript == "" {
			continue
		}
		indices = append(indices, i)
		texts = append(texts, res.Transcript)
	}
	if len(texts) == 0 {
		return vectors
	}

	embedded, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(embedded) != len(texts) {
		s.logger.Warn("result store: embedding failing transcripts failed; saving without vectors",
			"count", len(texts), "err", err)
		return vectors
	}
	for j, idx := range indices {
		vectors[idx] = embedded[j]
	}
	return vectors
}

// RecentRuns returns the most recent runs of a suite, newest first. An empty
// suiteID returns runs across all suites.
func (s *Store) RecentRuns(ctx context.Context, suiteID string, limit int) ([]RunSummary, error) {
	args := []any{limit}
	where := ""
	if suiteID != "" {
		args = append(args, suiteID)
		where = "WHERE suite_id = $2"
	}

	q := fmt.Sprintf(`
		SELECT id, suite_id, suite_name, started_at, ended_at, total_tests, passed, failed
		FROM   suite_runs
		%s
		ORDER  BY started_at DESC
		LIMIT  $1`, where)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("result store: recent runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RunSummary, error) {
		var r RunSummary
		err := row.Scan(&r.ID, &r.SuiteID, &r.SuiteName, &r.StartedAt, &r.EndedAt,
			&r.TotalTests, &r.Passed, &r.Failed)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("result store: scan runs: %w", err)
	}
	if runs == nil {
		runs = []RunSummary{}
	}
	return runs, nil
}

// SimilarFailures embeds transcript and returns the topK past failing results
// whose stored transcripts are closest in embedding space, most similar first.
// Requires an attached embeddings provider.
func (s *Store) SimilarFailures(ctx context.Context, transcript string, topK int) ([]FailureMatch, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	vec, err := s.embedder.Embed(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("result store: embed query transcript: %w", err)
	}

	const q = `
		SELECT run_id, test_id, test_name, transcript, match_type, reasoning, errors,
		       transcript_embedding <=> $1 AS distance
		FROM   test_results
		WHERE  is_pass = FALSE
		  AND  transcript_embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("result store: similar failures: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (FailureMatch, error) {
		var m FailureMatch
		err := row.Scan(&m.RunID, &m.TestID, &m.TestName, &m.Transcript,
			&m.MatchType, &m.Reasoning, &m.Errors, &m.Distance)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("result store: scan failures: %w", err)
	}
	if matches == nil {
		matches = []FailureMatch{}
	}
	return matches, nil
}
