package resultstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSuiteRuns = `
CREATE TABLE IF NOT EXISTS suite_runs (
    id          BIGSERIAL    PRIMARY KEY,
    suite_id    TEXT         NOT NULL,
    suite_name  TEXT         NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ  NOT NULL,
    ended_at    TIMESTAMPTZ  NOT NULL,
    total_tests INT          NOT NULL,
    passed      INT          NOT NULL,
    failed      INT          NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_suite_runs_suite_id
    ON suite_runs (suite_id);

CREATE INDEX IF NOT EXISTS idx_suite_runs_started_at
    ON suite_runs (started_at);
`

// ddlTestResults returns the results DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlTestResults(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS test_results (
    id                   BIGSERIAL         PRIMARY KEY,
    run_id               BIGINT            NOT NULL REFERENCES suite_runs (id) ON DELETE CASCADE,
    test_id              TEXT              NOT NULL,
    test_name            TEXT              NOT NULL DEFAULT '',
    started_at           TIMESTAMPTZ       NOT NULL,
    generation_ms        DOUBLE PRECISION  NOT NULL DEFAULT 0,
    stt_ms               DOUBLE PRECISION  NOT NULL DEFAULT 0,
    validation_ms        DOUBLE PRECISION  NOT NULL DEFAULT 0,
    total_pipeline_ms    DOUBLE PRECISION  NOT NULL DEFAULT 0,
    transcript           TEXT              NOT NULL DEFAULT '',
    stt_confidence       DOUBLE PRECISION  NOT NULL DEFAULT 0,
    is_pass              BOOLEAN           NOT NULL,
    confidence           DOUBLE PRECISION  NOT NULL DEFAULT 0,
    match_type           TEXT              NOT NULL DEFAULT '',
    matched_answer       TEXT              NOT NULL DEFAULT '',
    reasoning            TEXT              NOT NULL DEFAULT '',
    errors               TEXT[]            NOT NULL DEFAULT '{}',
    peak_memory_bytes    BIGINT            NOT NULL DEFAULT 0,
    thermal_state        TEXT              NOT NULL DEFAULT '',
    transcript_embedding vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_test_results_run_id
    ON test_results (run_id);

CREATE INDEX IF NOT EXISTS idx_test_results_test_id
    ON test_results (test_id);

CREATE INDEX IF NOT EXISTS idx_test_results_is_pass
    ON test_results (is_pass);

CREATE INDEX IF NOT EXISTS idx_test_results_embedding
    ON test_results USING hnsw (transcript_embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions exist.
// It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS)
// and safe to call on every start.
//
// embeddingDimensions must match the vector model configured for your
// deployment. Changing this value after the first migration requires a manual
// schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlSuiteRuns,
		ddlTestResults(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("result store migrate: %w", err)
		}
	}
	return nil
}
