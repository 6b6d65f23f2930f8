// Package resultstore persists suite runs and per-test results to PostgreSQL.
//
// Besides plain history queries, failing transcripts are embedded (when an
// embeddings provider is attached) and indexed with pgvector, so a new
// failure can be compared against past ones: "have we seen the recognizer
// mangle this answer the same way before?"
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
package resultstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/unamentis/kbharness/pkg/provider/embeddings"
)

// Store is the PostgreSQL-backed result store. All operations are safe for
// concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
	logger   *slog.Logger
}

// Option configures a [Store].
type Option func(*Store)

// WithEmbedder attaches an embeddings provider. When set, SaveSuiteRun embeds
// the transcripts of failing results so they become searchable through
// [Store.SimilarFailures]. Without it, results are stored with a NULL
// embedding and similarity search returns nothing for them.
func WithEmbedder(p embeddings.Provider) Option {
	return func(s *Store) { s.embedder = p }
}

// WithLogger sets the logger used for non-fatal persistence warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the attached
// embeddings provider (e.g., 1536 for OpenAI text-embedding-3-small).
// Changing this value after the first migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("result store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("result store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("result store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("result store: migrate: %w", err)
	}

	s := &Store{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ping checks connectivity to the database. Suitable as a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}
