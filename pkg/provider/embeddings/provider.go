// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// An embeddings provider wraps a service that maps text strings to dense
// float32 vectors (e.g., OpenAI text-embedding-3 or a local Ollama model).
// The validator's semantic tier compares expected-answer and transcript
// vectors with CosineSimilarity; the result store keeps the vectors for
// similar-failure lookup.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"math"
)

// Provider is the abstraction over any text-embedding backend.
//
// All embedding vectors returned by a single Provider instance must share the
// same dimensionality (returned by Dimensions). Callers must not mix vectors
// from different Provider instances in the same similarity computation unless
// they have verified that both use the same model and space.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns a
	// float32 slice of length Dimensions() or an error if the request fails
	// or ctx is cancelled. Text is passed through verbatim; callers handle
	// any model-specific formatting.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of text strings in a
	// single provider call. The returned slice has the same length as texts
	// and the i-th element corresponds to texts[i]. Partial results are not
	// returned; on error the entire slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this provider.
	Dimensions() int

	// ModelID returns the provider-specific model identifier used for
	// embeddings (e.g., "text-embedding-3-small"). Useful for logging and for
	// ensuring consistent model usage.
	ModelID() string
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [−1, 1]. Returns 0 when the vectors differ in length or either has zero
// magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
