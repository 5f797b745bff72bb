// Package embedding turns text into dense vectors for the semantic retriever
// and for the similar-past-question lookup.
package embedding

import (
	"context"
	"errors"
	"math"
)

// ErrEmbedding wraps every failure of an embedding backend. Callers treat it
// as "skip this item", never as a turn failure.
var ErrEmbedding = errors.New("embedding: request failed")

// Embedder produces a vector embedding for text.
type Embedder interface {
	// Embed returns the embedding of text. A nil vector with a nil error
	// means embeddings are unavailable (noop backend or empty text).
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CosineSimilarity computes dot(a,b)/(|a|*|b|). It returns 0 when the vectors
// differ in length, are empty or either has zero magnitude.
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

	// sqrt(n*n) == n exactly, so v against itself scores exactly 1.
	return max(-1, min(1, dot/math.Sqrt(normA*normB)))
}

// Noop is an Embedder that never produces vectors. With it wired, retrieval
// returns nothing and the similar-past lookup is disabled.
type Noop struct{}

// Embed returns nil, nil.
func (Noop) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, nil
}

// Compile-time interface satisfaction check.
var _ Embedder = Noop{}
