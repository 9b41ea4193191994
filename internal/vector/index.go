// Package vector provides the similarity index the genre engine searches.
package vector

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float64) error
	Search(ctx context.Context, query []float64, k int) ([]*VectorResult, error)
	Size() int
	Close() error
}

// VectorResult is a single vector search hit. Position is the insertion order
// of the hit within the index.
type VectorResult struct {
	ID       string
	Position int
	Score    float64 // inner product; cosine similarity for normalized vectors
}
