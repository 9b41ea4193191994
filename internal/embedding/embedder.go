// Package embedding turns text into fixed-length vectors.
package embedding

import (
	"context"
	"errors"
)

// ErrProviderUnavailable is returned when the underlying model cannot produce
// vectors. Callers match it with errors.Is; there is no fallback embedding path.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// Embedder produces vector embeddings for text. EmbedBatch returns one vector
// per input, in input order, all with the same dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
