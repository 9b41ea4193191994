package embedding

import (
	"context"
	"math"
	"strings"
)

// MockEmbedder is a deterministic bag-of-words embedder for tests and offline
// development. Every lowercased word maps to a fixed pseudo-random direction
// and a text embeds as the normalized sum of its words, so texts sharing words
// are similar and equal word multisets embed identically.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns the normalized sum of the word directions of text. Text
// without words embeds as the direction of the empty word.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := SplitWords(strings.ToLower(text))
	if len(words) == 0 {
		words = []string{""}
	}
	sum := make([]float64, e.dimensions)
	for _, w := range words {
		addWordDirection(sum, w)
	}

	var norm float64
	for _, v := range sum {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	emb := make([]float32, e.dimensions)
	for i, v := range sum {
		if norm > 0 {
			v /= norm
		}
		emb[i] = float32(v)
	}
	return emb, nil
}

// addWordDirection adds the word's components, uniform in [-1, 1), to dst.
// The sequence is a splitmix64 stream seeded by the word hash.
func addWordDirection(dst []float64, word string) {
	state := uint64(HashString(word)) ^ 0x9e3779b97f4a7c15
	for i := range dst {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
		dst[i] += float64(z>>11)/(1<<53)*2 - 1
	}
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockEmbedder) Close() error {
	return nil
}
