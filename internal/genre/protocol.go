package genre

import (
	"context"
	"fmt"
	"math"

	"github.com/hyperjump/tinybeatz/internal/vector"
	"github.com/hyperjump/tinybeatz/pkg/utils"
)

const (
	// maxSimilarity is the cosine similarity of a vector with itself.
	maxSimilarity = 1.0
	// exactMatchTolerance absorbs rounding when comparing a score to maxSimilarity.
	exactMatchTolerance = 1e-6
)

// FallbackPredicate decides, from the accepted scores of the first round
// (descending), whether the query should be added to the vocabulary and retried.
type FallbackPredicate func(scores []float64) bool

// NeedsFallback is the default predicate: retry unless some label matched the
// query exactly, i.e. the result is empty or its best score is below 1.
func NeedsFallback(scores []float64) bool {
	if len(scores) == 0 {
		return true
	}
	return math.Abs(scores[0]-maxSimilarity) > exactMatchTolerance
}

// FallbackWhenEmpty retries only when no label cleared the threshold.
func FallbackWhenEmpty(scores []float64) bool {
	return len(scores) == 0
}

// roundResult is the accepted output of one query round.
type roundResult struct {
	labels []string
	scores []float64
	// vocabSize is the number of labels the round searched.
	vocabSize int
}

// runRound embeds the vocabulary and the query, builds a fresh inner-product
// index over the normalized label vectors, and keeps the top-k hits whose
// score is at least threshold.
func runRound(ctx context.Context, e *Engine, query string, k int) (*roundResult, error) {
	labels := e.vocab.Labels()
	texts := make([]string, 0, len(labels)+1)
	texts = append(texts, labels...)
	texts = append(texts, query)

	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(vecs), len(texts))
	}

	queryVec := utils.ToFloat64(vecs[len(labels)])
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", vector.ErrDimensionMismatch)
	}
	utils.NormalizeL2(queryVec)

	idx, err := vector.NewMemoryIndex(len(queryVec))
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	labelVecs := make([][]float64, len(labels))
	for i := range labels {
		labelVecs[i] = utils.ToFloat64(vecs[i])
		utils.NormalizeL2(labelVecs[i])
	}
	if err := idx.Add(ctx, labels, labelVecs); err != nil {
		return nil, err
	}

	hits, err := idx.Search(ctx, queryVec, k)
	if err != nil {
		return nil, err
	}

	res := &roundResult{vocabSize: len(labels)}
	for _, h := range hits {
		score := clampSimilarity(h.Score)
		if score < e.threshold {
			continue
		}
		res.labels = append(res.labels, labels[h.Position])
		res.scores = append(res.scores, score)
	}
	return res, nil
}

// clampSimilarity keeps rounding noise from pushing a cosine outside [-1, 1].
func clampSimilarity(s float64) float64 {
	return math.Max(-maxSimilarity, math.Min(maxSimilarity, s))
}
