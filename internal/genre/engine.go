package genre

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/tinybeatz/internal/embedding"
	"github.com/hyperjump/tinybeatz/pkg/utils"
)

// DefaultSimilarityThreshold is the minimum cosine similarity for a label to be returned.
const DefaultSimilarityThreshold = 0.45

// ErrInvalidK is returned when the requested result count is not positive.
var ErrInvalidK = errors.New("k must be a positive integer")

// Result is the outcome of one prediction. Labels and Scores are parallel and
// sorted by descending score; every score is at least the engine threshold.
// An empty result means no confident match and is not an error.
type Result struct {
	Labels []string
	Scores []float64
	// Fallback is true when the second round ran.
	Fallback bool
	// Added is true when the query text was appended to the vocabulary.
	Added bool
	// VocabularySize is the vocabulary size searched by the last round.
	VocabularySize int
}

// Empty reports whether no label was accepted.
func (r *Result) Empty() bool {
	return len(r.Labels) == 0
}

// Engine predicts genre labels for mood text. Each engine owns its vocabulary;
// Predict calls on one engine are serialized.
type Engine struct {
	embedder  embedding.Embedder
	vocab     *Vocabulary
	threshold float64
	fallback  FallbackPredicate
	logger    *zap.Logger
	mu        sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithThreshold overrides DefaultSimilarityThreshold.
func WithThreshold(t float64) EngineOption {
	return func(e *Engine) { e.threshold = t }
}

// WithFallbackPredicate replaces NeedsFallback.
func WithFallbackPredicate(p FallbackPredicate) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.fallback = p
		}
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = utils.OrNop(l) }
}

// NewEngine returns an engine over vocab. A nil vocab starts from DefaultSeedGenres.
func NewEngine(embedder embedding.Embedder, vocab *Vocabulary, opts ...EngineOption) *Engine {
	if vocab == nil {
		vocab = NewVocabulary(DefaultSeedGenres)
	}
	e := &Engine{
		embedder:  embedder,
		vocab:     vocab,
		threshold: DefaultSimilarityThreshold,
		fallback:  NeedsFallback,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Predict returns up to k labels similar to query. If the first round fails
// the fallback predicate, query is appended to the vocabulary (when absent)
// and one more round runs with k+1. Embedding errors are returned wrapped, so
// errors.Is(err, embedding.ErrProviderUnavailable) holds.
func (e *Engine) Predict(ctx context.Context, query string, k int) (*Result, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	first, err := runRound(ctx, e, query, k)
	if err != nil {
		return nil, err
	}
	if !e.fallback(first.scores) {
		e.logger.Debug("genre match",
			zap.String("query", query),
			zap.Strings("labels", first.labels),
			zap.Float64s("scores", first.scores))
		return &Result{Labels: first.labels, Scores: first.scores, VocabularySize: first.vocabSize}, nil
	}

	added := e.vocab.Add(query)
	e.logger.Debug("genre fallback",
		zap.String("query", query),
		zap.Int("initial_matches", len(first.labels)),
		zap.Bool("added", added),
		zap.Int("k", k+1))

	second, err := runRound(ctx, e, query, k+1)
	if err != nil {
		return nil, err
	}
	return &Result{
		Labels:         second.labels,
		Scores:         second.scores,
		Fallback:       true,
		Added:          added,
		VocabularySize: second.vocabSize,
	}, nil
}

// PredictGenres is Predict reduced to its parallel label and score slices.
func (e *Engine) PredictGenres(ctx context.Context, query string, k int) ([]string, []float64, error) {
	res, err := e.Predict(ctx, query, k)
	if err != nil {
		return nil, nil, err
	}
	return res.Labels, res.Scores, nil
}

// Vocabulary returns a snapshot of the current labels.
func (e *Engine) Vocabulary() []string {
	return e.vocab.Labels()
}

// Embedder returns the provider the engine embeds with.
func (e *Engine) Embedder() embedding.Embedder {
	return e.embedder
}

// Threshold returns the acceptance threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}
