// Package recommend turns mood text into tracks: it predicts genre labels and
// looks each one up in a track catalog.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tinybeatz/internal/catalog"
	"github.com/hyperjump/tinybeatz/internal/genre"
	"github.com/hyperjump/tinybeatz/internal/models"
	"github.com/hyperjump/tinybeatz/internal/storage"
	"github.com/hyperjump/tinybeatz/pkg/utils"
)

// NoMatchMessage is returned when no genre or no track matched the mood.
const NoMatchMessage = "No matching genre found. Try describing your mood with different words."

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// Predictor predicts genre labels for mood text.
type Predictor interface {
	Predict(ctx context.Context, query string, k int) (*genre.Result, error)
}

// Recommender combines a predictor, a catalog and an optional history store.
type Recommender struct {
	predictor Predictor
	catalog   catalog.Catalog
	history   storage.HistoryStore
	limits    models.Limits
	logger    *zap.Logger
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithHistory records every request and its tracks in h.
func WithHistory(h storage.HistoryStore) Option {
	return func(r *Recommender) { r.history = h }
}

// WithLimits sets the request defaults and caps. Zero fields keep the
// built-in values.
func WithLimits(l models.Limits) Option {
	return func(r *Recommender) { r.limits = l }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recommender) { r.logger = utils.OrNop(l) }
}

// New returns a Recommender.
func New(p Predictor, c catalog.Catalog, opts ...Option) *Recommender {
	r := &Recommender{predictor: p, catalog: c, limits: models.DefaultLimits(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Predict validates req against the limits and returns the predicted genres.
func (r *Recommender) Predict(ctx context.Context, req *models.PredictRequest) (*models.Prediction, error) {
	if err := req.ValidateWith(r.limits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	res, err := r.predictor.Predict(ctx, req.Query, req.K)
	if err != nil {
		return nil, err
	}
	p := models.NewPrediction(req.Query, res.Labels, res.Scores)
	p.Fallback = res.Fallback
	p.Added = res.Added
	p.VocabularySize = res.VocabularySize
	return p, nil
}

// Recommend predicts genres for req.Query and fetches tracks for each genre in
// order. A genre whose lookup fails or yields nothing is reported in Skipped
// and does not stop the others. Embedding and credential errors are returned.
func (r *Recommender) Recommend(ctx context.Context, req *models.RecommendRequest) (*models.RecommendResponse, error) {
	start := time.Now()
	if err := req.ValidateWith(r.limits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.catalog == nil {
		return nil, fmt.Errorf("no track catalog configured")
	}

	inputID := r.recordInput(ctx, req)

	res, err := r.predictor.Predict(ctx, req.Query, req.K)
	if err != nil {
		return nil, err
	}
	pred := models.NewPrediction(req.Query, res.Labels, res.Scores)
	resp := &models.RecommendResponse{
		Query:    req.Query,
		Genres:   pred.Genres,
		Tracks:   []*models.TrackMatch{},
		Fallback: res.Fallback,
	}

	for _, g := range pred.Genres {
		tracks, err := r.catalog.FetchTracks(ctx, g.Genre, req.TracksPerGenre)
		if err != nil {
			if errors.Is(err, catalog.ErrCredentialsMissing) || ctx.Err() != nil {
				return nil, fmt.Errorf("fetch tracks for %q: %w", g.Genre, err)
			}
			r.logger.Warn("track lookup failed", zap.String("genre", g.Genre), zap.Error(err))
			resp.Skipped = append(resp.Skipped, &models.SkippedGenre{Genre: g.Genre, Reason: models.SkipLookupFailed, Error: err.Error()})
			continue
		}
		if len(tracks) == 0 {
			resp.Skipped = append(resp.Skipped, &models.SkippedGenre{Genre: g.Genre, Reason: models.SkipNoTracks})
			continue
		}
		for _, t := range tracks {
			resp.Tracks = append(resp.Tracks, &models.TrackMatch{
				Rank:  len(resp.Tracks) + 1,
				Genre: g.Genre,
				Score: g.Score,
				Track: t,
			})
		}
	}

	if len(resp.Tracks) == 0 {
		resp.NoMatch = true
		resp.Message = NoMatchMessage
	}
	r.recordOutputs(ctx, inputID, resp.Tracks)

	resp.QueryTime = time.Since(start).Milliseconds()
	r.logger.Debug("recommend",
		zap.String("query", utils.Truncate(req.Query, 80)),
		zap.Int("genres", len(resp.Genres)),
		zap.Int("tracks", len(resp.Tracks)),
		zap.Int("skipped", len(resp.Skipped)),
		zap.Bool("fallback", resp.Fallback),
	)
	return resp, nil
}

// recordInput logs the request; history failures are logged, not returned.
func (r *Recommender) recordInput(ctx context.Context, req *models.RecommendRequest) string {
	if r.history == nil {
		return ""
	}
	id, err := r.history.AppendInput(ctx, req.Query, req.K)
	if err != nil {
		r.logger.Warn("failed to record input", zap.Error(err))
		return ""
	}
	return id
}

func (r *Recommender) recordOutputs(ctx context.Context, inputID string, matches []*models.TrackMatch) {
	if r.history == nil || inputID == "" || len(matches) == 0 {
		return
	}
	if err := r.history.AppendOutputs(ctx, inputID, matches); err != nil {
		r.logger.Warn("failed to record outputs", zap.Error(err))
	}
}
