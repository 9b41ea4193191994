package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/tinybeatz/internal/catalog"
	"github.com/hyperjump/tinybeatz/internal/embedding"
	"github.com/hyperjump/tinybeatz/internal/genre"
	"github.com/hyperjump/tinybeatz/internal/models"
	"github.com/hyperjump/tinybeatz/internal/recommend"
	"github.com/hyperjump/tinybeatz/pkg/utils"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Reloader is implemented by catalogs that can re-read their source.
type Reloader interface {
	Reload() error
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("predict request", zap.String("query", utils.Truncate(req.Query, 80)), zap.Int("k", req.K))
	pred, err := s.recommender.Predict(r.Context(), &req)
	if err != nil {
		s.respondFailure(w, "predict", err)
		return
	}
	s.respondJSON(w, http.StatusOK, pred)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("recommend request", zap.String("query", utils.Truncate(req.Query, 80)), zap.Int("k", req.K), zap.Int("tracks_per_genre", req.TracksPerGenre))
	resp, err := s.recommender.Recommend(r.Context(), &req)
	if err != nil {
		s.respondFailure(w, "recommend", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	labels := s.engine.Vocabulary()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"genres": labels,
		"size":   len(labels),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := map[string]interface{}{
		"vocabulary_size":      len(s.engine.Vocabulary()),
		"similarity_threshold": s.engine.Threshold(),
	}
	if cs, ok := s.engine.Embedder().(interface{ Stats() embedding.CacheStats }); ok {
		resp["embedding_cache"] = cs.Stats()
	}
	if s.catalog != nil {
		resp["catalog"] = s.catalog.Name()
	}
	if s.history != nil {
		inputs, err := s.history.CountInputs(ctx)
		if err != nil {
			s.logger.Error("status: count inputs failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		outputs, err := s.history.CountOutputs(ctx)
		if err != nil {
			s.logger.Error("status: count outputs failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["history_inputs"] = inputs
		resp["history_outputs"] = outputs
		if du, ok := s.history.(interface{ DiskUsage() (int64, error) }); ok {
			if n, err := du.DiskUsage(); err == nil {
				resp["disk_usage_bytes"] = n
			}
		}
	}

	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"fallback":             s.config.Retrieval.Fallback,
			"catalog_provider":     s.config.Catalog.Provider,
			"tracks_per_genre":     s.config.Catalog.TracksPerGenre,
			"history_path":         s.config.Storage.HistoryPath,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	reloader, ok := s.catalog.(Reloader)
	if !ok {
		s.respondError(w, http.StatusNotImplemented, "catalog reload not supported")
		return
	}
	if err := reloader.Reload(); err != nil {
		s.logger.Error("catalog reload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// respondFailure maps domain errors to HTTP status codes.
func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, recommend.ErrInvalidRequest), errors.Is(err, genre.ErrInvalidK):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, embedding.ErrProviderUnavailable), errors.Is(err, catalog.ErrCredentialsMissing):
		s.logger.Warn(op+" unavailable", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
