// Package server provides the HTTP API for tinybeatz.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/tinybeatz/internal/catalog"
	"github.com/hyperjump/tinybeatz/internal/config"
	"github.com/hyperjump/tinybeatz/internal/genre"
	"github.com/hyperjump/tinybeatz/internal/recommend"
	"github.com/hyperjump/tinybeatz/internal/storage"
	"github.com/hyperjump/tinybeatz/pkg/utils"
)

// Server is the HTTP server for the tinybeatz API.
type Server struct {
	recommender *recommend.Recommender
	engine      *genre.Engine
	catalog     catalog.Catalog
	history     storage.HistoryStore
	config      *config.Config
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies. catalog and history may be nil.
func NewServer(
	rec *recommend.Recommender,
	engine *genre.Engine,
	cat catalog.Catalog,
	history storage.HistoryStore,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		recommender: rec,
		engine:      engine,
		catalog:     cat,
		history:     history,
		config:      cfg,
		logger:      utils.OrNop(logger),
	}
}

// Router returns the API routes with middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/predict", s.handlePredict)
		r.Post("/recommend", s.handleRecommend)
		r.Get("/vocabulary", s.handleVocabulary)
		r.Get("/status", s.handleStatus)
		r.Post("/catalog/reload", s.handleCatalogReload)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestID assigns a UUID request id when the client did not send one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(middleware.RequestIDHeader, id)
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
