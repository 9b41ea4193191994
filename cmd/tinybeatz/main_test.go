package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/tinybeatz/internal/config"
	"github.com/hyperjump/tinybeatz/internal/embedding"
	"github.com/hyperjump/tinybeatz/internal/models"
	"github.com/hyperjump/tinybeatz/internal/storage"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"feeling sunny today", "-k", "2"},
			expected: []string{"-k", "2", "feeling sunny today"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-k", "2", "feeling sunny today"},
			expected: []string{"-k", "2", "feeling sunny today"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"sad"},
			expected: []string{"sad"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"late", "night", "-tracks", "5"},
			expected: []string{"-tracks", "5", "late", "night"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"sad"}, "sad"},
		{"multiple words", []string{"I", "feel", "sad"}, "I feel sad"},
		{"single quoted phrase", []string{"I feel sad"}, "I feel sad"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args); got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("embedding:\n  provider: mock\n  dimensions: 8\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("resolved = %s, want %s", resolved, path)
	}
	if cfg.Embedding.Provider != "mock" || cfg.Embedding.Dimensions != 8 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if _, _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config")
	}
}

func TestFallbackPredicate(t *testing.T) {
	empty := fallbackPredicate("empty")
	exact := fallbackPredicate("exact")
	scores := []float64{0.8}
	if empty(scores) {
		t.Error("empty predicate should not retry when a label matched")
	}
	if !exact(scores) {
		t.Error("exact predicate should retry without an exact match")
	}
	if !empty(nil) || !exact(nil) {
		t.Error("both predicates retry on an empty result")
	}
}

func TestNewEmbedder(t *testing.T) {
	emb, err := newEmbedder(&config.EmbeddingConfig{Provider: "mock", Dimensions: 8, CacheSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer emb.Close()
	if _, ok := emb.(*embedding.CachedEmbedder); !ok {
		t.Errorf("expected cached embedder, got %T", emb)
	}
	if emb.Dimensions() != 8 {
		t.Errorf("Dimensions = %d, want 8", emb.Dimensions())
	}

	plain, err := newEmbedder(&config.EmbeddingConfig{Provider: "mock", Dimensions: 8})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := plain.(*embedding.MockEmbedder); !ok {
		t.Errorf("expected mock embedder without cache, got %T", plain)
	}

	if _, err := newEmbedder(&config.EmbeddingConfig{Provider: "word2vec"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	_, err = newEmbedder(&config.EmbeddingConfig{Provider: "onnx", ModelPath: filepath.Join(t.TempDir(), "none.onnx"), Dimensions: 8})
	if err == nil {
		t.Error("expected error for a missing ONNX model")
	}
}

func TestNewEmbedder_Ollama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	emb, err := newEmbedder(&config.EmbeddingConfig{Provider: "ollama", OllamaURL: srv.URL, OllamaModel: "all-minilm"})
	if err != nil {
		t.Fatalf("reachable ollama: %v", err)
	}
	if _, ok := emb.(*embedding.OllamaEmbedder); !ok {
		t.Errorf("expected ollama embedder, got %T", emb)
	}

	srv.Close()
	_, err = newEmbedder(&config.EmbeddingConfig{Provider: "ollama", OllamaURL: srv.URL, OllamaModel: "all-minilm"})
	if !errors.Is(err, embedding.ErrProviderUnavailable) {
		t.Errorf("unreachable ollama: got %v, want ErrProviderUnavailable", err)
	}
}

func TestInitializeComponents_LocalCatalog(t *testing.T) {
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(catalogPath, []byte("tracks:\n  - {name: Gray Day, artist: Ben, url: u, genres: [sad]}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Storage:   config.StorageConfig{HistoryPath: filepath.Join(dir, "history.db")},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: 64},
		Catalog:   config.CatalogConfig{Provider: "local", LocalPath: catalogPath},
	}
	config.ApplyDefaults(cfg)

	c, err := initializeComponents(cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.LocalCatalog == nil || c.Catalog.Name() != "local" {
		t.Fatalf("expected local catalog, got %v", c.Catalog)
	}

	req := &models.RecommendRequest{Query: "sad"}
	resp, err := c.Recommender.Recommend(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if req.K != cfg.Retrieval.DefaultK || req.TracksPerGenre != cfg.Catalog.TracksPerGenre {
		t.Errorf("request defaults = %+v", req)
	}
	if len(resp.Tracks) != 1 || resp.Tracks[0].Track.Name != "Gray Day" {
		t.Errorf("tracks = %+v", resp.Tracks)
	}
	n, err := c.History.CountInputs(context.Background())
	if err != nil || n != 1 {
		t.Errorf("history inputs = %d, %v", n, err)
	}
}

func TestInitializeComponents_SpotifyWithoutCredentials(t *testing.T) {
	t.Setenv(config.EnvSpotifyClientID, "")
	t.Setenv(config.EnvSpotifyClientSecret, "")
	cfg := &config.Config{
		Storage:   config.StorageConfig{HistoryPath: storage.MemoryPath},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: 16},
	}
	config.ApplyDefaults(cfg)
	c, err := initializeComponents(cfg, zap.NewNop(), true)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Catalog.Name() != "spotify" || c.LocalCatalog != nil {
		t.Errorf("expected spotify catalog, got %s", c.Catalog.Name())
	}
	if _, err := c.Recommender.Recommend(context.Background(), &models.RecommendRequest{Query: "sad"}); err == nil {
		t.Error("expected credentials error")
	}
}

func TestPostJSONAndDecodeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/recommend":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"query":"sad","tracks":[{"rank":1,"genre":"sad","score":1,"track":{"name":"Gray Day","artist":"Ben","url":"u"}}]}`))
		case "/api/v1/status":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"embedding provider unavailable"}`))
		default:
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("short and stout"))
		}
	}))
	defer srv.Close()

	resp, err := recommendViaHTTP(srv.URL+"/")(context.Background(), &models.RecommendRequest{Query: "sad"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Tracks) != 1 || resp.Tracks[0].Track.Name != "Gray Day" {
		t.Errorf("resp = %+v", resp)
	}

	var out map[string]interface{}
	err = getJSON(srv.URL, "/api/v1/status", &out)
	if err == nil || !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "embedding provider unavailable") {
		t.Errorf("status error = %v", err)
	}
	err = getJSON(srv.URL, "/other", &out)
	if err == nil || !strings.Contains(err.Error(), "short and stout") {
		t.Errorf("plain error = %v", err)
	}
}

func TestWriteStatusText(t *testing.T) {
	var buf bytes.Buffer
	writeStatusText(&buf, map[string]interface{}{
		"vocabulary_size": 18,
		"catalog":         "spotify",
		"config":          map[string]interface{}{"fallback": "exact"},
		"embedding_cache": map[string]interface{}{"misses": 3, "hits": 7},
	})
	want := "catalog: spotify\nvocabulary_size: 18\nconfig:\n  fallback: exact\nembedding_cache:\n  hits: 7\n  misses: 3\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
