package config

import (
	"path/filepath"
	"strings"

	"github.com/hyperjump/tinybeatz/internal/genre"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.HistoryPath == "" {
		cfg.Storage.HistoryPath = "/usr/local/var/tinybeatz/data/history.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/tinybeatz/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.TokenizerPath == "" {
		dir := strings.TrimSuffix(cfg.Embedding.ModelPath, filepath.Base(cfg.Embedding.ModelPath))
		cfg.Embedding.TokenizerPath = dir + "tokenizer.json"
	}
	if cfg.Embedding.Dimensions == 0 && cfg.Embedding.Provider != "ollama" {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1024
	}
	if cfg.Embedding.OllamaURL == "" {
		cfg.Embedding.OllamaURL = "http://localhost:11434"
	}
	if cfg.Embedding.OllamaModel == "" {
		cfg.Embedding.OllamaModel = "all-minilm"
	}
	if cfg.Retrieval.SimilarityThreshold == 0 {
		cfg.Retrieval.SimilarityThreshold = genre.DefaultSimilarityThreshold
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 3
	}
	if cfg.Retrieval.MaxK == 0 {
		cfg.Retrieval.MaxK = 10
	}
	if cfg.Retrieval.SeedGenres == nil {
		cfg.Retrieval.SeedGenres = append([]string(nil), genre.DefaultSeedGenres...)
	}
	if cfg.Retrieval.Fallback == "" {
		cfg.Retrieval.Fallback = "exact"
	}
	if cfg.Catalog.Provider == "" {
		cfg.Catalog.Provider = "spotify"
	}
	if cfg.Catalog.TracksPerGenre == 0 {
		cfg.Catalog.TracksPerGenre = 2
	}
	if cfg.Catalog.SearchLimit == 0 {
		cfg.Catalog.SearchLimit = 50
	}
	if cfg.Catalog.Spotify.TokenURL == "" {
		cfg.Catalog.Spotify.TokenURL = "https://accounts.spotify.com/api/token"
	}
	if cfg.Catalog.Spotify.APIURL == "" {
		cfg.Catalog.Spotify.APIURL = "https://api.spotify.com/v1"
	}
	// Watch defaults to true when a local catalog is configured.
	if cfg.Catalog.LocalPath != "" && cfg.Catalog.Watch == nil {
		t := true
		cfg.Catalog.Watch = &t
	}
}
