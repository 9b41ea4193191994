// Package config provides configuration loading and structs for the tinybeatz server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/tinybeatz/internal/models"
)

// Environment variables that override catalog credentials.
const (
	EnvSpotifyClientID     = "SPOTIFY_CLIENT_ID"
	EnvSpotifyClientSecret = "SPOTIFY_CLIENT_SECRET"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the history database path.
type StorageConfig struct {
	HistoryPath string `yaml:"history_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider           string `yaml:"provider"` // onnx, ollama or mock
	ModelPath          string `yaml:"model_path"`
	TokenizerPath      string `yaml:"tokenizer_path"` // tokenizer.json; defaults to the model's directory
	RuntimeLibraryPath string `yaml:"runtime_library_path"`
	Dimensions         int    `yaml:"dimensions"`
	MaxTokens          int    `yaml:"max_tokens"`
	CacheSize          int    `yaml:"cache_size"`
	OllamaURL          string `yaml:"ollama_url"`
	OllamaModel        string `yaml:"ollama_model"`
}

// RetrievalConfig holds genre engine settings.
type RetrievalConfig struct {
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
	DefaultK            int      `yaml:"default_k"`
	MaxK                int      `yaml:"max_k"`
	SeedGenres          []string `yaml:"seed_genres"`
	// Fallback is "exact" (retry unless a label matches exactly) or "empty"
	// (retry only when nothing clears the threshold).
	Fallback string `yaml:"fallback"`
}

// CatalogConfig selects the track catalog.
type CatalogConfig struct {
	Provider       string        `yaml:"provider"` // spotify or local
	TracksPerGenre int           `yaml:"tracks_per_genre"`
	SearchLimit    int           `yaml:"search_limit"`
	LocalPath      string        `yaml:"local_path"`
	Watch          *bool         `yaml:"watch"`
	Spotify        SpotifyConfig `yaml:"spotify"`
}

// WatchOrDefault returns whether to reload the local catalog on change; defaults to true when unset.
func (c *CatalogConfig) WatchOrDefault() bool {
	if c.Watch != nil {
		return *c.Watch
	}
	return true
}

// SpotifyConfig holds Spotify Web API credentials and endpoints.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market"`
	TokenURL     string `yaml:"token_url"`
	APIURL       string `yaml:"api_url"`
}

// Load reads and parses the config file at path, applies environment
// overrides and defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.HistoryPath = expandPath(cfg.Storage.HistoryPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Embedding.TokenizerPath = expandPath(cfg.Embedding.TokenizerPath, configDir)
	if cfg.Embedding.RuntimeLibraryPath != "" {
		cfg.Embedding.RuntimeLibraryPath = expandPath(cfg.Embedding.RuntimeLibraryPath, configDir)
	}
	if cfg.Catalog.LocalPath != "" {
		cfg.Catalog.LocalPath = expandPath(cfg.Catalog.LocalPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides secrets from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvSpotifyClientID); v != "" {
		cfg.Catalog.Spotify.ClientID = v
	}
	if v := os.Getenv(EnvSpotifyClientSecret); v != "" {
		cfg.Catalog.Spotify.ClientSecret = v
	}
}

// Validate rejects unknown provider names and out-of-range values.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "onnx", "ollama", "mock":
	default:
		return fmt.Errorf("unknown embedding provider: %s (supported: onnx, ollama, mock)", c.Embedding.Provider)
	}
	switch c.Catalog.Provider {
	case "spotify", "local":
	default:
		return fmt.Errorf("unknown catalog provider: %s (supported: spotify, local)", c.Catalog.Provider)
	}
	switch c.Retrieval.Fallback {
	case "exact", "empty":
	default:
		return fmt.Errorf("unknown fallback policy: %s (supported: exact, empty)", c.Retrieval.Fallback)
	}
	if c.Retrieval.SimilarityThreshold < -1 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be within [-1, 1], got %v", c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.DefaultK < 0 || c.Retrieval.MaxK < 0 || c.Retrieval.DefaultK > c.Retrieval.MaxK {
		return fmt.Errorf("retrieval.default_k (%d) must be within [1, max_k (%d)]", c.Retrieval.DefaultK, c.Retrieval.MaxK)
	}
	if c.Catalog.TracksPerGenre < 0 || c.Catalog.TracksPerGenre > c.Catalog.SearchLimit {
		return fmt.Errorf("catalog.tracks_per_genre (%d) must be within [1, search_limit (%d)]", c.Catalog.TracksPerGenre, c.Catalog.SearchLimit)
	}
	if c.Catalog.Provider == "local" && c.Catalog.LocalPath == "" {
		return fmt.Errorf("catalog.local_path is required for the local catalog")
	}
	return nil
}

// RequestLimits returns the request defaults and caps: k from retrieval,
// tracks per genre from the catalog, capped by its search limit.
func (c *Config) RequestLimits() models.Limits {
	return models.Limits{
		DefaultK:              c.Retrieval.DefaultK,
		MaxK:                  c.Retrieval.MaxK,
		DefaultTracksPerGenre: c.Catalog.TracksPerGenre,
		MaxTracksPerGenre:     c.Catalog.SearchLimit,
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
