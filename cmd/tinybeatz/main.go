// Package main is the tinybeatz CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tinybeatz/internal/catalog"
	"github.com/hyperjump/tinybeatz/internal/cli"
	"github.com/hyperjump/tinybeatz/internal/config"
	"github.com/hyperjump/tinybeatz/internal/embedding"
	"github.com/hyperjump/tinybeatz/internal/genre"
	"github.com/hyperjump/tinybeatz/internal/models"
	"github.com/hyperjump/tinybeatz/internal/recommend"
	"github.com/hyperjump/tinybeatz/internal/server"
	"github.com/hyperjump/tinybeatz/internal/storage"
	"github.com/hyperjump/tinybeatz/internal/watcher"
	"github.com/hyperjump/tinybeatz/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/tinybeatz/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory takes precedence; when neither exists the built-in
// defaults are used. Returns the config and the path that was loaded ("" for
// built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg := &config.Config{}
			config.ApplyEnv(cfg)
			config.ApplyDefaults(cfg)
			if err := cfg.Validate(); err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "predict":
		runPredict()
	case "recommend":
		runRecommend()
	case "chat":
		runChat()
	case "vocab":
		runVocab()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("tinybeatz version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (predictions, catalog reloads, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("catalog_provider", cfg.Catalog.Provider),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if components.LocalCatalog != nil && cfg.Catalog.WatchOrDefault() {
		local := components.LocalCatalog
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		fw, err := watcher.NewFileWatcher([]string{local.Path()}, func(path string) {
			if err := local.Reload(); err != nil {
				logger.Warn("catalog reload failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("catalog reloaded", zap.String("path", path), zap.Int("tracks", local.Len()))
		}, watchOpts...)
		if err != nil {
			logger.Fatal("Failed to create catalog watcher", zap.Error(err))
		}
		if err := fw.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start catalog watcher", zap.Error(err))
		}
		defer fw.Stop()
	}

	srv := server.NewServer(
		components.Recommender,
		components.Engine,
		components.Catalog,
		components.History,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildQuery joins all positional args with spaces so multi-word moods work
// the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// queryFlags are shared by predict, recommend and chat.
type queryFlags struct {
	fs         *flag.FlagSet
	configPath *string
	serverURL  *string
	k          *int
	tracks     *int
	output     *string
}

func newQueryFlags(name string, withTracks bool) *queryFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	q := &queryFlags{
		fs:         fs,
		configPath: fs.String("config", defaultConfigPath, "config file path (in-process mode)"),
		serverURL:  fs.String("server", defaultServerURL, "server URL (empty = run in-process)"),
		k:          fs.Int("k", 0, "number of genres (default from config)"),
		output:     fs.String("output", "text", "output format: text or json"),
	}
	if withTracks {
		q.tracks = fs.Int("tracks", 0, "tracks per genre (default from config)")
	}
	return q
}

func runPredict() {
	q := newQueryFlags("predict", false)
	_ = q.fs.Parse(argsReorder(os.Args[2:]))
	format := mustFormat(*q.output)
	req := &models.PredictRequest{Query: buildQuery(q.fs.Args()), K: *q.k}

	var (
		pred *models.Prediction
		err  error
	)
	if *q.serverURL != "" {
		pred = &models.Prediction{}
		err = postJSON(*q.serverURL, "/api/v1/predict", req, pred)
	} else {
		err = withComponents(*q.configPath, func(c *Components) error {
			var perr error
			pred, perr = c.Recommender.Predict(context.Background(), req)
			return perr
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Predict failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WritePrediction(os.Stdout, pred, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runRecommend() {
	q := newQueryFlags("recommend", true)
	_ = q.fs.Parse(argsReorder(os.Args[2:]))
	format := mustFormat(*q.output)
	req := &models.RecommendRequest{Query: buildQuery(q.fs.Args()), K: *q.k, TracksPerGenre: *q.tracks}

	var (
		resp *models.RecommendResponse
		err  error
	)
	if *q.serverURL != "" {
		resp, err = recommendViaHTTP(*q.serverURL)(context.Background(), req)
	} else {
		err = withComponents(*q.configPath, func(c *Components) error {
			var rerr error
			resp, rerr = c.Recommender.Recommend(context.Background(), req)
			return rerr
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Recommend failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteRecommendations(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runChat() {
	q := newQueryFlags("chat", true)
	_ = q.fs.Parse(os.Args[2:])

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if *q.serverURL != "" {
		err = cli.RunChat(ctx, os.Stdin, os.Stdout, *q.k, *q.tracks, recommendViaHTTP(*q.serverURL))
	} else {
		err = withComponents(*q.configPath, func(c *Components) error {
			return cli.RunChat(ctx, os.Stdin, os.Stdout, *q.k, *q.tracks, c.Recommender.Recommend)
		})
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
		os.Exit(1)
	}
}

func runVocab() {
	fs := flag.NewFlagSet("vocab", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = configured seed genres)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*output)

	var labels []string
	if *serverURL != "" {
		var out struct {
			Genres []string `json:"genres"`
		}
		if err := getJSON(*serverURL, "/api/v1/vocabulary", &out); err != nil {
			fmt.Fprintf(os.Stderr, "Vocabulary failed: %v\n", err)
			os.Exit(1)
		}
		labels = out.Genres
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		labels = genre.NewVocabulary(cfg.Retrieval.SeedGenres).Labels()
	}
	if err := cli.WriteVocabulary(os.Stdout, labels, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*output)

	var status map[string]interface{}
	if err := getJSON(*serverURL, "/api/v1/status", &status); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status)
		return
	}
	writeStatusText(os.Stdout, status)
}

// writeStatusText prints top-level status fields sorted by key, then the config section.
func writeStatusText(w io.Writer, status map[string]interface{}) {
	var scalars, sections []string
	for k, v := range status {
		if _, ok := v.(map[string]interface{}); ok {
			sections = append(sections, k)
		} else {
			scalars = append(scalars, k)
		}
	}
	sort.Strings(scalars)
	sort.Strings(sections)
	for _, k := range scalars {
		fmt.Fprintf(w, "%s: %v\n", k, status[k])
	}
	for _, k := range sections {
		section := status[k].(map[string]interface{})
		fmt.Fprintf(w, "%s:\n", k)
		keys := make([]string, 0, len(section))
		for sk := range section {
			keys = append(keys, sk)
		}
		sort.Strings(keys)
		for _, sk := range keys {
			fmt.Fprintf(w, "  %s: %v\n", sk, section[sk])
		}
	}
}

func mustFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

// withComponents loads config, initializes components for one in-process
// command and closes them afterwards.
func withComponents(configPath string, fn func(*Components) error) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(components)
}

func recommendViaHTTP(serverURL string) cli.RecommendFunc {
	return func(ctx context.Context, req *models.RecommendRequest) (*models.RecommendResponse, error) {
		var resp models.RecommendResponse
		if err := postJSON(serverURL, "/api/v1/recommend", req, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}
}

func postJSON(serverURL, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := http.Post(strings.TrimSuffix(serverURL, "/")+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func getJSON(serverURL, path string, out interface{}) error {
	resp, err := http.Get(strings.TrimSuffix(serverURL, "/") + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Embedder     embedding.Embedder
	Engine       *genre.Engine
	Catalog      catalog.Catalog
	LocalCatalog *catalog.LocalCatalog
	History      *storage.SQLiteStore
	Recommender  *recommend.Recommender
}

func (c *Components) Close() {
	if c.History != nil {
		_ = c.History.Close()
	}
	if c.LocalCatalog != nil {
		_ = c.LocalCatalog.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// newEmbedder builds the configured provider. There is no silent fallback to
// the mock embedder: an unusable provider is an error.
func newEmbedder(cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	var (
		inner embedding.Embedder
		err   error
	)
	switch cfg.Provider {
	case "onnx":
		inner, err = embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:          cfg.ModelPath,
			TokenizerPath:      cfg.TokenizerPath,
			RuntimeLibraryPath: cfg.RuntimeLibraryPath,
			Dimensions:         cfg.Dimensions,
			MaxTokens:          cfg.MaxTokens,
		})
	case "ollama":
		ollama := embedding.NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaModel, cfg.Dimensions)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ok := ollama.Available(ctx)
		cancel()
		if !ok {
			err = fmt.Errorf("%w: ollama at %s is not reachable (model %s)", embedding.ErrProviderUnavailable, cfg.OllamaURL, ollama.Model())
		}
		inner = ollama
	case "mock":
		inner = embedding.NewMockEmbedder(cfg.Dimensions)
	default:
		err = fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if cfg.CacheSize > 0 {
		return embedding.NewCachedEmbedder(inner, cfg.CacheSize), nil
	}
	return inner, nil
}

func fallbackPredicate(name string) genre.FallbackPredicate {
	if name == "empty" {
		return genre.FallbackWhenEmpty
	}
	return genre.NeedsFallback
}

func newCatalog(cfg *config.CatalogConfig, logger *zap.Logger) (catalog.Catalog, *catalog.LocalCatalog, error) {
	switch cfg.Provider {
	case "local":
		local, err := catalog.NewLocalCatalog(cfg.LocalPath, catalog.WithLocalLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load local catalog: %w", err)
		}
		return local, local, nil
	default:
		sp := catalog.NewSpotifyCatalog(catalog.SpotifyConfig{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
			TokenURL:     cfg.Spotify.TokenURL,
			APIURL:       cfg.Spotify.APIURL,
			SearchLimit:  cfg.SearchLimit,
		}, catalog.WithLogger(logger))
		if !sp.HasCredentials() {
			logger.Warn("spotify credentials missing; recommendations will fail",
				zap.String("env_client_id", config.EnvSpotifyClientID),
				zap.String("env_client_secret", config.EnvSpotifyClientSecret))
		}
		return sp, nil, nil
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	embedder, err := newEmbedder(&cfg.Embedding)
	if err != nil {
		return nil, err
	}
	c := &Components{Embedder: embedder}

	engineOpts := []genre.EngineOption{
		genre.WithThreshold(cfg.Retrieval.SimilarityThreshold),
		genre.WithFallbackPredicate(fallbackPredicate(cfg.Retrieval.Fallback)),
	}
	if debug {
		engineOpts = append(engineOpts, genre.WithLogger(logger))
	}
	c.Engine = genre.NewEngine(embedder, genre.NewVocabulary(cfg.Retrieval.SeedGenres), engineOpts...)
	logger.Info("genre engine initialized",
		zap.Int("vocabulary_size", len(c.Engine.Vocabulary())),
		zap.Float64("threshold", c.Engine.Threshold()),
		zap.String("fallback", cfg.Retrieval.Fallback))

	c.Catalog, c.LocalCatalog, err = newCatalog(&cfg.Catalog, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.History, err = storage.NewSQLiteStore(cfg.Storage.HistoryPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize history: %w", err)
	}

	c.Recommender = recommend.New(c.Engine, c.Catalog,
		recommend.WithHistory(c.History),
		recommend.WithLimits(cfg.RequestLimits()),
		recommend.WithLogger(logger))
	return c, nil
}

func printUsage() {
	fmt.Println(`tinybeatz - Mood to music genre recommender

Usage:
  tinybeatz server [flags]              Start the HTTP server
  tinybeatz predict [flags] <mood>      Predict genres for a mood
  tinybeatz recommend [flags] <mood>    Recommend tracks for a mood
  tinybeatz chat [flags]                Interactive recommendations (empty line exits)
  tinybeatz vocab [flags]               List the genre vocabulary
  tinybeatz status [flags]              Show server status
  tinybeatz version                     Show version
  tinybeatz help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/tinybeatz/config.yaml)
  --debug            Enable debug logging

Predict / Recommend / Chat Flags:
  --config string    Config file path (in-process mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to run in-process.
  --k int            Number of genres (default from config: 3)
  --tracks int       Tracks per genre, recommend and chat only (default from config: 2)
  --output string    Output format: text or json (default: text)

Vocab / Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Environment:
  SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET   Spotify client credentials

Examples:
  tinybeatz server
  tinybeatz predict "I feel sad"
  tinybeatz recommend --k 2 --tracks 5 feeling sunny today
  tinybeatz recommend --server "" --output json "late night drive"
  tinybeatz chat`)
}
