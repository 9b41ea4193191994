package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tinybeatz/internal/models"
	"github.com/hyperjump/tinybeatz/pkg/utils"
)

const (
	defaultTokenURL = "https://accounts.spotify.com/api/token"
	defaultAPIURL   = "https://api.spotify.com/v1"
	// defaultSearchLimit is the page size requested from the search endpoint.
	defaultSearchLimit = 50
	// tokenExpirySlack renews the token a little before Spotify expires it.
	tokenExpirySlack = 30 * time.Second
)

// SpotifyConfig holds client credentials and endpoints for SpotifyCatalog.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	Market       string
	TokenURL     string
	APIURL       string
	SearchLimit  int
}

// SpotifyCatalog searches the Spotify Web API with the client-credentials flow.
type SpotifyCatalog struct {
	cfg     SpotifyConfig
	client  *http.Client
	shuffle func(n int, swap func(i, j int))
	logger  *zap.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

// SpotifyOption configures a SpotifyCatalog.
type SpotifyOption func(*SpotifyCatalog)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) SpotifyOption {
	return func(s *SpotifyCatalog) {
		if c != nil {
			s.client = c
		}
	}
}

// WithShuffle replaces the random shuffle applied to search results.
func WithShuffle(fn func(n int, swap func(i, j int))) SpotifyOption {
	return func(s *SpotifyCatalog) {
		if fn != nil {
			s.shuffle = fn
		}
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) SpotifyOption {
	return func(s *SpotifyCatalog) { s.logger = utils.OrNop(l) }
}

// NewSpotifyCatalog returns a Spotify catalog. Missing credentials are not an
// error here; FetchTracks reports ErrCredentialsMissing so genre prediction
// keeps working without them.
func NewSpotifyCatalog(cfg SpotifyConfig, opts ...SpotifyOption) *SpotifyCatalog {
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaultSearchLimit
	}
	s := &SpotifyCatalog{
		cfg:     cfg,
		client:  &http.Client{Timeout: 15 * time.Second},
		shuffle: rand.Shuffle,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns "spotify".
func (s *SpotifyCatalog) Name() string { return "spotify" }

// HasCredentials reports whether a client id and secret are configured.
func (s *SpotifyCatalog) HasCredentials() bool {
	return s.cfg.ClientID != "" && s.cfg.ClientSecret != ""
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type searchResponse struct {
	Tracks struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks"`
}

type spotifyTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Popularity int    `json:"popularity"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
	Album struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
}

func (t *spotifyTrack) toModel(genre string) *models.Track {
	out := &models.Track{
		ID:         t.ID,
		Name:       t.Name,
		URL:        t.ExternalURLs.Spotify,
		Popularity: t.Popularity,
		Genres:     []string{genre},
	}
	if len(t.Artists) > 0 {
		out.Artist = t.Artists[0].Name
	}
	if len(t.Album.Images) > 0 {
		out.ImageURL = t.Album.Images[0].URL
	}
	return out
}

// FetchTracks searches "genre:<genre>" tracks, shuffles the page, keeps limit
// tracks and orders them by popularity descending.
func (s *SpotifyCatalog) FetchTracks(ctx context.Context, genre string, limit int) ([]*models.Track, error) {
	genre = utils.NormalizeLabel(genre)
	if genre == "" || limit <= 0 {
		return nil, nil
	}
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", "genre:"+genre)
	q.Set("type", "track")
	q.Set("limit", strconv.Itoa(s.cfg.SearchLimit))
	if s.cfg.Market != "" {
		q.Set("market", s.cfg.Market)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.APIURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		s.invalidateToken()
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("spotify search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	tracks := make([]*models.Track, 0, len(sr.Tracks.Items))
	for i := range sr.Tracks.Items {
		tracks = append(tracks, sr.Tracks.Items[i].toModel(genre))
	}
	s.shuffle(len(tracks), func(i, j int) { tracks[i], tracks[j] = tracks[j], tracks[i] })
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	sortByPopularity(tracks)

	s.logger.Debug("spotify search", zap.String("genre", genre), zap.Int("items", len(sr.Tracks.Items)), zap.Int("returned", len(tracks)))
	return tracks, nil
}

// accessToken returns a cached token or requests a new one.
func (s *SpotifyCatalog) accessToken(ctx context.Context) (string, error) {
	if !s.HasCredentials() {
		return "", ErrCredentialsMissing
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.now().Before(s.expires) {
		return s.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("spotify token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("spotify token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("spotify token: empty access token")
	}
	s.token = tr.AccessToken
	s.expires = s.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenExpirySlack)
	s.logger.Debug("spotify token refreshed", zap.Int("expires_in", tr.ExpiresIn))
	return s.token, nil
}

func (s *SpotifyCatalog) invalidateToken() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}
