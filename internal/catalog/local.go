package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/tinybeatz/internal/models"
	"github.com/hyperjump/tinybeatz/pkg/utils"
)

// LocalCatalog serves tracks from a YAML or XLSX file through an in-memory
// bleve index keyed on genre.
type LocalCatalog struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	index  bleve.Index
	tracks map[string]*models.Track
	order  map[string]int
}

// LocalOption configures a LocalCatalog.
type LocalOption func(*LocalCatalog)

// WithLocalLogger sets a logger for debug output.
func WithLocalLogger(l *zap.Logger) LocalOption {
	return func(c *LocalCatalog) { c.logger = utils.OrNop(l) }
}

// NewLocalCatalog loads and indexes the catalog file at path.
func NewLocalCatalog(path string, opts ...LocalOption) (*LocalCatalog, error) {
	c := &LocalCatalog{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns "local".
func (c *LocalCatalog) Name() string { return "local" }

// Path returns the catalog file path.
func (c *LocalCatalog) Path() string { return c.path }

// Len returns the number of loaded tracks.
func (c *LocalCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracks)
}

// Reload re-reads the catalog file and swaps in a fresh index. On error the
// previous index stays in place.
func (c *LocalCatalog) Reload() error {
	tracks, err := LoadTracks(c.path)
	if err != nil {
		return err
	}
	index, err := bleve.NewMemOnly(newTrackMapping())
	if err != nil {
		return fmt.Errorf("failed to create track index: %w", err)
	}
	byID := make(map[string]*models.Track, len(tracks))
	order := make(map[string]int, len(tracks))
	batch := index.NewBatch()
	for i, t := range tracks {
		if t.ID == "" {
			t.ID = "local-" + strconv.Itoa(i+1)
		}
		if _, dup := byID[t.ID]; dup {
			_ = index.Close()
			return fmt.Errorf("duplicate track id %q in %s", t.ID, c.path)
		}
		byID[t.ID] = t
		order[t.ID] = i
		if err := batch.Index(t.ID, trackDocument(t)); err != nil {
			_ = index.Close()
			return fmt.Errorf("failed to index track %q: %w", t.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return fmt.Errorf("failed to index tracks: %w", err)
	}

	c.mu.Lock()
	old := c.index
	c.index = index
	c.tracks = byID
	c.order = order
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	c.logger.Debug("local catalog loaded", zap.String("path", c.path), zap.Int("tracks", len(tracks)))
	return nil
}

// FetchTracks returns up to limit tracks tagged with genre, most popular first.
// Genre matching ignores case and extra whitespace.
func (c *LocalCatalog) FetchTracks(ctx context.Context, genre string, limit int) ([]*models.Track, error) {
	genre = normalizeGenre(genre)
	if genre == "" || limit <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.tracks) == 0 {
		return nil, nil
	}
	q := bleve.NewTermQuery(genre)
	q.SetField("genres")
	req := bleve.NewSearchRequestOptions(q, len(c.tracks), 0, false)
	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("local catalog search: %w", err)
	}

	out := make([]*models.Track, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if t, ok := c.tracks[hit.ID]; ok {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return c.order[out[i].ID] < c.order[out[j].ID] })
	sortByPopularity(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close releases the index.
func (c *LocalCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index == nil {
		return nil
	}
	err := c.index.Close()
	c.index = nil
	c.tracks = nil
	return err
}

func newTrackMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Genres are matched whole, so "hop" does not hit "hip hop".
	docMapping.AddFieldMappingsAt("genres", bleve.NewKeywordFieldMapping())
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("artist", textFieldMapping)
	docMapping.AddFieldMappingsAt("popularity", bleve.NewNumericFieldMapping())
	im.AddDocumentMapping("track", docMapping)
	im.DefaultType = "track"
	im.DefaultMapping = docMapping
	return im
}

func trackDocument(t *models.Track) map[string]interface{} {
	return map[string]interface{}{
		"name":       t.Name,
		"artist":     t.Artist,
		"genres":     t.Genres,
		"popularity": float64(t.Popularity),
	}
}

func normalizeGenre(g string) string {
	return strings.ToLower(utils.NormalizeLabel(g))
}

func normalizeGenres(in []string) []string {
	out := make([]string, 0, len(in))
	for _, g := range in {
		if n := normalizeGenre(g); n != "" {
			out = append(out, n)
		}
	}
	return out
}

type catalogFile struct {
	Tracks []*models.Track `yaml:"tracks"`
}

// LoadTracks reads tracks from a .yaml/.yml file (a top-level "tracks" list)
// or the first sheet of an .xlsx workbook with a header row.
func LoadTracks(path string) ([]*models.Track, error) {
	var (
		tracks []*models.Track
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		tracks, err = loadYAML(path)
	case ".xlsx":
		tracks, err = loadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", path)
	}
	if err != nil {
		return nil, err
	}
	for i, t := range tracks {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("track %d in %s has no name", i+1, path)
		}
		t.Genres = normalizeGenres(t.Genres)
	}
	return tracks, nil
}

func loadYAML(path string) ([]*models.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return f.Tracks, nil
}

func loadXLSX(path string) ([]*models.Track, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, fmt.Errorf("sheet %q has no name column", sheets[0])
	}
	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var tracks []*models.Track
	for n, row := range rows[1:] {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		t := &models.Track{
			ID:       cell(row, "id"),
			Name:     cell(row, "name"),
			Artist:   cell(row, "artist"),
			URL:      cell(row, "url"),
			ImageURL: cell(row, "image_url"),
			Genres:   splitGenres(cell(row, "genres")),
		}
		if p := cell(row, "popularity"); p != "" {
			v, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid popularity %q", n+2, p)
			}
			t.Popularity = v
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func splitGenres(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
}
