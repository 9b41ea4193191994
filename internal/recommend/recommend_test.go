package recommend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/tinybeatz/internal/catalog"
	"github.com/hyperjump/tinybeatz/internal/embedding"
	"github.com/hyperjump/tinybeatz/internal/genre"
	"github.com/hyperjump/tinybeatz/internal/models"
	"github.com/hyperjump/tinybeatz/internal/storage"
)

type fakePredictor struct {
	result *genre.Result
	err    error
	calls  int
	lastK  int
}

func (f *fakePredictor) Predict(ctx context.Context, query string, k int) (*genre.Result, error) {
	f.calls++
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeCatalog struct {
	tracks  map[string][]*models.Track
	errs    map[string]error
	fetched []string
	limits  []int
}

func (f *fakeCatalog) Name() string { return "fake" }

func (f *fakeCatalog) FetchTracks(ctx context.Context, g string, limit int) ([]*models.Track, error) {
	f.fetched = append(f.fetched, g)
	f.limits = append(f.limits, limit)
	if err := f.errs[g]; err != nil {
		return nil, err
	}
	ts := f.tracks[g]
	if len(ts) > limit {
		ts = ts[:limit]
	}
	return ts, nil
}

func tracks(prefix string, n int) []*models.Track {
	out := make([]*models.Track, n)
	for i := range out {
		out[i] = &models.Track{ID: fmt.Sprintf("%s%d", prefix, i+1), Name: fmt.Sprintf("%s song %d", prefix, i+1)}
	}
	return out
}

func TestRecommend_OrderAndRanks(t *testing.T) {
	p := &fakePredictor{result: &genre.Result{Labels: []string{"sad", "chill"}, Scores: []float64{1, 0.6}}}
	c := &fakeCatalog{tracks: map[string][]*models.Track{"sad": tracks("s", 5), "chill": tracks("c", 1)}}
	r := New(p, c)

	resp, err := r.Recommend(context.Background(), &models.RecommendRequest{Query: "I feel sad"})
	if err != nil {
		t.Fatal(err)
	}
	if p.lastK != models.DefaultK {
		t.Errorf("k = %d, want default %d", p.lastK, models.DefaultK)
	}
	if len(c.fetched) != 2 || c.fetched[0] != "sad" || c.fetched[1] != "chill" {
		t.Errorf("fetch order = %v", c.fetched)
	}
	if c.limits[0] != models.DefaultTracksPerGenre {
		t.Errorf("limit = %d, want %d", c.limits[0], models.DefaultTracksPerGenre)
	}
	want := []struct {
		id    string
		genre string
	}{{"s1", "sad"}, {"s2", "sad"}, {"c1", "chill"}}
	if len(resp.Tracks) != len(want) {
		t.Fatalf("got %d tracks, want %d", len(resp.Tracks), len(want))
	}
	for i, w := range want {
		m := resp.Tracks[i]
		if m.Rank != i+1 || m.Track.ID != w.id || m.Genre != w.genre {
			t.Errorf("tracks[%d] = rank %d %s/%s, want rank %d %s/%s", i, m.Rank, m.Genre, m.Track.ID, i+1, w.genre, w.id)
		}
	}
	if resp.Tracks[2].Score != 0.6 {
		t.Errorf("score = %v, want 0.6", resp.Tracks[2].Score)
	}
	if resp.NoMatch || resp.Message != "" || len(resp.Skipped) != 0 {
		t.Errorf("unexpected no-match state: %+v", resp)
	}
}

func TestRecommend_PartialResults(t *testing.T) {
	p := &fakePredictor{result: &genre.Result{Labels: []string{"sad", "sleep", "chill"}, Scores: []float64{1, 0.7, 0.5}}}
	c := &fakeCatalog{
		tracks: map[string][]*models.Track{"chill": tracks("c", 2)},
		errs:   map[string]error{"sad": errors.New("rate limited")},
	}
	resp, err := New(p, c).Recommend(context.Background(), &models.RecommendRequest{Query: "sad", K: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Tracks) != 2 || resp.Tracks[0].Genre != "chill" {
		t.Errorf("tracks = %+v", resp.Tracks)
	}
	if len(resp.Skipped) != 2 {
		t.Fatalf("skipped = %+v", resp.Skipped)
	}
	if resp.Skipped[0].Genre != "sad" || resp.Skipped[0].Reason != models.SkipLookupFailed || resp.Skipped[0].Error == "" {
		t.Errorf("skipped[0] = %+v", resp.Skipped[0])
	}
	if resp.Skipped[1].Genre != "sleep" || resp.Skipped[1].Reason != models.SkipNoTracks {
		t.Errorf("skipped[1] = %+v", resp.Skipped[1])
	}
	if resp.NoMatch {
		t.Error("NoMatch should be false when some tracks were found")
	}
}

func TestRecommend_NoConfidentMatch(t *testing.T) {
	p := &fakePredictor{result: &genre.Result{Fallback: true}}
	c := &fakeCatalog{}
	resp, err := New(p, c).Recommend(context.Background(), &models.RecommendRequest{Query: "qwzx"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.NoMatch || resp.Message != NoMatchMessage {
		t.Errorf("expected no match, got %+v", resp)
	}
	if !resp.Fallback {
		t.Error("Fallback should be reported")
	}
	if len(c.fetched) != 0 {
		t.Errorf("no catalog lookups expected, got %v", c.fetched)
	}
	if resp.Genres == nil || resp.Tracks == nil {
		t.Error("empty genres and tracks should be non-nil slices")
	}
}

func TestRecommend_NoTracksAnywhere(t *testing.T) {
	p := &fakePredictor{result: &genre.Result{Labels: []string{"ambient"}, Scores: []float64{0.9}}}
	resp, err := New(p, &fakeCatalog{}).Recommend(context.Background(), &models.RecommendRequest{Query: "calm"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.NoMatch || len(resp.Skipped) != 1 {
		t.Errorf("expected no match with one skipped genre, got %+v", resp)
	}
}

func TestRecommend_Errors(t *testing.T) {
	t.Run("provider unavailable", func(t *testing.T) {
		p := &fakePredictor{err: fmt.Errorf("embed: %w", embedding.ErrProviderUnavailable)}
		_, err := New(p, &fakeCatalog{}).Recommend(context.Background(), &models.RecommendRequest{Query: "x"})
		if !errors.Is(err, embedding.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})
	t.Run("credentials missing", func(t *testing.T) {
		p := &fakePredictor{result: &genre.Result{Labels: []string{"pop"}, Scores: []float64{1}}}
		c := &fakeCatalog{errs: map[string]error{"pop": catalog.ErrCredentialsMissing}}
		_, err := New(p, c).Recommend(context.Background(), &models.RecommendRequest{Query: "pop"})
		if !errors.Is(err, catalog.ErrCredentialsMissing) {
			t.Errorf("expected ErrCredentialsMissing, got %v", err)
		}
	})
	t.Run("invalid request", func(t *testing.T) {
		p := &fakePredictor{}
		_, err := New(p, &fakeCatalog{}).Recommend(context.Background(), &models.RecommendRequest{Query: "x", K: -1})
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("expected ErrInvalidRequest, got %v", err)
		}
		if p.calls != 0 {
			t.Error("predictor should not be called for an invalid request")
		}
	})
	t.Run("no catalog", func(t *testing.T) {
		_, err := New(&fakePredictor{}, nil).Recommend(context.Background(), &models.RecommendRequest{Query: "x"})
		if err == nil {
			t.Error("expected error without a catalog")
		}
	})
}

func TestPredict(t *testing.T) {
	p := &fakePredictor{result: &genre.Result{Labels: []string{"happy"}, Scores: []float64{0.8}, Fallback: true, Added: true, VocabularySize: 19}}
	pred, err := New(p, nil).Predict(context.Background(), &models.PredictRequest{Query: "sunny", K: 50})
	if err != nil {
		t.Fatal(err)
	}
	if p.lastK != models.MaxK {
		t.Errorf("k = %d, want capped %d", p.lastK, models.MaxK)
	}
	if len(pred.Genres) != 1 || pred.Genres[0].Genre != "happy" || !pred.Fallback || !pred.Added || pred.VocabularySize != 19 {
		t.Errorf("prediction = %+v", pred)
	}
	if _, err := New(p, nil).Predict(context.Background(), &models.PredictRequest{K: -2}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRecommend_WithLimits(t *testing.T) {
	p := &fakePredictor{result: &genre.Result{Labels: []string{"sad"}, Scores: []float64{1}}}
	c := &fakeCatalog{tracks: map[string][]*models.Track{"sad": tracks("s", 5)}}
	r := New(p, c, WithLimits(models.Limits{DefaultK: 1, MaxK: 2, DefaultTracksPerGenre: 3, MaxTracksPerGenre: 4}))

	if _, err := r.Recommend(context.Background(), &models.RecommendRequest{Query: "sad"}); err != nil {
		t.Fatal(err)
	}
	if p.lastK != 1 || c.limits[0] != 3 {
		t.Errorf("defaults: k = %d, tracks limit = %d", p.lastK, c.limits[0])
	}
	if _, err := r.Recommend(context.Background(), &models.RecommendRequest{Query: "sad", K: 7, TracksPerGenre: 9}); err != nil {
		t.Fatal(err)
	}
	if p.lastK != 2 || c.limits[1] != 4 {
		t.Errorf("caps: k = %d, tracks limit = %d", p.lastK, c.limits[1])
	}
	if _, err := r.Predict(context.Background(), &models.PredictRequest{Query: "sad", K: 5}); err != nil || p.lastK != 2 {
		t.Errorf("predict cap: k = %d, err = %v", p.lastK, err)
	}
}

func TestRecommend_RecordsHistory(t *testing.T) {
	store, err := storage.NewSQLiteStore(storage.MemoryPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	p := &fakePredictor{result: &genre.Result{Labels: []string{"sad"}, Scores: []float64{1}}}
	c := &fakeCatalog{tracks: map[string][]*models.Track{"sad": tracks("s", 2)}}
	r := New(p, c, WithHistory(store))
	ctx := context.Background()
	if _, err := r.Recommend(ctx, &models.RecommendRequest{Query: "sad"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Recommend(ctx, &models.RecommendRequest{Query: "sad", TracksPerGenre: 1}); err != nil {
		t.Fatal(err)
	}
	inputs, _ := store.CountInputs(ctx)
	outputs, _ := store.CountOutputs(ctx)
	if inputs != 2 || outputs != 3 {
		t.Errorf("history inputs=%d outputs=%d, want 2 and 3", inputs, outputs)
	}
}

func TestRecommend_WithEngineAndLocalCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "tracks:\n  - {id: a, name: Blue Rain, popularity: 10, genres: [sad]}\n  - {id: b, name: Gray Day, popularity: 60, genres: [sad]}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.NewLocalCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()

	engine := genre.NewEngine(embedding.NewMockEmbedder(64), nil)
	resp, err := New(engine, cat).Recommend(context.Background(), &models.RecommendRequest{Query: "sad", K: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Genres) == 0 || resp.Genres[0].Genre != "sad" {
		t.Fatalf("genres = %+v", resp.Genres)
	}
	if len(resp.Tracks) != 2 || resp.Tracks[0].Track.ID != "b" {
		t.Errorf("tracks = %+v", resp.Tracks)
	}
}
