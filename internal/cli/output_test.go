package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/tinybeatz/internal/models"
)

func sampleResponse() *models.RecommendResponse {
	return &models.RecommendResponse{
		Query:  "I feel sad",
		Genres: []models.GenreScore{{Genre: "sad", Score: 1}, {Genre: "sleep", Score: 0.5}},
		Tracks: []*models.TrackMatch{
			{Rank: 1, Genre: "sad", Score: 1, Track: &models.Track{Name: "Gray Day", Artist: "Ben", URL: "https://example.com/2"}},
			{Rank: 2, Genre: "sad", Score: 1, Track: &models.Track{Name: "Blue Rain", Artist: "Ana", URL: "https://example.com/1"}},
		},
		Skipped:   []*models.SkippedGenre{{Genre: "sleep", Reason: models.SkipNoTracks}},
		QueryTime: 7,
	}
}

func TestWriteRecommendations_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecommendations(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"Match 1: [Name: Gray Day by Ben](https://example.com/2)",
		"Match 2: [Name: Blue Rain by Ana](https://example.com/1)",
		"  skipped sleep: no_tracks",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestWriteRecommendations_NoMatch(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.RecommendResponse{NoMatch: true, Message: "try again"}
	if err := WriteRecommendations(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "try again" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestWriteRecommendations_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecommendations(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.RecommendResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Query != "I feel sad" || len(decoded.Tracks) != 2 || decoded.Tracks[0].Track.Name != "Gray Day" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWritePrediction(t *testing.T) {
	p := models.NewPrediction("xylophone dreams", []string{"xylophone dreams"}, []float64{1})
	p.Fallback, p.Added, p.VocabularySize = true, true, 19

	var buf bytes.Buffer
	if err := WritePrediction(&buf, p, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "1. xylophone dreams (1.0000)") {
		t.Errorf("missing genre line:\n%s", out)
	}
	if !strings.Contains(out, "now 19 genres") {
		t.Errorf("missing fallback note:\n%s", out)
	}

	buf.Reset()
	if err := WritePrediction(&buf, models.NewPrediction("qwzx", nil, nil), OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No confident genre match.") {
		t.Errorf("empty prediction output = %q", buf.String())
	}

	buf.Reset()
	if err := WritePrediction(&buf, p, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"vocabulary_size": 19`) {
		t.Errorf("json output = %s", buf.String())
	}
}

func TestWriteVocabulary(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVocabulary(&buf, []string{"pop", "rock"}, OutputText); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "pop\nrock\n" {
		t.Errorf("text = %q", buf.String())
	}
	buf.Reset()
	if err := WriteVocabulary(&buf, []string{"pop"}, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"size": 1`) {
		t.Errorf("json = %s", buf.String())
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestRunChat(t *testing.T) {
	var queries []string
	recommend := func(ctx context.Context, req *models.RecommendRequest) (*models.RecommendResponse, error) {
		queries = append(queries, req.Query)
		if req.K != 3 || req.TracksPerGenre != 2 {
			t.Errorf("request = %+v", req)
		}
		if req.Query == "broken" {
			return nil, errors.New("catalog down")
		}
		return sampleResponse(), nil
	}
	in := strings.NewReader("I feel sad\nbroken\n\nignored\n")
	var out bytes.Buffer
	if err := RunChat(context.Background(), in, &out, 3, 2, recommend); err != nil {
		t.Fatal(err)
	}
	if len(queries) != 2 || queries[0] != "I feel sad" || queries[1] != "broken" {
		t.Errorf("queries = %v", queries)
	}
	s := out.String()
	for _, want := range []string{chatWelcome, "Match 1: [Name: Gray Day by Ben]", "Error: catalog down", chatGoodbye} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestRunChat_EOF(t *testing.T) {
	var out bytes.Buffer
	err := RunChat(context.Background(), strings.NewReader(""), &out, 3, 2, func(context.Context, *models.RecommendRequest) (*models.RecommendResponse, error) {
		t.Fatal("recommend should not be called")
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), chatGoodbye) {
		t.Errorf("output = %q", out.String())
	}
}
