// Package cli provides CLI output and the interactive chat loop for tinybeatz.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/tinybeatz/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json" (case-insensitive); empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(OutputText):
		return OutputText, nil
	case string(OutputJSON):
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WritePrediction writes predicted genres to w in the given format.
func WritePrediction(w io.Writer, p *models.Prediction, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, p)
	}
	if len(p.Genres) == 0 {
		fmt.Fprintln(w, "No confident genre match.")
	}
	for i, g := range p.Genres {
		fmt.Fprintf(w, "%d. %s (%.4f)\n", i+1, g.Genre, g.Score)
	}
	if p.Fallback {
		if p.Added {
			fmt.Fprintf(w, "(added %q to the vocabulary, now %d genres)\n", p.Query, p.VocabularySize)
		} else {
			fmt.Fprintf(w, "(retried with the query as a genre, %d genres)\n", p.VocabularySize)
		}
	}
	return nil
}

// WriteRecommendations writes recommended tracks to w in the given format.
// Text output lists one "Match N: [Name: x by y](url)" line per track.
func WriteRecommendations(w io.Writer, resp *models.RecommendResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	if resp.NoMatch {
		fmt.Fprintln(w, resp.Message)
	}
	for _, m := range resp.Tracks {
		fmt.Fprintln(w, FormatMatch(m))
	}
	for _, s := range resp.Skipped {
		if s.Error != "" {
			fmt.Fprintf(w, "  skipped %s: %s (%s)\n", s.Genre, s.Reason, s.Error)
		} else {
			fmt.Fprintf(w, "  skipped %s: %s\n", s.Genre, s.Reason)
		}
	}
	return nil
}

// FormatMatch renders one track match as a markdown link line.
func FormatMatch(m *models.TrackMatch) string {
	return fmt.Sprintf("Match %d: [Name: %s by %s](%s)", m.Rank, m.Track.Name, m.Track.Artist, m.Track.URL)
}

// WriteVocabulary writes the genre vocabulary, one label per line, or as JSON.
func WriteVocabulary(w io.Writer, labels []string, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"genres": labels, "size": len(labels)})
	}
	for _, l := range labels {
		fmt.Fprintln(w, l)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
