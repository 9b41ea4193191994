// Package models defines the data exchanged between the genre engine, the
// track catalog, the history log and the API.
package models

// Track is one catalog result for a genre.
type Track struct {
	ID         string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name       string   `json:"name" yaml:"name"`
	Artist     string   `json:"artist" yaml:"artist"`
	URL        string   `json:"url" yaml:"url"`
	ImageURL   string   `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Popularity int      `json:"popularity" yaml:"popularity"`
	Genres     []string `json:"genres,omitempty" yaml:"genres,omitempty"`
}

// GenreScore is one predicted genre label with its cosine similarity.
type GenreScore struct {
	Genre string  `json:"genre"`
	Score float64 `json:"score"`
}

// Prediction is the API shape of a genre prediction.
type Prediction struct {
	Query          string       `json:"query"`
	Genres         []GenreScore `json:"genres"`
	Fallback       bool         `json:"fallback"`
	Added          bool         `json:"added"`
	VocabularySize int          `json:"vocabulary_size"`
}

// NewPrediction zips parallel label and score slices.
func NewPrediction(query string, labels []string, scores []float64) *Prediction {
	p := &Prediction{Query: query, Genres: make([]GenreScore, len(labels))}
	for i, l := range labels {
		p.Genres[i] = GenreScore{Genre: l, Score: scores[i]}
	}
	return p
}
