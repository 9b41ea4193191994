package models

import "fmt"

const (
	// DefaultK is the number of genres requested when none is given.
	DefaultK = 3
	// MaxK caps the number of genres a request may ask for.
	MaxK = 10
	// DefaultTracksPerGenre is the number of tracks fetched per genre.
	DefaultTracksPerGenre = 2
	// MaxTracksPerGenre caps tracks per genre.
	MaxTracksPerGenre = 50
)

// SkipReason explains why a predicted genre contributed no tracks.
type SkipReason string

const (
	// SkipNoTracks means the catalog returned zero tracks for the genre.
	SkipNoTracks SkipReason = "no_tracks"
	// SkipLookupFailed means the catalog lookup for the genre failed.
	SkipLookupFailed SkipReason = "lookup_failed"
)

// PredictRequest asks for genre labels for a mood.
type PredictRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// Limits are the request defaults and caps applied by Validate.
type Limits struct {
	DefaultK              int
	MaxK                  int
	DefaultTracksPerGenre int
	MaxTracksPerGenre     int
}

// DefaultLimits returns the built-in defaults and caps.
func DefaultLimits() Limits {
	return Limits{
		DefaultK:              DefaultK,
		MaxK:                  MaxK,
		DefaultTracksPerGenre: DefaultTracksPerGenre,
		MaxTracksPerGenre:     MaxTracksPerGenre,
	}
}

// orDefaults replaces non-positive fields with the built-in values.
func (l Limits) orDefaults() Limits {
	d := DefaultLimits()
	if l.DefaultK <= 0 {
		l.DefaultK = d.DefaultK
	}
	if l.MaxK <= 0 {
		l.MaxK = d.MaxK
	}
	if l.DefaultTracksPerGenre <= 0 {
		l.DefaultTracksPerGenre = d.DefaultTracksPerGenre
	}
	if l.MaxTracksPerGenre <= 0 {
		l.MaxTracksPerGenre = d.MaxTracksPerGenre
	}
	return l
}

// Validate applies DefaultLimits.
func (r *PredictRequest) Validate() error {
	return r.ValidateWith(DefaultLimits())
}

// ValidateWith defaults and caps K from l. The query may be empty.
func (r *PredictRequest) ValidateWith(l Limits) error {
	k, err := normalizeK(r.K, l.orDefaults())
	if err != nil {
		return err
	}
	r.K = k
	return nil
}

// RecommendRequest asks for tracks matching a mood.
type RecommendRequest struct {
	Query          string `json:"query"`
	K              int    `json:"k,omitempty"`
	TracksPerGenre int    `json:"tracks_per_genre,omitempty"`
}

// Validate applies DefaultLimits.
func (r *RecommendRequest) Validate() error {
	return r.ValidateWith(DefaultLimits())
}

// ValidateWith defaults and caps K and TracksPerGenre from l.
// Returns an error for negative values.
func (r *RecommendRequest) ValidateWith(l Limits) error {
	l = l.orDefaults()
	k, err := normalizeK(r.K, l)
	if err != nil {
		return err
	}
	r.K = k
	if r.TracksPerGenre < 0 {
		return fmt.Errorf("tracks_per_genre cannot be negative")
	}
	if r.TracksPerGenre == 0 {
		r.TracksPerGenre = l.DefaultTracksPerGenre
	}
	r.TracksPerGenre = min(r.TracksPerGenre, l.MaxTracksPerGenre)
	return nil
}

func normalizeK(k int, l Limits) (int, error) {
	if k < 0 {
		return 0, fmt.Errorf("k cannot be negative")
	}
	if k == 0 {
		k = l.DefaultK
	}
	return min(k, l.MaxK), nil
}

// TrackMatch is a track together with the genre that produced it.
type TrackMatch struct {
	Rank  int     `json:"rank"`
	Genre string  `json:"genre"`
	Score float64 `json:"score"`
	Track *Track  `json:"track"`
}

// SkippedGenre records a predicted genre that yielded no tracks.
type SkippedGenre struct {
	Genre  string     `json:"genre"`
	Reason SkipReason `json:"reason"`
	Error  string     `json:"error,omitempty"`
}

// RecommendResponse is the result of a recommendation request.
type RecommendResponse struct {
	Query    string          `json:"query"`
	Genres   []GenreScore    `json:"genres"`
	Tracks   []*TrackMatch   `json:"tracks"`
	Skipped  []*SkippedGenre `json:"skipped,omitempty"`
	Fallback bool            `json:"fallback"`
	// NoMatch is set when no genre matched or no genre produced tracks.
	NoMatch   bool   `json:"no_match"`
	Message   string `json:"message,omitempty"`
	QueryTime int64  `json:"query_time_ms"`
}
