// Package catalog fetches tracks for a genre label from Spotify or a local
// bleve-indexed track list.
package catalog

import (
	"context"
	"errors"
	"sort"

	"github.com/hyperjump/tinybeatz/internal/models"
)

// ErrCredentialsMissing is returned when the Spotify client id or secret is not configured.
var ErrCredentialsMissing = errors.New("catalog credentials missing")

// Catalog returns tracks for a genre label.
type Catalog interface {
	// FetchTracks returns at most limit tracks for genre, most popular first.
	// A blank genre or an unknown genre returns no tracks and no error.
	FetchTracks(ctx context.Context, genre string, limit int) ([]*models.Track, error)
	// Name identifies the backend in status output.
	Name() string
}

// sortByPopularity orders tracks by popularity descending, keeping the
// existing order among equal popularity.
func sortByPopularity(tracks []*models.Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		return tracks[i].Popularity > tracks[j].Popularity
	})
}
