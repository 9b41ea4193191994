// Package storage records recommendation history: each mood query and the
// tracks returned for it.
package storage

import (
	"context"

	"github.com/hyperjump/tinybeatz/internal/models"
)

// HistoryStore persists queries and their outputs.
type HistoryStore interface {
	// AppendInput records a query and returns its generated id.
	AppendInput(ctx context.Context, query string, k int) (string, error)
	// AppendOutput records one track returned for an input.
	AppendOutput(ctx context.Context, inputID, genre string, score float64, track *models.Track) error
	// AppendOutputs records several tracks for an input in one transaction.
	AppendOutputs(ctx context.Context, inputID string, matches []*models.TrackMatch) error

	CountInputs(ctx context.Context) (int64, error)
	CountOutputs(ctx context.Context) (int64, error)

	Close() error
}
