// Package imputer fills missing attributes of a partial wildfire-event
// record from its nearest historical neighbors and enforces the derived
// feature and consistency rules downstream models rely on.
package imputer

import (
	"fmt"
	"time"

	"github.com/couchcryptid/wildfire-imputer/internal/dataset"
	"github.com/couchcryptid/wildfire-imputer/internal/domain"
	"github.com/couchcryptid/wildfire-imputer/internal/neighbors"
	"github.com/couchcryptid/wildfire-imputer/internal/scaler"
)

// Model is the trained unit: the reference corpus, its fitted scaler and the
// global neighbor index. It is immutable and shared by every call.
type Model struct {
	Dataset   *dataset.Dataset
	Scaler    *scaler.Scaler
	Index     *neighbors.Index
	TrainedAt time.Time
}

// Train builds the reference dataset, fits the scaler and indexes the full
// corpus.
func Train(schema domain.Schema, records []domain.Record) (*Model, error) {
	ds, err := dataset.Build(schema, records)
	if err != nil {
		return nil, fmt.Errorf("build reference dataset: %w", err)
	}
	return NewModel(ds, scaler.Fit(ds), domain.Now())
}

// NewModel binds a dataset and a fitted scaler and builds the global index.
func NewModel(ds *dataset.Dataset, s *scaler.Scaler, trainedAt time.Time) (*Model, error) {
	idx, err := neighbors.Build(ds.Full(), s)
	if err != nil {
		return nil, fmt.Errorf("build global index: %w", err)
	}
	return &Model{Dataset: ds, Scaler: s, Index: idx, TrainedAt: trainedAt}, nil
}
