// Package artifact persists a trained imputation model as a single JSON
// document and loads it back once per process.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/wildfire-imputer/internal/dataset"
	"github.com/couchcryptid/wildfire-imputer/internal/domain"
	"github.com/couchcryptid/wildfire-imputer/internal/imputer"
	"github.com/couchcryptid/wildfire-imputer/internal/scaler"
	"github.com/goccy/go-json"
)

// FormatVersion is the artifact layout written by Encode.
const FormatVersion = 1

// ErrVersion is returned when an artifact was written in an unknown layout.
var ErrVersion = errors.New("unsupported artifact version")

// document is the persisted form of a model. The kd-tree is not stored; it
// is rebuilt from the scaler parameters on load.
type document struct {
	Version   int             `json:"version"`
	TrainedAt time.Time       `json:"trained_at"`
	Schema    domain.Schema   `json:"schema"`
	Records   []domain.Record `json:"records"`
	Stats     stats           `json:"stats"`
	Scaler    scaler.Params   `json:"scaler"`
}

// stats mirrors dataset.Stats with the unbounded p99 encoded as null.
type stats struct {
	Medians    []float64          `json:"medians"`
	PrefireP99 *float64           `json:"prefire_p99"`
	ZeroRatios map[string]float64 `json:"zero_ratios"`
}

// Encode writes the model as JSON.
func Encode(w io.Writer, m *imputer.Model) error {
	ds := m.Dataset
	records := make([]domain.Record, ds.Len())
	for i, rec := range ds.Records() {
		records[i] = rec.Clone().Finite()
	}

	s := ds.Stats()
	doc := document{
		Version:   FormatVersion,
		TrainedAt: m.TrainedAt,
		Schema:    ds.Schema(),
		Records:   records,
		Stats: stats{
			Medians:    s.Medians,
			ZeroRatios: s.ZeroRatios,
		},
		Scaler: m.Scaler.Params(),
	}
	if !math.IsInf(s.PrefireP99, 0) && !math.IsNaN(s.PrefireP99) {
		p99 := s.PrefireP99
		doc.Stats.PrefireP99 = &p99
	}

	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return nil
}

// Decode reads a model written by Encode and rebuilds its global index.
func Decode(r io.Reader) (*imputer.Model, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}

	s := dataset.Stats{
		Medians:    doc.Stats.Medians,
		PrefireP99: math.Inf(1),
		ZeroRatios: doc.Stats.ZeroRatios,
	}
	if doc.Stats.PrefireP99 != nil {
		s.PrefireP99 = *doc.Stats.PrefireP99
	}

	ds, err := dataset.Restore(doc.Schema, doc.Records, s)
	if err != nil {
		return nil, fmt.Errorf("restore dataset: %w", err)
	}
	sc, err := scaler.FromParams(doc.Scaler)
	if err != nil {
		return nil, fmt.Errorf("restore scaler: %w", err)
	}
	if len(sc.Features()) != len(ds.Numeric()) {
		return nil, fmt.Errorf("restore scaler: %w: %d scaler features for %d numeric features",
			scaler.ErrDimension, len(sc.Features()), len(ds.Numeric()))
	}
	return imputer.NewModel(ds, sc, doc.TrainedAt)
}

// Save writes the model to path, creating parent directories. The file is
// written to a temporary sibling and renamed so readers never see a partial
// artifact.
func Save(path string, m *imputer.Model) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if err := Encode(tmp, m); err != nil {
		tmp.Close() //nolint:errcheck,gosec // encode error takes precedence
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// Load reads a model from path.
func Load(path string) (*imputer.Model, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	return Decode(f)
}
