// Package scaler standardizes neighbor-space features to zero mean and unit
// variance using parameters fit once over the reference corpus.
package scaler

import (
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/wildfire-imputer/internal/dataset"
	"gonum.org/v1/gonum/stat"
)

// ErrDimension is returned when a vector does not match the fitted features.
var ErrDimension = errors.New("feature vector dimension mismatch")

// Scaler holds per-feature mean and standard deviation. It is immutable
// after Fit and safe for concurrent use.
type Scaler struct {
	features []string
	means    []float64
	stds     []float64
}

// Params is the persisted form of a fitted scaler.
type Params struct {
	Features []string  `json:"features"`
	Means    []float64 `json:"means"`
	Stds     []float64 `json:"stds"`
}

// Fit computes population mean and standard deviation for every numeric
// feature of the dataset after filling missing values with the corpus
// medians. Features with zero or non-finite spread get a scale of 1.
func Fit(ds *dataset.Dataset) *Scaler {
	features := ds.Numeric()
	s := &Scaler{
		features: features,
		means:    make([]float64, len(features)),
		stds:     make([]float64, len(features)),
	}

	medians := ds.Stats().Medians
	col := make([]float64, ds.Len())
	for j, name := range features {
		raw, _ := ds.Column(name)
		for i, v := range raw {
			if math.IsNaN(v) {
				v = medians[j]
			}
			col[i] = v
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.means[j] = mean
		s.stds[j] = safeScale(std)
	}
	return s
}

// FromParams restores a scaler from persisted parameters.
func FromParams(p Params) (*Scaler, error) {
	if len(p.Means) != len(p.Features) || len(p.Stds) != len(p.Features) {
		return nil, fmt.Errorf("%w: %d features, %d means, %d stds",
			ErrDimension, len(p.Features), len(p.Means), len(p.Stds))
	}
	s := &Scaler{
		features: p.Features,
		means:    p.Means,
		stds:     make([]float64, len(p.Stds)),
	}
	for j, std := range p.Stds {
		s.stds[j] = safeScale(std)
	}
	return s, nil
}

func safeScale(std float64) float64 {
	if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
		return 1
	}
	return std
}

// Params returns the persisted form of the scaler.
func (s *Scaler) Params() Params {
	return Params{Features: s.features, Means: s.means, Stds: s.stds}
}

// Features returns the feature order the scaler was fit with.
func (s *Scaler) Features() []string { return s.features }

// Transform returns (x - mean) / std elementwise. x must follow the fitted
// feature order.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.means) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(x), len(s.means))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.means[j]) / s.stds[j]
	}
	return out, nil
}
