package dataset

import (
	"math"
	"slices"

	"github.com/couchcryptid/wildfire-imputer/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func computeStats(ds *Dataset) Stats {
	stats := Stats{
		Medians:    make([]float64, len(ds.numeric)),
		PrefireP99: math.Inf(1),
		ZeroRatios: make(map[string]float64),
	}

	for j, name := range ds.numeric {
		med := Median(ds.columns[name])
		if math.IsNaN(med) {
			// An all-missing column scales to zero after filling.
			med = 0
		}
		stats.Medians[j] = med
	}

	if col, ok := ds.columns[domain.ColPrefireFuel]; ok {
		if q := Quantile(col, prefireQuantile); !math.IsNaN(q) {
			stats.PrefireP99 = q
		}
	}

	for _, name := range domain.SparseFractionColumns {
		col, ok := ds.columns[name]
		if !ok {
			continue
		}
		zeros := floats.Count(func(v float64) bool { return v == 0 }, col)
		stats.ZeroRatios[name] = float64(zeros) / float64(len(col))
	}

	return stats
}

// Median returns the NaN-skipping median of x, averaging the two middle
// values for even counts. It returns NaN when x has no finite values.
func Median(x []float64) float64 {
	return Quantile(x, 0.5)
}

// Quantile returns the NaN-skipping p-quantile of x using linear
// interpolation between closest ranks: the value at position p*(n-1) of the
// sorted sample. It returns NaN when x has no finite values.
func Quantile(x []float64, p float64) float64 {
	vals := finite(x)
	if len(vals) == 0 {
		return math.NaN()
	}
	slices.Sort(vals)

	pos := p * float64(len(vals)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return vals[lo]
	}
	frac := pos - float64(lo)
	return vals[lo] + frac*(vals[hi]-vals[lo])
}

// finite returns a copy of x without NaN and infinite values.
func finite(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Mean returns the NaN-skipping mean of x, or NaN when x has no finite values.
func Mean(x []float64) float64 {
	vals := finite(x)
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}
