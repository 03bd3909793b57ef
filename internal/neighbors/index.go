// Package neighbors provides Euclidean k-nearest-neighbor search over the
// scaled feature rows of a reference dataset view.
package neighbors

import (
	"fmt"
	"math"
	"sort"

	"github.com/couchcryptid/wildfire-imputer/internal/dataset"
	"github.com/couchcryptid/wildfire-imputer/internal/scaler"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Neighbor is one search hit.
type Neighbor struct {
	// Row is the corpus position of the neighbor record.
	Row int

	// Distance is the Euclidean distance in scaled feature space.
	Distance float64
}

// Index is an immutable kd-tree over the scaled rows of a view.
type Index struct {
	view   *dataset.View
	scaled *mat.Dense
	tree   *kdtree.Tree
}

// Build scales the view's median-filled numeric rows and indexes them.
func Build(view *dataset.View, s *scaler.Scaler) (*Index, error) {
	ds := view.Dataset()
	dims := len(ds.Numeric())
	n := view.Len()

	idx := &Index{view: view}
	if n == 0 {
		return idx, nil
	}

	// A zero-width matrix is not representable; keep one constant column so
	// every row is equidistant.
	width := max(dims, 1)
	idx.scaled = mat.NewDense(n, width, nil)

	pts := make(points, n)
	for i := range n {
		row := ds.FilledRow(view.Row(i))
		if dims > 0 {
			scaled, err := s.Transform(row)
			if err != nil {
				return nil, fmt.Errorf("scale row %d: %w", view.Row(i), err)
			}
			idx.scaled.SetRow(i, scaled)
		}
		pts[i] = point{vec: idx.scaled.RawRowView(i), row: view.Row(i)}
	}

	idx.tree = kdtree.New(pts, false)
	return idx, nil
}

// Len returns the number of indexed rows.
func (x *Index) Len() int { return x.view.Len() }

// View returns the view the index was built from.
func (x *Index) View() *dataset.View { return x.view }

// Query returns the min(k, Len()) rows closest to the scaled query vector,
// ordered by ascending distance. Equidistant hits are ordered by corpus
// position. A non-positive k or an empty index returns nil.
func (x *Index) Query(q []float64, k int) []Neighbor {
	k = min(k, x.Len())
	if k <= 0 || x.tree == nil {
		return nil
	}

	qp := point{vec: q, row: -1}
	if len(q) == 0 {
		qp.vec = make([]float64, 1)
	}

	keeper := kdtree.NewNKeeper(k)
	x.tree.NearestSet(keeper, qp)

	out := make([]Neighbor, 0, keeper.Len())
	for _, c := range keeper.Heap {
		p, ok := c.Comparable.(point)
		if !ok {
			continue
		}
		out = append(out, Neighbor{Row: p.row, Distance: math.Sqrt(c.Dist)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Row < out[j].Row
	})
	return out
}
