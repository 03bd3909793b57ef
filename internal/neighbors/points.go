package neighbors

import "gonum.org/v1/gonum/spatial/kdtree"

// point is a scaled feature vector tagged with its corpus position.
type point struct {
	vec []float64
	row int
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.vec[d] - c.(point).vec[d]
}

func (p point) Dims() int { return len(p.vec) }

// Distance returns the squared Euclidean distance.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	var sum float64
	for i, v := range p.vec {
		d := v - q.vec[i]
		sum += d * d
	}
	return sum
}

type points []point

func (p points) Index(i int) kdtree.Comparable { return p[i] }
func (p points) Len() int                     { return len(p) }

func (p points) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

func (p points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{points: p, dim: d}, kdtree.MedianOfMedians(plane{points: p, dim: d}))
}

// plane orders points along one dimension for median selection.
type plane struct {
	points
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool { return p.points[i].vec[p.dim] < p.points[j].vec[p.dim] }
func (p plane) Swap(i, j int)      { p.points[i], p.points[j] = p.points[j], p.points[i] }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
