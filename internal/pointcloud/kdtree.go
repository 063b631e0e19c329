package pointcloud

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// indexedPoint is a kd-tree entry that remembers its position in the
// source slice.
type indexedPoint struct {
	r3.Vec
	idx int
}

// Compare returns the signed distance of p from the plane through c
// perpendicular to dimension d.
func (p *indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(*indexedPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		return p.Z - q.Z
	}
}

// Dims returns the number of dimensions.
func (p *indexedPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between p and c.
func (p *indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(*indexedPoint)
	return r3.Norm2(r3.Sub(p.Vec, q.Vec))
}

// indexedPoints implements kdtree.Interface.
type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable { return &p[i] }
func (p indexedPoints) Len() int                      { return len(p) }

// Pivot partitions the list based on the dimension specified.
func (p indexedPoints) Pivot(d kdtree.Dim) int {
	pl := pointPlane{points: p, dim: d}
	return kdtree.Partition(pl, kdtree.MedianOfMedians(pl))
}

// Slice returns a slice of the list using zero-based half
// open indexing equivalent to built-in slice indexing.
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

type pointPlane struct {
	points indexedPoints
	dim    kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	return p.points[i].Compare(&p.points[j], p.dim) < 0
}
func (p pointPlane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p pointPlane) Len() int      { return len(p.points) }
func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}

// SpatialIndex answers nearest-neighbour and radius queries over a fixed
// point set. It is never mutated after construction, so concurrent queries
// are safe.
type SpatialIndex struct {
	tree      *kdtree.Tree
	positions []r3.Vec
}

// NewSpatialIndex builds a balanced k-d tree over positions. The input
// slice is copied; later changes to it do not affect the index.
func NewSpatialIndex(positions []r3.Vec) *SpatialIndex {
	pos := make([]r3.Vec, len(positions))
	copy(pos, positions)
	si := &SpatialIndex{positions: pos}
	if len(pos) == 0 {
		return si
	}
	entries := make(indexedPoints, len(pos))
	for i, p := range pos {
		entries[i] = indexedPoint{Vec: p, idx: i}
	}
	si.tree = kdtree.New(entries, false)
	return si
}

// Len returns the number of indexed points.
func (si *SpatialIndex) Len() int { return len(si.positions) }

// Position returns the i'th indexed position.
func (si *SpatialIndex) Position(i int) r3.Vec { return si.positions[i] }

// Neighbor is a query result.
type Neighbor struct {
	Index int
	Dist2 float64
}

// KNearest returns up to k neighbours of q ordered by ascending distance.
// A point at q itself is included.
func (si *SpatialIndex) KNearest(q r3.Vec, k int) []Neighbor {
	if si.tree == nil || k <= 0 {
		return nil
	}
	keeper := kdtree.NewNKeeper(k)
	si.tree.NearestSet(keeper, &indexedPoint{Vec: q})
	return collect(keeper.Heap, math.Inf(1))
}

// Radius returns every neighbour within r of q ordered by ascending
// distance.
func (si *SpatialIndex) Radius(q r3.Vec, r float64) []Neighbor {
	if si.tree == nil || r <= 0 {
		return nil
	}
	keeper := kdtree.NewDistKeeper(r * r)
	si.tree.NearestSet(keeper, &indexedPoint{Vec: q})
	return collect(keeper.Heap, r*r)
}

// Hybrid returns at most k neighbours that are also within r of q: the
// count bound and the distance bound both apply.
func (si *SpatialIndex) Hybrid(q r3.Vec, r float64, k int) []Neighbor {
	if si.tree == nil || r <= 0 || k <= 0 {
		return nil
	}
	nb := si.KNearest(q, k)
	r2 := r * r
	cut := sort.Search(len(nb), func(i int) bool { return nb[i].Dist2 > r2 })
	return nb[:cut]
}

// collect drops keeper sentinels and sorts by distance then index so results
// are deterministic.
func collect(h kdtree.Heap, maxDist2 float64) []Neighbor {
	out := make([]Neighbor, 0, len(h))
	for _, cd := range h {
		if cd.Comparable == nil || cd.Dist > maxDist2 {
			continue
		}
		out = append(out, Neighbor{Index: cd.Comparable.(*indexedPoint).idx, Dist2: cd.Dist})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dist2 != out[j].Dist2 {
			return out[i].Dist2 < out[j].Dist2
		}
		return out[i].Index < out[j].Index
	})
	return out
}
