package poisson

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// sample is an oriented point inside the domain.
type sample struct {
	pos    r3.Vec
	normal r3.Vec
}

// domain is the cube the reconstruction lives in.
type domain struct {
	origin r3.Vec // Minimum corner
	size   float64
}

// cellWidth returns the edge of a cell at depth d.
func (dm domain) cellWidth(d int) float64 {
	return dm.size / float64(int(1)<<d)
}

// octreeNode is one node of the adaptive sample octree.
type octreeNode struct {
	children [8]int32 // -1 when absent
	depth    int
	count    int
}

// octree partitions samples adaptively: a node splits while it is shallower
// than the maximum depth and holds at least samplesPerNode samples.
type octree struct {
	nodes      []octreeNode
	leaves     int
	leafDepths []int // Per sample, depth of its leaf
	maxDepth   int   // Deepest leaf
}

func buildOctree(dm domain, samples []sample, depth int, samplesPerNode float64) *octree {
	ot := &octree{leafDepths: make([]int, len(samples))}
	idx := make([]int, len(samples))
	for i := range idx {
		idx[i] = i
	}
	ot.build(dm.origin, dm.size, 0, idx, samples, depth, samplesPerNode)
	return ot
}

func (ot *octree) build(corner r3.Vec, size float64, depth int, idx []int, samples []sample, limit int, spn float64) int32 {
	id := int32(len(ot.nodes))
	ot.nodes = append(ot.nodes, octreeNode{children: [8]int32{-1, -1, -1, -1, -1, -1, -1, -1}, depth: depth, count: len(idx)})

	if depth >= limit || float64(len(idx)) < spn {
		ot.leaves++
		ot.maxDepth = max(ot.maxDepth, depth)
		for _, i := range idx {
			ot.leafDepths[i] = depth
		}
		return id
	}

	half := size / 2
	mid := r3.Add(corner, r3.Vec{X: half, Y: half, Z: half})
	var buckets [8][]int
	for _, i := range idx {
		o := octant(samples[i].pos, mid)
		buckets[o] = append(buckets[o], i)
	}
	for o, b := range buckets {
		if len(b) == 0 {
			continue
		}
		cmin := corner
		if o&1 != 0 {
			cmin.X += half
		}
		if o&2 != 0 {
			cmin.Y += half
		}
		if o&4 != 0 {
			cmin.Z += half
		}
		child := ot.build(cmin, half, depth+1, b, samples, limit, spn)
		ot.nodes[id].children[o] = child
	}
	return id
}

func octant(p, mid r3.Vec) int {
	o := 0
	if p.X >= mid.X {
		o |= 1
	}
	if p.Y >= mid.Y {
		o |= 2
	}
	if p.Z >= mid.Z {
		o |= 4
	}
	return o
}

// medianLeafDepth returns the lower median of the per-sample leaf depths.
func (ot *octree) medianLeafDepth() int {
	if len(ot.leafDepths) == 0 {
		return 0
	}
	ds := make([]int, len(ot.leafDepths))
	copy(ds, ot.leafDepths)
	sort.Ints(ds)
	return ds[(len(ds)-1)/2]
}

// solveDepth picks the finest cascade level.
func solveDepth(p Params, dm domain, ot *octree) int {
	lo := min(coarseDepth, p.Depth)
	d := ot.medianLeafDepth()
	if p.Width > 0 {
		d = int(math.Ceil(math.Log2(dm.size / p.Width)))
	}
	return max(lo, min(d, p.Depth))
}
