package pointcloud

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

// DefaultOrientK is the neighbourhood size of the orientation graph.
const DefaultOrientK = 15

// orientEpsilon keeps edge weights strictly positive so parallel normals
// still form a connected spanning tree.
const orientEpsilon = 1e-6

// OrientStats summarises an orientation pass.
type OrientStats struct {
	Components int // Spanning trees in the forest
	Flipped    int // Normals whose sign changed
	Skipped    int // Points left untouched because their normal is zero or absent
}

// OrientNormals makes neighbouring normals agree in sign. It links every
// point that has a non-zero normal to its k nearest such points, weights
// each link by 1-|n_i·n_j| and extracts a minimum spanning forest. Each tree
// is rooted at the point farthest from the tree centroid, whose normal is
// turned to face away from the centroid; the sign then propagates
// breadth-first, flipping a child when it disagrees with its parent.
//
// Orientation is consistent inside a tree, not across trees.
func OrientNormals(pc *geom.PointCloud, k int) (*geom.PointCloud, OrientStats, error) {
	var stats OrientStats
	if k < 1 {
		return nil, stats, fmt.Errorf("%w: orientation k must be >= 1, got %d", geom.ErrInvalidParameter, k)
	}
	out := pc.Clone()
	if out.Len() == 0 {
		return out, stats, nil
	}
	if err := out.Validate(); err != nil {
		return nil, stats, err
	}

	// Only points with a usable normal take part; ids maps graph ids back to
	// cloud indices.
	ids := make([]int, 0, out.Len())
	for i, p := range out.Points {
		if !p.HasNormal || geom.IsZero(p.Normal) {
			stats.Skipped++
			continue
		}
		ids = append(ids, i)
	}
	if len(ids) == 0 {
		return out, stats, nil
	}

	positions := make([]r3.Vec, len(ids))
	for g, i := range ids {
		positions[g] = out.Points[i].Position
	}
	index := NewSpatialIndex(positions)

	// Edges are ranked by (weight, lo, hi) and the rank is what Kruskal sees,
	// so equal weights cannot make the forest depend on map order.
	seen := make(map[[2]int]bool, len(ids)*k)
	var edges []orientEdge
	for g, i := range ids {
		ni := out.Points[i].Normal
		for _, nb := range index.KNearest(positions[g], k+1) {
			if nb.Index == g {
				continue
			}
			key := [2]int{min(g, nb.Index), max(g, nb.Index)}
			if seen[key] {
				continue
			}
			seen[key] = true
			nj := out.Points[ids[nb.Index]].Normal
			edges = append(edges, orientEdge{lo: key[0], hi: key[1], w: 1 - math.Abs(r3.Dot(ni, nj)) + orientEpsilon})
		}
	}
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].w != edges[b].w {
			return edges[a].w < edges[b].w
		}
		if edges[a].lo != edges[b].lo {
			return edges[a].lo < edges[b].lo
		}
		return edges[a].hi < edges[b].hi
	})

	knn := simple.NewWeightedUndirectedGraph(0, 0)
	for g := range ids {
		knn.AddNode(simple.Node(g))
	}
	for rank, e := range edges {
		knn.SetWeightedEdge(knn.NewWeightedEdge(simple.Node(e.lo), simple.Node(e.hi), float64(rank+1)))
	}

	mst := simple.NewWeightedUndirectedGraph(0, 0)
	path.Kruskal(mst, knn)

	visited := make([]bool, len(ids))
	for seed := range ids {
		if visited[seed] {
			continue
		}
		stats.Components++
		members := collectTree(mst, seed, visited)
		root := farthestFromCentroid(positions, members)
		stats.Flipped += propagate(out, ids, positions, mst, members, root)
	}
	return out, stats, nil
}

// orientEdge is a k-NN link between two graph ids, lo < hi.
type orientEdge struct {
	lo, hi int
	w      float64
}

// adjacent returns the tree neighbours of id in ascending order.
func adjacent(mst *simple.WeightedUndirectedGraph, id int) []int {
	var out []int
	for _, n := range graph.NodesOf(mst.From(int64(id))) {
		out = append(out, int(n.ID()))
	}
	sort.Ints(out)
	return out
}

// collectTree returns the nodes reachable from seed and marks them visited.
func collectTree(mst *simple.WeightedUndirectedGraph, seed int, visited []bool) []int {
	members := []int{seed}
	visited[seed] = true
	for q := 0; q < len(members); q++ {
		for _, id := range adjacent(mst, members[q]) {
			if !visited[id] {
				visited[id] = true
				members = append(members, id)
			}
		}
	}
	return members
}

// farthestFromCentroid picks the tree root. Ties keep the earliest member.
func farthestFromCentroid(positions []r3.Vec, members []int) (root int) {
	var c r3.Vec
	for _, m := range members {
		c = r3.Add(c, positions[m])
	}
	c = r3.Scale(1/float64(len(members)), c)
	best := -1.0
	for _, m := range members {
		if d := r3.Norm2(r3.Sub(positions[m], c)); d > best {
			best, root = d, m
		}
	}
	return root
}

// propagate orients one tree in place and returns the number of flips.
func propagate(out *geom.PointCloud, ids []int, positions []r3.Vec, mst *simple.WeightedUndirectedGraph, members []int, root int) int {
	flipped := 0
	flip := func(g int) {
		p := &out.Points[ids[g]]
		p.Normal = r3.Scale(-1, p.Normal)
		flipped++
	}

	if len(members) > 1 {
		var c r3.Vec
		for _, m := range members {
			c = r3.Add(c, positions[m])
		}
		c = r3.Scale(1/float64(len(members)), c)
		if r3.Dot(out.Points[ids[root]].Normal, r3.Sub(positions[root], c)) < 0 {
			flip(root)
		}
	}

	seen := map[int]bool{root: true}
	queue := []int{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		pn := out.Points[ids[parent]].Normal
		for _, child := range adjacent(mst, parent) {
			if seen[child] {
				continue
			}
			seen[child] = true
			if r3.Dot(pn, out.Points[ids[child]].Normal) < 0 {
				flip(child)
			}
			queue = append(queue, child)
		}
	}
	return flipped
}
