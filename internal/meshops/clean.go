package meshops

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

const (
	// DefaultMergeEpsilon is the vertex merge tolerance relative to the
	// bounding box diagonal.
	DefaultMergeEpsilon = 1e-9
	// minMergeEpsilon floors the absolute merge tolerance.
	minMergeEpsilon = 1e-12
)

// CleanParams controls Clean.
type CleanParams struct {
	MergeEpsilon float64 // Relative to the bounding box diagonal
}

// DefaultCleanParams returns the defaults used by the reconstruct command.
func DefaultCleanParams() CleanParams {
	return CleanParams{MergeEpsilon: DefaultMergeEpsilon}
}

// CleanStats counts what Clean removed.
type CleanStats struct {
	DegenerateTriangles  int
	DuplicateTriangles   int
	MergedVertices       int
	NonManifoldTriangles int
	UnreferencedVertices int
}

// Clean repairs common defects. In order it removes degenerate triangles,
// duplicate triangles, duplicate vertices (followed by another degenerate
// and duplicate triangle pass), triangles beyond the two largest on every
// non-manifold edge and vertices no triangle references. Vertex normals are
// recomputed. Running Clean on its own output changes nothing.
func Clean(m *geom.Mesh, p CleanParams) (*geom.Mesh, CleanStats, error) {
	var stats CleanStats
	if math.IsNaN(p.MergeEpsilon) || p.MergeEpsilon < 0 || math.IsInf(p.MergeEpsilon, 0) {
		return nil, stats, fmt.Errorf("%w: merge epsilon must be finite and >= 0, got %g", geom.ErrInvalidParameter, p.MergeEpsilon)
	}
	if err := validateIndices(m); err != nil {
		return nil, stats, err
	}
	out := m.Clone()
	if out.VertexCount() == 0 {
		return out, stats, nil
	}

	eps := mergeTolerance(out, p.MergeEpsilon)

	stats.DegenerateTriangles += removeDegenerate(out, eps)
	stats.DuplicateTriangles += removeDuplicates(out)
	stats.MergedVertices = mergeVertices(out, eps)
	if stats.MergedVertices > 0 {
		stats.DegenerateTriangles += removeDegenerate(out, eps)
		stats.DuplicateTriangles += removeDuplicates(out)
	}
	stats.NonManifoldTriangles = removeNonManifold(out)

	before := out.VertexCount()
	out = out.Compact()
	stats.UnreferencedVertices = before - out.VertexCount()

	return out.ComputeVertexNormals(), stats, nil
}

// validateIndices checks bounds and finiteness but, unlike Mesh.Validate,
// accepts triangles that repeat a vertex so Clean can remove them.
func validateIndices(m *geom.Mesh) error {
	n := m.VertexCount()
	for i, v := range m.Vertices {
		if !geom.IsFinite(v.Position) {
			return fmt.Errorf("%w: vertex %d has non-finite position", geom.ErrInvalidParameter, i)
		}
	}
	for i, t := range m.Triangles {
		for _, idx := range t {
			if idx < 0 || idx >= n {
				return fmt.Errorf("%w: triangle %d index %d out of range [0,%d)", geom.ErrInvalidParameter, i, idx, n)
			}
		}
	}
	return nil
}

// mergeTolerance converts the relative epsilon to an absolute length. The
// diagonal is taken over vertices that a non-degenerate triangle uses, the
// set Clean keeps, so a cleaned mesh yields the same tolerance again.
func mergeTolerance(m *geom.Mesh, rel float64) float64 {
	var box r3.Box
	found := false
	for _, t := range m.Triangles {
		if t.Degenerate() {
			continue
		}
		for _, idx := range t {
			p := m.Vertices[idx].Position
			if !found {
				box = r3.Box{Min: p, Max: p}
				found = true
				continue
			}
			box.Min = r3.Vec{X: math.Min(box.Min.X, p.X), Y: math.Min(box.Min.Y, p.Y), Z: math.Min(box.Min.Z, p.Z)}
			box.Max = r3.Vec{X: math.Max(box.Max.X, p.X), Y: math.Max(box.Max.Y, p.Y), Z: math.Max(box.Max.Z, p.Z)}
		}
	}
	if !found {
		return minMergeEpsilon
	}
	diag := r3.Norm(r3.Sub(box.Max, box.Min))
	return math.Max(rel*diag, minMergeEpsilon)
}

func removeDegenerate(m *geom.Mesh, eps float64) int {
	minArea := eps * eps
	kept := m.Triangles[:0]
	removed := 0
	for _, t := range m.Triangles {
		if t.Degenerate() || m.TriangleArea(t) <= minArea {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	m.Triangles = kept
	return removed
}

func sortedKey(t geom.Triangle) [3]int {
	k := [3]int(t)
	sort.Ints(k[:])
	return k
}

// removeDuplicates keeps the first triangle of every vertex set regardless
// of winding.
func removeDuplicates(m *geom.Mesh) int {
	seen := make(map[[3]int]struct{}, len(m.Triangles))
	kept := m.Triangles[:0]
	removed := 0
	for _, t := range m.Triangles {
		k := sortedKey(t)
		if _, ok := seen[k]; ok {
			removed++
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, t)
	}
	m.Triangles = kept
	return removed
}

type quantKey struct {
	X, Y, Z int64
}

// mergeVertices points triangles at the first vertex of every group of
// positions that quantise to the same eps cell. Vertices themselves stay
// until Compact.
func mergeVertices(m *geom.Mesh, eps float64) int {
	first := make(map[quantKey]int, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	merged := 0
	for i, v := range m.Vertices {
		k := quantKey{
			X: int64(math.Round(v.Position.X / eps)),
			Y: int64(math.Round(v.Position.Y / eps)),
			Z: int64(math.Round(v.Position.Z / eps)),
		}
		if j, ok := first[k]; ok {
			remap[i] = j
			merged++
			continue
		}
		first[k] = i
		remap[i] = i
	}
	if merged == 0 {
		return 0
	}
	for i, t := range m.Triangles {
		m.Triangles[i] = geom.Triangle{remap[t[0]], remap[t[1]], remap[t[2]]}
	}
	return merged
}

// removeNonManifold visits edges in sorted order and, where more than two
// live triangles share an edge, keeps the two largest. Equal areas favour
// the earlier triangle.
func removeNonManifold(m *geom.Mesh) int {
	ef := m.EdgeFaces()
	edges := make([]geom.Edge, 0)
	for e, faces := range ef {
		if len(faces) > 2 {
			edges = append(edges, e)
		}
	}
	if len(edges) == 0 {
		return 0
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A < edges[j].A
		}
		return edges[i].B < edges[j].B
	})

	dead := make([]bool, len(m.Triangles))
	removed := 0
	for _, e := range edges {
		live := make([]int, 0, len(ef[e]))
		for _, f := range ef[e] {
			if !dead[f] {
				live = append(live, f)
			}
		}
		if len(live) <= 2 {
			continue
		}
		sort.SliceStable(live, func(i, j int) bool {
			return m.TriangleArea(m.Triangles[live[i]]) > m.TriangleArea(m.Triangles[live[j]])
		})
		for _, f := range live[2:] {
			dead[f] = true
			removed++
		}
	}

	kept := m.Triangles[:0]
	for i, t := range m.Triangles {
		if !dead[i] {
			kept = append(kept, t)
		}
	}
	m.Triangles = kept
	return removed
}
