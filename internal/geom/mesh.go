package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vertex is a mesh vertex. Normal and Density are meaningful only when the
// owning Mesh sets HasNormals / HasDensity.
type Vertex struct {
	Position r3.Vec
	Normal   r3.Vec
	Density  float64
}

// Triangle holds three vertex indices in winding order.
type Triangle [3]int

// Mesh is an indexed triangle mesh.
type Mesh struct {
	Vertices   []Vertex
	Triangles  []Triangle
	HasNormals bool
	HasDensity bool
}

// Clone returns a deep copy of m.
func (m *Mesh) Clone() *Mesh {
	if m == nil {
		return &Mesh{}
	}
	out := &Mesh{
		Vertices:   make([]Vertex, len(m.Vertices)),
		Triangles:  make([]Triangle, len(m.Triangles)),
		HasNormals: m.HasNormals,
		HasDensity: m.HasDensity,
	}
	copy(out.Vertices, m.Vertices)
	copy(out.Triangles, m.Triangles)
	return out
}

// VertexCount returns the number of vertices; nil safe.
func (m *Mesh) VertexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Vertices)
}

// TriangleCount returns the number of triangles; nil safe.
func (m *Mesh) TriangleCount() int {
	if m == nil {
		return 0
	}
	return len(m.Triangles)
}

// Positions returns vertex positions in order.
func (m *Mesh) Positions() []r3.Vec {
	out := make([]r3.Vec, len(m.Vertices))
	for i, v := range m.Vertices {
		out[i] = v.Position
	}
	return out
}

// Densities returns the per-vertex densities, or nil when the mesh has none.
func (m *Mesh) Densities() []float64 {
	if !m.HasDensity {
		return nil
	}
	out := make([]float64, len(m.Vertices))
	for i, v := range m.Vertices {
		out[i] = v.Density
	}
	return out
}

// Validate checks index bounds, repeated indices and finite positions.
func (m *Mesh) Validate() error {
	n := len(m.Vertices)
	for i, v := range m.Vertices {
		if !IsFinite(v.Position) {
			return fmt.Errorf("%w: vertex %d has non-finite position", ErrInvalidParameter, i)
		}
		if m.HasDensity && (math.IsNaN(v.Density) || math.IsInf(v.Density, 0)) {
			return fmt.Errorf("%w: vertex %d has non-finite density", ErrInvalidParameter, i)
		}
	}
	for i, t := range m.Triangles {
		for _, idx := range t {
			if idx < 0 || idx >= n {
				return fmt.Errorf("%w: triangle %d index %d out of range [0,%d)", ErrInvalidParameter, i, idx, n)
			}
		}
		if t.Degenerate() {
			return fmt.Errorf("%w: triangle %d repeats a vertex %v", ErrInvalidParameter, i, t)
		}
	}
	return nil
}

// Degenerate reports whether t references the same vertex twice.
func (t Triangle) Degenerate() bool {
	return t[0] == t[1] || t[1] == t[2] || t[0] == t[2]
}

// FaceNormal returns the unnormalised face normal of triangle t, whose
// length is twice the triangle area.
func (m *Mesh) FaceNormal(t Triangle) r3.Vec {
	a := m.Vertices[t[0]].Position
	b := m.Vertices[t[1]].Position
	c := m.Vertices[t[2]].Position
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// TriangleArea returns the area of triangle t.
func (m *Mesh) TriangleArea(t Triangle) float64 {
	return 0.5 * r3.Norm(m.FaceNormal(t))
}

// ComputeVertexNormals returns a copy of m whose vertex normals are the
// area weighted average of adjacent face normals. Vertices without any
// non-degenerate adjacent face get a zero normal.
func (m *Mesh) ComputeVertexNormals() *Mesh {
	out := m.Clone()
	acc := make([]r3.Vec, len(out.Vertices))
	for _, t := range out.Triangles {
		// Unnormalised cross product is already area weighted.
		fn := out.FaceNormal(t)
		for _, idx := range t {
			acc[idx] = r3.Add(acc[idx], fn)
		}
	}
	for i := range out.Vertices {
		n := acc[i]
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		} else {
			n = r3.Vec{}
		}
		out.Vertices[i].Normal = n
	}
	out.HasNormals = true
	return out
}

// RemoveVertices returns a copy of m without the vertices flagged in remove
// and without any triangle that references one of them. Remaining vertices
// keep their relative order.
func (m *Mesh) RemoveVertices(remove []bool) *Mesh {
	remap := make([]int, len(m.Vertices))
	out := &Mesh{HasNormals: m.HasNormals, HasDensity: m.HasDensity}
	for i, v := range m.Vertices {
		if remove[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(out.Vertices)
		out.Vertices = append(out.Vertices, v)
	}
	out.Triangles = make([]Triangle, 0, len(m.Triangles))
	for _, t := range m.Triangles {
		a, b, c := remap[t[0]], remap[t[1]], remap[t[2]]
		if a < 0 || b < 0 || c < 0 {
			continue
		}
		out.Triangles = append(out.Triangles, Triangle{a, b, c})
	}
	return out
}

// Compact returns a copy of m without vertices that no triangle references.
func (m *Mesh) Compact() *Mesh {
	used := make([]bool, len(m.Vertices))
	for _, t := range m.Triangles {
		used[t[0]], used[t[1]], used[t[2]] = true, true, true
	}
	remove := make([]bool, len(used))
	for i, u := range used {
		remove[i] = !u
	}
	return m.RemoveVertices(remove)
}

// Bounds returns the bounding box of the vertices; ok is false when the mesh
// has no vertices.
func (m *Mesh) Bounds() (box r3.Box, ok bool) {
	if m.VertexCount() == 0 {
		return r3.Box{}, false
	}
	return BoundsOf(m.Positions()), true
}
