package geom

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// tetra is a closed, outward wound tetrahedron.
func tetra() *Mesh {
	return &Mesh{
		Vertices: []Vertex{
			{Position: r3.Vec{}},
			{Position: r3.Vec{X: 1}},
			{Position: r3.Vec{Y: 1}},
			{Position: r3.Vec{Z: 1}},
		},
		Triangles: []Triangle{{0, 2, 1}, {0, 1, 3}, {0, 3, 2}, {1, 2, 3}},
	}
}

func TestPointCloud_NilSafe(t *testing.T) {
	var pc *PointCloud
	assert.Equal(t, 0, pc.Len())
	assert.Equal(t, 0, pc.Clone().Len())
	assert.False(t, pc.HasNormals())
	_, ok := pc.Bounds()
	assert.False(t, ok)
}

func TestPointCloud_CloneIsDeep(t *testing.T) {
	pc := NewPointCloud([]r3.Vec{{X: 1}, {Y: 2}})
	c := pc.Clone()
	c.Points[0].Position.X = 5
	assert.Equal(t, 1.0, pc.Points[0].Position.X)
}

func TestPointCloud_HasNormals(t *testing.T) {
	pc := NewPointCloud([]r3.Vec{{X: 1}, {Y: 2}})
	assert.False(t, pc.HasNormals())
	pc.Points[0].HasNormal = true
	assert.False(t, pc.HasNormals())
	pc.Points[1].HasNormal = true
	assert.True(t, pc.HasNormals())
}

func TestPointCloud_Validate(t *testing.T) {
	tests := []struct {
		name string
		p    Point3D
		ok   bool
	}{
		{"finite", Point3D{Position: r3.Vec{X: 1}}, true},
		{"nan position", Point3D{Position: r3.Vec{Y: math.NaN()}}, false},
		{"inf position", Point3D{Position: r3.Vec{Z: math.Inf(-1)}}, false},
		{"nan normal", Point3D{Normal: r3.Vec{X: math.NaN()}, HasNormal: true}, false},
		{"nan normal ignored", Point3D{Normal: r3.Vec{X: math.NaN()}}, true},
		{"inf density", Point3D{Density: math.Inf(1), HasDensity: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := &PointCloud{Points: []Point3D{{}, tt.p}}
			err := pc.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidParameter)
			assert.Contains(t, err.Error(), "point 1")
		})
	}
}

func TestBounds(t *testing.T) {
	pc := NewPointCloud([]r3.Vec{{X: -1, Y: 2, Z: 0}, {X: 3, Y: -2, Z: 5}})
	box, ok := pc.Bounds()
	require.True(t, ok)
	assert.Equal(t, r3.Box{Min: r3.Vec{X: -1, Y: -2}, Max: r3.Vec{X: 3, Y: 2, Z: 5}}, box)
}

func TestComponent(t *testing.T) {
	v := r3.Vec{X: 1, Y: 2, Z: 3}
	for d, want := range []float64{1, 2, 3} {
		assert.Equal(t, want, Component(v, d))
	}
	assert.True(t, IsZero(r3.Vec{}))
	assert.False(t, IsZero(v))
}

func TestMesh_Validate(t *testing.T) {
	require.NoError(t, tetra().Validate())

	tests := []struct {
		name   string
		mutate func(m *Mesh)
	}{
		{"index out of range", func(m *Mesh) { m.Triangles[0][1] = 4 }},
		{"negative index", func(m *Mesh) { m.Triangles[0][1] = -1 }},
		{"repeated index", func(m *Mesh) { m.Triangles[2] = Triangle{0, 0, 2} }},
		{"nan position", func(m *Mesh) { m.Vertices[3].Position.X = math.NaN() }},
		{"nan density", func(m *Mesh) { m.HasDensity = true; m.Vertices[1].Density = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tetra()
			tt.mutate(m)
			assert.ErrorIs(t, m.Validate(), ErrInvalidParameter)
		})
	}
}

func TestMesh_NilSafeCounts(t *testing.T) {
	var m *Mesh
	assert.Equal(t, 0, m.VertexCount())
	assert.Equal(t, 0, m.TriangleCount())
	assert.Equal(t, 0, m.Clone().VertexCount())
}

func TestMesh_TopologyOfClosedTetra(t *testing.T) {
	m := tetra()
	assert.Len(t, m.EdgeFaces(), 6)
	assert.Equal(t, 0, m.NonManifoldEdges())
	assert.Equal(t, 0, m.BoundaryEdges())
	assert.Equal(t, [][]int{{1, 2, 3}, {0, 2, 3}, {0, 1, 3}, {0, 1, 2}}, m.VertexNeighbors())
	assert.Equal(t, []int{0, 1, 2}, m.VertexFaces()[0])

	open := tetra()
	open.Triangles = open.Triangles[:3]
	assert.Equal(t, 3, open.BoundaryEdges())

	fin := tetra()
	fin.Vertices = append(fin.Vertices, Vertex{Position: r3.Vec{X: -1, Y: -1}})
	fin.Triangles = append(fin.Triangles, Triangle{0, 1, 4})
	assert.Equal(t, 1, fin.NonManifoldEdges())
}

func TestMesh_ComputeVertexNormals(t *testing.T) {
	m := tetra()
	m.Vertices = append(m.Vertices, Vertex{Position: r3.Vec{X: 9}})
	out := m.ComputeVertexNormals()

	assert.False(t, m.HasNormals, "input untouched")
	require.True(t, out.HasNormals)
	centroid := r3.Vec{X: 0.25, Y: 0.25, Z: 0.25}
	for i := 0; i < 4; i++ {
		n := out.Vertices[i].Normal
		assert.InDelta(t, 1, r3.Norm(n), 1e-12)
		assert.Greater(t, r3.Dot(n, r3.Sub(out.Vertices[i].Position, centroid)), 0.0, "vertex %d", i)
	}
	assert.Equal(t, r3.Vec{}, out.Vertices[4].Normal, "isolated vertex")
	assert.InDelta(t, 0.5, out.TriangleArea(out.Triangles[0]), 1e-12)
}

func TestMesh_CompactAndRemove(t *testing.T) {
	m := tetra()
	m.HasDensity = true
	for i := range m.Vertices {
		m.Vertices[i].Density = float64(i)
	}
	m.Vertices = append([]Vertex{{Position: r3.Vec{X: 7}, Density: -1}}, m.Vertices...)
	for i := range m.Triangles {
		for k := range m.Triangles[i] {
			m.Triangles[i][k]++
		}
	}

	c := m.Compact()
	assert.Equal(t, 4, c.VertexCount())
	assert.Equal(t, []float64{0, 1, 2, 3}, c.Densities())
	if diff := cmp.Diff(tetra().Triangles, c.Triangles); diff != "" {
		t.Errorf("triangles (-want +got):\n%s", diff)
	}

	r := c.RemoveVertices([]bool{false, false, false, true})
	assert.Equal(t, 3, r.VertexCount())
	assert.Equal(t, []Triangle{{0, 2, 1}}, r.Triangles)
	assert.Equal(t, 5, m.VertexCount(), "input untouched")
}
