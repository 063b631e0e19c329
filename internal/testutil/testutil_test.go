package testutil

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	t.Parallel()
	AssertError(t, errors.New("boom"))
}

func TestSpherePoints_Deterministic(t *testing.T) {
	t.Parallel()
	a := SpherePoints(100, 1, 0.01, 7)
	b := SpherePoints(100, 1, 0.01, 7)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("point %d differs between runs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestSpherePoints_NoiseFree(t *testing.T) {
	t.Parallel()
	pts := SpherePoints(500, 2, 0, 1)
	if got := MaxRadialError(pts, 2); got > 1e-12 {
		t.Errorf("MaxRadialError = %g, want ~0", got)
	}
}

func TestSphereCloud_OutwardNormals(t *testing.T) {
	t.Parallel()
	pc := SphereCloud(200, 1, 0, 3)
	for i, p := range pc.Points {
		if !p.HasNormal {
			t.Fatalf("point %d has no normal", i)
		}
		if d := r3.Dot(p.Normal, p.Position); d <= 0 {
			t.Errorf("point %d normal points inward (dot=%g)", i, d)
		}
	}
}

func TestIcoSphere_Closed(t *testing.T) {
	t.Parallel()
	for s := 0; s <= 2; s++ {
		m := IcoSphere(s, 1)
		wantTris := 20 << (2 * s)
		if m.TriangleCount() != wantTris {
			t.Errorf("subdivisions=%d: triangles = %d, want %d", s, m.TriangleCount(), wantTris)
		}
		if b := m.BoundaryEdges(); b != 0 {
			t.Errorf("subdivisions=%d: %d boundary edges, want 0", s, b)
		}
		if nm := m.NonManifoldEdges(); nm != 0 {
			t.Errorf("subdivisions=%d: %d non-manifold edges, want 0", s, nm)
		}
		for i, tri := range m.Triangles {
			c := r3.Scale(1.0/3, r3.Add(r3.Add(m.Vertices[tri[0]].Position, m.Vertices[tri[1]].Position), m.Vertices[tri[2]].Position))
			if r3.Dot(m.FaceNormal(tri), c) <= 0 {
				t.Fatalf("subdivisions=%d: triangle %d wound inward", s, i)
			}
		}
	}
}

func TestCubeMesh_Outward(t *testing.T) {
	t.Parallel()
	m := CubeMesh()
	if m.BoundaryEdges() != 0 {
		t.Fatalf("cube has %d boundary edges", m.BoundaryEdges())
	}
	for i, tri := range m.Triangles {
		c := r3.Scale(1.0/3, r3.Add(r3.Add(m.Vertices[tri[0]].Position, m.Vertices[tri[1]].Position), m.Vertices[tri[2]].Position))
		if r3.Dot(m.FaceNormal(tri), c) <= 0 {
			t.Errorf("triangle %d wound inward", i)
		}
	}
}

func TestGridMesh_Counts(t *testing.T) {
	t.Parallel()
	m := GridMesh(5)
	if m.VertexCount() != 25 || m.TriangleCount() != 32 {
		t.Errorf("grid = %d verts %d tris, want 25/32", m.VertexCount(), m.TriangleCount())
	}
	if m.BoundaryEdges() != 16 {
		t.Errorf("boundary edges = %d, want 16", m.BoundaryEdges())
	}
}
