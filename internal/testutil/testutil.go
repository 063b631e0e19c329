// Package testutil provides shared test helpers and synthetic geometry
// fixtures.
package testutil

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertNear fails the test when got and want differ by more than tol.
func AssertNear(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("got %g, want %g ± %g", got, want, tol)
	}
}

// SpherePoints returns n points spread over a sphere of the given radius
// centred at the origin using a Fibonacci lattice. Each point is pushed
// along its radius by Gaussian noise with standard deviation noise. The
// same seed always yields the same points.
func SpherePoints(n int, radius, noise float64, seed uint64) []r3.Vec {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	golden := math.Pi * (3 - math.Sqrt(5))
	out := make([]r3.Vec, n)
	for i := range out {
		y := 1 - 2*(float64(i)+0.5)/float64(n)
		r := math.Sqrt(1 - y*y)
		theta := golden * float64(i)
		dir := r3.Vec{X: r * math.Cos(theta), Y: y, Z: r * math.Sin(theta)}
		out[i] = r3.Scale(radius+noise*rng.NormFloat64(), dir)
	}
	return out
}

// SphereCloud is SpherePoints with exact outward unit normals attached.
func SphereCloud(n int, radius, noise float64, seed uint64) *geom.PointCloud {
	pc := geom.NewPointCloud(SpherePoints(n, radius, noise, seed))
	for i := range pc.Points {
		pc.Points[i].Normal = r3.Unit(pc.Points[i].Position)
		pc.Points[i].HasNormal = true
	}
	return pc
}

// PlanePoints returns an n×n lattice on the z=0 plane spanning [0,size]².
func PlanePoints(n int, size float64) []r3.Vec {
	out := make([]r3.Vec, 0, n*n)
	step := size / float64(n-1)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out = append(out, r3.Vec{X: float64(i) * step, Y: float64(j) * step})
		}
	}
	return out
}

// CubeMesh returns a closed unit cube centred at the origin with 8 vertices
// and 12 outward wound triangles.
func CubeMesh() *geom.Mesh {
	m := &geom.Mesh{}
	for _, p := range []r3.Vec{
		{X: -0.5, Y: -0.5, Z: -0.5}, {X: 0.5, Y: -0.5, Z: -0.5},
		{X: 0.5, Y: 0.5, Z: -0.5}, {X: -0.5, Y: 0.5, Z: -0.5},
		{X: -0.5, Y: -0.5, Z: 0.5}, {X: 0.5, Y: -0.5, Z: 0.5},
		{X: 0.5, Y: 0.5, Z: 0.5}, {X: -0.5, Y: 0.5, Z: 0.5},
	} {
		m.Vertices = append(m.Vertices, geom.Vertex{Position: p})
	}
	m.Triangles = []geom.Triangle{
		{0, 2, 1}, {0, 3, 2}, // -z
		{4, 5, 6}, {4, 6, 7}, // +z
		{0, 1, 5}, {0, 5, 4}, // -y
		{3, 6, 2}, {3, 7, 6}, // +y
		{0, 4, 7}, {0, 7, 3}, // -x
		{1, 2, 6}, {1, 6, 5}, // +x
	}
	return m
}

// IcoSphere returns a closed sphere of the given radius made by subdividing
// an icosahedron. Subdivision level s yields 20·4^s outward wound
// triangles.
func IcoSphere(subdivisions int, radius float64) *geom.Mesh {
	t := (1 + math.Sqrt(5)) / 2
	verts := []r3.Vec{
		{X: -1, Y: t}, {X: 1, Y: t}, {X: -1, Y: -t}, {X: 1, Y: -t},
		{Y: -1, Z: t}, {Y: 1, Z: t}, {Y: -1, Z: -t}, {Y: 1, Z: -t},
		{X: t, Z: -1}, {X: t, Z: 1}, {X: -t, Z: -1}, {X: -t, Z: 1},
	}
	for i := range verts {
		verts[i] = r3.Unit(verts[i])
	}
	faces := []geom.Triangle{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}
	for s := 0; s < subdivisions; s++ {
		mid := make(map[geom.Edge]int)
		midpoint := func(a, b int) int {
			e := geom.MakeEdge(a, b)
			if idx, ok := mid[e]; ok {
				return idx
			}
			verts = append(verts, r3.Unit(r3.Add(verts[a], verts[b])))
			mid[e] = len(verts) - 1
			return len(verts) - 1
		}
		next := make([]geom.Triangle, 0, len(faces)*4)
		for _, f := range faces {
			a := midpoint(f[0], f[1])
			b := midpoint(f[1], f[2])
			c := midpoint(f[2], f[0])
			next = append(next,
				geom.Triangle{f[0], a, c},
				geom.Triangle{f[1], b, a},
				geom.Triangle{f[2], c, b},
				geom.Triangle{a, b, c},
			)
		}
		faces = next
	}
	m := &geom.Mesh{Triangles: faces}
	for _, v := range verts {
		m.Vertices = append(m.Vertices, geom.Vertex{Position: r3.Scale(radius, v)})
	}
	return m
}

// GridMesh returns an open n×n vertex grid on the z=0 plane spanning
// [0,1]², triangulated with upward facing normals.
func GridMesh(n int) *geom.Mesh {
	m := &geom.Mesh{}
	for _, p := range PlanePoints(n, 1) {
		m.Vertices = append(m.Vertices, geom.Vertex{Position: p})
	}
	at := func(i, j int) int { return i*n + j }
	for i := 0; i+1 < n; i++ {
		for j := 0; j+1 < n; j++ {
			m.Triangles = append(m.Triangles,
				geom.Triangle{at(i, j), at(i+1, j), at(i+1, j+1)},
				geom.Triangle{at(i, j), at(i+1, j+1), at(i, j+1)},
			)
		}
	}
	return m
}

// MaxRadialError returns the largest |‖p‖ − radius| over positions.
func MaxRadialError(positions []r3.Vec, radius float64) float64 {
	worst := 0.0
	for _, p := range positions {
		worst = math.Max(worst, math.Abs(r3.Norm(p)-radius))
	}
	return worst
}
