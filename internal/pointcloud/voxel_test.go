package pointcloud

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
	"github.com/banshee-data/cloudmesh/internal/testutil"
)

func TestVoxelDownsample_InvalidSize(t *testing.T) {
	pc := geom.NewPointCloud([]r3.Vec{{}})
	for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := VoxelDownsample(pc, size); !errors.Is(err, geom.ErrInvalidParameter) {
			t.Errorf("size %g: err = %v, want ErrInvalidParameter", size, err)
		}
	}
}

func TestVoxelDownsample_Empty(t *testing.T) {
	out, err := VoxelDownsample(&geom.PointCloud{}, 0.1)
	testutil.AssertNoError(t, err)
	if out.Len() != 0 {
		t.Errorf("Len = %d, want 0", out.Len())
	}
}

func TestVoxelDownsample_NonFinite(t *testing.T) {
	pc := geom.NewPointCloud([]r3.Vec{{X: math.NaN()}})
	if _, err := VoxelDownsample(pc, 0.1); !errors.Is(err, geom.ErrInvalidParameter) {
		t.Errorf("err = %v, want ErrInvalidParameter", err)
	}
}

func TestVoxelDownsample_SparseIsIdentity(t *testing.T) {
	ps := testutil.PlanePoints(6, 5) // spacing 1
	pc := geom.NewPointCloud(ps)
	out, err := VoxelDownsample(pc, 0.5)
	testutil.AssertNoError(t, err)
	if out.Len() != pc.Len() {
		t.Fatalf("Len = %d, want %d", out.Len(), pc.Len())
	}
	for i := range ps {
		if out.Points[i].Position != ps[i] {
			t.Errorf("point %d = %v, want %v", i, out.Points[i].Position, ps[i])
		}
	}
}

func TestVoxelDownsample_MergesToCentroid(t *testing.T) {
	pc := geom.NewPointCloud([]r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 5, Y: 5, Z: 5},
		{X: 0.2, Y: 0.2, Z: 0.2},
		{X: 0.4, Y: 0.1, Z: 0.3},
	})
	out, err := VoxelDownsample(pc, 1)
	testutil.AssertNoError(t, err)
	if out.Len() != 2 {
		t.Fatalf("Len = %d, want 2", out.Len())
	}
	want := r3.Vec{X: 0.2, Y: 0.1, Z: 0.5 / 3}
	if d := r3.Norm(r3.Sub(out.Points[0].Position, want)); d > 1e-12 {
		t.Errorf("centroid = %v, want %v", out.Points[0].Position, want)
	}
	if out.Points[1].Position != (r3.Vec{X: 5, Y: 5, Z: 5}) {
		t.Errorf("second point = %v, want first-occurrence order", out.Points[1].Position)
	}
	if out.Points[0].HasNormal {
		t.Error("output has normals although input had none")
	}
}

func TestVoxelDownsample_AveragesNormalsAndDensity(t *testing.T) {
	pc := &geom.PointCloud{Points: []geom.Point3D{
		{Position: r3.Vec{}, Normal: r3.Vec{X: 1}, HasNormal: true, Density: 1, HasDensity: true},
		{Position: r3.Vec{X: 0.1}, Normal: r3.Vec{Y: 1}, HasNormal: true, Density: 3, HasDensity: true},
	}}
	out, err := VoxelDownsample(pc, 1)
	testutil.AssertNoError(t, err)
	p := out.Points[0]
	if !p.HasNormal {
		t.Fatal("normal dropped")
	}
	testutil.AssertNear(t, r3.Norm(p.Normal), 1, 1e-12)
	testutil.AssertNear(t, p.Normal.X, math.Sqrt2/2, 1e-12)
	testutil.AssertNear(t, p.Density, 2, 1e-12)
}

func TestVoxelDownsample_MixedNormalsDropped(t *testing.T) {
	pc := &geom.PointCloud{Points: []geom.Point3D{
		{Position: r3.Vec{}, Normal: r3.Vec{X: 1}, HasNormal: true},
		{Position: r3.Vec{X: 0.1}},
	}}
	out, err := VoxelDownsample(pc, 1)
	testutil.AssertNoError(t, err)
	if out.Points[0].HasNormal {
		t.Error("normal kept although one member had none")
	}
}

func TestVoxelDownsample_ReducesDenseCloud(t *testing.T) {
	pc := geom.NewPointCloud(testutil.SpherePoints(20000, 1, 0, 11))
	before := pc.Clone()
	out, err := VoxelDownsample(pc, 0.05)
	testutil.AssertNoError(t, err)
	if out.Len() >= pc.Len() {
		t.Errorf("Len = %d, want fewer than %d", out.Len(), pc.Len())
	}
	again, err := VoxelDownsample(pc, 0.05)
	testutil.AssertNoError(t, err)
	for i := range out.Points {
		if out.Points[i] != again.Points[i] {
			t.Fatalf("point %d differs between runs", i)
		}
	}
	for i := range pc.Points {
		if pc.Points[i] != before.Points[i] {
			t.Fatalf("input point %d was mutated", i)
		}
	}
}
