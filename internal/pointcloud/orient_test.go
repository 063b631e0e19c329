package pointcloud

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
	"github.com/banshee-data/cloudmesh/internal/testutil"
)

func inwardCount(pc *geom.PointCloud, centre r3.Vec) int {
	n := 0
	for _, p := range pc.Points {
		if r3.Dot(p.Normal, r3.Sub(p.Position, centre)) < 0 {
			n++
		}
	}
	return n
}

func TestOrientNormals_InvalidK(t *testing.T) {
	t.Parallel()
	_, _, err := OrientNormals(testutil.SphereCloud(10, 1, 0, 1), 0)
	assert.ErrorIs(t, err, geom.ErrInvalidParameter)
}

func TestOrientNormals_Empty(t *testing.T) {
	t.Parallel()
	out, stats, err := OrientNormals(&geom.PointCloud{}, DefaultOrientK)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, OrientStats{}, stats)
}

func TestOrientNormals_RandomSignsOnSphere(t *testing.T) {
	t.Parallel()
	pc := testutil.SphereCloud(2000, 1, 0, 9)
	rng := rand.New(rand.NewPCG(4, 4))
	for i := range pc.Points {
		if rng.IntN(2) == 0 {
			pc.Points[i].Normal = r3.Scale(-1, pc.Points[i].Normal)
		}
	}
	scrambled := inwardCount(pc, r3.Vec{})
	require.Greater(t, scrambled, 0)

	out, stats, err := OrientNormals(pc, DefaultOrientK)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Components)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 0, inwardCount(out, r3.Vec{}))
	assert.Equal(t, scrambled, inwardCount(pc, r3.Vec{}), "input mutated")
}

func TestOrientNormals_EstimatedSphere(t *testing.T) {
	t.Parallel()
	pc := geom.NewPointCloud(testutil.SpherePoints(3000, 1, 0.002, 21))
	est, err := EstimateNormals(context.Background(), pc, NormalParams{Radius: 0.25, MaxNeighbors: 30})
	require.NoError(t, err)
	out, _, err := OrientNormals(est, DefaultOrientK)
	require.NoError(t, err)
	assert.LessOrEqual(t, inwardCount(out, r3.Vec{}), out.Len()/100)
}

func TestOrientNormals_SkipsZeroNormals(t *testing.T) {
	t.Parallel()
	pc := testutil.SphereCloud(200, 1, 0, 2)
	pc.Points[3].Normal = r3.Vec{}
	pc.Points[7].HasNormal = false

	out, stats, err := OrientNormals(pc, 8)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.True(t, geom.IsZero(out.Points[3].Normal))
	assert.False(t, out.Points[7].HasNormal)
}

func TestOrientNormals_SeparateComponents(t *testing.T) {
	t.Parallel()
	a := testutil.SphereCloud(300, 1, 0, 1)
	b := testutil.SphereCloud(300, 1, 0, 2)
	offset := r3.Vec{X: 100}
	for _, p := range b.Points {
		p.Position = r3.Add(p.Position, offset)
		p.Normal = r3.Scale(-1, p.Normal)
		a.Points = append(a.Points, p)
	}
	out, stats, err := OrientNormals(a, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Components)
	assert.Equal(t, 0, inwardCount(&geom.PointCloud{Points: out.Points[:300]}, r3.Vec{}))
	assert.Equal(t, 0, inwardCount(&geom.PointCloud{Points: out.Points[300:]}, offset))
	assert.Equal(t, 300, stats.Flipped)
}

func TestOrientNormals_EqualWeightsAreReproducible(t *testing.T) {
	t.Parallel()
	// Every link on a flat grid has the same weight, so only the tie
	// ordering decides the forest and the root.
	pc := &geom.PointCloud{}
	rng := rand.New(rand.NewPCG(7, 7))
	for _, p := range testutil.PlanePoints(15, 1) {
		n := r3.Vec{Z: 1}
		if rng.IntN(2) == 0 {
			n.Z = -1
		}
		pc.Points = append(pc.Points, geom.Point3D{Position: p, Normal: n, HasNormal: true})
	}

	first, stats, err := OrientNormals(pc, DefaultOrientK)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Components)
	for i, p := range first.Points {
		assert.Equal(t, first.Points[0].Normal, p.Normal, "point %d", i)
	}

	for run := 0; run < 10; run++ {
		again, againStats, err := OrientNormals(pc, DefaultOrientK)
		require.NoError(t, err)
		assert.Equal(t, stats, againStats, "run %d", run)
		assert.Equal(t, first.Points, again.Points, "run %d", run)
	}
}
