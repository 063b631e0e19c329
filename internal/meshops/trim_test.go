package meshops

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cloudmesh/internal/geom"
	"github.com/banshee-data/cloudmesh/internal/testutil"
)

func densityGrid() *geom.Mesh {
	m := testutil.GridMesh(5)
	m.HasDensity = true
	for i := range m.Vertices {
		m.Vertices[i].Density = float64(i)
	}
	return m
}

func TestTrimByDensity_InvalidQuantile(t *testing.T) {
	t.Parallel()
	for _, q := range []float64{-0.1, 1.1, math.NaN()} {
		_, _, err := TrimByDensity(densityGrid(), q)
		assert.ErrorIs(t, err, geom.ErrInvalidParameter, "q=%g", q)
	}
}

func TestTrimByDensity_NoDensities(t *testing.T) {
	t.Parallel()
	_, _, err := TrimByDensity(testutil.GridMesh(3), 0.5)
	assert.ErrorIs(t, err, geom.ErrInvalidParameter)
}

func TestTrimByDensity_EmptyMesh(t *testing.T) {
	t.Parallel()
	out, _, err := TrimByDensity(&geom.Mesh{}, 0.5)
	require.NoError(t, err)
	assert.Zero(t, out.VertexCount())
}

func TestTrimByDensity_ZeroQuantileKeepsAll(t *testing.T) {
	t.Parallel()
	m := densityGrid()
	out, stats, err := TrimByDensity(m, 0)
	require.NoError(t, err)
	assert.Equal(t, m, out)
	assert.Zero(t, stats.RemovedVertices)
}

func TestTrimByDensity_FullQuantileRemovesAll(t *testing.T) {
	t.Parallel()
	out, stats, err := TrimByDensity(densityGrid(), 1)
	require.NoError(t, err)
	assert.Zero(t, out.VertexCount())
	assert.Zero(t, out.TriangleCount())
	assert.Equal(t, 25, stats.RemovedVertices)
	assert.Equal(t, 32, stats.RemovedTriangles)
}

func TestTrimByDensity_RemovesLowDensity(t *testing.T) {
	t.Parallel()
	m := densityGrid()
	out, stats, err := TrimByDensity(m, 0.2)
	require.NoError(t, err)

	assert.Equal(t, 4.0, stats.Threshold)
	assert.Equal(t, 4, stats.RemovedVertices)
	assert.Equal(t, 21, out.VertexCount())
	assert.Equal(t, m.TriangleCount()-stats.RemovedTriangles, out.TriangleCount())
	require.NoError(t, out.Validate())
	for _, v := range out.Vertices {
		assert.GreaterOrEqual(t, v.Density, stats.Threshold)
	}
	assert.Equal(t, 25, m.VertexCount(), "input mutated")
}
