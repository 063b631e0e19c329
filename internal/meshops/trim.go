package meshops

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

// DefaultDensityQuantile is the fraction of lowest density vertices removed
// by the reconstruct command.
const DefaultDensityQuantile = 0.01

// TrimStats describes a density trim.
type TrimStats struct {
	Threshold        float64
	RemovedVertices  int
	RemovedTriangles int
}

// TrimByDensity removes every vertex whose density is below the empirical
// q-quantile of all vertex densities, along with the triangles that use it.
// q == 0 keeps everything and q >= 1 removes everything.
func TrimByDensity(m *geom.Mesh, q float64) (*geom.Mesh, TrimStats, error) {
	var stats TrimStats
	if math.IsNaN(q) || q < 0 || q > 1 {
		return nil, stats, fmt.Errorf("%w: density quantile must be in [0,1], got %g", geom.ErrInvalidParameter, q)
	}
	if m.VertexCount() == 0 {
		return m.Clone(), stats, nil
	}
	if !m.HasDensity {
		return nil, stats, fmt.Errorf("%w: mesh has no vertex densities", geom.ErrInvalidParameter)
	}
	if err := m.Validate(); err != nil {
		return nil, stats, err
	}

	densities := m.Densities()
	sorted := make([]float64, len(densities))
	copy(sorted, densities)
	sort.Float64s(sorted)

	switch {
	case q == 0:
		stats.Threshold = sorted[0]
		return m.Clone(), stats, nil
	case q >= 1:
		stats.Threshold = math.Inf(1)
	default:
		stats.Threshold = stat.Quantile(q, stat.Empirical, sorted, nil)
	}

	remove := make([]bool, len(densities))
	for i, d := range densities {
		if d < stats.Threshold {
			remove[i] = true
			stats.RemovedVertices++
		}
	}
	out := m.RemoveVertices(remove)
	stats.RemovedTriangles = m.TriangleCount() - out.TriangleCount()
	return out, stats, nil
}
