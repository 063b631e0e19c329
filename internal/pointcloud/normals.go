package pointcloud

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
	"github.com/banshee-data/cloudmesh/internal/parallel"
)

// Normal estimation defaults.
const (
	DefaultNormalRadius       = 0.1
	DefaultNormalMaxNeighbors = 30
	// minNormalNeighbors is the smallest neighbourhood that defines a plane.
	minNormalNeighbors = 3
)

// NormalParams configures EstimateNormals.
type NormalParams struct {
	Radius       float64 // Neighbourhood radius
	MaxNeighbors int     // Neighbourhood size cap, at least 3
	Workers      int     // <1 means GOMAXPROCS
}

// DefaultNormalParams returns the defaults used by the reconstruct command.
func DefaultNormalParams() NormalParams {
	return NormalParams{
		Radius:       DefaultNormalRadius,
		MaxNeighbors: DefaultNormalMaxNeighbors,
	}
}

// Validate checks the neighbourhood bounds.
func (p NormalParams) Validate() error {
	if p.Radius <= 0 || math.IsNaN(p.Radius) || math.IsInf(p.Radius, 0) {
		return fmt.Errorf("%w: normal radius must be positive and finite, got %g", geom.ErrInvalidParameter, p.Radius)
	}
	if p.MaxNeighbors < minNormalNeighbors {
		return fmt.Errorf("%w: max neighbors must be >= %d, got %d", geom.ErrInvalidParameter, minNormalNeighbors, p.MaxNeighbors)
	}
	return nil
}

// EstimateNormals returns a copy of pc where every point carries the normal
// of its local tangent plane: the eigenvector of the smallest eigenvalue of
// the neighbourhood covariance. Neighbourhoods come from a hybrid query
// bounded by both Radius and MaxNeighbors. Points with fewer than three
// neighbours get a zero normal.
//
// Normal signs are arbitrary; see OrientNormals.
func EstimateNormals(ctx context.Context, pc *geom.PointCloud, p NormalParams) (*geom.PointCloud, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := pc.Clone()
	if out.Len() == 0 {
		return out, nil
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}

	// The index is complete before any worker queries it.
	index := NewSpatialIndex(out.Positions())

	err := parallel.Range(ctx, out.Len(), p.Workers, func(i int) {
		q := out.Points[i].Position
		nb := index.Hybrid(q, p.Radius, p.MaxNeighbors)
		out.Points[i].Normal = planeNormal(index, nb)
		out.Points[i].HasNormal = true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// planeNormal fits a plane to the neighbourhood and returns its unit normal,
// or the zero vector when the neighbourhood is too small or degenerate.
func planeNormal(index *SpatialIndex, nb []Neighbor) r3.Vec {
	if len(nb) < minNormalNeighbors {
		return r3.Vec{}
	}
	var c r3.Vec
	for _, n := range nb {
		c = r3.Add(c, index.Position(n.Index))
	}
	c = r3.Scale(1/float64(len(nb)), c)

	var cxx, cxy, cxz, cyy, cyz, czz float64
	for _, n := range nb {
		d := r3.Sub(index.Position(n.Index), c)
		cxx += d.X * d.X
		cxy += d.X * d.Y
		cxz += d.X * d.Z
		cyy += d.Y * d.Y
		cyz += d.Y * d.Z
		czz += d.Z * d.Z
	}
	inv := 1 / float64(len(nb))
	cov := mat.NewSymDense(3, []float64{
		cxx * inv, cxy * inv, cxz * inv,
		cxy * inv, cyy * inv, cyz * inv,
		cxz * inv, cyz * inv, czz * inv,
	})

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return r3.Vec{}
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues are ascending, so column 0 is the plane normal.
	n := r3.Vec{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	l := r3.Norm(n)
	if l == 0 || math.IsNaN(l) {
		return r3.Vec{}
	}
	return r3.Scale(1/l, n)
}
