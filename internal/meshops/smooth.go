package meshops

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
	"github.com/banshee-data/cloudmesh/internal/parallel"
)

// Taubin defaults.
const (
	DefaultTaubinIterations = 10
	DefaultTaubinLambda     = 0.5
	DefaultTaubinMu         = -0.53
)

// TaubinParams controls SmoothTaubin.
type TaubinParams struct {
	Iterations int
	Lambda     float64 // Shrinking step, > 0
	Mu         float64 // Inflating step, < -Lambda
	Workers    int
}

// DefaultTaubinParams returns the defaults used by the optimize command.
func DefaultTaubinParams() TaubinParams {
	return TaubinParams{
		Iterations: DefaultTaubinIterations,
		Lambda:     DefaultTaubinLambda,
		Mu:         DefaultTaubinMu,
	}
}

// Validate checks the step sizes.
func (p TaubinParams) Validate() error {
	switch {
	case p.Iterations < 0:
		return fmt.Errorf("%w: iterations must be >= 0, got %d", geom.ErrInvalidParameter, p.Iterations)
	case !(p.Lambda > 0) || math.IsInf(p.Lambda, 0):
		return fmt.Errorf("%w: lambda must be positive, got %g", geom.ErrInvalidParameter, p.Lambda)
	case !(p.Mu < 0) || math.IsInf(p.Mu, 0):
		return fmt.Errorf("%w: mu must be negative, got %g", geom.ErrInvalidParameter, p.Mu)
	case -p.Mu <= p.Lambda:
		return fmt.Errorf("%w: |mu| (%g) must exceed lambda (%g)", geom.ErrInvalidParameter, -p.Mu, p.Lambda)
	}
	return nil
}

// SmoothTaubin applies Taubin λ|μ smoothing: every iteration moves each
// vertex towards the mean of its 1-ring by Lambda, then away from it by
// Mu, which removes noise without the shrinkage of plain Laplacian
// smoothing. Vertices without neighbours stay put. Topology is unchanged
// and vertex normals are recomputed.
func SmoothTaubin(ctx context.Context, m *geom.Mesh, p TaubinParams) (*geom.Mesh, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	out := m.Clone()
	if p.Iterations == 0 || out.VertexCount() == 0 {
		return out, nil
	}

	ring := out.VertexNeighbors()
	cur := out.Positions()
	next := make([]r3.Vec, len(cur))

	pass := func(factor float64) error {
		err := parallel.Range(ctx, len(cur), p.Workers, func(i int) {
			nb := ring[i]
			if len(nb) == 0 {
				next[i] = cur[i]
				return
			}
			var avg r3.Vec
			for _, j := range nb {
				avg = r3.Add(avg, cur[j])
			}
			avg = r3.Scale(1/float64(len(nb)), avg)
			next[i] = r3.Add(cur[i], r3.Scale(factor, r3.Sub(avg, cur[i])))
		})
		cur, next = next, cur
		return err
	}

	for it := 0; it < p.Iterations; it++ {
		if err := pass(p.Lambda); err != nil {
			return nil, err
		}
		if err := pass(p.Mu); err != nil {
			return nil, err
		}
	}
	for i := range out.Vertices {
		out.Vertices[i].Position = cur[i]
	}
	return out.ComputeVertexNormals(), nil
}
