package poisson

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/cloudmesh/internal/geom"
	"github.com/banshee-data/cloudmesh/internal/parallel"
)

// axes are the positive grid directions.
var axes = [3]nodeCoord{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// system is the discrete Poisson equation Lχ = b over the unknown nodes of
// one level. L is applied matrix free: each row is 6 on the diagonal and
// -1 for every unknown neighbour; known neighbours were folded into b.
type system struct {
	slots []int32    // Unknown to level slot
	nbr   [][6]int32 // Unknown neighbours, -1 when known
	diag  []float64
	b     []float64
	x0    []float64 // Initial guess
}

// assemble builds the system of l. Interior active nodes are unknown.
// Domain boundary nodes are fixed at zero; inactive neighbours take the
// coarser level's solution, or zero on the coarsest level.
func assemble(l, coarse *level) *system {
	unknown := make([]int32, len(l.nodes))
	s := &system{}
	for slot, c := range l.nodes {
		if l.onBoundary(c) {
			unknown[slot] = -1
			continue
		}
		unknown[slot] = int32(len(s.slots))
		s.slots = append(s.slots, int32(slot))
	}

	n := len(s.slots)
	s.nbr = make([][6]int32, n)
	s.diag = make([]float64, n)
	s.b = make([]float64, n)
	s.x0 = make([]float64, n)

	known := func(c nodeCoord) float64 {
		if coarse == nil || l.onBoundary(c) {
			return 0
		}
		return coarse.interpolate(coarse.chi, l.position(c))
	}

	for u, slot := range s.slots {
		c := l.nodes[slot]
		vc := l.v[slot]
		s.diag[u] = 6
		if coarse != nil {
			s.x0[u] = coarse.interpolate(coarse.chi, l.position(c))
		}
		var rhs float64
		for d, e := range axes {
			lo := nodeCoord{c.I - e.I, c.J - e.J, c.K - e.K}
			hi := c.add(e)
			// Edge targets h·avg(V_d) on (lo,c) and (c,hi).
			gLo := 0.5 * l.h * (geom.Component(l.vAt(lo), d) + geom.Component(vc, d))
			gHi := 0.5 * l.h * (geom.Component(vc, d) + geom.Component(l.vAt(hi), d))
			rhs += gLo - gHi

			for side, nc := range [2]nodeCoord{lo, hi} {
				j := int32(-1)
				if ns := l.slot(nc); ns >= 0 {
					j = unknown[ns]
				}
				s.nbr[u][2*d+side] = j
				if j < 0 {
					rhs += known(nc)
				}
			}
		}
		s.b[u] = rhs
	}
	return s
}

// apply computes y = Lx.
func (s *system) apply(ctx context.Context, x, y []float64, workers int) error {
	return parallel.Range(ctx, len(x), workers, func(i int) {
		sum := s.diag[i] * x[i]
		for _, j := range s.nbr[i] {
			if j >= 0 {
				sum -= x[j]
			}
		}
		y[i] = sum
	})
}

// solveResult reports a CG run.
type solveResult struct {
	iterations int
	residual   float64
}

// solve runs Jacobi preconditioned conjugate gradients from x0 until the
// relative residual drops to tol or maxIter is reached.
func (s *system) solve(ctx context.Context, tol float64, maxIter, workers int) ([]float64, solveResult, error) {
	n := len(s.b)
	x := make([]float64, n)
	copy(x, s.x0)
	if n == 0 {
		return x, solveResult{}, nil
	}
	bnorm := floats.Norm(s.b, 2)
	if bnorm == 0 {
		return make([]float64, n), solveResult{}, nil
	}

	r := make([]float64, n)
	z := make([]float64, n)
	p := make([]float64, n)
	ap := make([]float64, n)
	inv := make([]float64, n)
	for i, d := range s.diag {
		inv[i] = 1 / d
	}

	if err := s.apply(ctx, x, ap, workers); err != nil {
		return nil, solveResult{}, err
	}
	floats.SubTo(r, s.b, ap)
	res := floats.Norm(r, 2) / bnorm
	if res <= tol {
		return x, solveResult{residual: res}, nil
	}
	floats.MulTo(z, inv, r)
	copy(p, z)
	rz := floats.Dot(r, z)

	it := 0
	for it < maxIter {
		if err := ctx.Err(); err != nil {
			return nil, solveResult{}, err
		}
		it++
		if err := s.apply(ctx, p, ap, workers); err != nil {
			return nil, solveResult{}, err
		}
		pap := floats.Dot(p, ap)
		if pap <= 0 || math.IsNaN(pap) {
			break
		}
		alpha := rz / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)
		res = floats.Norm(r, 2) / bnorm
		if res <= tol {
			break
		}
		floats.MulTo(z, inv, r)
		rzNext := floats.Dot(r, z)
		beta := rzNext / rz
		rz = rzNext
		floats.AddScaledTo(p, z, beta, p)
	}
	return x, solveResult{iterations: it, residual: res}, nil
}
