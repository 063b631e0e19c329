package meshops

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// quadric is a symmetric 4×4 error quadric stored as its upper triangle:
// aa ab ac ad bb bc bd cc cd dd.
type quadric [10]float64

// planeQuadric returns w·ppᵀ for the plane n·x + d = 0, n a unit vector.
func planeQuadric(n r3.Vec, d, w float64) quadric {
	a, b, c := n.X, n.Y, n.Z
	return quadric{
		w * a * a, w * a * b, w * a * c, w * a * d,
		w * b * b, w * b * c, w * b * d,
		w * c * c, w * c * d,
		w * d * d,
	}
}

func (q *quadric) add(o quadric) {
	for i := range q {
		q[i] += o[i]
	}
}

func (q quadric) plus(o quadric) quadric {
	q.add(o)
	return q
}

// eval returns vᵀQv for the homogeneous point (p, 1), clamped at zero.
func (q quadric) eval(p r3.Vec) float64 {
	x, y, z := p.X, p.Y, p.Z
	e := q[0]*x*x + 2*q[1]*x*y + 2*q[2]*x*z + 2*q[3]*x +
		q[4]*y*y + 2*q[5]*y*z + 2*q[6]*y +
		q[7]*z*z + 2*q[8]*z +
		q[9]
	return math.Max(e, 0)
}

// minimiser solves the 3×3 system ∇(vᵀQv) = 0. ok is false when the
// system is singular or ill conditioned.
func (q quadric) minimiser() (r3.Vec, bool) {
	a := mat.NewSymDense(3, []float64{
		q[0], q[1], q[2],
		q[1], q[4], q[5],
		q[2], q[5], q[7],
	})
	rhs := mat.NewVecDense(3, []float64{-q[3], -q[6], -q[8]})
	var x mat.VecDense
	if err := x.SolveVec(a, rhs); err != nil {
		return r3.Vec{}, false
	}
	p := r3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) {
		return r3.Vec{}, false
	}
	return p, true
}
