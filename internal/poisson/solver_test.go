package poisson

import (
	"context"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestSystem_ZeroFieldGivesZeroSolution(t *testing.T) {
	l := newFullLevel(domain{size: 1}, 2)
	sys := assemble(l, nil)
	if len(sys.slots) != 27 {
		t.Fatalf("unknowns = %d, want 27 interior nodes", len(sys.slots))
	}
	x, res, err := sys.solve(context.Background(), 1e-8, 100, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.iterations != 0 {
		t.Errorf("iterations = %d, want 0", res.iterations)
	}
	for i, v := range x {
		if v != 0 {
			t.Fatalf("x[%d] = %g, want 0", i, v)
		}
	}
}

func TestSystem_SolvesRandomField(t *testing.T) {
	l := newFullLevel(domain{size: 1}, 3)
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range l.v {
		l.v[i] = r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
	}
	sys := assemble(l, nil)
	x, res, err := sys.solve(context.Background(), 1e-10, 500, 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.residual > 1e-10 {
		t.Errorf("residual = %g, want <= 1e-10", res.residual)
	}

	ax := make([]float64, len(x))
	if err := sys.apply(context.Background(), x, ax, 1); err != nil {
		t.Fatal(err)
	}
	floats.Sub(ax, sys.b)
	if n := floats.Norm(ax, 2) / floats.Norm(sys.b, 2); n > 1e-9 {
		t.Errorf("|Lx-b|/|b| = %g", n)
	}
}

func TestSystem_SymmetricNeighbours(t *testing.T) {
	l := newFullLevel(domain{size: 1}, 3)
	sys := assemble(l, nil)
	for u, nb := range sys.nbr {
		for _, j := range nb {
			if j < 0 {
				continue
			}
			found := false
			for _, back := range sys.nbr[j] {
				if int(back) == u {
					found = true
				}
			}
			if !found {
				t.Fatalf("unknown %d lists %d but not the reverse", u, j)
			}
		}
	}
}

func TestSystem_Cancelled(t *testing.T) {
	l := newFullLevel(domain{size: 1}, 3)
	l.v[l.slot(nodeCoord{2, 2, 2})] = r3.Vec{X: 5}
	sys := assemble(l, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := sys.solve(ctx, 1e-12, 10, 1); err == nil {
		t.Fatal("expected cancellation error")
	}
}
