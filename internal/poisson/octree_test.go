package poisson

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestOctree_SingleSampleIsLeafAtRoot(t *testing.T) {
	dm := domain{size: 1}
	ot := buildOctree(dm, []sample{{pos: r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}}}, 8, 1.5)
	if len(ot.nodes) != 1 || ot.leaves != 1 {
		t.Fatalf("nodes=%d leaves=%d, want 1/1", len(ot.nodes), ot.leaves)
	}
	if ot.leafDepths[0] != 0 {
		t.Errorf("leaf depth = %d, want 0", ot.leafDepths[0])
	}
}

func TestOctree_SplitsUntilSeparated(t *testing.T) {
	dm := domain{size: 1}
	samples := []sample{
		{pos: r3.Vec{X: 0.1, Y: 0.1, Z: 0.1}},
		{pos: r3.Vec{X: 0.9, Y: 0.9, Z: 0.9}},
	}
	ot := buildOctree(dm, samples, 8, 1.5)
	if ot.leafDepths[0] != 1 || ot.leafDepths[1] != 1 {
		t.Errorf("leaf depths = %v, want [1 1]", ot.leafDepths)
	}
	if ot.leaves != 2 || len(ot.nodes) != 3 {
		t.Errorf("nodes=%d leaves=%d, want 3/2", len(ot.nodes), ot.leaves)
	}
}

func TestOctree_CoincidentSamplesStopAtMaxDepth(t *testing.T) {
	dm := domain{size: 1}
	p := r3.Vec{X: 0.3, Y: 0.3, Z: 0.3}
	ot := buildOctree(dm, []sample{{pos: p}, {pos: p}, {pos: p}}, 4, 1.5)
	if ot.maxDepth != 4 {
		t.Errorf("maxDepth = %d, want 4", ot.maxDepth)
	}
	if got := ot.medianLeafDepth(); got != 4 {
		t.Errorf("medianLeafDepth = %d, want 4", got)
	}
}

func TestSolveDepth(t *testing.T) {
	dm := domain{size: 1}
	ot := &octree{leafDepths: []int{3, 7, 7, 8, 9}}

	p := DefaultParams()
	if got := solveDepth(p, dm, ot); got != 7 {
		t.Errorf("median: got %d, want 7", got)
	}

	p.Width = 1.0 / 100 // 2^7 = 128 cells give width <= 0.01
	if got := solveDepth(p, dm, ot); got != 7 {
		t.Errorf("width: got %d, want 7", got)
	}

	p.Width = 0.5
	if got := solveDepth(p, dm, ot); got != coarseDepth {
		t.Errorf("coarse clamp: got %d, want %d", got, coarseDepth)
	}

	p.Width = 1e-6
	if got := solveDepth(p, dm, ot); got != p.Depth {
		t.Errorf("depth clamp: got %d, want %d", got, p.Depth)
	}

	p = DefaultParams()
	p.Depth = 3
	if got := solveDepth(p, dm, &octree{leafDepths: []int{3}}); got != 3 {
		t.Errorf("shallow depth: got %d, want 3", got)
	}
}
