package pointcloud

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"
)

func randomPositions(n int, seed uint64) []r3.Vec {
	rng := rand.New(rand.NewPCG(seed, 1))
	out := make([]r3.Vec, n)
	for i := range out {
		out[i] = r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()}
	}
	return out
}

func bruteForce(ps []r3.Vec, q r3.Vec) []Neighbor {
	out := make([]Neighbor, len(ps))
	for i, p := range ps {
		out[i] = Neighbor{Index: i, Dist2: r3.Norm2(r3.Sub(p, q))}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dist2 != out[j].Dist2 {
			return out[i].Dist2 < out[j].Dist2
		}
		return out[i].Index < out[j].Index
	})
	return out
}

func TestSpatialIndex_Empty(t *testing.T) {
	si := NewSpatialIndex(nil)
	if si.Len() != 0 {
		t.Fatalf("Len = %d, want 0", si.Len())
	}
	if got := si.KNearest(r3.Vec{}, 3); len(got) != 0 {
		t.Errorf("KNearest on empty index = %v", got)
	}
	if got := si.Radius(r3.Vec{}, 1); len(got) != 0 {
		t.Errorf("Radius on empty index = %v", got)
	}
	if got := si.Hybrid(r3.Vec{}, 1, 3); len(got) != 0 {
		t.Errorf("Hybrid on empty index = %v", got)
	}
}

func TestSpatialIndex_KNearestMatchesBruteForce(t *testing.T) {
	ps := randomPositions(500, 1)
	si := NewSpatialIndex(ps)
	for qi, q := range randomPositions(20, 2) {
		want := bruteForce(ps, q)[:10]
		got := si.KNearest(q, 10)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("query %d mismatch (-want +got):\n%s", qi, diff)
		}
	}
}

func TestSpatialIndex_KLargerThanSet(t *testing.T) {
	ps := randomPositions(5, 3)
	si := NewSpatialIndex(ps)
	got := si.KNearest(r3.Vec{}, 50)
	if len(got) != 5 {
		t.Fatalf("KNearest returned %d, want 5", len(got))
	}
}

func TestSpatialIndex_RadiusMatchesBruteForce(t *testing.T) {
	ps := randomPositions(400, 4)
	si := NewSpatialIndex(ps)
	const r = 0.15
	for qi, q := range randomPositions(10, 5) {
		var want []Neighbor
		for _, nb := range bruteForce(ps, q) {
			if nb.Dist2 <= r*r {
				want = append(want, nb)
			}
		}
		got := si.Radius(q, r)
		if len(want) == 0 && len(got) == 0 {
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("query %d mismatch (-want +got):\n%s", qi, diff)
		}
	}
}

func TestSpatialIndex_HybridAppliesBothBounds(t *testing.T) {
	ps := []r3.Vec{{X: 0}, {X: 0.1}, {X: 0.2}, {X: 0.3}, {X: 5}}
	si := NewSpatialIndex(ps)

	got := si.Hybrid(r3.Vec{}, 0.25, 10)
	if len(got) != 3 {
		t.Errorf("radius bound: got %d neighbours, want 3", len(got))
	}
	got = si.Hybrid(r3.Vec{}, 100, 2)
	if len(got) != 2 {
		t.Errorf("count bound: got %d neighbours, want 2", len(got))
	}
	if got[0].Index != 0 || got[1].Index != 1 {
		t.Errorf("order = %v, want indices 0,1", got)
	}
}

func TestSpatialIndex_CopiesInput(t *testing.T) {
	ps := []r3.Vec{{X: 1}, {X: 2}}
	si := NewSpatialIndex(ps)
	ps[0] = r3.Vec{X: 100}
	if si.Position(0) != (r3.Vec{X: 1}) {
		t.Errorf("index aliased caller slice: %v", si.Position(0))
	}
}
