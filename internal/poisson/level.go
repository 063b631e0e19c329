package poisson

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// nodeCoord is an integer grid coordinate.
type nodeCoord struct {
	I, J, K int
}

// level is the grid of one cascade depth. Node (i,j,k) sits at
// origin + h·(i,j,k) with 0 <= i,j,k <= n. Only active nodes, the corners
// of active cells, are stored.
type level struct {
	depth  int
	n      int // Cells per axis
	h      float64
	origin r3.Vec

	index map[int64]int32 // Node key to slot
	nodes []nodeCoord     // Slot to coordinate
	cells []nodeCoord     // Active cells by minimum corner, sorted

	chi []float64 // Implicit function per slot
	v   []r3.Vec  // Splatted normal field per slot
	w   []float64 // Splatted sample weight per slot
}

func (l *level) key(c nodeCoord) int64 {
	s := int64(l.n + 1)
	return int64(c.I) + int64(c.J)*s + int64(c.K)*s*s
}

// slot returns the storage slot of c, or -1 when c is not active.
func (l *level) slot(c nodeCoord) int32 {
	if c.I < 0 || c.J < 0 || c.K < 0 || c.I > l.n || c.J > l.n || c.K > l.n {
		return -1
	}
	if s, ok := l.index[l.key(c)]; ok {
		return s
	}
	return -1
}

func (l *level) onBoundary(c nodeCoord) bool {
	return c.I == 0 || c.J == 0 || c.K == 0 || c.I == l.n || c.J == l.n || c.K == l.n
}

func (l *level) position(c nodeCoord) r3.Vec {
	return r3.Add(l.origin, r3.Vec{X: float64(c.I) * l.h, Y: float64(c.J) * l.h, Z: float64(c.K) * l.h})
}

// locate returns the cell containing p and the local coordinates of p in
// it. Points on or beyond the far faces fall in the last cell.
func (l *level) locate(p r3.Vec) (nodeCoord, r3.Vec) {
	f := r3.Scale(1/l.h, r3.Sub(p, l.origin))
	ci := clampCell(f.X, l.n)
	cj := clampCell(f.Y, l.n)
	ck := clampCell(f.Z, l.n)
	return nodeCoord{ci, cj, ck}, r3.Vec{X: f.X - float64(ci), Y: f.Y - float64(cj), Z: f.Z - float64(ck)}
}

func clampCell(f float64, n int) int {
	c := int(math.Floor(f))
	return max(0, min(c, n-1))
}

// corners are the cell corner offsets; bit 0 is +I, bit 1 +J, bit 2 +K.
var corners = [8]nodeCoord{
	{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

func (c nodeCoord) add(o nodeCoord) nodeCoord {
	return nodeCoord{c.I + o.I, c.J + o.J, c.K + o.K}
}

// trilinear returns the weight of corner o for local coordinates t.
func trilinear(o nodeCoord, t r3.Vec) float64 {
	wx, wy, wz := 1-t.X, 1-t.Y, 1-t.Z
	if o.I == 1 {
		wx = t.X
	}
	if o.J == 1 {
		wy = t.Y
	}
	if o.K == 1 {
		wz = t.Z
	}
	return wx * wy * wz
}

// newFullLevel activates every cell of depth d.
func newFullLevel(dm domain, d int) *level {
	l := newLevel(dm, d)
	for k := 0; k < l.n; k++ {
		for j := 0; j < l.n; j++ {
			for i := 0; i < l.n; i++ {
				l.cells = append(l.cells, nodeCoord{i, j, k})
			}
		}
	}
	l.activateCorners()
	return l
}

// newBandLevel activates the cells within band cells of any sample cell.
func newBandLevel(dm domain, d int, samples []sample, band int) *level {
	l := newLevel(dm, d)
	seeds := make(map[nodeCoord]struct{})
	for _, s := range samples {
		c, _ := l.locate(s.pos)
		seeds[c] = struct{}{}
	}
	active := make(map[nodeCoord]struct{}, len(seeds)*8)
	for c := range seeds {
		for dk := -band; dk <= band; dk++ {
			for dj := -band; dj <= band; dj++ {
				for di := -band; di <= band; di++ {
					nc := nodeCoord{c.I + di, c.J + dj, c.K + dk}
					if nc.I < 0 || nc.J < 0 || nc.K < 0 || nc.I >= l.n || nc.J >= l.n || nc.K >= l.n {
						continue
					}
					active[nc] = struct{}{}
				}
			}
		}
	}
	l.cells = make([]nodeCoord, 0, len(active))
	for c := range active {
		l.cells = append(l.cells, c)
	}
	sortCoords(l.cells)
	l.activateCorners()
	return l
}

func newLevel(dm domain, d int) *level {
	n := 1 << d
	return &level{
		depth:  d,
		n:      n,
		h:      dm.size / float64(n),
		origin: dm.origin,
		index:  make(map[int64]int32),
	}
}

// sortCoords orders coordinates K-major so slot assignment is reproducible.
func sortCoords(cs []nodeCoord) {
	sort.Slice(cs, func(a, b int) bool {
		if cs[a].K != cs[b].K {
			return cs[a].K < cs[b].K
		}
		if cs[a].J != cs[b].J {
			return cs[a].J < cs[b].J
		}
		return cs[a].I < cs[b].I
	})
}

func (l *level) activateCorners() {
	for _, c := range l.cells {
		for _, o := range corners {
			nc := c.add(o)
			k := l.key(nc)
			if _, ok := l.index[k]; ok {
				continue
			}
			l.index[k] = int32(len(l.nodes))
			l.nodes = append(l.nodes, nc)
		}
	}
	l.chi = make([]float64, len(l.nodes))
	l.v = make([]r3.Vec, len(l.nodes))
	l.w = make([]float64, len(l.nodes))
}

// splat distributes every sample's normal and unit weight over the corners
// of its cell. The normal field is scaled by 1/h³ so the jump it encodes is
// the same at every depth.
func (l *level) splat(samples []sample) {
	scale := 1 / (l.h * l.h * l.h)
	for _, s := range samples {
		c, t := l.locate(s.pos)
		for _, o := range corners {
			slot := l.slot(c.add(o))
			if slot < 0 {
				continue
			}
			wt := trilinear(o, t)
			l.v[slot] = r3.Add(l.v[slot], r3.Scale(wt*scale, s.normal))
			l.w[slot] += wt
		}
	}
}

// interpolate evaluates field trilinearly at p. Inactive corners are left
// out and the remaining weights renormalised; with no active corner the
// result is zero.
func (l *level) interpolate(field []float64, p r3.Vec) float64 {
	c, t := l.locate(p)
	var sum, wsum float64
	for _, o := range corners {
		slot := l.slot(c.add(o))
		if slot < 0 {
			continue
		}
		wt := trilinear(o, t)
		sum += wt * field[slot]
		wsum += wt
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

// vAt returns the normal field at node c; inactive nodes carry none.
func (l *level) vAt(c nodeCoord) r3.Vec {
	if s := l.slot(c); s >= 0 {
		return l.v[s]
	}
	return r3.Vec{}
}
