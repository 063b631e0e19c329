package poisson

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

// kuhnTets splits a cell into six tetrahedra around the diagonal from
// corner 0 to corner 7. Every cell face is cut along the diagonal from its
// lowest to its highest corner, so neighbouring cells agree.
var kuhnTets = [6][4]int{
	{0, 1, 3, 7},
	{0, 1, 5, 7},
	{0, 2, 3, 7},
	{0, 2, 6, 7},
	{0, 4, 5, 7},
	{0, 4, 6, 7},
}

type edgeKey struct {
	a, b int64
}

// extractor runs marching tetrahedra over the active cells of a level.
// A corner whose value equals iso counts as above it.
type extractor struct {
	l     *level
	iso   float64
	verts map[edgeKey]int
	mesh  *geom.Mesh
}

func extractIsosurface(l *level, iso float64) *geom.Mesh {
	ex := &extractor{
		l:     l,
		iso:   iso,
		verts: make(map[edgeKey]int),
		mesh:  &geom.Mesh{HasDensity: true},
	}
	for _, c := range l.cells {
		ex.cell(c)
	}
	return ex.mesh
}

type corner struct {
	key int64
	pos r3.Vec
	val float64
}

func (ex *extractor) cell(c nodeCoord) {
	var cs [8]corner
	below, above := 0, 0
	for i, o := range corners {
		nc := c.add(o)
		slot := ex.l.slot(nc)
		if slot < 0 {
			return
		}
		cs[i] = corner{key: ex.l.key(nc), pos: ex.l.position(nc), val: ex.l.chi[slot]}
		if cs[i].val < ex.iso {
			below++
		} else {
			above++
		}
	}
	if below == 0 || above == 0 {
		return
	}
	for _, tet := range kuhnTets {
		ex.tet(cs[tet[0]], cs[tet[1]], cs[tet[2]], cs[tet[3]])
	}
}

func (ex *extractor) tet(vs ...corner) {
	var in, out []corner
	for _, v := range vs {
		if v.val < ex.iso {
			in = append(in, v)
		} else {
			out = append(out, v)
		}
	}
	if len(in) == 0 || len(out) == 0 {
		return
	}

	// Triangles face from the low side towards the high side.
	up := r3.Sub(centroid(out), centroid(in))

	switch {
	case len(in) == 1:
		ex.emit(up, ex.vertex(in[0], out[0]), ex.vertex(in[0], out[1]), ex.vertex(in[0], out[2]))
	case len(out) == 1:
		ex.emit(up, ex.vertex(out[0], in[0]), ex.vertex(out[0], in[1]), ex.vertex(out[0], in[2]))
	default:
		a, b, c, d := in[0], in[1], out[0], out[1]
		q0, q1 := ex.vertex(a, c), ex.vertex(a, d)
		q2, q3 := ex.vertex(b, d), ex.vertex(b, c)
		ex.emit(up, q0, q1, q2)
		ex.emit(up, q0, q2, q3)
	}
}

func centroid(cs []corner) r3.Vec {
	var s r3.Vec
	for _, c := range cs {
		s = r3.Add(s, c.pos)
	}
	return r3.Scale(1/float64(len(cs)), s)
}

// vertex returns the shared crossing vertex on the edge between a and b.
func (ex *extractor) vertex(a, b corner) int {
	if a.key > b.key {
		a, b = b, a
	}
	k := edgeKey{a.key, b.key}
	if idx, ok := ex.verts[k]; ok {
		return idx
	}
	t := (ex.iso - a.val) / (b.val - a.val)
	p := r3.Add(a.pos, r3.Scale(t, r3.Sub(b.pos, a.pos)))
	idx := len(ex.mesh.Vertices)
	ex.mesh.Vertices = append(ex.mesh.Vertices, geom.Vertex{
		Position: p,
		Density:  ex.l.interpolate(ex.l.w, p),
	})
	ex.verts[k] = idx
	return idx
}

func (ex *extractor) emit(up r3.Vec, a, b, c int) {
	t := geom.Triangle{a, b, c}
	if r3.Dot(ex.mesh.FaceNormal(t), up) < 0 {
		t = geom.Triangle{a, c, b}
	}
	ex.mesh.Triangles = append(ex.mesh.Triangles, t)
}
