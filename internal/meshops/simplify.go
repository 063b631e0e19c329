package meshops

import (
	"container/heap"
	"context"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
	"github.com/banshee-data/cloudmesh/internal/parallel"
)

// DefaultTargetTriangles is the triangle budget of the optimize command.
const DefaultTargetTriangles = 100000

const (
	// minFlipDot rejects collapses that turn a face by more than ~78°.
	minFlipDot = 0.2
	// boundaryWeight scales the constraint planes that pin open borders.
	boundaryWeight = 1000
	// maxOptimalDrift bounds how far, in edge lengths, the solved position may
	// land from the edge midpoint before the endpoints are used instead.
	maxOptimalDrift = 2
	// degenerateRatio is the smallest new/old face area ratio accepted.
	degenerateRatio = 1e-6
)

// SimplifyStats describes a simplification.
type SimplifyStats struct {
	Collapses       int
	Rejected        int
	InputTriangles  int
	OutputTriangles int
}

// Simplify reduces m to at most target triangles by repeatedly collapsing
// the edge with the smallest quadric error. Collapses that would break the
// link condition, flip a face or create a degenerate face are skipped, so
// the result can stay above target when no valid collapse remains.
func Simplify(ctx context.Context, m *geom.Mesh, target, workers int) (*geom.Mesh, SimplifyStats, error) {
	stats := SimplifyStats{InputTriangles: m.TriangleCount()}
	if target < 0 {
		return nil, stats, fmt.Errorf("%w: target triangles must be >= 0, got %d", geom.ErrInvalidParameter, target)
	}
	if err := m.Validate(); err != nil {
		return nil, stats, err
	}
	if target >= m.TriangleCount() {
		stats.OutputTriangles = m.TriangleCount()
		return m.Clone(), stats, nil
	}

	s, err := newSimplifier(ctx, m, workers)
	if err != nil {
		return nil, stats, err
	}
	for s.liveFaces > target && s.queue.Len() > 0 {
		if stats.Collapses&1023 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}
		c := heap.Pop(&s.queue).(candidate)
		if !s.current(c) {
			continue
		}
		if !s.collapse(c) {
			stats.Rejected++
			continue
		}
		stats.Collapses++
	}

	out := s.result(m)
	stats.OutputTriangles = out.TriangleCount()
	return out, stats, nil
}

type candidate struct {
	cost     float64
	u, v     int
	verU     int
	verV     int
	position r3.Vec
}

type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	if h[i].u != h[j].u {
		return h[i].u < h[j].u
	}
	return h[i].v < h[j].v
}
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)   { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

type simplifier struct {
	pos       []r3.Vec
	quadrics  []quadric
	version   []int
	alive     []bool
	faces     []geom.Triangle
	faceAlive []bool
	vfaces    [][]int // Live faces per vertex, pruned lazily
	liveFaces int
	queue     candidateHeap
}

func newSimplifier(ctx context.Context, m *geom.Mesh, workers int) (*simplifier, error) {
	n := m.VertexCount()
	s := &simplifier{
		pos:       m.Positions(),
		quadrics:  make([]quadric, n),
		version:   make([]int, n),
		alive:     make([]bool, n),
		faces:     make([]geom.Triangle, len(m.Triangles)),
		faceAlive: make([]bool, len(m.Triangles)),
		vfaces:    m.VertexFaces(),
		liveFaces: len(m.Triangles),
	}
	copy(s.faces, m.Triangles)
	for i := range s.faceAlive {
		s.faceAlive[i] = true
	}
	for i := range s.alive {
		s.alive[i] = true
	}

	faceQ := make([]quadric, len(s.faces))
	err := parallel.Range(ctx, len(s.faces), workers, func(f int) {
		fn := m.FaceNormal(s.faces[f])
		l := r3.Norm(fn)
		if l == 0 {
			return
		}
		nrm := r3.Scale(1/l, fn)
		faceQ[f] = planeQuadric(nrm, -r3.Dot(nrm, s.pos[s.faces[f][0]]), 0.5*l)
	})
	if err != nil {
		return nil, err
	}
	err = parallel.Range(ctx, n, workers, func(v int) {
		for _, f := range s.vfaces[v] {
			s.quadrics[v].add(faceQ[f])
		}
	})
	if err != nil {
		return nil, err
	}

	ef := m.EdgeFaces()
	for e, fs := range ef {
		if len(fs) != 1 {
			continue
		}
		fn := m.FaceNormal(s.faces[fs[0]])
		dir := r3.Sub(s.pos[e.B], s.pos[e.A])
		cn := r3.Cross(dir, fn)
		l := r3.Norm(cn)
		if l == 0 {
			continue
		}
		cn = r3.Scale(1/l, cn)
		q := planeQuadric(cn, -r3.Dot(cn, s.pos[e.A]), boundaryWeight*r3.Norm2(dir))
		s.quadrics[e.A].add(q)
		s.quadrics[e.B].add(q)
	}

	s.queue = make(candidateHeap, 0, len(ef))
	for e := range ef {
		s.queue = append(s.queue, s.candidate(e.A, e.B))
	}
	heap.Init(&s.queue)
	return s, nil
}

// candidate evaluates collapsing edge (u, v) into u.
func (s *simplifier) candidate(u, v int) candidate {
	if u > v {
		u, v = v, u
	}
	q := s.quadrics[u].plus(s.quadrics[v])
	a, b := s.pos[u], s.pos[v]
	mid := r3.Scale(0.5, r3.Add(a, b))
	edgeLen := r3.Norm(r3.Sub(a, b))

	best := candidate{u: u, v: v, verU: s.version[u], verV: s.version[v]}
	if p, ok := q.minimiser(); ok && r3.Norm(r3.Sub(p, mid)) <= maxOptimalDrift*edgeLen {
		best.position, best.cost = p, q.eval(p)
		return best
	}
	best.position, best.cost = mid, q.eval(mid)
	for _, p := range []r3.Vec{a, b} {
		if c := q.eval(p); c < best.cost {
			best.position, best.cost = p, c
		}
	}
	return best
}

func (s *simplifier) current(c candidate) bool {
	return s.alive[c.u] && s.alive[c.v] && s.version[c.u] == c.verU && s.version[c.v] == c.verV
}

// liveFacesOf prunes and returns the live faces around v.
func (s *simplifier) liveFacesOf(v int) []int {
	fs := s.vfaces[v][:0]
	for _, f := range s.vfaces[v] {
		if s.faceAlive[f] {
			fs = append(fs, f)
		}
	}
	s.vfaces[v] = fs
	return fs
}

func contains(t geom.Triangle, v int) bool {
	return t[0] == v || t[1] == v || t[2] == v
}

func (s *simplifier) neighbours(v int) map[int]struct{} {
	out := make(map[int]struct{})
	for _, f := range s.liveFacesOf(v) {
		for _, w := range s.faces[f] {
			if w != v {
				out[w] = struct{}{}
			}
		}
	}
	return out
}

// isBoundary reports whether v touches an edge used by a single live face.
func (s *simplifier) isBoundary(v int) bool {
	count := make(map[int]int)
	for _, f := range s.liveFacesOf(v) {
		for _, w := range s.faces[f] {
			if w != v {
				count[w]++
			}
		}
	}
	for _, c := range count {
		if c == 1 {
			return true
		}
	}
	return false
}

// collapse merges c.v into c.u at c.position. It reports false, leaving the
// mesh untouched, when the collapse would damage the surface.
func (s *simplifier) collapse(c candidate) bool {
	u, v := c.u, c.v
	fu, fv := s.liveFacesOf(u), s.liveFacesOf(v)

	// Link condition: the common neighbours of u and v are exactly the
	// apexes of the faces on edge uv.
	var shared []int
	apex := make(map[int]struct{})
	for _, f := range fu {
		if contains(s.faces[f], v) {
			shared = append(shared, f)
			for _, w := range s.faces[f] {
				if w != u && w != v {
					apex[w] = struct{}{}
				}
			}
		}
	}
	if len(shared) == 0 {
		return false
	}
	nu, nv := s.neighbours(u), s.neighbours(v)
	common := 0
	for w := range nu {
		if _, ok := nv[w]; ok {
			common++
			if _, ok := apex[w]; !ok {
				return false
			}
		}
	}
	if common != len(apex) {
		return false
	}
	if len(shared) == 2 && s.isBoundary(u) && s.isBoundary(v) {
		return false
	}

	// Faces of v must not become copies of faces of u.
	uKeys := make(map[[3]int]struct{}, len(fu))
	for _, f := range fu {
		if !contains(s.faces[f], v) {
			uKeys[sortedKey(s.faces[f])] = struct{}{}
		}
	}
	for _, f := range fv {
		t := s.faces[f]
		if contains(t, u) {
			continue
		}
		for k := range t {
			if t[k] == v {
				t[k] = u
			}
		}
		if _, dup := uKeys[sortedKey(t)]; dup {
			return false
		}
	}

	if !s.keepsOrientation(fu, u, v, c.position) || !s.keepsOrientation(fv, u, v, c.position) {
		return false
	}

	for _, f := range shared {
		s.faceAlive[f] = false
		s.liveFaces--
	}
	for _, f := range fv {
		if !s.faceAlive[f] {
			continue
		}
		for k := range s.faces[f] {
			if s.faces[f][k] == v {
				s.faces[f][k] = u
			}
		}
		s.vfaces[u] = append(s.vfaces[u], f)
	}
	s.vfaces[v] = nil
	s.alive[v] = false
	s.pos[u] = c.position
	s.quadrics[u].add(s.quadrics[v])
	s.version[u]++
	s.version[v]++

	for w := range s.neighbours(u) {
		heap.Push(&s.queue, s.candidate(u, w))
	}
	return true
}

// keepsOrientation checks every face in fs that does not contain both u and
// v after moving u or v to p.
func (s *simplifier) keepsOrientation(fs []int, u, v int, p r3.Vec) bool {
	for _, f := range fs {
		t := s.faces[f]
		if contains(t, u) && contains(t, v) {
			continue
		}
		var before, after [3]r3.Vec
		for k, w := range t {
			before[k] = s.pos[w]
			after[k] = s.pos[w]
			if w == u || w == v {
				after[k] = p
			}
		}
		n0 := r3.Cross(r3.Sub(before[1], before[0]), r3.Sub(before[2], before[0]))
		n1 := r3.Cross(r3.Sub(after[1], after[0]), r3.Sub(after[2], after[0]))
		l0, l1 := r3.Norm(n0), r3.Norm(n1)
		if l1 == 0 || l1 < degenerateRatio*l0 {
			return false
		}
		if l0 > 0 && r3.Dot(n0, n1)/(l0*l1) < minFlipDot {
			return false
		}
	}
	return true
}

// result compacts the live faces and vertices into a new mesh.
func (s *simplifier) result(m *geom.Mesh) *geom.Mesh {
	out := &geom.Mesh{HasDensity: m.HasDensity}
	remap := make([]int, len(s.pos))
	for i := range remap {
		remap[i] = -1
	}
	for f, t := range s.faces {
		if !s.faceAlive[f] {
			continue
		}
		var nt geom.Triangle
		for k, v := range t {
			if remap[v] < 0 {
				remap[v] = len(out.Vertices)
				vert := m.Vertices[v]
				vert.Position = s.pos[v]
				out.Vertices = append(out.Vertices, vert)
			}
			nt[k] = remap[v]
		}
		out.Triangles = append(out.Triangles, nt)
	}
	return out.ComputeVertexNormals()
}
