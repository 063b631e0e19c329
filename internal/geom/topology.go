package geom

import "sort"

// Edge is an undirected mesh edge with A < B.
type Edge struct {
	A, B int
}

// MakeEdge orders the endpoints of an undirected edge.
func MakeEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// Edges returns the three undirected edges of t.
func (t Triangle) Edges() [3]Edge {
	return [3]Edge{MakeEdge(t[0], t[1]), MakeEdge(t[1], t[2]), MakeEdge(t[2], t[0])}
}

// EdgeFaces maps each undirected edge to the triangles that use it, in
// triangle order.
func (m *Mesh) EdgeFaces() map[Edge][]int {
	ef := make(map[Edge][]int, len(m.Triangles)*3/2)
	for i, t := range m.Triangles {
		for _, e := range t.Edges() {
			ef[e] = append(ef[e], i)
		}
	}
	return ef
}

// NonManifoldEdges counts edges shared by more than two triangles.
func (m *Mesh) NonManifoldEdges() int {
	n := 0
	for _, faces := range m.EdgeFaces() {
		if len(faces) > 2 {
			n++
		}
	}
	return n
}

// BoundaryEdges counts edges used by exactly one triangle.
func (m *Mesh) BoundaryEdges() int {
	n := 0
	for _, faces := range m.EdgeFaces() {
		if len(faces) == 1 {
			n++
		}
	}
	return n
}

// VertexNeighbors returns the sorted 1-ring of every vertex.
func (m *Mesh) VertexNeighbors() [][]int {
	ring := make([]map[int]struct{}, len(m.Vertices))
	add := func(a, b int) {
		if ring[a] == nil {
			ring[a] = make(map[int]struct{}, 6)
		}
		ring[a][b] = struct{}{}
	}
	for _, t := range m.Triangles {
		for k := 0; k < 3; k++ {
			a, b := t[k], t[(k+1)%3]
			if a == b {
				continue
			}
			add(a, b)
			add(b, a)
		}
	}
	out := make([][]int, len(m.Vertices))
	for i, set := range ring {
		if len(set) == 0 {
			continue
		}
		nb := make([]int, 0, len(set))
		for j := range set {
			nb = append(nb, j)
		}
		sort.Ints(nb)
		out[i] = nb
	}
	return out
}

// VertexFaces returns, for each vertex, the triangles incident to it.
func (m *Mesh) VertexFaces() [][]int {
	out := make([][]int, len(m.Vertices))
	for i, t := range m.Triangles {
		for _, idx := range t {
			out[idx] = append(out[idx], i)
		}
	}
	return out
}
