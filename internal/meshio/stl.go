package meshio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

const (
	stlHeaderSize = 80
	stlFacetSize  = 50
)

// welder shares vertices between STL facets that have identical positions.
type welder struct {
	index map[r3.Vec]int
	md    *meshData
}

func newWelder() *welder {
	return &welder{index: make(map[r3.Vec]int), md: &meshData{}}
}

func (w *welder) vertex(p r3.Vec) (int, error) {
	if !geom.IsFinite(p) {
		return 0, fmt.Errorf("%w: non-finite vertex %v", ErrMalformed, p)
	}
	if i, ok := w.index[p]; ok {
		return i, nil
	}
	i := len(w.md.vertices)
	w.index[p] = i
	w.md.vertices = append(w.md.vertices, geom.Vertex{Position: p})
	return i, nil
}

func (w *welder) triangle(ps [3]r3.Vec) error {
	var t geom.Triangle
	for k, p := range ps {
		i, err := w.vertex(p)
		if err != nil {
			return err
		}
		t[k] = i
	}
	w.md.triangles = append(w.md.triangles, t)
	return nil
}

// decodeSTL reads binary STL when the size matches the facet count in the
// header, and ascii STL otherwise. Facet normals are ignored.
func decodeSTL(data []byte) (*meshData, error) {
	if len(data) >= stlHeaderSize+4 {
		n := uint64(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
		if uint64(len(data)) == stlHeaderSize+4+stlFacetSize*n {
			return decodeBinarySTL(data[stlHeaderSize+4:], int(n))
		}
	}
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid")) {
		return decodeASCIISTL(data)
	}
	return nil, fmt.Errorf("%w: neither binary nor ascii STL", ErrMalformed)
}

func decodeBinarySTL(body []byte, n int) (*meshData, error) {
	w := newWelder()
	f32 := func(b []byte) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	for i := 0; i < n; i++ {
		facet := body[i*stlFacetSize:]
		var ps [3]r3.Vec
		for k := range ps {
			off := 12 + 12*k
			ps[k] = r3.Vec{X: f32(facet[off:]), Y: f32(facet[off+4:]), Z: f32(facet[off+8:])}
		}
		if err := w.triangle(ps); err != nil {
			return nil, err
		}
	}
	return w.md, nil
}

func decodeASCIISTL(data []byte) (*meshData, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	w := newWelder()
	var ps [3]r3.Vec
	k := 0
	for lineNo := 1; sc.Scan(); lineNo++ {
		f := strings.Fields(sc.Text())
		if len(f) == 0 || f[0] != "vertex" {
			continue
		}
		if len(f) != 4 {
			return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", ErrMalformed, lineNo)
		}
		p, err := parseVec(f[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
		}
		ps[k] = p
		k++
		if k == 3 {
			if err := w.triangle(ps); err != nil {
				return nil, err
			}
			k = 0
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if k != 0 {
		return nil, fmt.Errorf("%w: trailing facet has %d vertices", ErrMalformed, k)
	}
	return w.md, nil
}

// encodeSTL writes binary STL with unit facet normals.
func encodeSTL(w io.Writer, m *geom.Mesh) error {
	bw := bufio.NewWriter(w)
	header := make([]byte, stlHeaderSize, stlHeaderSize+4)
	copy(header, "cloudmesh binary STL")
	header = binary.LittleEndian.AppendUint32(header, uint32(len(m.Triangles)))
	if _, err := bw.Write(header); err != nil {
		return err
	}

	buf := make([]byte, 0, stlFacetSize)
	put := func(v r3.Vec) {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v.X)))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v.Y)))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v.Z)))
	}
	for _, t := range m.Triangles {
		buf = buf[:0]
		n := m.FaceNormal(t)
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		}
		put(n)
		for _, idx := range t {
			put(m.Vertices[idx].Position)
		}
		buf = append(buf, 0, 0)
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}
