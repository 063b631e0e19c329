package meshio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

// maxLineLength bounds a single text line in OBJ and XYZ files.
const maxLineLength = 16 * 1024 * 1024

func parseVec(f []string) (r3.Vec, error) {
	var v [3]float64
	for i := range v {
		x, err := strconv.ParseFloat(f[i], 64)
		if err != nil {
			return r3.Vec{}, err
		}
		v[i] = x
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

// resolveOBJIndex converts a 1-based or negative (relative) OBJ index.
func resolveOBJIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	switch {
	case i > 0:
		return i - 1, nil
	case i < 0:
		return n + i, nil
	default:
		return 0, fmt.Errorf("index 0 is not valid")
	}
}

type objCorner struct {
	vertex, normal int
}

func decodeOBJ(data []byte) (*meshData, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	var positions, normals []r3.Vec
	var corners []objCorner
	md := &meshData{}
	poly := make([]int, 0, 4)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "v":
			if len(f) < 4 {
				return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", ErrMalformed, lineNo)
			}
			p, err := parseVec(f[1:4])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
			}
			positions = append(positions, p)
		case "vn":
			if len(f) < 4 {
				return nil, fmt.Errorf("%w: line %d: normal needs 3 components", ErrMalformed, lineNo)
			}
			n, err := parseVec(f[1:4])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
			}
			normals = append(normals, n)
		case "f":
			if len(f) < 4 {
				return nil, fmt.Errorf("%w: line %d: face needs 3 corners", ErrMalformed, lineNo)
			}
			poly = poly[:0]
			for _, tok := range f[1:] {
				parts := strings.Split(tok, "/")
				vi, err := resolveOBJIndex(parts[0], len(positions))
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: corner %q: %v", ErrMalformed, lineNo, tok, err)
				}
				ni := -1
				if len(parts) == 3 && parts[2] != "" {
					if ni, err = resolveOBJIndex(parts[2], len(normals)); err != nil {
						return nil, fmt.Errorf("%w: line %d: corner %q: %v", ErrMalformed, lineNo, tok, err)
					}
				}
				poly = append(poly, vi)
				corners = append(corners, objCorner{vertex: vi, normal: ni})
			}
			md.triangles = fanTriangulate(md.triangles, poly)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	md.vertices = make([]geom.Vertex, len(positions))
	for i, p := range positions {
		md.vertices[i].Position = p
	}

	// Per-corner normals become vertex normals; the mesh carries normals
	// only when every vertex received one.
	assigned := make([]bool, len(positions))
	for _, c := range corners {
		if c.vertex < 0 || c.vertex >= len(positions) {
			return nil, fmt.Errorf("%w: face references vertex %d of %d", ErrMalformed, c.vertex+1, len(positions))
		}
		if c.normal < 0 {
			continue
		}
		if c.normal >= len(normals) {
			return nil, fmt.Errorf("%w: face references normal %d of %d", ErrMalformed, c.normal+1, len(normals))
		}
		md.vertices[c.vertex].Normal = normals[c.normal]
		assigned[c.vertex] = true
	}
	md.hasNormals = len(positions) > 0
	for _, a := range assigned {
		if !a {
			md.hasNormals = false
			break
		}
	}
	// Files with one vn per v and no face references pair them by order.
	if !md.hasNormals && len(corners) == 0 && len(normals) == len(positions) && len(normals) > 0 {
		for i, n := range normals {
			md.vertices[i].Normal = n
		}
		md.hasNormals = true
	}
	if !md.hasNormals {
		for i := range md.vertices {
			md.vertices[i].Normal = r3.Vec{}
		}
	}
	return md, nil
}

func appendFloats(buf []byte, prefix string, v r3.Vec) []byte {
	buf = append(buf, prefix...)
	for _, x := range [3]float64{v.X, v.Y, v.Z} {
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, x, 'g', -1, 64)
	}
	return append(buf, '\n')
}

func encodeOBJ(w io.Writer, md *meshData) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# generated by cloudmesh\n# %d vertices, %d triangles\n", len(md.vertices), len(md.triangles))
	buf := make([]byte, 0, 96)
	for _, v := range md.vertices {
		if _, err := bw.Write(appendFloats(buf[:0], "v", v.Position)); err != nil {
			return err
		}
	}
	if md.hasNormals {
		for _, v := range md.vertices {
			if _, err := bw.Write(appendFloats(buf[:0], "vn", v.Normal)); err != nil {
				return err
			}
		}
	}
	for _, t := range md.triangles {
		a, b, c := t[0]+1, t[1]+1, t[2]+1
		var err error
		if md.hasNormals {
			_, err = fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d\n", a, a, b, b, c, c)
		} else {
			_, err = fmt.Fprintf(bw, "f %d %d %d\n", a, b, c)
		}
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}
