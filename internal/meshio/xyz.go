package meshio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

// decodeXYZ reads whitespace separated "x y z [nx ny nz]" rows. Normals are
// kept only when every row has exactly six columns. A leading row holding a
// single value is a point count, as written by .pts exporters.
func decodeXYZ(data []byte) (*meshData, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	md := &meshData{hasNormals: true}
	first := true
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		f := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		})
		if first && len(f) == 1 {
			first = false
			continue
		}
		first = false
		if len(f) < 3 {
			return nil, fmt.Errorf("%w: line %d: need at least 3 columns, got %d", ErrMalformed, lineNo, len(f))
		}
		p, err := parseVec(f[:3])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
		}
		v := geom.Vertex{Position: p}
		if len(f) == 6 {
			if v.Normal, err = parseVec(f[3:6]); err != nil {
				md.hasNormals = false
			}
		} else {
			md.hasNormals = false
		}
		md.vertices = append(md.vertices, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(md.vertices) == 0 || !md.hasNormals {
		md.hasNormals = false
		for i := range md.vertices {
			md.vertices[i].Normal = r3.Vec{}
		}
	}
	return md, nil
}

func encodeXYZ(w io.Writer, md *meshData) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 128)
	for _, v := range md.vertices {
		buf = appendFloats(buf[:0], "", v.Position)
		if md.hasNormals {
			buf = appendFloats(buf[:len(buf)-1], "", v.Normal)
		}
		// appendFloats leads with a separator; drop it.
		if _, err := bw.Write(buf[1:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
