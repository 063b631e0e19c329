package meshio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

type plyFormat int

const (
	plyASCII plyFormat = iota
	plyBinaryLE
	plyBinaryBE
)

// maxPLYList bounds list lengths so corrupt counts fail instead of
// allocating.
const maxPLYList = 1 << 16

var plyTypeSizes = map[string]int{
	"char": 1, "int8": 1, "uchar": 1, "uint8": 1,
	"short": 2, "int16": 2, "ushort": 2, "uint16": 2,
	"int": 4, "int32": 4, "uint": 4, "uint32": 4,
	"float": 4, "float32": 4, "double": 8, "float64": 8,
}

type plyProperty struct {
	name      string
	typ       string
	list      bool
	countType string
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

func (el *plyElement) index(names ...string) int {
	for i, p := range el.props {
		for _, n := range names {
			if p.name == n {
				return i
			}
		}
	}
	return -1
}

type plyHeader struct {
	format   plyFormat
	elements []plyElement
}

func readLine(br *bufio.Reader) (string, error) {
	s, err := br.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func readPLYHeader(br *bufio.Reader) (*plyHeader, error) {
	magic, err := readLine(br)
	if err != nil || strings.TrimSpace(magic) != "ply" {
		return nil, fmt.Errorf("%w: missing ply magic", ErrMalformed)
	}
	h := &plyHeader{format: -1}
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, fmt.Errorf("%w: header ends before end_header", ErrMalformed)
		}
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "format":
			if len(f) < 2 {
				return nil, fmt.Errorf("%w: bad format line %q", ErrMalformed, line)
			}
			switch f[1] {
			case "ascii":
				h.format = plyASCII
			case "binary_little_endian":
				h.format = plyBinaryLE
			case "binary_big_endian":
				h.format = plyBinaryBE
			default:
				return nil, fmt.Errorf("%w: ply format %q", ErrUnsupportedFormat, f[1])
			}
		case "comment", "obj_info":
		case "element":
			if len(f) != 3 {
				return nil, fmt.Errorf("%w: bad element line %q", ErrMalformed, line)
			}
			count, err := strconv.Atoi(f[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("%w: bad element count %q", ErrMalformed, f[2])
			}
			h.elements = append(h.elements, plyElement{name: f[1], count: count})
		case "property":
			if len(h.elements) == 0 {
				return nil, fmt.Errorf("%w: property before element", ErrMalformed)
			}
			el := &h.elements[len(h.elements)-1]
			switch {
			case len(f) == 5 && f[1] == "list":
				if plyTypeSizes[f[2]] == 0 || plyTypeSizes[f[3]] == 0 {
					return nil, fmt.Errorf("%w: unknown list types in %q", ErrMalformed, line)
				}
				el.props = append(el.props, plyProperty{name: f[4], typ: f[3], list: true, countType: f[2]})
			case len(f) == 3:
				if plyTypeSizes[f[1]] == 0 {
					return nil, fmt.Errorf("%w: unknown property type %q", ErrMalformed, f[1])
				}
				el.props = append(el.props, plyProperty{name: f[2], typ: f[1]})
			default:
				return nil, fmt.Errorf("%w: bad property line %q", ErrMalformed, line)
			}
		case "end_header":
			if h.format < 0 {
				return nil, fmt.Errorf("%w: header has no format line", ErrMalformed)
			}
			return h, nil
		default:
			return nil, fmt.Errorf("%w: unknown header keyword %q", ErrMalformed, f[0])
		}
	}
}

type plyValueReader interface {
	read(typ string) (float64, error)
}

type plyASCIIReader struct {
	sc *bufio.Scanner
}

func (r *plyASCIIReader) read(string) (float64, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return 0, err
		}
		return 0, io.ErrUnexpectedEOF
	}
	return strconv.ParseFloat(r.sc.Text(), 64)
}

type plyBinaryReader struct {
	r     io.Reader
	order binary.ByteOrder
	buf   [8]byte
}

func (r *plyBinaryReader) read(typ string) (float64, error) {
	b := r.buf[:plyTypeSizes[typ]]
	if _, err := io.ReadFull(r.r, b); err != nil {
		return 0, err
	}
	switch typ {
	case "char", "int8":
		return float64(int8(b[0])), nil
	case "uchar", "uint8":
		return float64(b[0]), nil
	case "short", "int16":
		return float64(int16(r.order.Uint16(b))), nil
	case "ushort", "uint16":
		return float64(r.order.Uint16(b)), nil
	case "int", "int32":
		return float64(int32(r.order.Uint32(b))), nil
	case "uint", "uint32":
		return float64(r.order.Uint32(b)), nil
	case "float", "float32":
		return float64(math.Float32frombits(r.order.Uint32(b))), nil
	default:
		return math.Float64frombits(r.order.Uint64(b)), nil
	}
}

// readPLYRow reads one element row. Scalars land in vals by property index;
// the contents of the list property at want are returned in list.
func readPLYRow(vr plyValueReader, props []plyProperty, vals []float64, want int, list []int) ([]int, error) {
	list = list[:0]
	for i, p := range props {
		if !p.list {
			v, err := vr.read(p.typ)
			if err != nil {
				return nil, err
			}
			vals[i] = v
			continue
		}
		c, err := vr.read(p.countType)
		if err != nil {
			return nil, err
		}
		if c < 0 || c > maxPLYList {
			return nil, fmt.Errorf("list length %g out of range", c)
		}
		for j := 0; j < int(c); j++ {
			v, err := vr.read(p.typ)
			if err != nil {
				return nil, err
			}
			if i == want {
				list = append(list, int(v))
			}
		}
	}
	return list, nil
}

func decodePLY(data []byte) (*meshData, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	h, err := readPLYHeader(br)
	if err != nil {
		return nil, err
	}

	var vr plyValueReader
	switch h.format {
	case plyASCII:
		sc := bufio.NewScanner(br)
		sc.Split(bufio.ScanWords)
		vr = &plyASCIIReader{sc: sc}
	case plyBinaryLE:
		vr = &plyBinaryReader{r: br, order: binary.LittleEndian}
	default:
		vr = &plyBinaryReader{r: br, order: binary.BigEndian}
	}

	md := &meshData{}
	for i := range h.elements {
		el := &h.elements[i]
		switch el.name {
		case "vertex":
			err = readPLYVertices(vr, el, md)
		case "face":
			err = readPLYFaces(vr, el, md)
		default:
			err = skipPLYElement(vr, el)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s element: %v", ErrMalformed, el.name, err)
		}
	}
	return md, nil
}

func readPLYVertices(vr plyValueReader, el *plyElement, md *meshData) error {
	ix, iy, iz := el.index("x"), el.index("y"), el.index("z")
	if ix < 0 || iy < 0 || iz < 0 {
		return fmt.Errorf("vertex element lacks x, y or z")
	}
	inx, iny, inz := el.index("nx"), el.index("ny"), el.index("nz")
	md.hasNormals = inx >= 0 && iny >= 0 && inz >= 0
	idens := el.index("density", "quality", "scalar_density")
	md.hasDensity = idens >= 0

	vals := make([]float64, len(el.props))
	var scratch []int
	md.vertices = make([]geom.Vertex, el.count)
	for i := range md.vertices {
		var err error
		if scratch, err = readPLYRow(vr, el.props, vals, -1, scratch); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		v := &md.vertices[i]
		v.Position = r3.Vec{X: vals[ix], Y: vals[iy], Z: vals[iz]}
		if md.hasNormals {
			v.Normal = r3.Vec{X: vals[inx], Y: vals[iny], Z: vals[inz]}
		}
		if md.hasDensity {
			v.Density = vals[idens]
		}
	}
	return nil
}

func readPLYFaces(vr plyValueReader, el *plyElement, md *meshData) error {
	want := el.index("vertex_indices", "vertex_index")
	if want < 0 || !el.props[want].list {
		return fmt.Errorf("face element lacks a vertex_indices list")
	}
	vals := make([]float64, len(el.props))
	var poly []int
	md.triangles = make([]geom.Triangle, 0, el.count)
	for i := 0; i < el.count; i++ {
		var err error
		if poly, err = readPLYRow(vr, el.props, vals, want, poly); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		md.triangles = fanTriangulate(md.triangles, poly)
	}
	return nil
}

func skipPLYElement(vr plyValueReader, el *plyElement) error {
	vals := make([]float64, len(el.props))
	for i := 0; i < el.count; i++ {
		if _, err := readPLYRow(vr, el.props, vals, -1, nil); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// encodePLY writes x/y/z, optional nx/ny/nz and density as float, and faces
// as uchar-counted int lists.
func encodePLY(w io.Writer, md *meshData, ascii bool) error {
	bw := bufio.NewWriter(w)
	format := "binary_little_endian"
	if ascii {
		format = "ascii"
	}
	fmt.Fprintf(bw, "ply\nformat %s 1.0\ncomment generated by cloudmesh\n", format)
	fmt.Fprintf(bw, "element vertex %d\nproperty float x\nproperty float y\nproperty float z\n", len(md.vertices))
	if md.hasNormals {
		fmt.Fprint(bw, "property float nx\nproperty float ny\nproperty float nz\n")
	}
	if md.hasDensity {
		fmt.Fprint(bw, "property float density\n")
	}
	fmt.Fprintf(bw, "element face %d\nproperty list uchar int vertex_indices\nend_header\n", len(md.triangles))

	vals := make([]float64, 0, 7)
	buf := make([]byte, 0, 32)
	for _, v := range md.vertices {
		vals = append(vals[:0], v.Position.X, v.Position.Y, v.Position.Z)
		if md.hasNormals {
			vals = append(vals, v.Normal.X, v.Normal.Y, v.Normal.Z)
		}
		if md.hasDensity {
			vals = append(vals, v.Density)
		}
		buf = buf[:0]
		for j, x := range vals {
			if ascii {
				if j > 0 {
					buf = append(buf, ' ')
				}
				buf = strconv.AppendFloat(buf, float64(float32(x)), 'g', -1, 32)
			} else {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(x)))
			}
		}
		if ascii {
			buf = append(buf, '\n')
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	for _, t := range md.triangles {
		buf = buf[:0]
		if ascii {
			buf = fmt.Appendf(buf, "3 %d %d %d\n", t[0], t[1], t[2])
		} else {
			buf = append(buf, 3)
			for _, idx := range t {
				buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(idx)))
			}
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}
