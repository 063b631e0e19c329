// Package meshio reads and writes point clouds and triangle meshes.
//
// Supported formats are chosen by file extension: .ply (ascii and binary,
// both byte orders), .obj, .xyz/.pts/.txt, .stl (ascii and binary) and .glb.
// Loading a point cloud from a mesh format yields its vertices. Saves go
// through a temporary sibling file and a rename, so a failed save never
// leaves a partial file behind.
package meshio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/cloudmesh/internal/fsutil"
	"github.com/banshee-data/cloudmesh/internal/geom"
)

var (
	// ErrIO wraps filesystem failures.
	ErrIO = errors.New("mesh i/o failed")
	// ErrUnsupportedFormat is returned for unknown extensions and for
	// operations a format cannot serve, such as loading a mesh from .xyz.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrMalformed is returned when file contents cannot be parsed.
	ErrMalformed = errors.New("malformed file")
)

// Format identifies a file format.
type Format string

const (
	FormatPLY Format = "ply"
	FormatOBJ Format = "obj"
	FormatXYZ Format = "xyz"
	FormatSTL Format = "stl"
	FormatGLB Format = "glb"
)

// FormatOf maps a path's extension to a Format.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".ply":
		return FormatPLY, nil
	case ".obj":
		return FormatOBJ, nil
	case ".xyz", ".pts", ".txt":
		return FormatXYZ, nil
	case ".stl":
		return FormatSTL, nil
	case ".glb":
		return FormatGLB, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// HasFaces reports whether the format stores triangles.
func (f Format) HasFaces() bool {
	return f != FormatXYZ
}

// meshData is the decoded contents of any supported file.
type meshData struct {
	vertices   []geom.Vertex
	triangles  []geom.Triangle
	hasNormals bool
	hasDensity bool
}

func (md *meshData) pointCloud() *geom.PointCloud {
	pc := &geom.PointCloud{Points: make([]geom.Point3D, len(md.vertices))}
	for i, v := range md.vertices {
		pc.Points[i] = geom.Point3D{
			Position:   v.Position,
			Normal:     v.Normal,
			Density:    v.Density,
			HasNormal:  md.hasNormals,
			HasDensity: md.hasDensity,
		}
	}
	return pc
}

func (md *meshData) mesh() (*geom.Mesh, error) {
	n := len(md.vertices)
	for i, t := range md.triangles {
		for _, idx := range t {
			if idx < 0 || idx >= n {
				return nil, fmt.Errorf("%w: triangle %d references vertex %d of %d", ErrMalformed, i, idx, n)
			}
		}
	}
	return &geom.Mesh{
		Vertices:   md.vertices,
		Triangles:  md.triangles,
		HasNormals: md.hasNormals,
		HasDensity: md.hasDensity,
	}, nil
}

func fromMesh(m *geom.Mesh) *meshData {
	return &meshData{
		vertices:   m.Vertices,
		triangles:  m.Triangles,
		hasNormals: m.HasNormals,
		hasDensity: m.HasDensity,
	}
}

// fanTriangulate appends the triangles of a convex polygon.
func fanTriangulate(dst []geom.Triangle, poly []int) []geom.Triangle {
	for i := 1; i+1 < len(poly); i++ {
		dst = append(dst, geom.Triangle{poly[0], poly[i], poly[i+1]})
	}
	return dst
}

// Codec loads and saves files through a FileSystem.
type Codec struct {
	FS fsutil.FileSystem
	// PLYASCII writes ascii PLY instead of binary little endian.
	PLYASCII bool
}

// NewCodec returns a codec over fsys.
func NewCodec(fsys fsutil.FileSystem) *Codec {
	return &Codec{FS: fsys}
}

var defaultCodec = NewCodec(fsutil.OSFileSystem{})

// LoadPointCloud reads path from the local filesystem.
func LoadPointCloud(path string) (*geom.PointCloud, error) {
	return defaultCodec.LoadPointCloud(path)
}

// LoadMesh reads path from the local filesystem.
func LoadMesh(path string) (*geom.Mesh, error) {
	return defaultCodec.LoadMesh(path)
}

// Save writes m to path on the local filesystem.
func Save(path string, m *geom.Mesh) error {
	return defaultCodec.Save(path, m)
}

func (c *Codec) decode(path string) (*meshData, Format, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, "", err
	}
	data, err := c.FS.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrIO, err)
	}

	var md *meshData
	switch format {
	case FormatPLY:
		md, err = decodePLY(data)
	case FormatOBJ:
		md, err = decodeOBJ(data)
	case FormatXYZ:
		md, err = decodeXYZ(data)
	case FormatSTL:
		md, err = decodeSTL(data)
	case FormatGLB:
		md, err = decodeGLB(data)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return md, format, nil
}

// LoadPointCloud reads a point cloud. Mesh formats contribute their
// vertices.
func (c *Codec) LoadPointCloud(path string) (*geom.PointCloud, error) {
	md, _, err := c.decode(path)
	if err != nil {
		return nil, err
	}
	return md.pointCloud(), nil
}

// LoadMesh reads a triangle mesh. Point formats return ErrUnsupportedFormat.
func (c *Codec) LoadMesh(path string) (*geom.Mesh, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if !format.HasFaces() {
		return nil, fmt.Errorf("%w: %s stores no faces", ErrUnsupportedFormat, format)
	}
	md, _, err := c.decode(path)
	if err != nil {
		return nil, err
	}
	m, err := md.mesh()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Save writes m in the format named by path's extension. Point formats
// write the vertices only.
func (c *Codec) Save(path string, m *geom.Mesh) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	if m == nil {
		m = &geom.Mesh{}
	}

	var encode func(io.Writer) error
	switch format {
	case FormatPLY:
		encode = func(w io.Writer) error { return encodePLY(w, fromMesh(m), c.PLYASCII) }
	case FormatOBJ:
		encode = func(w io.Writer) error { return encodeOBJ(w, fromMesh(m)) }
	case FormatXYZ:
		encode = func(w io.Writer) error { return encodeXYZ(w, fromMesh(m)) }
	case FormatSTL:
		encode = func(w io.Writer) error { return encodeSTL(w, m) }
	case FormatGLB:
		glb, err := EncodeGLB(m)
		if err != nil {
			return err
		}
		return c.SaveBytes(path, glb)
	}
	if err := fsutil.WriteAtomic(c.FS, path, encode); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// SaveBytes atomically writes an already encoded file, such as a
// compressed GLB buffer.
func (c *Codec) SaveBytes(path string, data []byte) error {
	err := fsutil.WriteAtomic(c.FS, path, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}
