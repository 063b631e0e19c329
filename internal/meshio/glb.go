package meshio

import (
	"bytes"
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

// primitiveAttributes builds the attribute map in whatever index type the
// gltf modeler returns.
func primitiveAttributes[T any](position, normal T) map[string]T {
	return map[string]T{gltf.POSITION: position, gltf.NORMAL: normal}
}

// EncodeGLB renders m as a single-mesh binary glTF document with positions,
// unit normals, uint32 indices and a neutral material. Meshes without
// normals get area weighted vertex normals.
func EncodeGLB(m *geom.Mesh) ([]byte, error) {
	if m.TriangleCount() == 0 {
		return nil, fmt.Errorf("%w: mesh has no triangles to encode", geom.ErrInvalidParameter)
	}
	if !m.HasNormals {
		m = m.ComputeVertexNormals()
	}

	positions := make([][3]float32, len(m.Vertices))
	normals := make([][3]float32, len(m.Vertices))
	for i, v := range m.Vertices {
		positions[i] = [3]float32{float32(v.Position.X), float32(v.Position.Y), float32(v.Position.Z)}
		n := v.Normal
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		} else {
			n = r3.Vec{Z: 1}
		}
		normals[i] = [3]float32{float32(n.X), float32(n.Y), float32(n.Z)}
	}
	indices := make([]uint32, 0, 3*len(m.Triangles))
	for _, t := range m.Triangles {
		indices = append(indices, uint32(t[0]), uint32(t[1]), uint32(t[2]))
	}

	doc := gltf.NewDocument()
	doc.Asset.Generator = "cloudmesh"

	prim := &gltf.Primitive{
		Attributes: primitiveAttributes(modeler.WritePosition(doc, positions), modeler.WriteNormal(doc, normals)),
		Indices:    gltf.Index(modeler.WriteIndices(doc, indices)),
		Material:   gltf.Index(0),
	}
	doc.Materials = []*gltf.Material{{
		Name: "surface",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float32{0.8, 0.8, 0.8, 1},
			MetallicFactor:  gltf.Float(0),
			RoughnessFactor: gltf.Float(1),
		},
		AlphaMode: gltf.AlphaOpaque,
	}}
	doc.Meshes = []*gltf.Mesh{{Name: "surface", Primitives: []*gltf.Primitive{prim}}}
	doc.Nodes = []*gltf.Node{{Name: "surface", Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode glb: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeGLB reads the first primitive of the first mesh.
func decodeGLB(data []byte) (*meshData, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(doc.Meshes) == 0 || len(doc.Meshes[0].Primitives) == 0 {
		return nil, fmt.Errorf("%w: document has no mesh primitive", ErrMalformed)
	}
	prim := doc.Meshes[0].Primitives[0]
	if prim.Mode != gltf.PrimitiveTriangles {
		return nil, fmt.Errorf("%w: primitive mode %v is not triangles", ErrUnsupportedFormat, prim.Mode)
	}

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("%w: primitive has no POSITION", ErrMalformed)
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: positions: %v", ErrMalformed, err)
	}

	md := &meshData{vertices: make([]geom.Vertex, len(positions))}
	for i, p := range positions {
		md.vertices[i].Position = r3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
	}
	if nrmIdx, ok := prim.Attributes[gltf.NORMAL]; ok {
		normals, err := modeler.ReadNormal(doc, doc.Accessors[nrmIdx], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: normals: %v", ErrMalformed, err)
		}
		if len(normals) == len(positions) {
			for i, n := range normals {
				md.vertices[i].Normal = r3.Vec{X: float64(n[0]), Y: float64(n[1]), Z: float64(n[2])}
			}
			md.hasNormals = true
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		if indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil); err != nil {
			return nil, fmt.Errorf("%w: indices: %v", ErrMalformed, err)
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	if len(indices)%3 != 0 {
		return nil, fmt.Errorf("%w: %d indices is not a multiple of 3", ErrMalformed, len(indices))
	}
	md.triangles = make([]geom.Triangle, 0, len(indices)/3)
	for i := 0; i < len(indices); i += 3 {
		md.triangles = append(md.triangles, geom.Triangle{int(indices[i]), int(indices[i+1]), int(indices[i+2])})
	}
	return md, nil
}
