package geom

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidParameter is returned when a numeric argument or an input
// snapshot is outside the range a stage accepts.
var ErrInvalidParameter = errors.New("invalid parameter")

// Point3D is a single sample of a point cloud.
//
// A zero Normal with HasNormal set marks a point whose normal could not be
// estimated; orientation and reconstruction skip such points.
type Point3D struct {
	Position   r3.Vec
	Normal     r3.Vec
	Density    float64
	HasNormal  bool
	HasDensity bool
}

// PointCloud is an ordered set of samples. Order carries no meaning beyond
// reproducibility.
type PointCloud struct {
	Points []Point3D
}

// NewPointCloud wraps positions into a PointCloud without normals.
func NewPointCloud(positions []r3.Vec) *PointCloud {
	pts := make([]Point3D, len(positions))
	for i, p := range positions {
		pts[i] = Point3D{Position: p}
	}
	return &PointCloud{Points: pts}
}

// Len returns the number of points. A nil cloud has length zero.
func (pc *PointCloud) Len() int {
	if pc == nil {
		return 0
	}
	return len(pc.Points)
}

// Clone returns a deep copy.
func (pc *PointCloud) Clone() *PointCloud {
	if pc == nil {
		return &PointCloud{}
	}
	pts := make([]Point3D, len(pc.Points))
	copy(pts, pc.Points)
	return &PointCloud{Points: pts}
}

// Positions returns the point positions in order.
func (pc *PointCloud) Positions() []r3.Vec {
	out := make([]r3.Vec, pc.Len())
	for i := range out {
		out[i] = pc.Points[i].Position
	}
	return out
}

// HasNormals reports whether every point carries a normal. An empty cloud
// has no normals.
func (pc *PointCloud) HasNormals() bool {
	if pc.Len() == 0 {
		return false
	}
	for _, p := range pc.Points {
		if !p.HasNormal {
			return false
		}
	}
	return true
}

// Validate checks that every coordinate, normal and density is finite.
func (pc *PointCloud) Validate() error {
	for i, p := range pc.Points {
		if !IsFinite(p.Position) {
			return fmt.Errorf("%w: point %d has non-finite position %v", ErrInvalidParameter, i, p.Position)
		}
		if p.HasNormal && !IsFinite(p.Normal) {
			return fmt.Errorf("%w: point %d has non-finite normal %v", ErrInvalidParameter, i, p.Normal)
		}
		if p.HasDensity && (math.IsNaN(p.Density) || math.IsInf(p.Density, 0)) {
			return fmt.Errorf("%w: point %d has non-finite density", ErrInvalidParameter, i)
		}
	}
	return nil
}

// Bounds returns the axis aligned bounding box of the cloud. ok is false for
// an empty cloud.
func (pc *PointCloud) Bounds() (box r3.Box, ok bool) {
	if pc.Len() == 0 {
		return r3.Box{}, false
	}
	return BoundsOf(pc.Positions()), true
}

// BoundsOf returns the bounding box of a non-empty set of positions.
func BoundsOf(ps []r3.Vec) r3.Box {
	box := r3.Box{
		Min: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for _, p := range ps {
		box.Min.X = math.Min(box.Min.X, p.X)
		box.Min.Y = math.Min(box.Min.Y, p.Y)
		box.Min.Z = math.Min(box.Min.Z, p.Z)
		box.Max.X = math.Max(box.Max.X, p.X)
		box.Max.Y = math.Max(box.Max.Y, p.Y)
		box.Max.Z = math.Max(box.Max.Z, p.Z)
	}
	return box
}

// IsFinite reports whether all components of v are finite.
func IsFinite(v r3.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// IsZero reports whether v is exactly the zero vector.
func IsZero(v r3.Vec) bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Component returns the d'th coordinate of v (0=X, 1=Y, 2=Z).
func Component(v r3.Vec, d int) float64 {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}
