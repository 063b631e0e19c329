package pointcloud

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

// DefaultVoxelSize is the voxel edge length used by the reconstruct command.
const DefaultVoxelSize = 0.02

// voxelKey identifies a grid cube by its integer coordinates.
type voxelKey struct {
	X, Y, Z int64
}

// voxelAccum accumulates the members of one occupied cube.
type voxelAccum struct {
	sum        r3.Vec
	normalSum  r3.Vec
	densitySum float64
	count      int
	allNormals bool
	allDensity bool
}

// VoxelDownsample replaces every cluster of points that share a cube of edge
// size by their centroid. Normals are averaged and renormalised when every
// member has one; densities are averaged when every member has one.
//
// The grid is anchored at the cloud's minimum corner and output points are
// ordered by the first input point of each cube, so identical inputs give
// identical outputs.
func VoxelDownsample(pc *geom.PointCloud, size float64) (*geom.PointCloud, error) {
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return nil, fmt.Errorf("%w: voxel size must be positive and finite, got %g", geom.ErrInvalidParameter, size)
	}
	if pc.Len() == 0 {
		return &geom.PointCloud{}, nil
	}
	if err := pc.Validate(); err != nil {
		return nil, err
	}

	box, _ := pc.Bounds()
	inv := 1 / size
	cells := make(map[voxelKey]int, pc.Len()/2)
	accums := make([]voxelAccum, 0, pc.Len()/2)

	for _, p := range pc.Points {
		k := voxelKey{
			X: int64(math.Floor((p.Position.X - box.Min.X) * inv)),
			Y: int64(math.Floor((p.Position.Y - box.Min.Y) * inv)),
			Z: int64(math.Floor((p.Position.Z - box.Min.Z) * inv)),
		}
		slot, ok := cells[k]
		if !ok {
			slot = len(accums)
			cells[k] = slot
			accums = append(accums, voxelAccum{allNormals: true, allDensity: true})
		}
		a := &accums[slot]
		a.sum = r3.Add(a.sum, p.Position)
		a.count++
		if p.HasNormal {
			a.normalSum = r3.Add(a.normalSum, p.Normal)
		} else {
			a.allNormals = false
		}
		if p.HasDensity {
			a.densitySum += p.Density
		} else {
			a.allDensity = false
		}
	}

	out := &geom.PointCloud{Points: make([]geom.Point3D, len(accums))}
	for i, a := range accums {
		n := float64(a.count)
		pt := geom.Point3D{Position: r3.Scale(1/n, a.sum)}
		if a.allNormals {
			pt.HasNormal = true
			if l := r3.Norm(a.normalSum); l > 0 {
				pt.Normal = r3.Scale(1/l, a.normalSum)
			}
		}
		if a.allDensity {
			pt.HasDensity = true
			pt.Density = a.densitySum / n
		}
		out.Points[i] = pt
	}
	return out, nil
}
