package poisson

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/cloudmesh/internal/geom"
	"github.com/banshee-data/cloudmesh/internal/monitoring"
)

// Reconstruct builds a triangle mesh from the oriented points of pc.
// Points without a non-zero normal are ignored. Every output vertex
// carries the interpolated sample weight as its density, so sparsely
// supported regions can be trimmed afterwards.
func Reconstruct(ctx context.Context, pc *geom.PointCloud, p Params) (*geom.Mesh, Stats, error) {
	var stats Stats
	if err := p.Validate(); err != nil {
		return nil, stats, err
	}
	if err := pc.Validate(); err != nil {
		return nil, stats, err
	}

	samples := orientedSamples(pc)
	stats.Samples = len(samples)
	if len(samples) < p.MinPoints {
		return nil, stats, fmt.Errorf("%w: %d oriented points, need at least %d", ErrReconstructionFailed, len(samples), p.MinPoints)
	}

	dm, ok := makeDomain(samples, p.Scale)
	if !ok {
		return nil, stats, fmt.Errorf("%w: points have no spatial extent", ErrReconstructionFailed)
	}

	ot := buildOctree(dm, samples, p.Depth, p.SamplesPerNode)
	stats.OctreeNodes = len(ot.nodes)
	stats.OctreeLeaves = ot.leaves
	stats.OctreeDepth = ot.maxDepth
	stats.SolveDepth = solveDepth(p, dm, ot)

	var prev *level
	for d := min(coarseDepth, stats.SolveDepth); d <= stats.SolveDepth; d++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		var l *level
		if prev == nil {
			l = newFullLevel(dm, d)
		} else {
			l = newBandLevel(dm, d, samples, p.Band)
		}
		l.splat(samples)

		sys := assemble(l, prev)
		x, res, err := sys.solve(ctx, p.Tolerance, p.MaxIterations, p.Workers)
		if err != nil {
			return nil, stats, err
		}
		for u, slot := range sys.slots {
			l.chi[slot] = x[u]
		}
		stats.Levels = append(stats.Levels, LevelStats{
			Depth:      d,
			Nodes:      len(l.nodes),
			Unknowns:   len(sys.slots),
			Iterations: res.iterations,
			Residual:   res.residual,
		})
		monitoring.Logf("poisson: depth %d nodes=%d unknowns=%d cg_iters=%d residual=%.2e",
			d, len(l.nodes), len(sys.slots), res.iterations, res.residual)
		prev = l
	}

	var iso float64
	for _, s := range samples {
		iso += prev.interpolate(prev.chi, s.pos)
	}
	iso /= float64(len(samples))
	stats.IsoValue = iso

	mesh := extractIsosurface(prev, iso)
	if mesh.TriangleCount() == 0 {
		return nil, stats, fmt.Errorf("%w: level set is empty", ErrReconstructionFailed)
	}
	mesh = mesh.ComputeVertexNormals()
	stats.Vertices = mesh.VertexCount()
	stats.Triangles = mesh.TriangleCount()
	return mesh, stats, nil
}

// orientedSamples keeps the points with a non-zero normal and normalises
// those normals.
func orientedSamples(pc *geom.PointCloud) []sample {
	out := make([]sample, 0, pc.Len())
	for _, pt := range pc.Points {
		if !pt.HasNormal {
			continue
		}
		l := r3.Norm(pt.Normal)
		if l == 0 {
			continue
		}
		out = append(out, sample{pos: pt.Position, normal: r3.Scale(1/l, pt.Normal)})
	}
	return out
}

// makeDomain returns the cube centred on the sample bounding box with edge
// equal to the longest extent times scale.
func makeDomain(samples []sample, scale float64) (domain, bool) {
	ps := make([]r3.Vec, len(samples))
	for i, s := range samples {
		ps[i] = s.pos
	}
	box := geom.BoundsOf(ps)
	ext := r3.Sub(box.Max, box.Min)
	longest := math.Max(ext.X, math.Max(ext.Y, ext.Z))
	if longest <= 0 {
		return domain{}, false
	}
	size := longest * scale
	centre := r3.Scale(0.5, r3.Add(box.Min, box.Max))
	half := size / 2
	return domain{
		origin: r3.Sub(centre, r3.Vec{X: half, Y: half, Z: half}),
		size:   size,
	}, true
}
