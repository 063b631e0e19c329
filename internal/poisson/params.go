package poisson

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

// ErrReconstructionFailed is returned when the input cannot produce a
// surface: too few oriented points, a degenerate extent or an empty level
// set.
var ErrReconstructionFailed = errors.New("reconstruction failed")

// Defaults for Params.
const (
	DefaultDepth          = 9
	DefaultScale          = 1.1
	DefaultWidth          = 0
	DefaultSamplesPerNode = 1.5
	DefaultBand           = 3
	DefaultTolerance      = 1e-6
	DefaultMaxIterations  = 300
	DefaultMinPoints      = 32

	// coarseDepth is the depth of the full grid that starts the cascade.
	coarseDepth = 5
	// maxDepth bounds grid memory.
	maxDepth = 12
)

// Params controls Reconstruct.
type Params struct {
	Depth          int     // Maximum octree depth
	Scale          float64 // Domain edge as a multiple of the longest bbox extent
	Width          float64 // Target finest cell width; 0 picks the depth from the octree
	SamplesPerNode float64 // Octree nodes split while they hold at least this many samples
	Band           int     // Half width, in cells, of the band kept around samples on fine levels
	Tolerance      float64 // Relative residual at which CG stops
	MaxIterations  int     // CG iteration cap per level
	MinPoints      int     // Fewest oriented points accepted
	Workers        int     // <1 means GOMAXPROCS
}

// DefaultParams returns the defaults used by the reconstruct command.
func DefaultParams() Params {
	return Params{
		Depth:          DefaultDepth,
		Scale:          DefaultScale,
		Width:          DefaultWidth,
		SamplesPerNode: DefaultSamplesPerNode,
		Band:           DefaultBand,
		Tolerance:      DefaultTolerance,
		MaxIterations:  DefaultMaxIterations,
		MinPoints:      DefaultMinPoints,
	}
}

// Validate checks every field range.
func (p Params) Validate() error {
	switch {
	case p.Depth < 1 || p.Depth > maxDepth:
		return fmt.Errorf("%w: depth must be in [1,%d], got %d", geom.ErrInvalidParameter, maxDepth, p.Depth)
	case !(p.Scale >= 1) || math.IsInf(p.Scale, 0):
		return fmt.Errorf("%w: scale must be finite and >= 1, got %g", geom.ErrInvalidParameter, p.Scale)
	case !(p.Width >= 0) || math.IsInf(p.Width, 0):
		return fmt.Errorf("%w: width must be finite and >= 0, got %g", geom.ErrInvalidParameter, p.Width)
	case !(p.SamplesPerNode >= 1):
		return fmt.Errorf("%w: samples per node must be >= 1, got %g", geom.ErrInvalidParameter, p.SamplesPerNode)
	case p.Band < 1:
		return fmt.Errorf("%w: band must be >= 1, got %d", geom.ErrInvalidParameter, p.Band)
	case !(p.Tolerance > 0):
		return fmt.Errorf("%w: tolerance must be > 0, got %g", geom.ErrInvalidParameter, p.Tolerance)
	case p.MaxIterations < 1:
		return fmt.Errorf("%w: max iterations must be >= 1, got %d", geom.ErrInvalidParameter, p.MaxIterations)
	case p.MinPoints < 1:
		return fmt.Errorf("%w: min points must be >= 1, got %d", geom.ErrInvalidParameter, p.MinPoints)
	}
	return nil
}

// LevelStats describes one level of the cascade.
type LevelStats struct {
	Depth      int
	Nodes      int // Active grid nodes
	Unknowns   int // Nodes solved for
	Iterations int
	Residual   float64 // Final relative residual
}

// Stats summarises a reconstruction.
type Stats struct {
	Samples      int // Oriented points used
	OctreeNodes  int
	OctreeLeaves int
	OctreeDepth  int // Deepest leaf
	SolveDepth   int
	Levels       []LevelStats
	IsoValue     float64
	Vertices     int
	Triangles    int
}
