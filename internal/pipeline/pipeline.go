package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/cloudmesh/internal/config"
	"github.com/banshee-data/cloudmesh/internal/geom"
	"github.com/banshee-data/cloudmesh/internal/meshops"
	"github.com/banshee-data/cloudmesh/internal/pointcloud"
	"github.com/banshee-data/cloudmesh/internal/poisson"
	"github.com/banshee-data/cloudmesh/internal/timeutil"
)

// Stage names a pipeline step.
type Stage string

const (
	StageDownsample Stage = "downsample"
	StageNormals    Stage = "normals"
	StageOrient     Stage = "orient"
	StagePoisson    Stage = "poisson"
	StageTrim       Stage = "trim"
	StageClean      Stage = "clean"
	StageSimplify   Stage = "simplify"
	StageSmooth     Stage = "smooth"
	StageEncode     Stage = "encode"
	StageCompress   Stage = "compress"
)

// StageMetrics describes one completed stage. Point counts are set for
// stages that consume or produce point clouds, vertex and triangle counts
// for mesh stages.
type StageMetrics struct {
	Stage           Stage
	InputPoints     int
	OutputPoints    int
	InputVertices   int
	OutputVertices  int
	InputTriangles  int
	OutputTriangles int
	Duration        time.Duration
	Warnings        []string
}

// Summary renders the count transition, e.g. "10000 -> 7421 points".
func (m StageMetrics) Summary() string {
	switch {
	case m.InputPoints > 0 && m.OutputVertices == 0:
		return fmt.Sprintf("%d -> %d points", m.InputPoints, m.OutputPoints)
	case m.InputPoints > 0:
		return fmt.Sprintf("%d points -> %d vertices, %d triangles", m.InputPoints, m.OutputVertices, m.OutputTriangles)
	default:
		return fmt.Sprintf("%d -> %d vertices, %d -> %d triangles",
			m.InputVertices, m.OutputVertices, m.InputTriangles, m.OutputTriangles)
	}
}

func (m *StageMetrics) warn(format string, v ...interface{}) {
	m.Warnings = append(m.Warnings, fmt.Sprintf(format, v...))
}

// ExportStats describes the buffer produced by Export.
type ExportStats struct {
	UncompressedBytes int
	OutputBytes       int
	Compressed        bool    // False when compression was off or fell back
	Ratio             float64 // OutputBytes / UncompressedBytes
}

// Report is the outcome of one pipeline call. On failure it holds the
// stages that completed before the failing one.
type Report struct {
	Stages   []StageMetrics
	Duration time.Duration

	// Reconstruction only.
	Poisson          *poisson.Stats
	Densities        []float64 // Vertex densities before trimming
	DensityThreshold float64

	// Export only.
	Export *ExportStats
}

// Warnings returns every stage warning as "stage: message".
func (r *Report) Warnings() []string {
	var out []string
	for _, s := range r.Stages {
		for _, w := range s.Warnings {
			out = append(out, string(s.Stage)+": "+w)
		}
	}
	return out
}

// Stage returns the metrics of the named stage.
func (r *Report) Stage(s Stage) (StageMetrics, bool) {
	for _, m := range r.Stages {
		if m.Stage == s {
			return m, true
		}
	}
	return StageMetrics{}, false
}

// StageError reports the stage at which a run stopped.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline runs the reconstruct, optimize and export sequences with one
// configuration.
type Pipeline struct {
	cfg      *config.PipelineConfig
	observer Observer
	clock    timeutil.Clock
}

// New validates cfg and returns a pipeline reporting to obs. A nil cfg
// uses the defaults; a nil obs discards progress.
func New(cfg *config.PipelineConfig, obs Observer) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.EmptyPipelineConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", geom.ErrInvalidParameter, err)
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Pipeline{cfg: cfg, observer: obs, clock: timeutil.RealClock{}}, nil
}

// SetClock replaces the clock used for stage durations.
func (p *Pipeline) SetClock(c timeutil.Clock) { p.clock = c }

// Config returns the configuration the pipeline runs with.
func (p *Pipeline) Config() *config.PipelineConfig { return p.cfg }

// shape is the size of a snapshot flowing between stages.
type shape struct {
	points, vertices, triangles int
}

func cloudShape(pc *geom.PointCloud) shape { return shape{points: pc.Len()} }

func meshShape(m *geom.Mesh) shape {
	return shape{vertices: m.VertexCount(), triangles: m.TriangleCount()}
}

// run carries the state of one pipeline call.
type run struct {
	p      *Pipeline
	ctx    context.Context
	sw     timeutil.Stopwatch
	report *Report
}

func (p *Pipeline) begin(ctx context.Context) *run {
	return &run{p: p, ctx: ctx, sw: timeutil.StartStopwatch(p.clock), report: &Report{}}
}

func (r *run) finish() *Report {
	r.report.Duration = r.sw.Elapsed()
	return r.report
}

// do runs one stage. fn returns the shape of its output snapshot; an error
// stops the run before the stage is recorded.
func (r *run) do(stage Stage, in shape, fn func(sm *StageMetrics) (shape, error)) error {
	if err := r.ctx.Err(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	r.p.observer.OnStageStart(stage)
	sw := timeutil.StartStopwatch(r.p.clock)
	sm := StageMetrics{
		Stage:          stage,
		InputPoints:    in.points,
		InputVertices:  in.vertices,
		InputTriangles: in.triangles,
	}
	out, err := fn(&sm)
	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	sm.Duration = sw.Elapsed()
	sm.OutputPoints = out.points
	sm.OutputVertices = out.vertices
	sm.OutputTriangles = out.triangles
	for _, w := range sm.Warnings {
		r.p.observer.OnWarning(stage, w)
	}
	r.report.Stages = append(r.report.Stages, sm)
	r.p.observer.OnStageDone(sm)
	return nil
}

// Reconstruct turns a raw point cloud into a cleaned, watertight-where-
// sampled mesh: downsample, normals, orient, poisson, trim and clean.
func (p *Pipeline) Reconstruct(ctx context.Context, pc *geom.PointCloud) (*geom.Mesh, *Report, error) {
	r := p.begin(ctx)
	m, err := r.reconstruct(pc)
	if err != nil {
		return nil, r.finish(), err
	}
	return m, r.finish(), nil
}

// Optimize cleans, simplifies and smooths an existing mesh.
func (p *Pipeline) Optimize(ctx context.Context, m *geom.Mesh) (*geom.Mesh, *Report, error) {
	r := p.begin(ctx)
	out, err := r.clean(m)
	if err == nil {
		out, err = r.optimize(out)
	}
	if err != nil {
		return nil, r.finish(), err
	}
	return out, r.finish(), nil
}

// Run is Reconstruct followed by the simplify and smooth stages of
// Optimize.
func (p *Pipeline) Run(ctx context.Context, pc *geom.PointCloud) (*geom.Mesh, *Report, error) {
	r := p.begin(ctx)
	m, err := r.reconstruct(pc)
	if err == nil {
		m, err = r.optimize(m)
	}
	if err != nil {
		return nil, r.finish(), err
	}
	return m, r.finish(), nil
}

func (r *run) reconstruct(pc *geom.PointCloud) (*geom.Mesh, error) {
	cfg := r.p.cfg
	workers := cfg.GetWorkers()
	cloud := pc

	err := r.do(StageDownsample, cloudShape(cloud), func(sm *StageMetrics) (shape, error) {
		out, err := pointcloud.VoxelDownsample(cloud, cfg.GetVoxelSize())
		if err != nil {
			return shape{}, err
		}
		cloud = out
		return cloudShape(out), nil
	})
	if err != nil {
		return nil, err
	}

	err = r.do(StageNormals, cloudShape(cloud), func(sm *StageMetrics) (shape, error) {
		out, err := pointcloud.EstimateNormals(r.ctx, cloud, pointcloud.NormalParams{
			Radius:       cfg.GetNormalRadius(),
			MaxNeighbors: cfg.GetNormalMaxNeighbors(),
			Workers:      workers,
		})
		if err != nil {
			return shape{}, err
		}
		zero := 0
		for _, pt := range out.Points {
			if geom.IsZero(pt.Normal) {
				zero++
			}
		}
		if zero > 0 {
			sm.warn("%d of %d points had too few neighbours within %g for a normal", zero, out.Len(), cfg.GetNormalRadius())
		}
		cloud = out
		return cloudShape(out), nil
	})
	if err != nil {
		return nil, err
	}

	err = r.do(StageOrient, cloudShape(cloud), func(sm *StageMetrics) (shape, error) {
		out, st, err := pointcloud.OrientNormals(cloud, cfg.GetOrientK())
		if err != nil {
			return shape{}, err
		}
		if st.Components > 1 {
			sm.warn("normals oriented in %d disconnected components; signs may disagree between them", st.Components)
		}
		cloud = out
		return cloudShape(out), nil
	})
	if err != nil {
		return nil, err
	}

	var mesh *geom.Mesh
	err = r.do(StagePoisson, cloudShape(cloud), func(sm *StageMetrics) (shape, error) {
		out, st, err := poisson.Reconstruct(r.ctx, cloud, poisson.Params{
			Depth:          cfg.GetPoissonDepth(),
			Scale:          cfg.GetPoissonScale(),
			Width:          cfg.GetPoissonWidth(),
			SamplesPerNode: cfg.GetPoissonSamplesPerNode(),
			Band:           cfg.GetPoissonBand(),
			Tolerance:      cfg.GetSolverTolerance(),
			MaxIterations:  cfg.GetSolverMaxIterations(),
			MinPoints:      cfg.GetMinPoints(),
			Workers:        workers,
		})
		if err != nil {
			return shape{}, err
		}
		for _, lv := range st.Levels {
			if lv.Residual > cfg.GetSolverTolerance() {
				sm.warn("depth %d solve stopped at relative residual %.3g after %d iterations", lv.Depth, lv.Residual, lv.Iterations)
			}
		}
		r.report.Poisson = &st
		r.report.Densities = out.Densities()
		mesh = out
		return meshShape(out), nil
	})
	if err != nil {
		return nil, err
	}

	err = r.do(StageTrim, meshShape(mesh), func(sm *StageMetrics) (shape, error) {
		out, st, err := meshops.TrimByDensity(mesh, cfg.GetDensityQuantile())
		if err != nil {
			return shape{}, err
		}
		if out.TriangleCount() == 0 && mesh.TriangleCount() > 0 {
			sm.warn("density quantile %g removed every triangle", cfg.GetDensityQuantile())
		}
		r.report.DensityThreshold = st.Threshold
		mesh = out
		return meshShape(out), nil
	})
	if err != nil {
		return nil, err
	}

	return r.clean(mesh)
}

func (r *run) clean(m *geom.Mesh) (*geom.Mesh, error) {
	var mesh *geom.Mesh
	err := r.do(StageClean, meshShape(m), func(sm *StageMetrics) (shape, error) {
		out, st, err := meshops.Clean(m, meshops.CleanParams{MergeEpsilon: r.p.cfg.GetMergeEpsilon()})
		if err != nil {
			return shape{}, err
		}
		if st.NonManifoldTriangles > 0 {
			sm.warn("removed %d triangles on non-manifold edges", st.NonManifoldTriangles)
		}
		mesh = out
		return meshShape(out), nil
	})
	return mesh, err
}

func (r *run) optimize(m *geom.Mesh) (*geom.Mesh, error) {
	cfg := r.p.cfg
	mesh := m

	err := r.do(StageSimplify, meshShape(mesh), func(sm *StageMetrics) (shape, error) {
		target := cfg.GetTargetTriangles()
		out, st, err := meshops.Simplify(r.ctx, mesh, target, cfg.GetWorkers())
		if err != nil {
			return shape{}, err
		}
		if st.OutputTriangles > target {
			sm.warn("stopped at %d triangles, above the target of %d: no valid collapse left", st.OutputTriangles, target)
		}
		mesh = out
		return meshShape(out), nil
	})
	if err != nil {
		return nil, err
	}

	err = r.do(StageSmooth, meshShape(mesh), func(sm *StageMetrics) (shape, error) {
		out, err := meshops.SmoothTaubin(r.ctx, mesh, meshops.TaubinParams{
			Iterations: cfg.GetSmoothIterations(),
			Lambda:     cfg.GetSmoothLambda(),
			Mu:         cfg.GetSmoothMu(),
			Workers:    cfg.GetWorkers(),
		})
		if err != nil {
			return shape{}, err
		}
		mesh = out
		return meshShape(out), nil
	})
	if err != nil {
		return nil, err
	}
	return mesh, nil
}

// ReductionPercent is the share of triangles removed between the first
// and last stage of a report, or 0 for an empty report.
func (r *Report) ReductionPercent() float64 {
	if len(r.Stages) == 0 {
		return 0
	}
	first, last := r.Stages[0], r.Stages[len(r.Stages)-1]
	if first.InputTriangles == 0 {
		return 0
	}
	return 100 * (1 - float64(last.OutputTriangles)/float64(first.InputTriangles))
}

// timeRounding picks a display precision for d.
func timeRounding(d time.Duration) time.Duration {
	switch {
	case d < time.Millisecond:
		return time.Microsecond
	case d < time.Second:
		return 100 * time.Microsecond
	default:
		return 10 * time.Millisecond
	}
}
