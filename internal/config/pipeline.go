package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/banshee-data/cloudmesh/internal/fsutil"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// maxFileSize caps config files at 1 MB.
const maxFileSize = 1 * 1024 * 1024

// PipelineConfig holds every tunable of the reconstruct, optimize and export
// commands. Nil fields fall back to the defaults returned by the Get*
// methods, so partial files are safe.
type PipelineConfig struct {
	// Point cloud stages
	VoxelSize          *float64 `json:"voxel_size,omitempty"`
	NormalRadius       *float64 `json:"normal_radius,omitempty"`
	NormalMaxNeighbors *int     `json:"normal_max_neighbors,omitempty"`
	OrientK            *int     `json:"orient_k,omitempty"`

	// Poisson reconstruction
	PoissonDepth          *int     `json:"poisson_depth,omitempty"`
	PoissonScale          *float64 `json:"poisson_scale,omitempty"`
	PoissonWidth          *float64 `json:"poisson_width,omitempty"` // 0 picks the depth from the octree
	PoissonSamplesPerNode *float64 `json:"poisson_samples_per_node,omitempty"`
	PoissonBand           *int     `json:"poisson_band,omitempty"`
	SolverTolerance       *float64 `json:"solver_tolerance,omitempty"`
	SolverMaxIterations   *int     `json:"solver_max_iterations,omitempty"`
	MinPoints             *int     `json:"min_points,omitempty"`

	// Mesh cleanup
	DensityQuantile *float64 `json:"density_quantile,omitempty"`
	MergeEpsilon    *float64 `json:"merge_epsilon,omitempty"`

	// Optimize
	TargetTriangles  *int     `json:"target_triangles,omitempty"`
	SmoothIterations *int     `json:"smooth_iterations,omitempty"`
	SmoothLambda     *float64 `json:"smooth_lambda,omitempty"`
	SmoothMu         *float64 `json:"smooth_mu,omitempty"`

	// Export
	Compress          *bool   `json:"compress,omitempty"`
	CompressTimeout   *string `json:"compress_timeout,omitempty"` // duration string like "2m"
	DracoLevel        *int    `json:"draco_level,omitempty"`
	CompressorCommand *string `json:"compressor_command,omitempty"`

	// Workers bounds per-stage parallelism; 0 means GOMAXPROCS.
	Workers *int `json:"workers,omitempty"`
}

// Pointer helpers for building configs in code and from flags.
func PtrFloat64(v float64) *float64 { return &v }
func PtrInt(v int) *int             { return &v }
func PtrBool(v bool) *bool          { return &v }
func PtrString(v string) *string    { return &v }

// EmptyPipelineConfig returns a PipelineConfig with all fields set to nil.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file on disk.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	return LoadPipelineConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadPipelineConfigFS loads a PipelineConfig through fsys.
// The file must have a .json extension and be at most 1 MB.
func LoadPipelineConfigFS(fsys fsutil.FileSystem, path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repository
// root. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *PipelineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/cloudmesh/ and deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadPipelineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Merge returns a new config holding c's values with every non-nil field of
// o applied on top. Neither input is modified.
func (c *PipelineConfig) Merge(o *PipelineConfig) (*PipelineConfig, error) {
	out := EmptyPipelineConfig()
	for _, src := range []*PipelineConfig{c, o} {
		if src == nil {
			continue
		}
		// Omitted fields keep the values already decoded into out.
		data, err := json.Marshal(src)
		if err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	}
	return out, nil
}

func checkRange(name string, v *float64, lo, hi float64, loOpen bool) error {
	if v == nil {
		return nil
	}
	x := *v
	if math.IsNaN(x) || math.IsInf(x, 0) || x < lo || x > hi || (loOpen && x == lo) {
		if loOpen {
			return fmt.Errorf("%s must be in (%g, %g], got %g", name, lo, hi, x)
		}
		return fmt.Errorf("%s must be in [%g, %g], got %g", name, lo, hi, x)
	}
	return nil
}

func checkMin(name string, v *int, lo int) error {
	if v != nil && *v < lo {
		return fmt.Errorf("%s must be >= %d, got %d", name, lo, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *PipelineConfig) Validate() error {
	inf := math.Inf(1)
	checks := []error{
		checkRange("voxel_size", c.VoxelSize, 0, inf, true),
		checkRange("normal_radius", c.NormalRadius, 0, inf, true),
		checkMin("normal_max_neighbors", c.NormalMaxNeighbors, 3),
		checkMin("orient_k", c.OrientK, 1),
		checkMin("poisson_depth", c.PoissonDepth, 1),
		checkRange("poisson_scale", c.PoissonScale, 1, inf, false),
		checkRange("poisson_width", c.PoissonWidth, 0, inf, false),
		checkRange("poisson_samples_per_node", c.PoissonSamplesPerNode, 1, inf, false),
		checkMin("poisson_band", c.PoissonBand, 1),
		checkRange("solver_tolerance", c.SolverTolerance, 0, 1, true),
		checkMin("solver_max_iterations", c.SolverMaxIterations, 1),
		checkMin("min_points", c.MinPoints, 1),
		checkRange("density_quantile", c.DensityQuantile, 0, 1, false),
		checkRange("merge_epsilon", c.MergeEpsilon, 0, 1, false),
		checkMin("target_triangles", c.TargetTriangles, 0),
		checkMin("smooth_iterations", c.SmoothIterations, 0),
		checkRange("smooth_lambda", c.SmoothLambda, 0, 1, true),
		checkMin("workers", c.Workers, 0),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.PoissonDepth != nil && *c.PoissonDepth > 12 {
		return fmt.Errorf("poisson_depth must be <= 12, got %d", *c.PoissonDepth)
	}
	if c.SmoothMu != nil {
		mu := *c.SmoothMu
		if !(mu < 0) || -mu <= c.GetSmoothLambda() {
			return fmt.Errorf("smooth_mu must be negative with |mu| > smooth_lambda, got %g", mu)
		}
	}
	if c.DracoLevel != nil && (*c.DracoLevel < 0 || *c.DracoLevel > 10) {
		return fmt.Errorf("draco_level must be between 0 and 10, got %d", *c.DracoLevel)
	}
	if c.CompressTimeout != nil && *c.CompressTimeout != "" {
		d, err := time.ParseDuration(*c.CompressTimeout)
		if err != nil {
			return fmt.Errorf("invalid compress_timeout '%s': %w", *c.CompressTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("compress_timeout must be positive, got %s", d)
		}
	}
	if c.CompressorCommand != nil && *c.CompressorCommand == "" {
		return fmt.Errorf("compressor_command must not be empty")
	}
	return nil
}

// GetVoxelSize returns the voxel_size value or the default.
func (c *PipelineConfig) GetVoxelSize() float64 {
	if c.VoxelSize == nil {
		return 0.02
	}
	return *c.VoxelSize
}

// GetNormalRadius returns the normal_radius value or the default.
func (c *PipelineConfig) GetNormalRadius() float64 {
	if c.NormalRadius == nil {
		return 0.1
	}
	return *c.NormalRadius
}

// GetNormalMaxNeighbors returns the normal_max_neighbors value or the default.
func (c *PipelineConfig) GetNormalMaxNeighbors() int {
	if c.NormalMaxNeighbors == nil {
		return 30
	}
	return *c.NormalMaxNeighbors
}

// GetOrientK returns the orient_k value or the default.
func (c *PipelineConfig) GetOrientK() int {
	if c.OrientK == nil {
		return 15
	}
	return *c.OrientK
}

// GetPoissonDepth returns the poisson_depth value or the default.
func (c *PipelineConfig) GetPoissonDepth() int {
	if c.PoissonDepth == nil {
		return 9
	}
	return *c.PoissonDepth
}

// GetPoissonScale returns the poisson_scale value or the default.
func (c *PipelineConfig) GetPoissonScale() float64 {
	if c.PoissonScale == nil {
		return 1.1
	}
	return *c.PoissonScale
}

// GetPoissonWidth returns the poisson_width value or the default.
func (c *PipelineConfig) GetPoissonWidth() float64 {
	if c.PoissonWidth == nil {
		return 0
	}
	return *c.PoissonWidth
}

// GetPoissonSamplesPerNode returns the poisson_samples_per_node value or the default.
func (c *PipelineConfig) GetPoissonSamplesPerNode() float64 {
	if c.PoissonSamplesPerNode == nil {
		return 1.5
	}
	return *c.PoissonSamplesPerNode
}

// GetPoissonBand returns the poisson_band value or the default.
func (c *PipelineConfig) GetPoissonBand() int {
	if c.PoissonBand == nil {
		return 3
	}
	return *c.PoissonBand
}

// GetSolverTolerance returns the solver_tolerance value or the default.
func (c *PipelineConfig) GetSolverTolerance() float64 {
	if c.SolverTolerance == nil {
		return 1e-6
	}
	return *c.SolverTolerance
}

// GetSolverMaxIterations returns the solver_max_iterations value or the default.
func (c *PipelineConfig) GetSolverMaxIterations() int {
	if c.SolverMaxIterations == nil {
		return 300
	}
	return *c.SolverMaxIterations
}

// GetMinPoints returns the min_points value or the default.
func (c *PipelineConfig) GetMinPoints() int {
	if c.MinPoints == nil {
		return 32
	}
	return *c.MinPoints
}

// GetDensityQuantile returns the density_quantile value or the default.
func (c *PipelineConfig) GetDensityQuantile() float64 {
	if c.DensityQuantile == nil {
		return 0.01
	}
	return *c.DensityQuantile
}

// GetMergeEpsilon returns the merge_epsilon value or the default.
func (c *PipelineConfig) GetMergeEpsilon() float64 {
	if c.MergeEpsilon == nil {
		return 1e-9
	}
	return *c.MergeEpsilon
}

// GetTargetTriangles returns the target_triangles value or the default.
func (c *PipelineConfig) GetTargetTriangles() int {
	if c.TargetTriangles == nil {
		return 100000
	}
	return *c.TargetTriangles
}

// GetSmoothIterations returns the smooth_iterations value or the default.
func (c *PipelineConfig) GetSmoothIterations() int {
	if c.SmoothIterations == nil {
		return 10
	}
	return *c.SmoothIterations
}

// GetSmoothLambda returns the smooth_lambda value or the default.
func (c *PipelineConfig) GetSmoothLambda() float64 {
	if c.SmoothLambda == nil {
		return 0.5
	}
	return *c.SmoothLambda
}

// GetSmoothMu returns the smooth_mu value or the default.
func (c *PipelineConfig) GetSmoothMu() float64 {
	if c.SmoothMu == nil {
		return -0.53
	}
	return *c.SmoothMu
}

// GetCompress returns the compress value or the default.
func (c *PipelineConfig) GetCompress() bool {
	if c.Compress == nil {
		return true
	}
	return *c.Compress
}

// GetCompressTimeout parses and returns the CompressTimeout as a time.Duration.
func (c *PipelineConfig) GetCompressTimeout() time.Duration {
	if c.CompressTimeout == nil || *c.CompressTimeout == "" {
		return 2 * time.Minute
	}
	d, err := time.ParseDuration(*c.CompressTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// GetDracoLevel returns the draco_level value or the default.
func (c *PipelineConfig) GetDracoLevel() int {
	if c.DracoLevel == nil {
		return 7
	}
	return *c.DracoLevel
}

// GetCompressorCommand returns the compressor_command value or the default.
func (c *PipelineConfig) GetCompressorCommand() string {
	if c.CompressorCommand == nil || *c.CompressorCommand == "" {
		return "npx"
	}
	return *c.CompressorCommand
}

// GetWorkers returns the workers value or the default.
func (c *PipelineConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}
