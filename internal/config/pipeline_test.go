package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/cloudmesh/internal/fsutil"
)

func TestEmptyPipelineConfigDefaults(t *testing.T) {
	cfg := EmptyPipelineConfig()

	if cfg.GetVoxelSize() != 0.02 {
		t.Errorf("GetVoxelSize() = %v, want 0.02", cfg.GetVoxelSize())
	}
	if cfg.GetNormalRadius() != 0.1 {
		t.Errorf("GetNormalRadius() = %v, want 0.1", cfg.GetNormalRadius())
	}
	if cfg.GetNormalMaxNeighbors() != 30 {
		t.Errorf("GetNormalMaxNeighbors() = %d, want 30", cfg.GetNormalMaxNeighbors())
	}
	if cfg.GetOrientK() != 15 {
		t.Errorf("GetOrientK() = %d, want 15", cfg.GetOrientK())
	}
	if cfg.GetPoissonDepth() != 9 {
		t.Errorf("GetPoissonDepth() = %d, want 9", cfg.GetPoissonDepth())
	}
	if cfg.GetDensityQuantile() != 0.01 {
		t.Errorf("GetDensityQuantile() = %v, want 0.01", cfg.GetDensityQuantile())
	}
	if cfg.GetTargetTriangles() != 100000 {
		t.Errorf("GetTargetTriangles() = %d, want 100000", cfg.GetTargetTriangles())
	}
	if cfg.GetSmoothMu() != -0.53 {
		t.Errorf("GetSmoothMu() = %v, want -0.53", cfg.GetSmoothMu())
	}
	if !cfg.GetCompress() {
		t.Error("GetCompress() = false, want true")
	}
	if cfg.GetCompressTimeout() != 2*time.Minute {
		t.Errorf("GetCompressTimeout() = %v, want 2m", cfg.GetCompressTimeout())
	}
	if cfg.GetDracoLevel() != 7 {
		t.Errorf("GetDracoLevel() = %d, want 7", cfg.GetDracoLevel())
	}
	if cfg.GetCompressorCommand() != "npx" {
		t.Errorf("GetCompressorCommand() = %q, want npx", cfg.GetCompressorCommand())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestDefaultsFileMatchesGetters(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := EmptyPipelineConfig()

	if cfg.GetVoxelSize() != empty.GetVoxelSize() {
		t.Errorf("voxel_size: file %v, getter %v", cfg.GetVoxelSize(), empty.GetVoxelSize())
	}
	if cfg.GetPoissonScale() != empty.GetPoissonScale() {
		t.Errorf("poisson_scale: file %v, getter %v", cfg.GetPoissonScale(), empty.GetPoissonScale())
	}
	if cfg.GetSolverTolerance() != empty.GetSolverTolerance() {
		t.Errorf("solver_tolerance: file %v, getter %v", cfg.GetSolverTolerance(), empty.GetSolverTolerance())
	}
	if cfg.GetSmoothLambda() != empty.GetSmoothLambda() {
		t.Errorf("smooth_lambda: file %v, getter %v", cfg.GetSmoothLambda(), empty.GetSmoothLambda())
	}
	if cfg.GetCompressTimeout() != empty.GetCompressTimeout() {
		t.Errorf("compress_timeout: file %v, getter %v", cfg.GetCompressTimeout(), empty.GetCompressTimeout())
	}
	if cfg.VoxelSize == nil || cfg.Workers == nil {
		t.Error("defaults file should set every field explicitly")
	}
}

func TestLoadPipelineConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "scan.json")

	testJSON := `{
  "voxel_size": 0.05,
  "poisson_depth": 7,
  "compress": false,
  "compress_timeout": "30s"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadPipelineConfig(configPath)
	if err != nil {
		t.Fatalf("LoadPipelineConfig failed: %v", err)
	}
	if cfg.GetVoxelSize() != 0.05 {
		t.Errorf("GetVoxelSize() = %v, want 0.05", cfg.GetVoxelSize())
	}
	if cfg.GetPoissonDepth() != 7 {
		t.Errorf("GetPoissonDepth() = %d, want 7", cfg.GetPoissonDepth())
	}
	if cfg.GetCompress() {
		t.Error("GetCompress() = true, want false")
	}
	if cfg.GetCompressTimeout() != 30*time.Second {
		t.Errorf("GetCompressTimeout() = %v, want 30s", cfg.GetCompressTimeout())
	}
	// Unset fields fall back to defaults.
	if cfg.GetOrientK() != 15 {
		t.Errorf("GetOrientK() = %d, want 15", cfg.GetOrientK())
	}
}

func TestLoadPipelineConfigFS(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	if err := fs.WriteFile("cfg/run.json", []byte(`{"target_triangles": 5000}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadPipelineConfigFS(fs, "cfg/run.json")
	if err != nil {
		t.Fatalf("LoadPipelineConfigFS failed: %v", err)
	}
	if cfg.GetTargetTriangles() != 5000 {
		t.Errorf("GetTargetTriangles() = %d, want 5000", cfg.GetTargetTriangles())
	}
}

func TestLoadPipelineConfigErrors(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	_ = fs.WriteFile("bad.json", []byte(`{not json`), 0644)
	_ = fs.WriteFile("invalid.json", []byte(`{"voxel_size": -1}`), 0644)
	_ = fs.WriteFile("config.yaml", []byte(`voxel_size: 1`), 0644)
	_ = fs.WriteFile("huge.json", []byte(strings.Repeat(" ", maxFileSize+1)), 0644)

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"missing file", "missing.json", "failed to stat"},
		{"bad json", "bad.json", "failed to parse"},
		{"invalid values", "invalid.json", "invalid configuration"},
		{"wrong extension", "config.yaml", ".json extension"},
		{"too large", "huge.json", "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPipelineConfigFS(fs, tt.path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PipelineConfig
		wantErr bool
	}{
		{"empty", PipelineConfig{}, false},
		{"zero voxel", PipelineConfig{VoxelSize: PtrFloat64(0)}, true},
		{"small neighbourhood", PipelineConfig{NormalMaxNeighbors: PtrInt(2)}, true},
		{"zero orient k", PipelineConfig{OrientK: PtrInt(0)}, true},
		{"depth too deep", PipelineConfig{PoissonDepth: PtrInt(13)}, true},
		{"scale below one", PipelineConfig{PoissonScale: PtrFloat64(0.9)}, true},
		{"quantile above one", PipelineConfig{DensityQuantile: PtrFloat64(1.5)}, true},
		{"quantile zero", PipelineConfig{DensityQuantile: PtrFloat64(0)}, false},
		{"negative target", PipelineConfig{TargetTriangles: PtrInt(-1)}, true},
		{"positive mu", PipelineConfig{SmoothMu: PtrFloat64(0.5)}, true},
		{"mu smaller than lambda", PipelineConfig{SmoothLambda: PtrFloat64(0.5), SmoothMu: PtrFloat64(-0.4)}, true},
		{"draco level", PipelineConfig{DracoLevel: PtrInt(11)}, true},
		{"bad timeout", PipelineConfig{CompressTimeout: PtrString("soon")}, true},
		{"negative timeout", PipelineConfig{CompressTimeout: PtrString("-1s")}, true},
		{"empty command", PipelineConfig{CompressorCommand: PtrString("")}, true},
		{"negative workers", PipelineConfig{Workers: PtrInt(-2)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := &PipelineConfig{VoxelSize: PtrFloat64(0.02), PoissonDepth: PtrInt(9)}
	override := &PipelineConfig{PoissonDepth: PtrInt(6), Compress: PtrBool(false)}

	merged, err := base.Merge(override)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.GetVoxelSize() != 0.02 {
		t.Errorf("voxel size = %v, want 0.02", merged.GetVoxelSize())
	}
	if merged.GetPoissonDepth() != 6 {
		t.Errorf("depth = %d, want 6", merged.GetPoissonDepth())
	}
	if merged.GetCompress() {
		t.Error("compress should be overridden to false")
	}
	if *base.PoissonDepth != 9 {
		t.Errorf("base mutated: depth = %d", *base.PoissonDepth)
	}
	*merged.VoxelSize = 1
	if *base.VoxelSize != 0.02 {
		t.Error("merged config shares storage with base")
	}

	same, err := base.Merge(nil)
	if err != nil {
		t.Fatalf("Merge(nil) failed: %v", err)
	}
	if same.GetPoissonDepth() != 9 {
		t.Errorf("Merge(nil) depth = %d, want 9", same.GetPoissonDepth())
	}
}
