package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/cloudmesh/internal/compress"
	"github.com/banshee-data/cloudmesh/internal/config"
	"github.com/banshee-data/cloudmesh/internal/fsutil"
	"github.com/banshee-data/cloudmesh/internal/meshio"
	"github.com/banshee-data/cloudmesh/internal/monitoring"
	"github.com/banshee-data/cloudmesh/internal/pipeline"
	"github.com/banshee-data/cloudmesh/internal/rundb"
)

// commonFlags are shared by the reconstruct, optimize and export commands.
type commonFlags struct {
	config  *string
	db      *string
	workers *int
	verbose *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:  fs.String("config", "", "Pipeline configuration file (JSON)"),
		db:      fs.String("db", "", "SQLite run ledger to record this run in"),
		workers: fs.Int("workers", 0, "Worker goroutines per stage (0 = all CPUs)"),
		verbose: fs.Bool("verbose", false, "Enable debug logging"),
	}
}

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage: cloudmesh %s [options] <input> <output>\n", name)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args and returns the two positional paths.
func parse(fs *flag.FlagSet, args []string) (input, output string, err error) {
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return "", "", fmt.Errorf("%s needs <input> and <output>, got %d arguments", fs.Name(), fs.NArg())
	}
	return fs.Arg(0), fs.Arg(1), nil
}

// setFlags returns the names of the flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// loadConfig reads the --config file, if any, and applies the flag
// overrides on top of it.
func (a *app) loadConfig(path string, overrides *config.PipelineConfig) (*config.PipelineConfig, error) {
	base := config.EmptyPipelineConfig()
	if path != "" {
		var err error
		if base, err = config.LoadPipelineConfigFS(a.fs, path); err != nil {
			return nil, err
		}
	}
	cfg, err := base.Merge(overrides)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c commonFlags) apply(set map[string]bool, o *config.PipelineConfig) {
	monitoring.SetVerbose(*c.verbose)
	if set["workers"] {
		o.Workers = c.workers
	}
}

func meshOutputFormat(path string) error {
	f, err := meshio.FormatOf(path)
	if err != nil {
		return err
	}
	if !f.HasFaces() {
		return fmt.Errorf("%w: %s cannot hold triangles", meshio.ErrUnsupportedFormat, path)
	}
	return nil
}

func (a *app) handleReconstruct(ctx context.Context, args []string) error {
	fs := a.newFlagSet("reconstruct")
	common := addCommonFlags(fs)
	voxel := fs.Float64("voxel-size", 0, "Voxel edge length for downsampling (default 0.02)")
	radius := fs.Float64("normal-radius", 0, "Neighbourhood radius for normal estimation (default 0.1)")
	depth := fs.Int("depth", 0, "Maximum Poisson octree depth (default 9)")
	quantile := fs.Float64("density-quantile", 0, "Fraction of lowest density vertices to trim (default 0.01)")
	reportPath := fs.String("report", "", "Write an HTML stage report to this file")
	plotPath := fs.String("density-plot", "", "Write a PNG vertex density histogram to this file")
	input, output, err := parse(fs, args)
	if err != nil {
		return err
	}

	set := setFlags(fs)
	o := config.EmptyPipelineConfig()
	common.apply(set, o)
	if set["voxel-size"] {
		o.VoxelSize = voxel
	}
	if set["normal-radius"] {
		o.NormalRadius = radius
	}
	if set["depth"] {
		o.PoissonDepth = depth
	}
	if set["density-quantile"] {
		o.DensityQuantile = quantile
	}
	cfg, err := a.loadConfig(*common.config, o)
	if err != nil {
		return err
	}
	if err := meshOutputFormat(output); err != nil {
		return err
	}

	l, err := a.openLedger(ctx, *common.db, "reconstruct", input, output, cfg)
	if err != nil {
		return err
	}
	defer l.close()

	reports := func(report *pipeline.Report) error {
		if *reportPath != "" {
			if err := a.writeFile(*reportPath, func(w io.Writer) error {
				return pipeline.WriteHTMLReport(w, report, "cloudmesh reconstruct: "+filepath.Base(input))
			}); err != nil {
				return err
			}
		}
		if *plotPath != "" {
			return a.writeFile(*plotPath, func(w io.Writer) error {
				return pipeline.WriteDensityHistogram(w, report.Densities, report.DensityThreshold)
			})
		}
		return nil
	}
	report, err := a.reconstruct(ctx, cfg, input, output, reports)
	l.finish(ctx, report, err, a.size(output, err))
	return err
}

// reconstruct runs the pipeline and writes the requested reports, then the
// mesh. A report failure leaves no mesh behind.
func (a *app) reconstruct(ctx context.Context, cfg *config.PipelineConfig, input, output string, reports func(*pipeline.Report) error) (*pipeline.Report, error) {
	pc, err := a.codec.LoadPointCloud(input)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("loaded %d points from %s", pc.Len(), input)

	p, err := pipeline.New(cfg, pipeline.LogObserver{})
	if err != nil {
		return nil, err
	}
	m, report, err := p.Reconstruct(ctx, pc)
	if err != nil {
		return report, err
	}
	if err := reports(report); err != nil {
		return report, err
	}
	if err := a.codec.Save(output, m); err != nil {
		return report, err
	}
	fmt.Fprintf(a.stdout, "wrote %s: %d vertices, %d triangles\n", output, m.VertexCount(), m.TriangleCount())
	return report, nil
}

func (a *app) handleOptimize(ctx context.Context, args []string) error {
	fs := a.newFlagSet("optimize")
	common := addCommonFlags(fs)
	target := fs.Int("target-triangles", 0, "Triangle budget for simplification (default 100000)")
	iterations := fs.Int("iterations", 0, "Taubin smoothing iterations (default 10)")
	reportPath := fs.String("report", "", "Write an HTML stage report to this file")
	input, output, err := parse(fs, args)
	if err != nil {
		return err
	}

	set := setFlags(fs)
	o := config.EmptyPipelineConfig()
	common.apply(set, o)
	if set["target-triangles"] {
		o.TargetTriangles = target
	}
	if set["iterations"] {
		o.SmoothIterations = iterations
	}
	cfg, err := a.loadConfig(*common.config, o)
	if err != nil {
		return err
	}
	if err := meshOutputFormat(output); err != nil {
		return err
	}

	l, err := a.openLedger(ctx, *common.db, "optimize", input, output, cfg)
	if err != nil {
		return err
	}
	defer l.close()

	reports := func(report *pipeline.Report) error {
		if *reportPath == "" {
			return nil
		}
		return a.writeFile(*reportPath, func(w io.Writer) error {
			return pipeline.WriteHTMLReport(w, report, "cloudmesh optimize: "+filepath.Base(input))
		})
	}
	report, err := a.optimize(ctx, cfg, input, output, reports)
	l.finish(ctx, report, err, a.size(output, err))
	return err
}

func (a *app) optimize(ctx context.Context, cfg *config.PipelineConfig, input, output string, reports func(*pipeline.Report) error) (*pipeline.Report, error) {
	m, err := a.codec.LoadMesh(input)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(cfg, pipeline.LogObserver{})
	if err != nil {
		return nil, err
	}
	out, report, err := p.Optimize(ctx, m)
	if err != nil {
		return report, err
	}
	if err := reports(report); err != nil {
		return report, err
	}
	if err := a.codec.Save(output, out); err != nil {
		return report, err
	}
	fmt.Fprintf(a.stdout, "wrote %s: %d -> %d triangles (%.1f%% reduction)\n",
		output, m.TriangleCount(), out.TriangleCount(), report.ReductionPercent())
	return report, nil
}

func (a *app) handleExport(ctx context.Context, args []string) error {
	fs := a.newFlagSet("export")
	common := addCommonFlags(fs)
	doCompress := fs.Bool("compress", true, "Draco-compress the GLB with gltf-pipeline")
	noCompress := fs.Bool("no-compress", false, "Write the GLB without compression")
	timeout := fs.Duration("timeout", 0, "Give up on compression after this long (default 2m)")
	level := fs.Int("draco-level", 0, "Draco compression level 0-10 (default 7)")
	command := fs.String("compressor", "", "gltf-pipeline launcher: npx or a path to gltf-pipeline (default npx)")
	input, output, err := parse(fs, args)
	if err != nil {
		return err
	}

	set := setFlags(fs)
	o := config.EmptyPipelineConfig()
	common.apply(set, o)
	if set["compress"] {
		o.Compress = doCompress
	}
	if set["no-compress"] {
		o.Compress = config.PtrBool(!*noCompress)
	}
	if set["timeout"] {
		o.CompressTimeout = config.PtrString(timeout.String())
	}
	if set["draco-level"] {
		o.DracoLevel = level
	}
	if set["compressor"] {
		o.CompressorCommand = command
	}
	cfg, err := a.loadConfig(*common.config, o)
	if err != nil {
		return err
	}
	if f, err := meshio.FormatOf(output); err != nil || f != meshio.FormatGLB {
		return fmt.Errorf("%w: export writes .glb, got %s", meshio.ErrUnsupportedFormat, output)
	}

	l, err := a.openLedger(ctx, *common.db, "export", input, output, cfg)
	if err != nil {
		return err
	}
	defer l.close()

	report, err := a.export(ctx, cfg, input, output)
	l.finish(ctx, report, err, a.size(output, err))
	return err
}

func (a *app) export(ctx context.Context, cfg *config.PipelineConfig, input, output string) (*pipeline.Report, error) {
	m, err := a.codec.LoadMesh(input)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(cfg, pipeline.LogObserver{})
	if err != nil {
		return nil, err
	}
	c := &compress.GltfPipeline{
		FS:      a.fs,
		Builder: a.builder,
		Level:   cfg.GetDracoLevel(),
		Command: cfg.GetCompressorCommand(),
	}
	glb, report, err := p.Export(ctx, m, c, p.ExportOptions())
	if err != nil {
		return report, err
	}
	if err := a.codec.SaveBytes(output, glb); err != nil {
		return report, err
	}
	st := report.Export
	if st.Compressed {
		fmt.Fprintf(a.stdout, "wrote %s: %d bytes (%.1f%% of %d uncompressed)\n", output, st.OutputBytes, 100*st.Ratio, st.UncompressedBytes)
	} else {
		fmt.Fprintf(a.stdout, "wrote %s: %d bytes, uncompressed\n", output, st.OutputBytes)
	}
	return report, nil
}

func (a *app) handleRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	dbPath := fs.String("db", "cloudmesh-runs.db", "SQLite run ledger")
	limit := fs.Int("limit", 20, "Number of runs to show, newest first")
	runID := fs.String("run", "", "Show the stages of one run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !fsutil.Exists(a.fs, *dbPath) {
		return fmt.Errorf("no ledger at %s", *dbPath)
	}

	store, err := rundb.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	if *runID != "" {
		run, err := store.Get(ctx, *runID)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "STAGE\tPOINTS\tVERTICES\tTRIANGLES\tDURATION\tWARNINGS\n")
		for _, s := range run.Stages {
			fmt.Fprintf(tw, "%s\t%d -> %d\t%d -> %d\t%d -> %d\t%s\t%s\n",
				s.Stage, s.InputPoints, s.OutputPoints, s.InputVertices, s.OutputVertices,
				s.InputTriangles, s.OutputTriangles, s.Duration.Round(time.Millisecond), strings.Join(s.Warnings, "; "))
		}
		return tw.Flush()
	}

	runs, err := store.List(ctx, *limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(tw, "RUN\tCOMMAND\tSTATUS\tCREATED\tINPUT\tOUTPUT\tBYTES\tERROR\n")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.RunID, r.Command, r.Status, r.CreatedAt.Format(time.RFC3339),
			r.InputPath, r.OutputPath, r.OutputBytes, r.Error)
	}
	return tw.Flush()
}

// writeFile writes a report file atomically.
func (a *app) writeFile(path string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return fmt.Errorf("failed to render %s: %w", path, err)
	}
	return fsutil.WriteAtomic(a.fs, path, func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// size returns the size of a successfully written output, or 0.
func (a *app) size(path string, runErr error) int64 {
	if runErr != nil {
		return 0
	}
	info, err := a.fs.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
