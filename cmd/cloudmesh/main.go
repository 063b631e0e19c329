package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/cloudmesh/internal/compress"
	"github.com/banshee-data/cloudmesh/internal/fsutil"
	"github.com/banshee-data/cloudmesh/internal/meshio"
	"github.com/banshee-data/cloudmesh/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout, os.Stderr)
	os.Exit(a.run(ctx, os.Args[1:]))
}

// app holds the collaborators of every command so tests can swap the
// filesystem and the process launcher.
type app struct {
	fs      fsutil.FileSystem
	codec   *meshio.Codec
	builder compress.CommandBuilder
	stdout  io.Writer
	stderr  io.Writer
}

func newApp(stdout, stderr io.Writer) *app {
	fsys := fsutil.OSFileSystem{}
	return &app{
		fs:      fsys,
		codec:   meshio.NewCodec(fsys),
		builder: compress.NewRealCommandBuilder(),
		stdout:  stdout,
		stderr:  stderr,
	}
}

// run dispatches one command line and returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	if len(args) < 1 {
		a.printUsage(a.stderr)
		return 1
	}

	command, rest := args[0], args[1:]
	var err error
	switch command {
	case "reconstruct":
		err = a.handleReconstruct(ctx, rest)
	case "optimize":
		err = a.handleOptimize(ctx, rest)
	case "export":
		err = a.handleExport(ctx, rest)
	case "runs":
		err = a.handleRuns(ctx, rest)
	case "version":
		fmt.Fprintln(a.stdout, version.String())
	case "help", "-h", "--help":
		a.printUsage(a.stdout)
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n\n", command)
		a.printUsage(a.stderr)
		return 1
	}

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
}

func (a *app) printUsage(w io.Writer) {
	fmt.Fprint(w, `cloudmesh - surface reconstruction for 3D point clouds

Usage: cloudmesh <command> [options] <input> <output>

Commands:
  reconstruct  Turn a point cloud (.ply .obj .xyz .pts .txt .stl .glb) into a mesh
  optimize     Simplify and smooth a mesh
  export       Write a mesh as GLB, Draco compressed when gltf-pipeline is available
  runs         List runs recorded in a ledger database
  version      Show cloudmesh version
  help         Show this help message

Common Flags:
  --config <file>   Pipeline configuration (JSON); flags override its values
  --db <file>       Record the run in a SQLite ledger
  --workers <n>     Worker goroutines per stage (default: all CPUs)
  --verbose         Print debug output

Examples:
  cloudmesh reconstruct --voxel-size 0.01 --report scan.html scan.ply scan_mesh.ply
  cloudmesh optimize --target-triangles 50000 scan_mesh.ply scan_small.obj
  cloudmesh export --timeout 30s scan_small.obj scan.glb
  cloudmesh export --no-compress scan_small.obj scan.glb
  cloudmesh runs --db runs.db --limit 5

Run 'cloudmesh <command> -h' for the flags of one command.
`)
}
