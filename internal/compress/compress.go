// Package compress shrinks encoded GLB buffers with an external Draco
// compressor. The compressor is optional: callers treat its errors as
// recoverable and keep the uncompressed buffer.
package compress

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/cloudmesh/internal/fsutil"
	"github.com/banshee-data/cloudmesh/internal/monitoring"
)

// DefaultLevel is the Draco compression level used when none is configured.
const DefaultLevel = 7

// DefaultCommand launches gltf-pipeline through npx.
const DefaultCommand = "npx"

var (
	// ErrCompressionUnavailable means the compressor binary is not installed.
	ErrCompressionUnavailable = errors.New("compression unavailable")
	// ErrCompressionFailed means the tool ran but did not produce output.
	ErrCompressionFailed = errors.New("compression failed")
)

// Compressor turns a GLB buffer into a smaller GLB buffer.
type Compressor interface {
	Compress(ctx context.Context, glb []byte) ([]byte, error)
}

// Passthrough returns a copy of its input.
type Passthrough struct{}

// Compress copies glb.
func (Passthrough) Compress(_ context.Context, glb []byte) ([]byte, error) {
	out := make([]byte, len(glb))
	copy(out, glb)
	return out, nil
}

// GltfPipeline runs the gltf-pipeline tool on a temporary copy of the input.
type GltfPipeline struct {
	FS      fsutil.FileSystem
	Builder CommandBuilder
	Level   int    // Draco compression level, 0-10
	Command string // npx, or a direct path to gltf-pipeline
}

// NewGltfPipeline returns a compressor that uses the real filesystem and
// process launcher.
func NewGltfPipeline(level int, command string) *GltfPipeline {
	return &GltfPipeline{
		FS:      fsutil.OSFileSystem{},
		Builder: NewRealCommandBuilder(),
		Level:   level,
		Command: command,
	}
}

func (g *GltfPipeline) command() string {
	if g.Command == "" {
		return DefaultCommand
	}
	return g.Command
}

// args builds the tool arguments. The npx launcher needs the package name
// in front.
func (g *GltfPipeline) args(in, out string) []string {
	var args []string
	if filepath.Base(g.command()) == "npx" {
		args = append(args, "gltf-pipeline")
	}
	return append(args,
		"-i", in,
		"-o", out,
		fmt.Sprintf("--draco.compressionLevel=%d", g.Level),
	)
}

// Compress writes glb to a temporary directory, runs the tool and returns
// the bytes it wrote. A missing binary gives ErrCompressionUnavailable; a
// failing run, empty output or an expired context gives ErrCompressionFailed.
func (g *GltfPipeline) Compress(ctx context.Context, glb []byte) (out []byte, err error) {
	if g.Level < 0 || g.Level > 10 {
		return nil, fmt.Errorf("%w: draco level must be between 0 and 10, got %d", ErrCompressionFailed, g.Level)
	}
	if _, err := g.Builder.LookPath(g.command()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompressionUnavailable, g.command(), err)
	}

	dir, err := g.FS.MkdirTemp("", "cloudmesh-draco-*")
	if err != nil {
		return nil, fmt.Errorf("%w: temp dir: %v", ErrCompressionFailed, err)
	}
	defer func() {
		if rerr := g.FS.RemoveAll(dir); rerr != nil {
			monitoring.Warnf("compress: failed to remove %s: %v", dir, rerr)
		}
	}()

	in := filepath.Join(dir, "in.glb")
	dst := filepath.Join(dir, "out.glb")
	if err := g.FS.WriteFile(in, glb, 0o600); err != nil {
		return nil, fmt.Errorf("%w: write input: %v", ErrCompressionFailed, err)
	}

	args := g.args(in, dst)
	monitoring.Debugf("compress: %s %s", g.command(), strings.Join(args, " "))
	output, runErr := g.Builder.BuildCommand(ctx, g.command(), args...).Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompressionFailed, ctxErr)
	}
	if runErr != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrCompressionFailed, runErr, strings.TrimSpace(string(output)))
	}

	out, err = g.FS.ReadFile(dst)
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", ErrCompressionFailed, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: tool wrote an empty file: %s", ErrCompressionFailed, strings.TrimSpace(string(output)))
	}
	return out, nil
}
