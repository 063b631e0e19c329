package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/cloudmesh/internal/compress"
	"github.com/banshee-data/cloudmesh/internal/geom"
	"github.com/banshee-data/cloudmesh/internal/meshio"
)

// ExportOptions controls the compress stage of Export.
type ExportOptions struct {
	Compress bool
	Timeout  time.Duration // Zero means no deadline beyond ctx
}

// ExportOptions returns the export settings of the pipeline configuration.
func (p *Pipeline) ExportOptions() ExportOptions {
	return ExportOptions{
		Compress: p.cfg.GetCompress(),
		Timeout:  p.cfg.GetCompressTimeout(),
	}
}

// Export encodes m as GLB and passes the buffer through c. Compression
// failures, including a missing tool or an expired Timeout, are
// recoverable: the uncompressed buffer is returned with a warning. Only
// cancellation of ctx itself aborts the compress stage. A nil c, or
// opts.Compress false, copies the buffer unchanged.
func (p *Pipeline) Export(ctx context.Context, m *geom.Mesh, c compress.Compressor, opts ExportOptions) ([]byte, *Report, error) {
	r := p.begin(ctx)
	out, err := r.export(m, c, opts)
	if err != nil {
		return nil, r.finish(), err
	}
	return out, r.finish(), nil
}

func (r *run) export(m *geom.Mesh, c compress.Compressor, opts ExportOptions) ([]byte, error) {
	var glb []byte
	err := r.do(StageEncode, meshShape(m), func(sm *StageMetrics) (shape, error) {
		buf, err := meshio.EncodeGLB(m)
		if err != nil {
			return shape{}, err
		}
		glb = buf
		return meshShape(m), nil
	})
	if err != nil {
		return nil, err
	}

	if c == nil || !opts.Compress {
		c = compress.Passthrough{}
	}
	_, passthrough := c.(compress.Passthrough)
	stats := &ExportStats{UncompressedBytes: len(glb)}

	var out []byte
	err = r.do(StageCompress, meshShape(m), func(sm *StageMetrics) (shape, error) {
		cctx := r.ctx
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(r.ctx, opts.Timeout)
			defer cancel()
		}
		buf, err := c.Compress(cctx, glb)
		switch {
		case err == nil && len(buf) > 0:
			out = buf
			stats.Compressed = !passthrough
		case r.ctx.Err() != nil:
			return shape{}, r.ctx.Err()
		default:
			if err == nil {
				err = errors.New("compressor returned an empty buffer")
			}
			sm.warn("writing uncompressed output: %v", err)
			out = append([]byte(nil), glb...)
		}
		return meshShape(m), nil
	})
	if err != nil {
		return nil, err
	}

	stats.OutputBytes = len(out)
	if stats.UncompressedBytes > 0 {
		stats.Ratio = float64(stats.OutputBytes) / float64(stats.UncompressedBytes)
	}
	r.report.Export = stats
	return out, nil
}
