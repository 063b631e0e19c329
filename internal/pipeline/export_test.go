package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cloudmesh/internal/compress"
	"github.com/banshee-data/cloudmesh/internal/geom"
	"github.com/banshee-data/cloudmesh/internal/meshio"
	"github.com/banshee-data/cloudmesh/internal/testutil"
)

// fakeCompressor halves the buffer, fails with err, or blocks until its
// context ends.
type fakeCompressor struct {
	err   error
	block bool
	calls int
	ctx   context.Context
}

func (f *fakeCompressor) Compress(ctx context.Context, glb []byte) ([]byte, error) {
	f.calls++
	f.ctx = ctx
	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", compress.ErrCompressionFailed, ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	return bytes.Clone(glb[:len(glb)/2]), nil
}

func exportMesh() *geom.Mesh {
	return testutil.IcoSphere(2, 1).ComputeVertexNormals()
}

func TestExport_Compressed(t *testing.T) {
	t.Parallel()
	p, rec := newTestPipeline(t, nil)
	fc := &fakeCompressor{}

	out, report, err := p.Export(context.Background(), exportMesh(), fc, ExportOptions{Compress: true, Timeout: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, 1, fc.calls)
	_, hasDeadline := fc.ctx.Deadline()
	assert.True(t, hasDeadline)

	assert.Equal(t, []Stage{StageEncode, StageCompress}, stageNames(report.Stages))
	require.NotNil(t, report.Export)
	assert.True(t, report.Export.Compressed)
	assert.Equal(t, len(out), report.Export.OutputBytes)
	assert.Equal(t, report.Export.UncompressedBytes/2, report.Export.OutputBytes)
	assert.InDelta(t, 0.5, report.Export.Ratio, 0.01)
	assert.Empty(t, rec.Warnings())
}

func TestExport_FallsBackOnRecoverableFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		fc      *fakeCompressor
		timeout time.Duration
		warning string
	}{
		{"unavailable", &fakeCompressor{err: fmt.Errorf("%w: npx not found", compress.ErrCompressionUnavailable)}, 0, "unavailable"},
		{"failed", &fakeCompressor{err: fmt.Errorf("%w: exit status 1", compress.ErrCompressionFailed)}, 0, "exit status 1"},
		{"timeout", &fakeCompressor{block: true}, 20 * time.Millisecond, "deadline exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, rec := newTestPipeline(t, nil)
			m := exportMesh()

			out, report, err := p.Export(context.Background(), m, tt.fc, ExportOptions{Compress: true, Timeout: tt.timeout})
			require.NoError(t, err)

			glb, err := meshio.EncodeGLB(m)
			require.NoError(t, err)
			assert.Equal(t, glb, out, "uncompressed buffer is kept")
			assert.False(t, report.Export.Compressed)
			assert.InDelta(t, 1, report.Export.Ratio, 1e-12)
			assert.True(t, rec.HasWarning(tt.warning), "warnings: %v", rec.Warnings())
			compressStage, ok := report.Stage(StageCompress)
			require.True(t, ok)
			assert.Len(t, compressStage.Warnings, 1)
		})
	}
}

func TestExport_NoCompressSkipsCompressor(t *testing.T) {
	t.Parallel()
	p, rec := newTestPipeline(t, nil)
	fc := &fakeCompressor{}

	out, report, err := p.Export(context.Background(), exportMesh(), fc, ExportOptions{Compress: false})
	require.NoError(t, err)
	assert.Zero(t, fc.calls)
	assert.False(t, report.Export.Compressed)
	assert.Equal(t, report.Export.UncompressedBytes, len(out))
	assert.Empty(t, rec.Warnings())
}

func TestExport_NilCompressor(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t, nil)
	out, report, err := p.Export(context.Background(), exportMesh(), nil, ExportOptions{Compress: true})
	require.NoError(t, err)
	assert.Equal(t, "glTF", string(out[:4]))
	assert.False(t, report.Export.Compressed)
}

func TestExport_ParentCancelAborts(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	fc := &fakeCompressor{block: true}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	out, report, err := p.Export(ctx, exportMesh(), fc, ExportOptions{Compress: true})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageCompress, se.Stage)
	assert.Nil(t, report.Export)
}

func TestExport_EmptyMeshFailsAtEncode(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t, nil)
	_, _, err := p.Export(context.Background(), &geom.Mesh{}, compress.Passthrough{}, ExportOptions{})
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageEncode, se.Stage)
	assert.ErrorIs(t, err, geom.ErrInvalidParameter)
}
