package pipeline

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

func sampleReport() *Report {
	return &Report{
		Duration: 3 * time.Second,
		Stages: []StageMetrics{
			{Stage: StageDownsample, InputPoints: 10000, OutputPoints: 8000, Duration: time.Second},
			{Stage: StagePoisson, InputPoints: 8000, OutputVertices: 6000, OutputTriangles: 12000, Duration: time.Second},
			{Stage: StageSimplify, InputVertices: 6000, OutputVertices: 1000, InputTriangles: 12000, OutputTriangles: 2000, Duration: time.Second},
		},
	}
}

func TestWriteHTMLReport(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteHTMLReport(&buf, sampleReport(), "sphere.ply"))

	html := buf.String()
	assert.True(t, strings.Contains(html, "<html"), "not an html page")
	assert.Contains(t, html, "sphere.ply")
	for _, s := range []string{"downsample", "poisson", "simplify", "triangles"} {
		assert.Contains(t, html, s)
	}
}

func TestWriteHTMLReport_Empty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := WriteHTMLReport(&buf, &Report{}, "empty")
	assert.ErrorIs(t, err, geom.ErrInvalidParameter)
	assert.Zero(t, buf.Len())
}

func TestWriteDensityHistogram(t *testing.T) {
	t.Parallel()
	densities := make([]float64, 500)
	for i := range densities {
		densities[i] = 1 + math.Sin(float64(i))
	}

	tests := []struct {
		name      string
		threshold float64
	}{
		{"with marker", 0.1},
		{"infinite threshold", math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, WriteDensityHistogram(&buf, densities, tt.threshold))
			require.Greater(t, buf.Len(), 8)
			assert.Equal(t, "\x89PNG\r\n\x1a\n", buf.String()[:8])
		})
	}
}

func TestWriteDensityHistogram_Empty(t *testing.T) {
	t.Parallel()
	err := WriteDensityHistogram(&bytes.Buffer{}, nil, 0)
	assert.ErrorIs(t, err, geom.ErrInvalidParameter)
}
