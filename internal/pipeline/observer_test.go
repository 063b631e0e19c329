package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/cloudmesh/internal/monitoring"
)

func TestMultiObserver_FansOut(t *testing.T) {
	t.Parallel()
	a, b := &RecordingObserver{}, &RecordingObserver{}
	mo := MultiObserver{a, b}

	mo.OnStageStart(StageClean)
	mo.OnWarning(StageClean, "removed 2 triangles")
	mo.OnStageDone(StageMetrics{Stage: StageClean, InputTriangles: 10, OutputTriangles: 8})

	for _, r := range []*RecordingObserver{a, b} {
		assert.Equal(t, []Stage{StageClean}, r.Started())
		assert.Equal(t, []string{"clean: removed 2 triangles"}, r.Warnings())
		assert.Len(t, r.Done(), 1)
		assert.True(t, r.HasWarning("removed"))
		assert.False(t, r.HasWarning("absent"))
	}
}

func TestRecordingObserver_CopiesWarnings(t *testing.T) {
	t.Parallel()
	r := &RecordingObserver{}
	m := StageMetrics{Stage: StageTrim, Warnings: []string{"a"}}
	r.OnStageDone(m)
	m.Warnings[0] = "b"
	assert.Equal(t, []string{"a"}, r.Done()[0].Warnings)
}

// LogObserver writes through the process-wide logger, so this test is not
// parallel.
func TestLogObserver(t *testing.T) {
	rec := &monitoring.Recorder{}
	monitoring.SetLogger(rec.Logf)
	defer monitoring.SetLogger(nil)

	var o LogObserver
	o.OnStageStart(StageSimplify)
	o.OnWarning(StageSimplify, "stopped early")
	o.OnStageDone(StageMetrics{
		Stage: StageSimplify, InputVertices: 100, OutputVertices: 50,
		InputTriangles: 196, OutputTriangles: 96, Duration: 1500 * time.Microsecond,
	})

	assert.Equal(t, []string{
		"warning: [simplify] stopped early",
		"[simplify] 100 -> 50 vertices, 196 -> 96 triangles in 1.5ms",
	}, rec.Lines())
}
