package pipeline

import (
	"strings"
	"sync"

	"github.com/banshee-data/cloudmesh/internal/monitoring"
)

// Observer receives progress from a pipeline run. Calls arrive from the
// goroutine running the pipeline, in stage order.
type Observer interface {
	OnStageStart(stage Stage)
	OnStageDone(m StageMetrics)
	OnWarning(stage Stage, msg string)
}

type nopObserver struct{}

func (nopObserver) OnStageStart(Stage)       {}
func (nopObserver) OnStageDone(StageMetrics) {}
func (nopObserver) OnWarning(Stage, string)  {}

// LogObserver reports progress through monitoring.Logf.
type LogObserver struct{}

func (LogObserver) OnStageStart(stage Stage) {
	monitoring.Debugf("[%s] started", stage)
}

func (LogObserver) OnStageDone(m StageMetrics) {
	monitoring.Logf("[%s] %s in %s", m.Stage, m.Summary(), m.Duration.Round(timeRounding(m.Duration)))
}

func (LogObserver) OnWarning(stage Stage, msg string) {
	monitoring.Warnf("[%s] %s", stage, msg)
}

// MultiObserver fans every event out to each of its members in order.
type MultiObserver []Observer

func (mo MultiObserver) OnStageStart(stage Stage) {
	for _, o := range mo {
		o.OnStageStart(stage)
	}
}

func (mo MultiObserver) OnStageDone(m StageMetrics) {
	for _, o := range mo {
		o.OnStageDone(m)
	}
}

func (mo MultiObserver) OnWarning(stage Stage, msg string) {
	for _, o := range mo {
		o.OnWarning(stage, msg)
	}
}

// RecordingObserver keeps every event it sees. It is safe for concurrent
// use.
type RecordingObserver struct {
	mu       sync.Mutex
	started  []Stage
	done     []StageMetrics
	warnings []string
}

func (r *RecordingObserver) OnStageStart(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, stage)
}

func (r *RecordingObserver) OnStageDone(m StageMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.Warnings = append([]string(nil), m.Warnings...)
	r.done = append(r.done, m)
}

func (r *RecordingObserver) OnWarning(stage Stage, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, string(stage)+": "+msg)
}

// Started returns the stages that began, in order.
func (r *RecordingObserver) Started() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Stage(nil), r.started...)
}

// Done returns the metrics of completed stages, in order.
func (r *RecordingObserver) Done() []StageMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StageMetrics(nil), r.done...)
}

// Warnings returns every warning as "stage: message".
func (r *RecordingObserver) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.warnings...)
}

// HasWarning reports whether any warning contains substr.
func (r *RecordingObserver) HasWarning(substr string) bool {
	for _, w := range r.Warnings() {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
