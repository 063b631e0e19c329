package main

import (
	"context"
	"encoding/json"

	"github.com/banshee-data/cloudmesh/internal/config"
	"github.com/banshee-data/cloudmesh/internal/monitoring"
	"github.com/banshee-data/cloudmesh/internal/pipeline"
	"github.com/banshee-data/cloudmesh/internal/rundb"
)

// ledger records one command in the run database. A nil ledger records
// nothing, which is what commands get without --db.
type ledger struct {
	store *rundb.Store
	run   *rundb.Run
}

func (a *app) openLedger(ctx context.Context, path, command, input, output string, cfg *config.PipelineConfig) (*ledger, error) {
	if path == "" {
		return nil, nil
	}
	store, err := rundb.Open(path)
	if err != nil {
		return nil, err
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	run := &rundb.Run{
		Command:    command,
		InputPath:  input,
		OutputPath: output,
		ConfigJSON: cfgJSON,
	}
	if err := store.Insert(ctx, run); err != nil {
		store.Close()
		return nil, err
	}
	monitoring.Debugf("ledger: run %s recorded in %s", run.RunID, path)
	return &ledger{store: store, run: run}, nil
}

// finish stores the stages of report and the outcome of the run. Ledger
// failures are logged; they never change the command's result.
func (l *ledger) finish(ctx context.Context, report *pipeline.Report, runErr error, outputBytes int64) {
	if l == nil {
		return
	}
	// The run is recorded even when ctx was cancelled.
	ctx = context.WithoutCancel(ctx)
	if report != nil {
		for _, s := range report.Stages {
			if err := l.store.AddStage(ctx, l.run.RunID, stageRecord(s)); err != nil {
				monitoring.Warnf("ledger: failed to record %s stage: %v", s.Stage, err)
			}
		}
	}
	if err := l.store.Finish(ctx, l.run.RunID, runErr, outputBytes); err != nil {
		monitoring.Warnf("ledger: failed to finish run %s: %v", l.run.RunID, err)
	}
}

func (l *ledger) close() {
	if l == nil {
		return
	}
	if err := l.store.Close(); err != nil {
		monitoring.Warnf("ledger: close: %v", err)
	}
}

func stageRecord(m pipeline.StageMetrics) rundb.Stage {
	return rundb.Stage{
		Stage:           string(m.Stage),
		InputPoints:     m.InputPoints,
		OutputPoints:    m.OutputPoints,
		InputVertices:   m.InputVertices,
		OutputVertices:  m.OutputVertices,
		InputTriangles:  m.InputTriangles,
		OutputTriangles: m.OutputTriangles,
		Duration:        m.Duration,
		Warnings:        m.Warnings,
	}
}
