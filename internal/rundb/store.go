// Package rundb keeps a SQLite ledger of pipeline runs and their per-stage
// metrics so that past reconstructions can be listed and compared.
package rundb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/cloudmesh/internal/monitoring"
	"github.com/banshee-data/cloudmesh/internal/timeutil"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one CLI invocation.
type Run struct {
	RunID       string          `json:"run_id"`
	Command     string          `json:"command"`
	InputPath   string          `json:"input_path"`
	OutputPath  string          `json:"output_path,omitempty"`
	OutputBytes int64           `json:"output_bytes,omitempty"`
	Status      string          `json:"status"`
	Error       string          `json:"error,omitempty"`
	ConfigJSON  json.RawMessage `json:"config_json,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Stages      []Stage         `json:"stages,omitempty"`
}

// Stage is the persisted form of one stage's metrics.
type Stage struct {
	Seq             int           `json:"seq"`
	Stage           string        `json:"stage"`
	InputPoints     int           `json:"input_points"`
	OutputPoints    int           `json:"output_points"`
	InputVertices   int           `json:"input_vertices"`
	OutputVertices  int           `json:"output_vertices"`
	InputTriangles  int           `json:"input_triangles"`
	OutputTriangles int           `json:"output_triangles"`
	Duration        time.Duration `json:"duration"`
	Warnings        []string      `json:"warnings,omitempty"`
}

// Store is the run ledger.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Open opens (creating if needed) the ledger at path and migrates it to the
// latest schema. ":memory:" gives a private in-memory ledger.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serialises
	// writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Debugf("opened run ledger %s", path)
	return s, nil
}

// SetClock replaces the clock used for timestamps.
func (s *Store) SetClock(c timeutil.Clock) {
	s.clock = c
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy retries fn while SQLite reports lock contention.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	delay := 10 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !isBusy(err) {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Insert records a new run in the running state. If RunID is empty a UUID
// is generated; a zero CreatedAt takes the store clock.
func (s *Store) Insert(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.clock.Now()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	var cfg *string
	if len(run.ConfigJSON) > 0 {
		c := string(run.ConfigJSON)
		cfg = &c
	}

	err := retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO pipeline_runs (
				run_id, command, input_path, output_path, status, error, config_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Command, run.InputPath, nullStr(run.OutputPath),
			run.Status, nullStr(run.Error), cfg, run.CreatedAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}
	return nil
}

// Finish marks a run as done. A nil runErr records success.
func (s *Store) Finish(ctx context.Context, runID string, runErr error, outputBytes int64) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	finished := s.clock.Now().UnixNano()

	var res sql.Result
	err := retryOnBusy(func() error {
		var err error
		res, err = s.db.ExecContext(ctx, `
			UPDATE pipeline_runs
			SET status = ?, error = ?, finished_at = ?, output_bytes = ?
			WHERE run_id = ?`,
			status, nullStr(msg), finished, outputBytes, runID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// AddStage appends a stage record. Seq is assigned in insertion order.
func (s *Store) AddStage(ctx context.Context, runID string, st Stage) error {
	var warnings *string
	if len(st.Warnings) > 0 {
		b, err := json.Marshal(st.Warnings)
		if err != nil {
			return fmt.Errorf("encoding warnings: %w", err)
		}
		w := string(b)
		warnings = &w
	}

	err := retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO pipeline_stages (
				run_id, seq, stage, input_points, output_points, input_vertices,
				output_vertices, input_triangles, output_triangles, duration_ns, warnings_json
			) VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM pipeline_stages WHERE run_id = ?),
				?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, runID, st.Stage, st.InputPoints, st.OutputPoints, st.InputVertices,
			st.OutputVertices, st.InputTriangles, st.OutputTriangles, int64(st.Duration), warnings,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("adding stage %s to run %s: %w", st.Stage, runID, err)
	}
	return nil
}

const runColumns = `run_id, command, input_path, output_path, output_bytes, status, error,
	config_json, created_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                 Run
		output, errMsg, cfg sql.NullString
		createdAt           int64
		finishedAt          sql.NullInt64
	)
	if err := row.Scan(&run.RunID, &run.Command, &run.InputPath, &output, &run.OutputBytes,
		&run.Status, &errMsg, &cfg, &createdAt, &finishedAt); err != nil {
		return nil, err
	}
	run.OutputPath = output.String
	run.Error = errMsg.String
	if cfg.Valid && cfg.String != "" {
		run.ConfigJSON = json.RawMessage(cfg.String)
	}
	run.CreatedAt = time.Unix(0, createdAt).UTC()
	if finishedAt.Valid {
		t := time.Unix(0, finishedAt.Int64).UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}

// List returns the most recent runs first, without stages. limit <= 0
// returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs ORDER BY created_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run with its stages in order.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", runID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, stage, input_points, output_points, input_vertices, output_vertices,
			input_triangles, output_triangles, duration_ns, warnings_json
		FROM pipeline_stages WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing stages of %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			st       Stage
			duration int64
			warnings sql.NullString
		)
		if err := rows.Scan(&st.Seq, &st.Stage, &st.InputPoints, &st.OutputPoints, &st.InputVertices,
			&st.OutputVertices, &st.InputTriangles, &st.OutputTriangles, &duration, &warnings); err != nil {
			return nil, fmt.Errorf("scanning stage: %w", err)
		}
		st.Duration = time.Duration(duration)
		if warnings.Valid && warnings.String != "" {
			if err := json.Unmarshal([]byte(warnings.String), &st.Warnings); err != nil {
				return nil, fmt.Errorf("decoding warnings of %s/%d: %w", runID, st.Seq, err)
			}
		}
		run.Stages = append(run.Stages, st)
	}
	return run, rows.Err()
}
