package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/inspector/pkg/pipeline"
)

// RunStatus is the state of an extraction run.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one execution of a pipeline or of the extract command.
type Run struct {
	ID          string
	PipelineID  string
	Entity      string
	Template    string
	Command     string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Summary     pipeline.Summary
	Error       string
}

// RunStart describes a run about to begin.
type RunStart struct {
	PipelineID string
	Entity     string
	Template   string
	Command    string
}

// StartRun records a new running run.
func (s *Store) StartRun(ctx context.Context, start RunStart) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	r := &Run{
		ID:         generateID(),
		PipelineID: start.PipelineID,
		Entity:     start.Entity,
		Template:   start.Template,
		Command:    start.Command,
		Status:     RunRunning,
		StartedAt:  now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_runs (id, pipeline_id, entity, template, command, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, nullString(r.PipelineID), r.Entity, nullString(r.Template), r.Command, string(r.Status), r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return r, nil
}

// FinishRun stores the outcome of a run. A non-nil runErr marks it failed.
func (s *Store) FinishRun(ctx context.Context, id string, sum pipeline.Summary, runErr error) error {
	if s.db == nil {
		return errNotOpen
	}
	status := RunCompleted
	var msg sql.NullString
	if runErr != nil {
		status = RunFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_runs SET status = ?, completed_at = ?,
			artifacts_processed = ?, artifacts_failed = ?, artifacts_skipped = ?,
			records_extracted = ?, records_loaded = ?, records_failed = ?, error = ?
		 WHERE id = ?`,
		string(status), now(),
		sum.ArtifactsProcessed, sum.ArtifactsFailed, sum.ArtifactsSkipped,
		sum.RecordsExtracted, sum.RecordsLoaded, sum.RecordsFailed, msg, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s %w", id, ErrNotFound)
	}
	return nil
}

// GetRun returns a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	r, err := scanRun(s.db.QueryRowContext(ctx, runSelect+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s %w", id, ErrNotFound)
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first. An empty entity lists
// runs of every entity; limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, entity string, limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	query := runSelect
	var args []any
	if entity != "" {
		query += " WHERE entity = ?"
		args = append(args, entity)
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const runSelect = `SELECT id, pipeline_id, entity, template, command, status, started_at, completed_at,
	artifacts_processed, artifacts_failed, artifacts_skipped, records_extracted, records_loaded, records_failed, error
	FROM extraction_runs`

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var pipelineID, template, msg sql.NullString
	var status string
	var completed sql.NullTime
	err := sc.Scan(&r.ID, &pipelineID, &r.Entity, &template, &r.Command, &status, &r.StartedAt, &completed,
		&r.Summary.ArtifactsProcessed, &r.Summary.ArtifactsFailed, &r.Summary.ArtifactsSkipped,
		&r.Summary.RecordsExtracted, &r.Summary.RecordsLoaded, &r.Summary.RecordsFailed, &msg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read run: %w", err)
	}
	r.PipelineID = pipelineID.String
	r.Template = template.String
	r.Status = RunStatus(status)
	r.Error = msg.String
	r.Summary.Entity = r.Entity
	r.Summary.Template = r.Template
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
