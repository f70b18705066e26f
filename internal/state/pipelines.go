package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/leapstack-labs/inspector/pkg/core"
)

// Pipeline is a generated pipeline recorded in the state database.
type Pipeline struct {
	ID         string
	Entity     string
	EntityType core.EntityType
	StageKind  string
	CodeHash   string
	Code       string
	Config     core.PipelineConfig
	OutputDir  string
	CreatedAt  time.Time
}

// CodeHash returns the hash pipelines are deduplicated by.
func CodeHash(code string) string {
	return strconv.FormatUint(xxh3.HashString(code), 16)
}

// SavePipeline records a generated pipeline. Code that was already recorded
// returns the existing pipeline and created=false.
func (s *Store) SavePipeline(ctx context.Context, gp *core.GeneratedPipeline, outputDir string) (*Pipeline, bool, error) {
	if s.db == nil {
		return nil, false, errNotOpen
	}
	hash := CodeHash(gp.Code)
	existing, err := s.pipelineWhere(ctx, "code_hash = ?", hash)
	if err == nil {
		s.logger.Debug("pipeline unchanged", "entity", existing.Entity, "code_hash", hash)
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	config, err := json.Marshal(gp.Config)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode pipeline config: %w", err)
	}
	model := gp.Config.EntityModel
	p := &Pipeline{
		ID:         generateID(),
		Entity:     model.Entity.Name,
		EntityType: model.Entity.Type,
		StageKind:  model.StageKind,
		CodeHash:   hash,
		Code:       gp.Code,
		Config:     gp.Config,
		OutputDir:  outputDir,
		CreatedAt:  now(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipelines (id, entity, entity_type, stage_kind, code_hash, code, config, output_dir, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Entity, string(p.EntityType), p.StageKind, p.CodeHash, p.Code, string(config), p.OutputDir, p.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save pipeline: %w", err)
	}
	s.logger.Debug("saved pipeline", "id", p.ID, "entity", p.Entity, "code_hash", hash)
	return p, true, nil
}

// GetPipeline returns a pipeline by id or code hash.
func (s *Store) GetPipeline(ctx context.Context, ref string) (*Pipeline, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	return s.pipelineWhere(ctx, "id = ? OR code_hash = ?", ref, ref)
}

// LatestPipeline returns the most recent pipeline of an entity.
func (s *Store) LatestPipeline(ctx context.Context, entity string) (*Pipeline, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	return s.pipelineWhere(ctx, "entity = ? ORDER BY created_at DESC, rowid DESC", entity)
}

// ListPipelines returns recorded pipelines, newest first. An empty entity
// lists all of them.
func (s *Store) ListPipelines(ctx context.Context, entity string) ([]*Pipeline, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	query := pipelineSelect
	var args []any
	if entity != "" {
		query += " WHERE entity = ?"
		args = append(args, entity)
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const pipelineSelect = `SELECT id, entity, entity_type, stage_kind, code_hash, code, config, output_dir, created_at FROM pipelines`

func (s *Store) pipelineWhere(ctx context.Context, where string, args ...any) (*Pipeline, error) {
	row := s.db.QueryRowContext(ctx, pipelineSelect+" WHERE "+where+" LIMIT 1", args...)
	p, err := scanPipeline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pipeline %w", ErrNotFound)
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPipeline(sc scanner) (*Pipeline, error) {
	var p Pipeline
	var entityType, config string
	var outputDir sql.NullString
	err := sc.Scan(&p.ID, &p.Entity, &entityType, &p.StageKind, &p.CodeHash, &p.Code, &config, &outputDir, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read pipeline: %w", err)
	}
	p.EntityType = core.EntityType(entityType)
	p.OutputDir = outputDir.String
	if err := json.Unmarshal([]byte(config), &p.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config of pipeline %s: %w", p.ID, err)
	}
	return &p, nil
}
