package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/inspector/internal/cli/output"
	"github.com/leapstack-labs/inspector/internal/state"
)

// PipelinesOutput is the JSON result of the pipelines command.
type PipelinesOutput struct {
	Pipelines []PipelineInfo `json:"pipelines"`
	Runs      []RunInfo      `json:"runs"`
}

// PipelineInfo summarizes a recorded pipeline.
type PipelineInfo struct {
	ID        string    `json:"id"`
	Entity    string    `json:"entity"`
	Type      string    `json:"entity_type"`
	StageKind string    `json:"stage_kind"`
	CodeHash  string    `json:"code_hash"`
	OutputDir string    `json:"output_dir,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RunInfo summarizes a recorded run.
type RunInfo struct {
	ID               string     `json:"id"`
	PipelineID       string     `json:"pipeline_id,omitempty"`
	Entity           string     `json:"entity,omitempty"`
	Template         string     `json:"template,omitempty"`
	Command          string     `json:"command"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RecordsExtracted int        `json:"records_extracted"`
	RecordsLoaded    int        `json:"records_loaded"`
	Error            string     `json:"error,omitempty"`
}

// NewPipelinesCommand creates the pipelines command.
func NewPipelinesCommand() *cobra.Command {
	var (
		entity string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "pipelines",
		Short: "List generated pipelines and recent runs",
		Long: `List the pipelines recorded by "inspector generate" and the most recent
runs of "inspector run" and "inspector extract" from the state database.`,
		Example: `  inspector pipelines
  inspector pipelines --entity fact_sales --limit 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipelines(cmd, entity, limit)
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "Only show this entity")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs to show")
	return cmd
}

func runPipelines(cmd *cobra.Command, entity string, limit int) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := cmdCtx.OpenState(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	pipelines, err := st.ListPipelines(ctx, entity)
	if err != nil {
		return err
	}
	runs, err := st.ListRuns(ctx, entity, limit)
	if err != nil {
		return err
	}

	out := PipelinesOutput{
		Pipelines: make([]PipelineInfo, 0, len(pipelines)),
		Runs:      make([]RunInfo, 0, len(runs)),
	}
	for _, p := range pipelines {
		out.Pipelines = append(out.Pipelines, pipelineInfo(p))
	}
	for _, r := range runs {
		out.Runs = append(out.Runs, runInfo(r))
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}
	renderPipelines(r, out)
	return nil
}

func pipelineInfo(p *state.Pipeline) PipelineInfo {
	return PipelineInfo{
		ID:        p.ID,
		Entity:    p.Entity,
		Type:      string(p.EntityType),
		StageKind: p.StageKind,
		CodeHash:  p.CodeHash,
		OutputDir: p.OutputDir,
		CreatedAt: p.CreatedAt,
	}
}

func runInfo(r *state.Run) RunInfo {
	return RunInfo{
		ID:               r.ID,
		PipelineID:       r.PipelineID,
		Entity:           r.Entity,
		Template:         r.Template,
		Command:          r.Command,
		Status:           string(r.Status),
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		RecordsExtracted: r.Summary.RecordsExtracted,
		RecordsLoaded:    r.Summary.RecordsLoaded,
		Error:            r.Error,
	}
}

func renderPipelines(r *output.Renderer, out PipelinesOutput) {
	r.Header(1, "Pipelines")
	if len(out.Pipelines) == 0 {
		r.Muted("no pipelines generated yet")
	} else {
		rows := make([][]any, 0, len(out.Pipelines))
		for _, p := range out.Pipelines {
			rows = append(rows, []any{p.Entity, p.Type, p.StageKind, p.CodeHash, p.CreatedAt.Format(time.DateTime)})
		}
		r.Table([]string{"Entity", "Type", "Kind", "Code Hash", "Created"}, rows)
	}

	r.Header(2, "Recent Runs")
	if len(out.Runs) == 0 {
		r.Muted("no runs recorded yet")
		return
	}
	rows := make([][]any, 0, len(out.Runs))
	for _, run := range out.Runs {
		subject := run.Entity
		if subject == "" {
			subject = run.Template
		}
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []any{
			run.StartedAt.Format(time.DateTime), run.Command, subject, run.Status, duration,
			fmt.Sprintf("%d/%d", run.RecordsExtracted, run.RecordsLoaded),
		})
	}
	r.Table([]string{"Started", "Command", "Subject", "Status", "Duration", "Extracted/Loaded"}, rows)
}
