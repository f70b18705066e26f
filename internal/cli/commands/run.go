package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/inspector/internal/cli/output"
	"github.com/leapstack-labs/inspector/internal/codegen"
	"github.com/leapstack-labs/inspector/internal/state"
	"github.com/leapstack-labs/inspector/pkg/pipeline"
)

// RunOutput is the JSON result of the run command.
type RunOutput struct {
	RunID  string           `json:"run_id,omitempty"`
	Report *pipeline.Report `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

type runOptions struct {
	requestOptions
	dryRun bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <entity>",
		Short: "Run an entity's pipeline in-process",
		Long: `Plan an entity's pipeline and execute it without generating code.

The stages are the ones "inspector generate" would write, executed level by
level against the configured warehouse, object store, OCR and AI services.
Stages of one level run concurrently (see --concurrency). Prerequisites
produced by other entities' pipelines are assumed to have run.

Each run is recorded in the state database (see "inspector pipelines").
Metrics are pushed to the configured Pushgateway when one is set.`,
		Example: `  # Run the declared pipeline of an entity
  inspector run fact_sales

  # Show the execution plan only
  inspector run fact_sales --dry-run

  # Run with AI fallback for missed fields
  inspector run invoice --strategy hybrid --ai https://ai.example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the execution plan without running it")
	return cmd
}

func runRun(cmd *cobra.Command, entity string, opts *runOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	p, err := cmdCtx.Project()
	if err != nil {
		return err
	}
	reqs, err := requests(p, []string{entity}, opts.requestOptions)
	if err != nil {
		return err
	}
	plan, err := cmdCtx.Generator().Plan(reqs[0])
	if err != nil {
		return err
	}
	for _, w := range plan.Warnings {
		r.Warnf("%s: %s", plan.Entity.Name, w)
	}

	levels, external, err := pipeline.Plan(plan.Stages)
	if err != nil {
		return err
	}
	if opts.dryRun {
		return renderPlan(r, plan, levels, external)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	env, err := pipeline.NewEnv(cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}

	st, err := cmdCtx.OpenState(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	start := state.RunStart{Entity: plan.Entity.Name, Command: "run"}
	if plan.Template != nil {
		start.Template = plan.Template.Name
	}
	if code, err := codegen.Render(plan); err == nil {
		if gp, err := st.GetPipeline(ctx, state.CodeHash(code)); err == nil {
			start.PipelineID = gp.ID
		}
	}
	run, err := st.StartRun(ctx, start)
	if err != nil {
		return err
	}

	runner := &pipeline.Runner{Env: env, Concurrency: cfg.Pipeline.Concurrency}
	report, runErr := runner.Run(ctx, plan.Stages)

	sum := pipeline.Summary{Entity: start.Entity, Template: start.Template}
	if report != nil {
		sum.Add(report.Summary)
	}
	if err := st.FinishRun(ctx, run.ID, sum, runErr); err != nil {
		cmdCtx.Logger.Warn("failed to record run", "run", run.ID, "error", err)
	}
	if err := env.Metrics.Push(cfg.Metrics.PushURL, cfg.Metrics.Job); err != nil {
		cmdCtx.Logger.Warn("metrics not pushed", "error", err)
	}

	out := RunOutput{RunID: run.ID, Report: report}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(out); err != nil {
			return errors.Join(runErr, err)
		}
		return runErr
	}
	renderReport(r, plan.Entity.Name, out)
	return runErr
}

func renderPlan(r *output.Renderer, plan *codegen.Plan, levels [][]string, external []string) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"entity":                plan.Entity.Name,
			"stage_kind":            plan.Kind,
			"levels":                levels,
			"external_dependencies": external,
		})
	}
	r.Header(1, "Plan: "+plan.Entity.Name)
	r.KeyValue("stage kind", plan.Kind)
	for i, level := range levels {
		r.Header(2, fmt.Sprintf("Level %d", i))
		for _, name := range level {
			r.Println("- " + name)
		}
		r.Println("")
	}
	for _, dep := range external {
		r.Muted("external: " + dep)
	}
	return nil
}

func renderReport(r *output.Renderer, entity string, out RunOutput) {
	r.Header(1, "Run: "+entity)
	if out.Report != nil {
		rows := make([][]any, 0, len(out.Report.Stages))
		for _, s := range out.Report.Stages {
			status := "ok"
			if s.Error != "" {
				status = s.Error
			}
			rows = append(rows, []any{
				s.Name, s.Kind, s.Level, s.Duration.Round(time.Millisecond),
				s.Summary.RecordsExtracted, s.Summary.RecordsLoaded, s.Summary.RecordsFailed, status,
			})
		}
		r.Table([]string{"Stage", "Kind", "Level", "Duration", "Extracted", "Loaded", "Failed", "Status"}, rows)
		sum := out.Report.Summary
		r.KeyValue("artifacts", fmt.Sprintf("%d processed, %d failed", sum.ArtifactsProcessed, sum.ArtifactsFailed))
		r.KeyValue("records", fmt.Sprintf("%d extracted, %d loaded, %d failed", sum.RecordsExtracted, sum.RecordsLoaded, sum.RecordsFailed))
	}
	r.KeyValue("run", out.RunID)
	if out.Error != "" {
		r.Warnf("run failed: %s", out.Error)
	}
}
