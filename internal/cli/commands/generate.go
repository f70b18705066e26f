package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/inspector/internal/cli/output"
	"github.com/leapstack-labs/inspector/internal/codegen"
	"github.com/leapstack-labs/inspector/internal/project"
	"github.com/leapstack-labs/inspector/internal/state"
	"github.com/leapstack-labs/inspector/pkg/core"
)

// Generated file names inside a pipeline directory.
const (
	MainFile    = "main.go"
	SidecarFile = "pipeline.json"
)

// watchDebounce groups the burst of events one save produces.
const watchDebounce = 200 * time.Millisecond

// requestOptions override the pipeline an entity declares.
type requestOptions struct {
	template string
	sources  []string
	strategy string
}

func (o *requestOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.template, "template", "", "Template name or path (overrides the declared pipeline)")
	cmd.Flags().StringSliceVar(&o.sources, "source", nil, "Source ids to extract from (repeatable)")
	cmd.Flags().StringVar(&o.strategy, "strategy", "", "Extraction strategy: template, ai or hybrid")
	_ = cmd.RegisterFlagCompletionFunc("strategy", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"template", "ai", "hybrid"}, cobra.ShellCompDirectiveNoFileComp
	})
}

type generateOptions struct {
	requestOptions
	outDir string
	stdout bool
	watch  bool
}

// GeneratedInfo describes one generated pipeline.
type GeneratedInfo struct {
	Entity     string   `json:"entity"`
	Kind       string   `json:"stage_kind"`
	Stages     []string `json:"stages"`
	Dir        string   `json:"dir,omitempty"`
	PipelineID string   `json:"pipeline_id,omitempty"`
	Unchanged  bool     `json:"unchanged,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate [entity...]",
		Short: "Generate pipeline programs from the entity model",
		Long: `Generate a standalone Go program for each pipeline declared in the entity
model, or for the named entities.

Each pipeline is written to <output_dir>/<entity>/ as main.go and a
pipeline.json sidecar describing its assets and dependencies. Generated
pipelines are recorded in the state database; unchanged code is recorded
once.

With --watch, the entity model and its templates are watched and the
pipelines are regenerated on every change.`,
		Example: `  # Generate every declared pipeline
  inspector generate

  # Generate one entity with an ad-hoc template
  inspector generate fact_sales --template nabca --source src-1

  # Print the code instead of writing it
  inspector generate dim_brand --stdout

  # Regenerate on change
  inspector generate --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&opts.outDir, "out", "", "Output directory (default: output_dir from config)")
	cmd.Flags().BoolVar(&opts.stdout, "stdout", false, "Print generated code instead of writing files")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Regenerate when the entity model or a template changes")
	return cmd
}

func runGenerate(cmd *cobra.Command, entities []string, opts *generateOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.outDir == "" {
		opts.outDir = cmdCtx.Cfg.OutputDir
	}
	if opts.watch && opts.stdout {
		return fmt.Errorf("--watch cannot be combined with --stdout")
	}

	infos, err := generateOnce(ctx, cmdCtx, entities, opts)
	if err != nil {
		return err
	}
	if !opts.stdout {
		renderGenerated(cmdCtx.Renderer, infos)
	}
	if !opts.watch {
		return nil
	}
	return watchProject(ctx, cmdCtx, func() {
		infos, err := generateOnce(ctx, cmdCtx, entities, opts)
		if err != nil {
			cmdCtx.Renderer.Warnf("generate failed: %v", err)
			return
		}
		renderGenerated(cmdCtx.Renderer, infos)
	})
}

// requests selects what to generate: the named entities, or every declared
// pipeline.
func requests(p *project.Project, entities []string, opts requestOptions) ([]codegen.Request, error) {
	if len(entities) == 0 {
		if opts.template != "" || len(opts.sources) > 0 {
			return nil, fmt.Errorf("--template and --source need an entity argument")
		}
		reqs, err := p.Requests()
		if err != nil {
			return nil, err
		}
		if len(reqs) == 0 {
			return nil, fmt.Errorf("%s declares no pipelines; name an entity to generate", p.Path)
		}
		return reqs, nil
	}

	reqs := make([]codegen.Request, 0, len(entities))
	for _, name := range entities {
		pl, ok := p.Pipeline(name)
		if !ok {
			pl = project.Pipeline{Entity: name}
		}
		if opts.template != "" {
			pl.Template = opts.template
		}
		if len(opts.sources) > 0 {
			pl.Sources = opts.sources
		}
		if opts.strategy != "" {
			pl.Strategy = opts.strategy
		}
		req, err := p.Request(pl)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func generateOnce(ctx context.Context, c *CommandContext, entities []string, opts *generateOptions) ([]GeneratedInfo, error) {
	p, err := c.Project()
	if err != nil {
		return nil, err
	}
	reqs, err := requests(p, entities, opts.requestOptions)
	if err != nil {
		return nil, err
	}

	var st *state.Store
	if !opts.stdout {
		if st, err = c.OpenState(ctx); err != nil {
			return nil, err
		}
		defer func() { _ = st.Close() }()
	}

	gen := c.Generator()
	infos := make([]GeneratedInfo, 0, len(reqs))
	for _, req := range reqs {
		plan, err := gen.Plan(req)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", req.Entity.Name, err)
		}
		code, err := codegen.Render(plan)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", req.Entity.Name, err)
		}
		info := GeneratedInfo{
			Entity:   plan.Entity.Name,
			Kind:     string(plan.Kind),
			Warnings: plan.Warnings,
		}
		for _, s := range plan.Stages {
			info.Stages = append(info.Stages, s.Name)
		}
		for _, w := range plan.Warnings {
			c.Logger.Warn("generation warning", "entity", plan.Entity.Name, "warning", w)
		}

		if opts.stdout {
			c.Renderer.CodeBlock("go", code)
			infos = append(infos, info)
			continue
		}

		info.Dir = filepath.Join(opts.outDir, plan.Entity.Name)
		if err := writePipeline(info.Dir, code, plan); err != nil {
			return nil, err
		}
		rec, created, err := st.SavePipeline(ctx, &core.GeneratedPipeline{Code: code, Config: plan.Config}, info.Dir)
		if err != nil {
			return nil, err
		}
		info.PipelineID = rec.ID
		info.Unchanged = !created
		infos = append(infos, info)
	}
	return infos, nil
}

// writePipeline writes the program and its sidecar.
func writePipeline(dir, code string, plan *codegen.Plan) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, MainFile), []byte(code), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", MainFile, err)
	}
	sidecar, err := json.MarshalIndent(plan.Config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", SidecarFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, SidecarFile), append(sidecar, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", SidecarFile, err)
	}
	return nil
}

func renderGenerated(r *output.Renderer, infos []GeneratedInfo) {
	if r.EffectiveMode() == output.ModeJSON {
		_ = r.JSON(infos)
		return
	}
	r.Header(1, "Generated Pipelines")
	rows := make([][]any, 0, len(infos))
	for _, info := range infos {
		status := "written"
		if info.Unchanged {
			status = "unchanged"
		}
		rows = append(rows, []any{info.Entity, info.Kind, len(info.Stages), info.Dir, status})
	}
	r.Table([]string{"Entity", "Kind", "Stages", "Directory", "Status"}, rows)
	for _, info := range infos {
		for _, w := range info.Warnings {
			r.Warnf("%s: %s", info.Entity, w)
		}
	}
}

// watchProject calls regenerate whenever the entity model or one of its
// templates changes, until ctx is done.
func watchProject(ctx context.Context, c *CommandContext, regenerate func()) error {
	p, err := project.Load(c.Cfg.Project)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Directories are watched rather than files: editors often save by
	// replacing the file, which drops a file watch.
	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, f := range p.Files() {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	c.Renderer.Muted(fmt.Sprintf("watching %d files for changes", len(files)))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !files[filepath.Clean(ev.Name)] || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			c.Logger.Debug("change detected", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.Logger.Warn("watch error", "error", err)
		case <-fire:
			fire = nil
			c.Renderer.Muted("change detected, regenerating")
			regenerate()
		}
	}
}
