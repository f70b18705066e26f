package commands

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/inspector/internal/cli/output"
	"github.com/leapstack-labs/inspector/internal/codegen"
	"github.com/leapstack-labs/inspector/internal/config"
	"github.com/leapstack-labs/inspector/internal/project"
	"github.com/leapstack-labs/inspector/internal/sqlgen"
	"github.com/leapstack-labs/inspector/internal/state"
	"github.com/leapstack-labs/inspector/pkg/adapter"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext collects the configuration, logger and renderer the
// root command stored in the command context. A command run on its own
// loads the configuration from its flags.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.FromContext(ctx)
	if cfg == nil {
		var err error
		if cfg, err = config.Load("", cmd.Flags()); err != nil {
			return nil, err
		}
	}
	r := output.FromContext(ctx)
	if r == nil {
		mode, err := output.ParseMode(cfg.Output)
		if err != nil {
			return nil, err
		}
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(ctx),
		Renderer: r,
	}, nil
}

// Project loads and validates the entity model.
func (c *CommandContext) Project() (*project.Project, error) {
	p, err := project.Load(c.Cfg.Project)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenState opens the local state database.
func (c *CommandContext) OpenState(ctx context.Context) (*state.Store, error) {
	st, err := state.Open(ctx, c.Cfg.StatePath, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}
	return st, nil
}

// placeholder returns the bind style of the configured warehouse.
func (c *CommandContext) placeholder() sq.PlaceholderFormat {
	if adapter.Canonical(c.Cfg.Warehouse.Type) == "postgres" {
		return sq.Dollar
	}
	return sq.Question
}

// Generator returns a pipeline generator for the configured warehouse.
func (c *CommandContext) Generator() *codegen.Generator {
	return codegen.New(codegen.Config{
		BatchSize:        c.Cfg.Pipeline.BatchSize,
		QualityThreshold: c.Cfg.Pipeline.QualityThreshold,
		Placeholder:      c.placeholder(),
		Logger:           c.Logger,
	})
}

// SQLGenerator returns a transform SQL generator over the project's entities.
func (c *CommandContext) SQLGenerator(p *project.Project) *sqlgen.Generator {
	return sqlgen.New(sqlgen.Config{
		Entities:    p.Entities,
		Placeholder: c.placeholder(),
		Logger:      c.Logger,
	})
}
