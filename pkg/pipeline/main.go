package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/leapstack-labs/inspector/internal/config"

	// Generated programs can load into any built-in warehouse.
	_ "github.com/leapstack-labs/inspector/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/inspector/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/inspector/pkg/adapters/sqlite"
)

// Main is the entry point of generated pipeline programs. It loads the
// inspector configuration, runs the stages and prints the run report as
// JSON on stdout. It returns the process exit code.
func Main(stages []Stage) int {
	return mainArgs(os.Args[1:], stages)
}

func mainArgs(args []string, stages []Stage) int {
	flags := pflag.NewFlagSet("pipeline", pflag.ContinueOnError)
	cfgFile := flags.String("config", "", "config file (default: inspector.yaml in the project root)")
	flags.String("project-dir", "", "project root directory")
	flags.Bool("verbose", false, "enable debug logging")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	flags.Int("concurrency", 0, "maximum stages run at once")
	dryRun := flags.Bool("dry-run", false, "print the execution plan without running it")
	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if *dryRun {
		levels, external, err := Plan(stages)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return printJSON(map[string]any{"levels": levels, "external_dependencies": external})
	}

	cfg, err := config.Load(*cfgFile, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := config.NewLogger(cfg, os.Stderr)

	env, err := NewEnv(cfg, logger)
	if err != nil {
		logger.Error("failed to set up pipeline", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &Runner{Env: env, Concurrency: cfg.Pipeline.Concurrency}
	report, runErr := runner.Run(ctx, stages)
	if err := env.Metrics.Push(cfg.Metrics.PushURL, cfg.Metrics.Job); err != nil {
		logger.Warn("metrics not pushed", "error", err)
	}
	if report != nil {
		if code := printJSON(report); code != 0 {
			return code
		}
	}
	if runErr != nil {
		logger.Error("pipeline failed", "error", runErr)
		return 1
	}
	return 0
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
