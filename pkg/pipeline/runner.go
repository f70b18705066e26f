package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/inspector/internal/dag"
)

// StageReport is the outcome of one stage.
type StageReport struct {
	Name     string        `json:"name"`
	Kind     Kind          `json:"kind"`
	Level    int           `json:"level"`
	Duration time.Duration `json:"duration_ns"`
	Summary  Summary       `json:"summary"`
	Error    string        `json:"error,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	Stages   []StageReport `json:"stages"`
	External []string      `json:"external_dependencies,omitempty"`
	Summary  Summary       `json:"summary"`
}

// Runner executes stages level by level. Stages of one level run
// concurrently; a level starts only when the previous one succeeded.
type Runner struct {
	Env *Env
	// Concurrency caps the stages running at once. Zero means no cap.
	Concurrency int
}

// Plan orders stages into execution levels. Dependencies that no stage
// defines are produced by other pipelines and are returned as external.
func Plan(stages []Stage) (levels [][]string, external []string, err error) {
	g := dag.New[Stage]()
	for _, s := range stages {
		if s.Spec == nil {
			return nil, nil, fmt.Errorf("stage %s has no spec", s.Name)
		}
		if _, dup := g.Node(s.Name); dup {
			return nil, nil, fmt.Errorf("duplicate stage %s", s.Name)
		}
		g.AddNode(s.Name, s)
	}
	seen := make(map[string]bool)
	for _, s := range stages {
		for _, dep := range s.Deps {
			if _, ok := g.Node(dep); !ok {
				if !seen[dep] {
					seen[dep] = true
					external = append(external, dep)
				}
				continue
			}
			if err := g.AddEdge(dep, s.Name); err != nil {
				return nil, nil, err
			}
		}
	}
	levels, err = g.Levels()
	if err != nil {
		return nil, nil, err
	}
	return levels, external, nil
}

// Run executes the stages and reports on every stage that ran.
func (r *Runner) Run(ctx context.Context, stages []Stage) (*Report, error) {
	env := r.Env
	if env == nil {
		env = &Env{}
	}
	logger := env.logger()

	levels, external, err := Plan(stages)
	if err != nil {
		return nil, err
	}
	report := &Report{External: external}
	for _, dep := range external {
		logger.Info("treating external dependency as satisfied", "dependency", dep)
	}

	byName := make(map[string]Stage, len(stages))
	for _, s := range stages {
		byName[s.Name] = s
	}

	var mu sync.Mutex
	outputs := make(map[string]*Output)

	for level, names := range levels {
		g, gctx := errgroup.WithContext(ctx)
		if r.Concurrency > 0 {
			g.SetLimit(r.Concurrency)
		}
		for _, name := range names {
			stage := byName[name]
			g.Go(func() error {
				mu.Lock()
				in := make(Inputs, len(stage.Deps))
				for _, dep := range stage.Deps {
					if o, ok := outputs[dep]; ok {
						in[dep] = o
					}
				}
				mu.Unlock()

				logger.Info("running stage", "stage", stage.Name, "kind", stage.Spec.Kind(), "level", level)
				start := time.Now()
				out, err := stage.Spec.Run(gctx, env, in)
				d := time.Since(start)
				env.Metrics.StageDone(stage.Name, d, err)

				sr := StageReport{Name: stage.Name, Kind: stage.Spec.Kind(), Level: level, Duration: d}
				if out != nil {
					sr.Summary = out.Summary
				}
				if err != nil {
					sr.Error = err.Error()
					logger.Error("stage failed", "stage", stage.Name, "duration", d, "error", err)
				} else {
					logger.Info("stage complete", "stage", stage.Name, "duration", d)
				}

				mu.Lock()
				defer mu.Unlock()
				outputs[stage.Name] = out
				report.Stages = append(report.Stages, sr)
				report.Summary.Add(sr.Summary)
				if report.Summary.Entity == "" {
					report.Summary.Entity = sr.Summary.Entity
				}
				if report.Summary.Template == "" {
					report.Summary.Template = sr.Summary.Template
				}
				if err != nil {
					return fmt.Errorf("stage %s: %w", stage.Name, err)
				}
				return nil
			})
		}
		err := g.Wait()
		sort.Slice(report.Stages, func(i, j int) bool {
			a, b := report.Stages[i], report.Stages[j]
			if a.Level != b.Level {
				return a.Level < b.Level
			}
			return a.Name < b.Name
		})
		if err != nil {
			return report, err
		}
	}
	return report, nil
}
