// Package pipeline is the runtime generated extraction pipelines run on.
//
// A pipeline is a set of named stages. Each stage has a typed spec that
// extracts, transforms or loads the records of one entity, and a list of
// stages it depends on. Generated programs declare their stages and hand
// them to Main; the inspector CLI runs the same specs in-process.
package pipeline

import (
	"context"
	"errors"
	"sort"

	"github.com/leapstack-labs/inspector/pkg/core"
)

// ErrNoRecords is returned by extraction stages that found nothing to load.
var ErrNoRecords = errors.New("no records extracted")

// Kind is the role of a stage.
type Kind string

// Stage kinds.
const (
	KindExtract   Kind = "extract"
	KindTransform Kind = "transform"
	KindLoad      Kind = "load"
)

// Extraction strategies.
const (
	StrategyTemplate = "template"
	StrategyAI       = "ai"
	StrategyHybrid   = "hybrid"
)

// StageSpec is the work of one stage.
type StageSpec interface {
	Kind() Kind
	Run(ctx context.Context, env *Env, in Inputs) (*Output, error)
}

// Stage is a named spec with its dependencies.
type Stage struct {
	Name string
	Deps []string
	Spec StageSpec
}

// Summary counts what a stage did.
type Summary struct {
	Entity             string `json:"entity,omitempty"`
	Template           string `json:"template,omitempty"`
	ArtifactsProcessed int    `json:"artifacts_processed"`
	ArtifactsFailed    int    `json:"artifacts_failed"`
	ArtifactsSkipped   int    `json:"artifacts_skipped,omitempty"`
	RecordsExtracted   int    `json:"records_extracted"`
	RecordsLoaded      int    `json:"records_loaded"`
	RecordsFailed      int    `json:"records_failed"`
}

// Add accumulates other into s.
func (s *Summary) Add(other Summary) {
	s.ArtifactsProcessed += other.ArtifactsProcessed
	s.ArtifactsFailed += other.ArtifactsFailed
	s.ArtifactsSkipped += other.ArtifactsSkipped
	s.RecordsExtracted += other.RecordsExtracted
	s.RecordsLoaded += other.RecordsLoaded
	s.RecordsFailed += other.RecordsFailed
}

// Output is what a stage hands to its dependents.
type Output struct {
	Records []core.Record `json:"-"`
	Summary Summary       `json:"summary"`
}

// Inputs are the outputs of a stage's dependencies keyed by stage name.
// External dependencies have no entry.
type Inputs map[string]*Output

// Records concatenates the records of all inputs in stage name order.
func (in Inputs) Records() []core.Record {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []core.Record
	for _, name := range names {
		if o := in[name]; o != nil {
			out = append(out, o.Records...)
		}
	}
	return out
}

// MustTemplate decodes a template embedded in a generated program.
func MustTemplate(data string) *core.Template {
	t, err := core.ParseTemplate([]byte(data))
	if err != nil {
		panic(err)
	}
	return t
}
