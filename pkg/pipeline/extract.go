package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/leapstack-labs/inspector/internal/cascade"
	"github.com/leapstack-labs/inspector/internal/document"
	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/nabca"
)

// GenericExtraction runs the cascade over every artifact of its sources,
// falling back to the AI service as the strategy allows.
type GenericExtraction struct {
	Entity    string
	Template  *core.Template
	SourceIDs []string
	// Strategy is template, ai or hybrid. Empty means template.
	Strategy string
}

var _ StageSpec = GenericExtraction{}

// Kind implements StageSpec.
func (GenericExtraction) Kind() Kind { return KindExtract }

func (g GenericExtraction) strategy() string {
	if g.Strategy == "" {
		return StrategyTemplate
	}
	return g.Strategy
}

// Run implements StageSpec.
func (g GenericExtraction) Run(ctx context.Context, env *Env, _ Inputs) (*Output, error) {
	logger := env.logger().With("stage", KindExtract, "entity", g.Entity)
	strategy := g.strategy()
	switch strategy {
	case StrategyTemplate, StrategyHybrid:
	case StrategyAI:
		if env.AI == nil {
			return nil, fmt.Errorf("extraction strategy %q requires an AI endpoint", strategy)
		}
	default:
		return nil, fmt.Errorf("unknown extraction strategy %q", strategy)
	}

	s, err := openSession(ctx, env, logger)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	engine := cascade.New(cascade.Config{Logger: logger})
	out := &Output{Summary: Summary{Entity: g.Entity, Template: templateName(g.Template)}}

	records, err := s.each(ctx, g.SourceIDs, &out.Summary, func(ctx context.Context, a Artifact, data []byte) ([]core.Record, error) {
		if strategy == StrategyAI {
			return s.aiRecords(ctx, a, data, nil, g.Template)
		}
		doc, err := s.document(ctx, a, data)
		if err != nil {
			return nil, err
		}
		recs, err := engine.ExtractRecords(ctx, g.Template, doc)
		if err != nil {
			return nil, err
		}
		if strategy == StrategyHybrid && env.AI != nil && incomplete(recs, g.Template) {
			return s.fillFromAI(ctx, a, data, doc, g.Template, recs), nil
		}
		return recs, nil
	})
	out.Records = records
	if err != nil {
		return out, err
	}
	if len(records) == 0 {
		return out, fmt.Errorf("%w for entity %s", ErrNoRecords, g.Entity)
	}
	logger.Info("extraction complete",
		"artifacts", out.Summary.ArtifactsProcessed,
		"failed", out.Summary.ArtifactsFailed,
		"records", len(records))
	return out, nil
}

// incomplete reports whether the cascade left anything for the AI to fill.
func incomplete(recs []core.Record, t *core.Template) bool {
	if len(recs) == 0 {
		return true
	}
	if len(recs) > 1 {
		return false
	}
	for _, f := range t.FieldNames() {
		if recs[0][f] == nil {
			return true
		}
	}
	return false
}

// fillFromAI completes a cascade result with AI values for the fields it
// missed. AI failures keep the cascade result.
func (s *session) fillFromAI(ctx context.Context, a Artifact, data []byte, doc *document.Document, t *core.Template, recs []core.Record) []core.Record {
	ai, err := s.aiRecords(ctx, a, data, doc, t)
	if err != nil {
		s.logger.Warn("ai fallback failed", "artifact", a.ID, "error", err)
		return recs
	}
	if len(recs) == 0 {
		return ai
	}
	merged := make(core.Record, len(recs[0]))
	for k, v := range recs[0] {
		merged[k] = v
	}
	for k, v := range ai[0] {
		if merged[k] == nil {
			merged[k] = v
		}
	}
	return []core.Record{merged}
}

// aiRecords sends an artifact to the AI service. doc may be nil; PDFs are
// analyzed on demand so the service receives their text.
func (s *session) aiRecords(ctx context.Context, a Artifact, data []byte, doc *document.Document, t *core.Template) ([]core.Record, error) {
	var (
		input   AIInput
		content string
	)
	switch {
	case document.IsEmail(a.Filename, a.MimeType):
		input, content = AIInputEmail, string(data)
	case document.DetectKind(a.Filename, a.MimeType) == document.KindHTML:
		input, content = AIInputHTML, string(data)
	default:
		if doc == nil {
			var err error
			if doc, err = s.document(ctx, a, data); err != nil {
				return nil, err
			}
		}
		input, content = AIInputPDF, doc.Text
	}
	rec, err := s.env.AI.ExtractAI(ctx, input, content, t)
	if err != nil {
		return nil, err
	}
	if len(rec) == 0 {
		return nil, nil
	}
	return []core.Record{rec}, nil
}

// SectionExtraction reads one page-range section of a report by column.
type SectionExtraction struct {
	Entity    string
	Template  string
	Section   core.Section
	Fields    []core.PatternField
	SourceIDs []string
}

var _ StageSpec = SectionExtraction{}

// Kind implements StageSpec.
func (SectionExtraction) Kind() Kind { return KindExtract }

// Run implements StageSpec.
func (x SectionExtraction) Run(ctx context.Context, env *Env, _ Inputs) (*Output, error) {
	logger := env.logger().With("stage", KindExtract, "entity", x.Entity, "section", x.Section.Name)
	if !x.Section.ValidRange() {
		return nil, fmt.Errorf("section %s has an invalid page range %d-%d",
			x.Section.Name, x.Section.StartPage, x.Section.EndPage)
	}

	s, err := openSession(ctx, env, logger)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	out := &Output{Summary: Summary{Entity: x.Entity, Template: x.Template}}
	records, err := s.each(ctx, x.SourceIDs, &out.Summary, func(ctx context.Context, a Artifact, data []byte) ([]core.Record, error) {
		analysis, err := s.analysis(ctx, a, data)
		if err != nil {
			return nil, err
		}
		return nabca.ExtractSection(analysis, x.Section, x.Fields), nil
	})
	out.Records = records
	if err != nil {
		return out, err
	}
	if len(records) == 0 {
		return out, fmt.Errorf("%w for section %s", ErrNoRecords, x.Section.Name)
	}
	return out, nil
}

// MultiEntityExtraction splits each report into tables, assigns every table
// to an entity by its headers and title, and loads the rows of each entity.
type MultiEntityExtraction struct {
	Template  *core.Template
	SourceIDs []string
	// Tables maps a target entity to its table; unmapped entities load into
	// a table of the same name.
	Tables map[string]string
}

var _ StageSpec = MultiEntityExtraction{}

// Kind implements StageSpec.
func (MultiEntityExtraction) Kind() Kind { return KindExtract }

// Run implements StageSpec.
func (m MultiEntityExtraction) Run(ctx context.Context, env *Env, _ Inputs) (*Output, error) {
	name := templateName(m.Template)
	logger := env.logger().With("stage", KindExtract, "template", name)
	if !m.Template.IsMultiEntity() {
		return nil, fmt.Errorf("template %s declares no table patterns", name)
	}

	s, err := openSession(ctx, env, logger)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	out := &Output{Summary: Summary{Template: name}}
	byEntity := make(map[string][]core.Record)
	columns := make(map[string][]string)

	_, err = s.each(ctx, m.SourceIDs, &out.Summary, func(ctx context.Context, a Artifact, data []byte) ([]core.Record, error) {
		analysis, err := s.analysis(ctx, a, data)
		if err != nil {
			return nil, err
		}
		var recs []core.Record
		for _, match := range nabca.Identify(analysis, m.Template.TablePatterns, logger) {
			rows := nabca.ExtractRows(match.Table, match.HeaderRow, match.Pattern.Fields, nabca.MultiEntityMinPopulated)
			entity := match.Pattern.TargetEntity
			byEntity[entity] = append(byEntity[entity], rows...)
			if _, ok := columns[entity]; !ok {
				columns[entity] = patternColumns(match.Pattern.Fields)
			}
			recs = append(recs, rows...)
		}
		return recs, nil
	})
	if err != nil {
		return out, err
	}
	if out.Summary.RecordsExtracted == 0 {
		return out, fmt.Errorf("%w for template %s", ErrNoRecords, name)
	}

	entities := make([]string, 0, len(byEntity))
	for e := range byEntity {
		entities = append(entities, e)
	}
	sort.Strings(entities)

	var errs []error
	for _, entity := range entities {
		table := entity
		if t, ok := m.Tables[entity]; ok && t != "" {
			table = t
		}
		l := loader{env: env, logger: logger.With("entity", entity), entity: entity}
		loaded, failed, err := l.load(ctx, s.db, table, columns[entity], byEntity[entity])
		out.Summary.RecordsLoaded += loaded
		out.Summary.RecordsFailed += failed
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load %s: %w", entity, err))
		}
	}
	return out, errors.Join(errs...)
}

func patternColumns(fields []core.PatternField) []string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return cols
}

// StagingExtraction reads already-loaded staging rows with a SELECT.
type StagingExtraction struct {
	Entity string
	SQL    string
}

var _ StageSpec = StagingExtraction{}

// Kind implements StageSpec.
func (StagingExtraction) Kind() Kind { return KindExtract }

// Run implements StageSpec.
func (x StagingExtraction) Run(ctx context.Context, env *Env, _ Inputs) (*Output, error) {
	logger := env.logger().With("stage", KindExtract, "entity", x.Entity)
	db, err := env.warehouse(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer closeQuietly(logger, "warehouse", db)

	records, err := db.Query(ctx, x.SQL)
	if err != nil {
		return nil, fmt.Errorf("failed to read staging rows for %s: %w", x.Entity, err)
	}
	out := &Output{
		Records: records,
		Summary: Summary{Entity: x.Entity, RecordsExtracted: len(records)},
	}
	env.Metrics.Records(x.Entity, "extracted", len(records))
	if len(records) == 0 {
		return out, fmt.Errorf("%w for entity %s", ErrNoRecords, x.Entity)
	}
	logger.Info("read staging rows", "records", len(records))
	return out, nil
}

func templateName(t *core.Template) string {
	if t == nil {
		return ""
	}
	return t.Name
}
