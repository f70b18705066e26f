// Package codegen compiles an entity model and an extraction template into a
// pipeline program.
//
// Plan decides which stages an entity needs and how they depend on each
// other; the result is a list of pipeline.Stage values that can run
// in-process. Generate renders the same plan as Go source for a standalone
// program built on pkg/pipeline.
package codegen

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/leapstack-labs/inspector/internal/dag"
	"github.com/leapstack-labs/inspector/internal/mapping"
	"github.com/leapstack-labs/inspector/internal/sqlgen"
	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/pipeline"
)

// ErrUnreachable is returned for a non-INTERIM entity that no INTERIM entity
// feeds through relationships or source mappings.
var ErrUnreachable = errors.New("entity is not reachable from any INTERIM entity")

// StageKind names the extraction stage a plan uses.
type StageKind string

// Extraction stage kinds, in selection order.
const (
	StageMultiEntity StageKind = "multi_entity"
	StageSection     StageKind = "section"
	StageStaging     StageKind = "staging"
	StageGeneric     StageKind = "generic"
)

// Request is one entity to generate a pipeline for.
type Request struct {
	Entity core.Entity
	// Fields defaults to Entity.Fields.
	Fields        []core.EntityField
	Relationships []core.Relationship
	// Entities is the whole model, used to resolve relationship and
	// foreign-key targets.
	Entities  []core.Entity
	Template  *core.Template
	SourceIDs []string
	// Strategy is template, ai or hybrid. Empty means template.
	Strategy string
}

func (r Request) fields() []core.EntityField {
	if len(r.Fields) > 0 {
		return r.Fields
	}
	return r.Entity.Fields
}

// Config holds configuration for a Generator.
type Config struct {
	// BatchSize and QualityThreshold are written into load stages when set.
	BatchSize        int
	QualityThreshold float64
	// Placeholder is the bind style of the transform SQL. Defaults to $N.
	Placeholder sq.PlaceholderFormat
	Logger      *slog.Logger
}

// Generator plans and renders pipelines.
type Generator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Generator.
func New(cfg Config) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Generator{cfg: cfg, logger: logger}
}

// Plan is a generated pipeline before rendering.
type Plan struct {
	Entity    core.Entity
	Kind      StageKind
	Strategy  string
	Template  *core.Template
	Stages    []pipeline.Stage
	Config    core.PipelineConfig
	Statement *sqlgen.Statement
	// Warnings are model problems that did not stop generation.
	Warnings []string
}

// Dependencies returns the stage dependency map.
func (p *Plan) Dependencies() map[string][]string {
	return p.Config.Dependencies
}

// AssetName is the stage name for an entity: extract_x, transform_x or load_x.
func AssetName(kind pipeline.Kind, entity string) string {
	return string(kind) + "_" + entity
}

// Plan selects the stages for an entity and wires their dependencies.
func (g *Generator) Plan(req Request) (*Plan, error) {
	entity := req.Entity
	if entity.Name == "" {
		return nil, errors.New("entity name is required")
	}
	if !entity.Type.Valid() {
		return nil, fmt.Errorf("entity %s has unknown type %q", entity.Name, entity.Type)
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = pipeline.StrategyTemplate
	}
	switch strategy {
	case pipeline.StrategyTemplate, pipeline.StrategyAI, pipeline.StrategyHybrid:
	default:
		return nil, fmt.Errorf("unknown extraction strategy %q", strategy)
	}

	logger := g.logger.With("entity", entity.Name)
	fields := req.fields()
	multi := req.Template.IsMultiEntity()

	if entity.Type != core.EntityInterim && !multi {
		if err := g.checkReachable(req, fields); err != nil {
			return nil, err
		}
	}

	p := &Plan{Entity: entity, Strategy: strategy, Template: req.Template}

	if entity.Type != core.EntityInterim && !multi {
		sg := sqlgen.New(sqlgen.Config{Entities: req.Entities, Placeholder: g.cfg.Placeholder, Logger: logger})
		if reasons := sg.Validate(entity, fields); len(reasons) == 0 {
			stmt, err := sg.Generate(entity, fields)
			if err != nil {
				return nil, err
			}
			p.Statement = stmt
		} else {
			for _, r := range reasons {
				p.warn(logger, "transform SQL not generated: "+r)
			}
		}
	}

	extract := pipeline.Stage{Name: AssetName(pipeline.KindExtract, entity.Name)}
	extract.Spec, p.Kind = g.extraction(req, p, fields, strategy)
	if p.Kind == StageGeneric && req.Template == nil && strategy == pipeline.StrategyTemplate {
		p.warn(logger, "no template: generic extraction will find no fields")
	}
	extract.Deps = g.upstreamLoads(req, p, logger)
	p.Stages = append(p.Stages, extract)

	if !multi {
		loadDep := extract.Name
		if entity.Type != core.EntityInterim {
			transform := pipeline.Stage{
				Name: AssetName(pipeline.KindTransform, entity.Name),
				Deps: []string{extract.Name},
				Spec: pipeline.Transformation{
					Entity:  entity.Name,
					Type:    entity.Type,
					Fields:  fields,
					Sources: sourceColumns(fields),
				},
			}
			if p.Kind == StageGeneric && req.Template != nil {
				g.checkGenericColumns(p, fields, extractedNames(extract.Spec), logger)
			}
			p.Stages = append(p.Stages, transform)
			loadDep = transform.Name
		}
		p.Stages = append(p.Stages, pipeline.Stage{
			Name: AssetName(pipeline.KindLoad, entity.Name),
			Deps: []string{loadDep},
			Spec: pipeline.Load{
				Entity:           entity.Name,
				Table:            entity.Table(),
				Fields:           loadColumns(fields, extractedNames(extract.Spec)),
				BatchSize:        g.cfg.BatchSize,
				QualityThreshold: g.cfg.QualityThreshold,
			},
		})
	}

	p.Config = g.sidecar(req, p, fields)
	if err := validateDependencies(p.Config.Dependencies); err != nil {
		return nil, err
	}
	logger.Debug("planned pipeline", "stage_kind", p.Kind, "stages", len(p.Stages))
	return p, nil
}

func (p *Plan) warn(logger *slog.Logger, msg string) {
	logger.Warn(msg)
	p.Warnings = append(p.Warnings, msg)
}

// extraction picks the extraction spec: multi-entity, then section, then
// staging, then generic.
func (g *Generator) extraction(req Request, p *Plan, fields []core.EntityField, strategy string) (pipeline.StageSpec, StageKind) {
	entity := req.Entity
	t := req.Template

	if t.IsMultiEntity() {
		return pipeline.MultiEntityExtraction{
			Template:  t,
			SourceIDs: req.SourceIDs,
			Tables:    targetTables(t, req.Entities),
		}, StageMultiEntity
	}

	if sec, ok := sectionFor(t, fields); ok {
		return pipeline.SectionExtraction{
			Entity:    entity.Name,
			Template:  t.Name,
			Section:   sec,
			Fields:    sectionFields(fields, sec.Name),
			SourceIDs: req.SourceIDs,
		}, StageSection
	}

	if t == nil && entity.Type != core.EntityInterim && p.Statement != nil {
		return pipeline.StagingExtraction{Entity: entity.Name, SQL: p.Statement.SelectOnly}, StageStaging
	}

	return pipeline.GenericExtraction{
		Entity:    entity.Name,
		Template:  t,
		SourceIDs: req.SourceIDs,
		Strategy:  strategy,
	}, StageGeneric
}

// sectionFor returns the first template section named by a field's
// nabca_section that has a usable page range.
func sectionFor(t *core.Template, fields []core.EntityField) (core.Section, bool) {
	for _, f := range fields {
		name := f.Metadata.NabcaSection
		if name == "" {
			continue
		}
		if sec, ok := t.Section(name); ok && sec.ValidRange() {
			return sec, true
		}
	}
	return core.Section{}, false
}

// sectionFields maps the entity fields of a section to positional columns.
// Fields with no section marker belong to every section.
func sectionFields(fields []core.EntityField, section string) []core.PatternField {
	var out []core.PatternField
	for _, f := range fields {
		if s := f.Metadata.NabcaSection; s != "" && !strings.EqualFold(s, section) {
			continue
		}
		pf := core.PatternField{Name: f.Name, Type: "text"}
		if f.DataType == core.DataTypeInteger || f.DataType == core.DataTypeNumeric {
			pf.Type = "numeric"
		}
		out = append(out, pf)
	}
	return out
}

// targetTables maps each target entity of a multi-entity template to its
// physical table when the model renames it.
func targetTables(t *core.Template, entities []core.Entity) map[string]string {
	targets := append([]string(nil), t.TargetEntities...)
	for _, tp := range t.TablePatterns {
		targets = append(targets, tp.TargetEntity)
	}
	tables := make(map[string]string)
	for _, name := range targets {
		if e, ok := core.FindEntity(entities, name); ok && e.Table() != name {
			tables[name] = e.Table()
		}
	}
	if len(tables) == 0 {
		return nil
	}
	return tables
}

// extractedNames returns the record keys an extraction spec is known to
// produce, or nil when they depend on the documents.
func extractedNames(spec pipeline.StageSpec) []string {
	switch s := spec.(type) {
	case pipeline.GenericExtraction:
		return s.Template.FieldNames()
	case pipeline.SectionExtraction:
		names := make([]string, 0, len(s.Fields))
		for _, f := range s.Fields {
			names = append(names, f.Name)
		}
		return names
	}
	return nil
}

// sourceColumns maps fields to the column their source mapping names.
// Foreign keys are left out: their source holds a natural key, not the
// referenced id.
func sourceColumns(fields []core.EntityField) map[string]string {
	var cols map[string]string
	for _, f := range fields {
		if f.IsFK() {
			continue
		}
		ps, ok := mapping.Parse(f.Metadata.Source)
		if !ok || ps.Field == f.Name {
			continue
		}
		if cols == nil {
			cols = make(map[string]string)
		}
		cols[f.Name] = ps.Field
	}
	return cols
}

// checkGenericColumns warns when generic extraction feeds none of the
// entity fields, by name or by source mapping, and for foreign keys that the
// generic path leaves unresolved.
func (g *Generator) checkGenericColumns(p *Plan, fields []core.EntityField, produced []string, logger *slog.Logger) {
	sources := sourceColumns(fields)
	fed := false
	for _, f := range fields {
		if f.IsFK() {
			if f.Metadata.Source != "" {
				p.warn(logger, fmt.Sprintf("foreign key %s is not resolved by generic extraction", f.Name))
			}
			continue
		}
		if slices.Contains(produced, f.Name) || (sources[f.Name] != "" && slices.Contains(produced, sources[f.Name])) {
			fed = true
		}
	}
	if !fed && len(produced) > 0 {
		p.warn(logger, fmt.Sprintf("template fields %s match no field of %s", strings.Join(produced, ", "), p.Entity.Name))
	}
}

// loadColumns are the entity fields to insert. Primary keys the extraction
// does not produce are left to the warehouse.
func loadColumns(fields []core.EntityField, produced []string) []string {
	have := make(map[string]bool, len(produced))
	for _, n := range produced {
		have[n] = true
	}
	var cols []string
	for _, f := range fields {
		if f.PrimaryKey && !have[f.Name] {
			continue
		}
		cols = append(cols, f.Name)
	}
	return cols
}

// upstreamLoads returns the load stages of the entities that relate to this
// one as their target.
func (g *Generator) upstreamLoads(req Request, p *Plan, logger *slog.Logger) []string {
	var deps []string
	for _, rel := range req.Relationships {
		if !req.Entity.Matches(rel.TargetEntityID) {
			continue
		}
		if req.Entity.Matches(rel.SourceEntityID) {
			p.warn(logger, fmt.Sprintf("ignoring self relationship %s", relationshipLabel(rel)))
			continue
		}
		name := entityName(req.Entities, rel.SourceEntityID)
		dep := AssetName(pipeline.KindLoad, name)
		if !slices.Contains(deps, dep) {
			deps = append(deps, dep)
		}
	}
	sort.Strings(deps)
	return deps
}

func relationshipLabel(rel core.Relationship) string {
	if rel.ID != "" {
		return rel.ID
	}
	return rel.SourceEntityID + " -> " + rel.TargetEntityID
}

// entityName resolves a reference to an entity name, keeping unknown
// references as they are.
func entityName(entities []core.Entity, ref string) string {
	if e, ok := core.FindEntity(entities, ref); ok {
		return e.Name
	}
	return ref
}

// EntityGraph links entities from the data they are built from: an edge
// runs from the source of every relationship to its target, and from the
// entity a field's source mapping names to the field's entity.
func EntityGraph(entities []core.Entity, relationships []core.Relationship, logger *slog.Logger) *dag.Graph[core.Entity] {
	graph := dag.New[core.Entity]()
	for _, e := range entities {
		graph.AddNode(e.Name, e)
	}
	link := func(from, to string) {
		src, ok := core.FindEntity(entities, from)
		if !ok {
			return
		}
		dst, ok := core.FindEntity(entities, to)
		if !ok || src.Name == dst.Name {
			return
		}
		_ = graph.AddEdge(src.Name, dst.Name)
	}

	for _, rel := range relationships {
		link(rel.SourceEntityID, rel.TargetEntityID)
	}
	parser := mapping.NewParser(logger)
	for _, e := range entities {
		for _, f := range e.Fields {
			if f.Metadata.Source == "" {
				continue
			}
			if ps, ok := parser.ParseField(f); ok {
				link(ps.Entity, e.Name)
			}
		}
	}
	return graph
}

// checkReachable walks relationships and source mappings backwards from the
// entity looking for an INTERIM entity.
func (g *Generator) checkReachable(req Request, fields []core.EntityField) error {
	self := req.Entity
	self.Fields = fields
	entities := make([]core.Entity, 0, len(req.Entities)+1)
	found := false
	for _, e := range req.Entities {
		if e.Name == self.Name {
			e, found = self, true
		}
		entities = append(entities, e)
	}
	if !found {
		entities = append(entities, self)
	}

	graph := EntityGraph(entities, req.Relationships, g.logger)
	for _, id := range graph.Upstream(self.Name) {
		if n, ok := graph.Node(id); ok && n.Data.Type == core.EntityInterim {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnreachable, self.Name)
}

// validateDependencies rejects a dependency map with a cycle.
func validateDependencies(deps map[string][]string) error {
	graph, err := dag.FromDependencies(deps)
	if err != nil {
		return fmt.Errorf("invalid dependency map: %w", err)
	}
	if _, err := graph.TopologicalSort(); err != nil {
		return fmt.Errorf("invalid dependency map: %w", err)
	}
	return nil
}

// sidecar builds the JSON config shipped with the generated program.
func (g *Generator) sidecar(req Request, p *Plan, fields []core.EntityField) core.PipelineConfig {
	cfg := core.PipelineConfig{
		ExtractionAssets:     []string{},
		TransformationAssets: []string{},
		LoadAssets:           []string{},
		Dependencies:         make(map[string][]string, len(p.Stages)),
		EntityModel: core.EntityModel{
			Entity:    req.Entity,
			Fields:    fields,
			SourceIDs: req.SourceIDs,
			Strategy:  p.Strategy,
			StageKind: string(p.Kind),
		},
	}
	cfg.EntityModel.Entity.Fields = nil
	for _, s := range p.Stages {
		switch s.Spec.Kind() {
		case pipeline.KindExtract:
			cfg.ExtractionAssets = append(cfg.ExtractionAssets, s.Name)
		case pipeline.KindTransform:
			cfg.TransformationAssets = append(cfg.TransformationAssets, s.Name)
		case pipeline.KindLoad:
			cfg.LoadAssets = append(cfg.LoadAssets, s.Name)
		}
		if s.Spec.Kind() == pipeline.KindExtract && len(s.Deps) == 0 {
			continue
		}
		cfg.Dependencies[s.Name] = append([]string{}, s.Deps...)
	}
	for _, rel := range req.Relationships {
		if req.Entity.Matches(rel.SourceEntityID) || req.Entity.Matches(rel.TargetEntityID) {
			cfg.EntityModel.Relationships = append(cfg.EntityModel.Relationships, rel)
		}
	}
	if p.Statement != nil {
		cfg.TransformSQL = p.Statement.SQL
	}
	return cfg
}
