// Package sqlgen compiles an entity and its field source mappings into the
// batch SQL statement that populates a dimension or fact table from staging data.
//
// Dimensions (REFERENCE) become INSERT ... SELECT ... GROUP BY over one staging
// entity. Facts (MASTER) become INSERT ... SELECT with one LEFT JOIN per foreign
// key, joined on the dimension's natural key.
package sqlgen

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/leapstack-labs/inspector/internal/mapping"
	"github.com/leapstack-labs/inspector/pkg/core"
)

// baseAlias is the alias of the staging table a fact is selected from.
const baseAlias = "base"

// defaultDimensionKey is the dimension column a foreign key resolves to when
// the field does not name one.
const defaultDimensionKey = "id"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds configuration for a Generator.
type Config struct {
	// Entities is the full entity model, used to resolve foreign-key targets
	// and staging table names.
	Entities []core.Entity
	// Placeholder is the bind parameter style. Defaults to $N.
	Placeholder sq.PlaceholderFormat
	Logger      *slog.Logger
}

// Generator builds transform SQL.
type Generator struct {
	entities []core.Entity
	builder  sq.StatementBuilderType
	parser   *mapping.Parser
	logger   *slog.Logger
}

// New creates a Generator.
func New(cfg Config) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	placeholder := cfg.Placeholder
	if placeholder == nil {
		placeholder = sq.Dollar
	}
	return &Generator{
		entities: cfg.Entities,
		builder:  sq.StatementBuilder.PlaceholderFormat(placeholder),
		parser:   mapping.NewParser(logger),
		logger:   logger,
	}
}

// Statement is a generated transform statement.
type Statement struct {
	Entity     string
	Kind       core.EntityType
	Table      string
	Columns    []string
	BaseTable  string
	JoinCount  int
	SQL        string
	SelectOnly string
}

// mappedField is a field whose source mapping parsed.
type mappedField struct {
	field  core.EntityField
	source core.ParsedSource
}

func (m mappedField) isFK() bool {
	return m.field.IsFK() || m.source.IsFK
}

// Validate collects the reasons an entity cannot be transformed. An empty
// result means Generate will emit SQL.
func (g *Generator) Validate(entity core.Entity, fields []core.EntityField) []string {
	var reasons []string

	if entity.Type == core.EntityInterim {
		reasons = append(reasons, fmt.Sprintf("entity %s is INTERIM and loads directly from extraction output", entity.Name))
	}
	if !identPattern.MatchString(entity.Table()) {
		reasons = append(reasons, fmt.Sprintf("entity %s has invalid table name %q", entity.Name, entity.Table()))
	}

	hasPK := false
	for _, f := range fields {
		if f.PrimaryKey {
			hasPK = true
		}
	}

	mapped, mappingReasons := g.mapFields(fields)
	reasons = append(reasons, mappingReasons...)

	if len(mapped) == 0 {
		reasons = append(reasons, fmt.Sprintf("entity %s has no field with a source mapping", entity.Name))
	}
	if !hasPK {
		reasons = append(reasons, fmt.Sprintf("entity %s declares no primary key field", entity.Name))
	}

	switch entity.Type {
	case core.EntityReference:
		if staging := distinctSources(mapped); len(staging) > 1 {
			reasons = append(reasons, fmt.Sprintf("dimension %s references more than one staging entity: %s",
				entity.Name, strings.Join(staging, ", ")))
		}
	case core.EntityMaster:
		reasons = append(reasons, g.validateFact(mapped)...)
	}

	return reasons
}

// mapFields parses the source mapping of every field. Foreign keys without a
// parsable mapping are reported; other unmapped fields are simply skipped.
func (g *Generator) mapFields(fields []core.EntityField) ([]mappedField, []string) {
	var mapped []mappedField
	var reasons []string
	for _, f := range fields {
		if !identPattern.MatchString(f.Name) {
			reasons = append(reasons, fmt.Sprintf("field %q is not a valid column name", f.Name))
			continue
		}
		if f.Metadata.Source == "" {
			if f.IsFK() {
				reasons = append(reasons, fmt.Sprintf("foreign key field %s has no source mapping", f.Name))
			}
			continue
		}
		src, ok := g.parser.ParseField(f)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("field %s has unparsable source mapping %q", f.Name, f.Metadata.Source))
			continue
		}
		if !identPattern.MatchString(src.Entity) || !identPattern.MatchString(src.Field) {
			reasons = append(reasons, fmt.Sprintf("field %s has invalid source mapping %q", f.Name, f.Metadata.Source))
			continue
		}
		mapped = append(mapped, mappedField{field: f, source: src})
	}
	return mapped, reasons
}

func (g *Generator) validateFact(mapped []mappedField) []string {
	if len(mapped) == 0 {
		return nil
	}
	var reasons []string
	base := baseEntity(mapped)
	for _, m := range mapped {
		if m.isFK() {
			continue
		}
		if m.source.Entity != base {
			reasons = append(reasons, fmt.Sprintf("data field %s is sourced from %s, not the base staging entity %s",
				m.field.Name, m.source.Entity, base))
		}
	}
	return reasons
}

// Generate builds the transform statement for an entity. It refuses with a
// *ValidationError when Validate reports any reason.
func (g *Generator) Generate(entity core.Entity, fields []core.EntityField) (*Statement, error) {
	if reasons := g.Validate(entity, fields); len(reasons) > 0 {
		return nil, &ValidationError{Entity: entity.Name, Reasons: reasons}
	}

	mapped, _ := g.mapFields(fields)

	var stmt *Statement
	var err error
	switch entity.Type {
	case core.EntityReference:
		stmt, err = g.dimension(entity, mapped)
	case core.EntityMaster:
		stmt, err = g.fact(entity, mapped)
	default:
		return nil, fmt.Errorf("unsupported entity type %q for %s", entity.Type, entity.Name)
	}
	if err != nil {
		return nil, err
	}

	g.logger.Debug("generated transform sql",
		"entity", entity.Name,
		"kind", entity.Type,
		"base", stmt.BaseTable,
		"joins", stmt.JoinCount)
	return stmt, nil
}

// SelectSQL returns the SELECT part of the transform statement alone.
func (g *Generator) SelectSQL(entity core.Entity, fields []core.EntityField) (string, error) {
	stmt, err := g.Generate(entity, fields)
	if err != nil {
		return "", err
	}
	return stmt.SelectOnly, nil
}

// dimension emits INSERT ... SELECT ... GROUP BY over the single staging entity.
func (g *Generator) dimension(entity core.Entity, mapped []mappedField) (*Statement, error) {
	staging := g.tableFor(mapped[0].source.Entity)

	columns := make([]string, 0, len(mapped))
	exprs := make([]string, 0, len(mapped))
	groupBy := make([]string, 0, len(mapped))
	for _, m := range mapped {
		columns = append(columns, m.field.Name)
		exprs = append(exprs, aliased(m.source.Field, m.field.Name))
		groupBy = append(groupBy, m.source.Field)
	}

	sel := g.builder.Select(exprs...).From(staging).GroupBy(groupBy...)
	return g.finish(entity, columns, sel, staging, 0)
}

// fact emits INSERT ... SELECT from the base staging table with one LEFT JOIN
// per foreign key.
func (g *Generator) fact(entity core.Entity, mapped []mappedField) (*Statement, error) {
	baseName := baseEntity(mapped)
	staging := g.tableFor(baseName)

	var columns, exprs []string
	var firstData *mappedField
	sel := g.builder.Select()
	joins := 0

	for i := range mapped {
		m := mapped[i]
		columns = append(columns, m.field.Name)

		if !m.isFK() {
			if firstData == nil {
				firstData = &mapped[i]
			}
			exprs = append(exprs, aliased(baseAlias+"."+m.source.Field, m.field.Name))
			continue
		}

		joins++
		alias := fmt.Sprintf("fk%d", joins)
		dim := g.dimensionFor(m)
		keys := joinKeys(m)
		conds := make([]string, 0, len(keys))
		for _, k := range keys {
			conds = append(conds, fmt.Sprintf("%s.%s = %s.%s", alias, k.dimension, baseAlias, k.base))
		}
		sel = sel.LeftJoin(fmt.Sprintf("%s AS %s ON %s", dim, alias, strings.Join(conds, " AND ")))

		target := defaultDimensionKey
		if m.field.ForeignKey != nil && m.field.ForeignKey.Field != "" {
			target = m.field.ForeignKey.Field
		}
		exprs = append(exprs, fmt.Sprintf("%s.%s AS %s", alias, target, m.field.Name))
	}

	sel = sel.Columns(exprs...).From(staging + " AS " + baseAlias)
	if firstData != nil {
		sel = sel.Where(sq.NotEq{baseAlias + "." + firstData.source.Field: nil})
	}

	return g.finish(entity, columns, sel, staging, joins)
}

func (g *Generator) finish(entity core.Entity, columns []string, sel sq.SelectBuilder, staging string, joins int) (*Statement, error) {
	selectSQL, _, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select for %s: %w", entity.Name, err)
	}
	insertSQL, _, err := g.builder.Insert(entity.Table()).Columns(columns...).Select(sel).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert for %s: %w", entity.Name, err)
	}
	return &Statement{
		Entity:     entity.Name,
		Kind:       entity.Type,
		Table:      entity.Table(),
		Columns:    columns,
		BaseTable:  staging,
		JoinCount:  joins,
		SQL:        insertSQL,
		SelectOnly: selectSQL,
	}, nil
}

// joinKey pairs a dimension natural-key column with the base column it matches.
type joinKey struct {
	dimension string
	base      string
}

// joinKeys resolves the natural key of a foreign-key field. A single-column key
// with a direct staging source joins against the source column; otherwise the
// staging table is expected to carry the key columns under the same names.
func joinKeys(m mappedField) []joinKey {
	var keys []string
	if m.field.Metadata.NaturalKey == "" && m.source.IsFK {
		keys = []string{m.source.Field}
	} else {
		keys = mapping.NaturalKey(m.field)
	}

	out := make([]joinKey, 0, len(keys))
	for _, k := range keys {
		base := k
		if len(keys) == 1 && !m.source.IsFK {
			base = m.source.Field
		}
		out = append(out, joinKey{dimension: k, base: base})
	}
	return out
}

// dimensionFor resolves the dimension table a foreign key joins against.
func (g *Generator) dimensionFor(m mappedField) string {
	if m.field.ForeignKey != nil && m.field.ForeignKey.Entity != "" {
		return g.tableFor(m.field.ForeignKey.Entity)
	}
	return g.tableFor(m.source.Entity)
}

// tableFor maps an entity reference to its physical table name.
func (g *Generator) tableFor(ref string) string {
	if e, ok := core.FindEntity(g.entities, ref); ok {
		return e.Table()
	}
	return ref
}

// baseEntity picks the staging entity a fact is selected from: the source of
// the first data field, else the source of the first foreign key.
func baseEntity(mapped []mappedField) string {
	for _, m := range mapped {
		if !m.isFK() {
			return m.source.Entity
		}
	}
	if len(mapped) > 0 {
		return mapped[0].source.Entity
	}
	return ""
}

func distinctSources(mapped []mappedField) []string {
	seen := make(map[string]bool)
	for _, m := range mapped {
		seen[m.source.Entity] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func aliased(expr, name string) string {
	if expr == name || strings.HasSuffix(expr, "."+name) {
		return expr
	}
	return expr + " AS " + name
}
