// Package mapping parses the "entity.field" source mappings carried in field
// metadata and infers natural join keys for foreign-key fields.
package mapping

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/leapstack-labs/inspector/pkg/core"
)

// fkEntityPattern matches entity names that follow the dimension naming convention.
var fkEntityPattern = regexp.MustCompile(`^dim_|^fact_|_ref`)

// Parser parses source mappings. Malformed input is logged, never returned as an error.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a parser. If logger is nil, a discard logger is used.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Parser{logger: logger}
}

// Parse parses "entity.field". It returns false when raw is not exactly two
// non-empty dot-separated segments; callers treat that as "no source mapping".
func (p *Parser) Parse(raw string) (core.ParsedSource, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return core.ParsedSource{}, false
	}

	parts := strings.Split(trimmed, ".")
	if len(parts) != 2 {
		p.logger.Warn("malformed source mapping", "source", raw, "segments", len(parts))
		return core.ParsedSource{}, false
	}

	entity := strings.TrimSpace(parts[0])
	field := strings.TrimSpace(parts[1])
	if entity == "" || field == "" {
		p.logger.Warn("malformed source mapping", "source", raw, "reason", "empty segment")
		return core.ParsedSource{}, false
	}

	return core.ParsedSource{
		Entity: entity,
		Field:  field,
		IsFK:   IsForeignKeyEntity(entity),
		Raw:    raw,
	}, true
}

// ParseField parses the source mapping of a field, if any.
func (p *Parser) ParseField(f core.EntityField) (core.ParsedSource, bool) {
	if f.Metadata.Source == "" {
		return core.ParsedSource{}, false
	}
	return p.Parse(f.Metadata.Source)
}

// Parse parses raw with a discard logger.
func Parse(raw string) (core.ParsedSource, bool) {
	return NewParser(nil).Parse(raw)
}

// IsForeignKeyEntity reports whether an entity name follows the dimension naming
// convention (dim_ or fact_ prefix, or containing _ref).
func IsForeignKeyEntity(entity string) bool {
	return fkEntityPattern.MatchString(entity)
}

// InferNaturalKeyField infers the natural key column of a foreign-key field:
// a trailing "_id" is stripped and "_name" appended.
func InferNaturalKeyField(field string) string {
	return strings.TrimSuffix(field, "_id") + "_name"
}

// NaturalKey returns the join key columns of a foreign-key field: the declared
// natural key when present (comma separated), otherwise the inferred one.
func NaturalKey(f core.EntityField) []string {
	if declared := strings.TrimSpace(f.Metadata.NaturalKey); declared != "" {
		var cols []string
		for _, c := range strings.Split(declared, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cols = append(cols, c)
			}
		}
		if len(cols) > 0 {
			return cols
		}
	}
	return []string{InferNaturalKeyField(f.Name)}
}
