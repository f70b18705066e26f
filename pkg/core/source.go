package core

// ParsedSource is a parsed "entity.field" source mapping.
type ParsedSource struct {
	Entity string
	Field  string
	// IsFK is set when the entity follows a dimension naming convention.
	IsFK bool
	Raw  string
}

// String returns the mapping in its wire form.
func (p ParsedSource) String() string {
	return p.Entity + "." + p.Field
}
