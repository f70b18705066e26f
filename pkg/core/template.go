package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Template is a named, versioned bundle of per-field selectors.
// Its JSON form is the persistence format produced by the template builders.
type Template struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Version int    `json:"version,omitempty"`

	Fields     map[string]FieldSelector   `json:"fields"`
	Structural *StructuralRules           `json:"structural,omitempty"`
	Patterns   map[string]PatternSelector `json:"patterns,omitempty"`
	Sections   []Section                  `json:"sections,omitempty"`

	// MultiEntity marks a template that decomposes one document into several tables.
	MultiEntity    bool           `json:"multiEntity,omitempty"`
	TablePatterns  []TablePattern `json:"tablePatterns,omitempty"`
	TargetEntities []string       `json:"targetEntities,omitempty"`
}

// ParseTemplate decodes a template from its JSON persistence format.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &t, nil
}

// IsMultiEntity reports whether the template routes tables to several entities.
func (t *Template) IsMultiEntity() bool {
	return t != nil && (t.MultiEntity || len(t.TablePatterns) > 0)
}

// FieldNames returns the names of all fields the template extracts, sorted.
// Fields that only appear in Patterns or table rules are included.
func (t *Template) FieldNames() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]bool)
	for name := range t.Fields {
		seen[name] = true
	}
	for name := range t.Patterns {
		seen[name] = true
	}
	if rules := t.TableRules(); rules != nil {
		for name := range rules.Fields {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PatternFor returns the pattern for a field: the field's own pattern first,
// then the template-level pattern map.
func (t *Template) PatternFor(field string) *PatternSelector {
	if t == nil {
		return nil
	}
	if fs, ok := t.Fields[field]; ok && fs.Pattern != nil && fs.Pattern.Primary != "" {
		return fs.Pattern
	}
	if p, ok := t.Patterns[field]; ok && p.Primary != "" {
		return &p
	}
	return nil
}

// TableRules returns the PDF table rules, or nil.
func (t *Template) TableRules() *TableRules {
	if t == nil || t.Structural == nil {
		return nil
	}
	return t.Structural.TableRules
}

// Section returns the section with the given name (case-insensitive).
func (t *Template) Section(name string) (Section, bool) {
	if t == nil {
		return Section{}, false
	}
	for _, s := range t.Sections {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Section{}, false
}

// FieldSelector describes how to locate one field.
// A selector may carry a structural part, a pattern part, or both.
type FieldSelector struct {
	Structural *StructuralSelector `json:"structural,omitempty"`
	Pattern    *PatternSelector    `json:"pattern,omitempty"`
	Validation *ValidationRule     `json:"validation,omitempty"`
}

// StructuralSelector locates a field by document structure.
type StructuralSelector struct {
	CSSSelector    string          `json:"cssSelector,omitempty"`
	XPath          string          `json:"xpath,omitempty"`
	SampleValue    string          `json:"sampleValue,omitempty"`
	ElementInfo    *ElementInfo    `json:"elementInfo,omitempty"`
	CheckboxConfig *CheckboxConfig `json:"checkboxConfig,omitempty"`

	// ColumnIndex maps a CSV column to the field.
	ColumnIndex *int `json:"columnIndex,omitempty"`
	// JSONPath locates the field in a JSON document.
	JSONPath string `json:"jsonPath,omitempty"`
	// IsArray fans a JSON array out to one record per element.
	IsArray bool `json:"isArray,omitempty"`
}

// ElementInfo records what the builder saw when the field was selected.
type ElementInfo struct {
	TagName     string            `json:"tagName,omitempty"`
	ID          string            `json:"id,omitempty"`
	ClassName   string            `json:"className,omitempty"`
	TextContent string            `json:"textContent,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// CheckboxConfig marks a field whose value is the label of checked inputs.
type CheckboxConfig struct {
	IsCheckboxGroup bool     `json:"isCheckboxGroup"`
	GroupType       string   `json:"groupType,omitempty"`
	Options         []string `json:"options,omitempty"`
}

// IsRadio reports whether the group yields a single label.
func (c *CheckboxConfig) IsRadio() bool {
	return c != nil && strings.EqualFold(c.GroupType, "radio")
}

// PatternSelector is a text pattern with an optional fallback.
type PatternSelector struct {
	Primary  string `json:"primary"`
	Fallback string `json:"fallback,omitempty"`
	Group    *int   `json:"group,omitempty"`
}

// CaptureGroup returns the configured capture group, defaulting to 1.
func (p PatternSelector) CaptureGroup() int {
	if p.Group == nil {
		return 1
	}
	return *p.Group
}

// ValidationRule constrains an extracted value.
type ValidationRule struct {
	Format        string   `json:"format,omitempty"`
	Required      bool     `json:"required,omitempty"`
	MinLength     *int     `json:"minLength,omitempty"`
	MaxLength     *int     `json:"maxLength,omitempty"`
	AllowedValues []string `json:"allowedValues,omitempty"`
	Pattern       string   `json:"pattern,omitempty"`
}

// StructuralRules holds document-level structural rules.
type StructuralRules struct {
	TableRules *TableRules `json:"tableRules,omitempty"`
}

// TableRules map fields to cells of one table in a PDF document.
type TableRules struct {
	TableIndex int                `json:"tableIndex"`
	HeaderRows int                `json:"headerRows,omitempty"`
	Fields     map[string]CellRef `json:"fields"`
}

// CellRef is a zero-based row/column position below the header rows.
type CellRef struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Section is a named page range of a report.
type Section struct {
	Name      string `json:"name"`
	Title     string `json:"title,omitempty"`
	StartPage int    `json:"startPage"`
	EndPage   int    `json:"endPage"`
}

// ValidRange reports whether the section has a usable one-based page range.
func (s Section) ValidRange() bool {
	return s.StartPage >= 1 && s.EndPage >= s.StartPage
}

// Contains reports whether page falls inside the section.
func (s Section) Contains(page int) bool {
	return page >= s.StartPage && page <= s.EndPage
}

// TablePattern describes one kind of table in a multi-entity report.
type TablePattern struct {
	Name            string         `json:"name"`
	TargetEntity    string         `json:"targetEntity"`
	RequiredHeaders []string       `json:"requiredHeaders"`
	FuzzyThreshold  float64        `json:"fuzzyThreshold,omitempty"`
	TitleKeywords   []string       `json:"titleKeywords,omitempty"`
	Fields          []PatternField `json:"fields"`
	// AllowMultiple lets several tables in one document map to the same entity,
	// for tables that continue across pages.
	AllowMultiple bool `json:"allowMultiple,omitempty"`
}

// PatternField is one positional column of a table pattern.
type PatternField struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Numeric reports whether the column holds numbers.
func (f PatternField) Numeric() bool {
	switch strings.ToLower(f.Type) {
	case "numeric", "number", "integer", "decimal", "float":
		return true
	}
	return false
}
