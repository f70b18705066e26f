package cascade

import (
	"github.com/leapstack-labs/inspector/internal/document"
	"github.com/leapstack-labs/inspector/pkg/core"
)

// Strategy is one way of locating a field. The set is closed; the engine
// handles each type in a switch.
type Strategy interface {
	Method() core.Method
	strategy()
}

// XPathStrategy takes the text of the first node an XPath selects.
type XPathStrategy struct {
	Expr string
}

// CSSStrategy takes the text of the first element a CSS selector matches.
type CSSStrategy struct {
	Selector string
}

// CheckboxStrategy reads the labels of checked inputs inside a container.
type CheckboxStrategy struct {
	Container string
	Radio     bool
}

// RegexStrategy takes a capture group of the first match in the text.
type RegexStrategy struct {
	Pattern  string
	Group    int
	Fallback bool
}

// TableCellStrategy reads a cell of an OCR table.
type TableCellStrategy struct {
	Table  int
	Row    int
	Column int
}

func (XPathStrategy) Method() core.Method     { return core.MethodXPath }
func (CSSStrategy) Method() core.Method       { return core.MethodCSS }
func (CheckboxStrategy) Method() core.Method  { return core.MethodCSS }
func (TableCellStrategy) Method() core.Method { return core.MethodTable }

func (s RegexStrategy) Method() core.Method {
	if s.Fallback {
		return core.MethodRegexFallback
	}
	return core.MethodRegex
}

func (XPathStrategy) strategy()     {}
func (CSSStrategy) strategy()       {}
func (CheckboxStrategy) strategy()  {}
func (RegexStrategy) strategy()     {}
func (TableCellStrategy) strategy() {}

// Compile turns a field's selectors into the ordered strategies that apply to
// a document kind. HTML fields try XPath, CSS, the primary pattern and the
// fallback pattern. PDF fields try the table rule, then the patterns. Text
// documents only have patterns.
func Compile(t *core.Template, field string, kind document.Kind) []Strategy {
	var out []Strategy
	fs := t.Fields[field]

	switch kind {
	case document.KindHTML:
		if st := fs.Structural; st != nil {
			checkbox := st.CheckboxConfig != nil && st.CheckboxConfig.IsCheckboxGroup
			if st.XPath != "" && !checkbox {
				out = append(out, XPathStrategy{Expr: st.XPath})
			}
			switch {
			case st.CSSSelector != "" && checkbox:
				out = append(out, CheckboxStrategy{Container: st.CSSSelector, Radio: st.CheckboxConfig.IsRadio()})
			case st.CSSSelector != "":
				out = append(out, CSSStrategy{Selector: st.CSSSelector})
			}
		}
	case document.KindPDF:
		if rules := t.TableRules(); rules != nil {
			if cell, ok := rules.Fields[field]; ok {
				out = append(out, TableCellStrategy{
					Table:  rules.TableIndex,
					Row:    rules.HeaderRows + cell.Row,
					Column: cell.Column,
				})
			}
		}
	}

	if p := t.PatternFor(field); p != nil {
		out = append(out, RegexStrategy{Pattern: p.Primary, Group: p.CaptureGroup()})
		if p.Fallback != "" {
			out = append(out, RegexStrategy{Pattern: p.Fallback, Group: p.CaptureGroup(), Fallback: true})
		}
	}
	return out
}
