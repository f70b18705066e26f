// Package cascade extracts field values from documents by trying the cheapest
// reliable layer first: XPath, then CSS, then text patterns. PDF documents use
// OCR table cells before patterns.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/leapstack-labs/inspector/internal/document"
	"github.com/leapstack-labs/inspector/pkg/core"
)

// Config configures an Engine.
type Config struct {
	// Matcher evaluates patterns. Defaults to Regexp2Matcher.
	Matcher PatternMatcher
	Logger  *slog.Logger
}

// Engine runs templates against documents. It holds no per-document state
// and is safe for concurrent use when its matcher is.
type Engine struct {
	matcher PatternMatcher
	logger  *slog.Logger
}

// New creates an engine.
func New(cfg Config) *Engine {
	if cfg.Matcher == nil {
		cfg.Matcher = Regexp2Matcher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{matcher: cfg.Matcher, logger: cfg.Logger}
}

// Extract evaluates every template field against the document. A field that
// no layer resolves is null and listed in FailedFields; only template and
// document defects are returned as errors.
func (e *Engine) Extract(ctx context.Context, t *core.Template, doc *document.Document) (*core.ExtractionResult, error) {
	if t == nil {
		return nil, &TemplateError{Err: fmt.Errorf("%w: nil template", ErrBadDocument)}
	}
	if err := checkDocument(doc); err != nil {
		return nil, err
	}

	fields := t.FieldNames()
	res := &core.ExtractionResult{
		Data:    make(map[string]*string, len(fields)),
		Methods: make(map[string]core.Method, len(fields)),
	}

	if doc.Kind == document.KindPDF && t.TableRules() == nil && !hasPatterns(t, fields) {
		e.logger.Debug("pdf template has no table rules or patterns", "document", doc.Name)
		for _, f := range fields {
			res.Data[f] = nil
			res.Methods[f] = core.MethodFailed
			res.FailedFields = append(res.FailedFields, f)
		}
		res.Method = core.MethodFailed
		return res, nil
	}

	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, method, err := e.extractField(t, field, doc)
		if err != nil {
			return nil, err
		}
		if value == "" {
			res.Data[field] = nil
			res.Methods[field] = core.MethodFailed
			res.FailedFields = append(res.FailedFields, field)
			continue
		}
		res.Data[field] = &value
		res.Methods[field] = method
		res.Success = true
	}

	res.Method = dominant(fields, res.Methods)
	warnings, err := e.validate(t, fields, res)
	if err != nil {
		return nil, err
	}
	res.Warnings = warnings

	e.logger.Debug("extraction complete",
		"document", doc.Name,
		"fields", len(fields),
		"failed", len(res.FailedFields),
		"method", res.Method)
	return res, nil
}

func checkDocument(doc *document.Document) error {
	switch {
	case doc == nil:
		return &TemplateError{Err: fmt.Errorf("%w: nil document", ErrBadDocument)}
	case doc.Kind == document.KindHTML && doc.Root == nil:
		return &TemplateError{Err: fmt.Errorf("%w: html document %q was not parsed", ErrBadDocument, doc.Name)}
	case doc.Kind == document.KindPDF && doc.Analysis == nil:
		return &TemplateError{Err: fmt.Errorf("%w: pdf document %q has no analysis", ErrBadDocument, doc.Name)}
	}
	return nil
}

func hasPatterns(t *core.Template, fields []string) bool {
	for _, f := range fields {
		if t.PatternFor(f) != nil {
			return true
		}
	}
	return false
}

func (e *Engine) extractField(t *core.Template, field string, doc *document.Document) (string, core.Method, error) {
	for _, s := range Compile(t, field, doc.Kind) {
		value, err := e.apply(s, doc)
		if err != nil {
			return "", "", withField(err, field)
		}
		if value != "" {
			return value, s.Method(), nil
		}
	}
	return "", core.MethodFailed, nil
}

func withField(err error, field string) error {
	if te, ok := err.(*TemplateError); ok {
		te.Field = field
		return te
	}
	return &TemplateError{Field: field, Err: err}
}

func (e *Engine) apply(s Strategy, doc *document.Document) (string, error) {
	switch s := s.(type) {
	case XPathStrategy:
		return evalXPath(doc.Root, s.Expr)
	case CSSStrategy:
		return evalCSS(doc.Root, s.Selector)
	case CheckboxStrategy:
		return evalCheckbox(doc.Root, s)
	case RegexStrategy:
		v, err := e.matcher.Find(s.Pattern, doc.Text, s.Group)
		if err != nil {
			return "", &TemplateError{Layer: string(s.Method()), Expr: s.Pattern, Err: err}
		}
		return v, nil
	case TableCellStrategy:
		return tableCell(doc, s), nil
	default:
		return "", &TemplateError{Err: fmt.Errorf("%w: %T", ErrUnknownStrategy, s)}
	}
}

func evalXPath(root *html.Node, expr string) (string, error) {
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return "", &TemplateError{Layer: "xpath", Expr: expr, Err: err}
	}
	if len(nodes) == 0 {
		return "", nil
	}
	return strings.TrimSpace(htmlquery.InnerText(nodes[0])), nil
}

func evalCSS(root *html.Node, selector string) (string, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return "", &TemplateError{Layer: "css selector", Expr: selector, Err: err}
	}
	n := cascadia.Query(root, sel)
	if n == nil {
		return "", nil
	}
	if text := document.CollapseSpace(document.Text(n)); text != "" {
		return text, nil
	}
	if v, ok := document.Attr(n, "value"); ok {
		return strings.TrimSpace(v), nil
	}
	return "", nil
}

func tableCell(doc *document.Document, s TableCellStrategy) string {
	tables := doc.Analysis.Tables
	if s.Table < 0 || s.Table >= len(tables) {
		return ""
	}
	rows := tables[s.Table].Rows
	if s.Row < 0 || s.Row >= len(rows) {
		return ""
	}
	row := rows[s.Row]
	if s.Column < 0 || s.Column >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[s.Column])
}

// dominant returns the most frequent successful method. Ties go to the
// method that first appears in field order.
func dominant(fields []string, methods map[string]core.Method) core.Method {
	counts := make(map[core.Method]int)
	var order []core.Method
	for _, f := range fields {
		m := methods[f]
		if m == core.MethodFailed || m == "" {
			continue
		}
		if counts[m] == 0 {
			order = append(order, m)
		}
		counts[m]++
	}
	best := core.MethodFailed
	bestCount := 0
	for _, m := range order {
		if counts[m] > bestCount {
			best, bestCount = m, counts[m]
		}
	}
	return best
}
