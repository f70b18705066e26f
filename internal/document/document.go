// Package document loads source artifacts into the forms the extraction
// engine works on: a parsed HTML tree, plain text, an OCR analysis, CSV rows
// or raw JSON.
package document

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/leapstack-labs/inspector/pkg/ocr"
)

// Kind identifies the representation of a document.
type Kind string

// Document kinds.
const (
	KindHTML Kind = "html"
	KindText Kind = "text"
	KindPDF  Kind = "pdf"
	KindCSV  Kind = "csv"
	KindJSON Kind = "json"
)

// ErrNeedsOCR is returned when a binary PDF is loaded without an analysis.
var ErrNeedsOCR = errors.New("pdf documents must be analyzed by OCR first")

// Document is one loaded artifact.
type Document struct {
	Kind Kind
	Name string

	// Root is the parsed tree of an HTML document.
	Root *html.Node
	// Text is the visible text: HTML body text, OCR lines or the raw text.
	Text string
	// Analysis holds the OCR result of a PDF document.
	Analysis *ocr.Analysis
	// Rows holds CSV records including the header row.
	Rows [][]string
	// JSON holds the raw bytes of a JSON document.
	JSON []byte
	// Headers carries message headers of email documents.
	Headers map[string]string
	// HTML is the source markup of an HTML document.
	HTML string
}

// ParseHTML parses markup into a document.
func ParseHTML(data []byte) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &Document{
		Kind: KindHTML,
		Root: root,
		Text: VisibleText(root),
		HTML: string(data),
	}, nil
}

// ParseText wraps plain text.
func ParseText(text string) *Document {
	return &Document{Kind: KindText, Text: text}
}

// FromAnalysis wraps the OCR result of a PDF.
func FromAnalysis(a *ocr.Analysis) *Document {
	return &Document{Kind: KindPDF, Analysis: a, Text: a.Text()}
}

// ParseCSV reads delimited rows. Ragged rows are allowed.
func ParseCSV(data []byte) (*Document, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\uFEFF"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return &Document{Kind: KindCSV, Rows: rows, Text: string(data)}, nil
}

// ParseJSON validates and wraps a JSON document.
func ParseJSON(data []byte) (*Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("failed to parse json: invalid document")
	}
	return &Document{Kind: KindJSON, JSON: data, Text: string(data)}, nil
}

// DetectKind picks a representation from the MIME type, falling back to the
// file extension. Email is reported as html; Load handles it separately.
func DetectKind(name, mimeType string) Kind {
	mt, _, _ := mime.ParseMediaType(mimeType)
	switch {
	case mt == "application/pdf":
		return KindPDF
	case mt == "text/html" || mt == "application/xhtml+xml" || mt == "message/rfc822":
		return KindHTML
	case mt == "text/csv":
		return KindCSV
	case mt == "application/json":
		return KindJSON
	case strings.HasPrefix(mt, "text/"):
		return KindText
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF
	case ".html", ".htm", ".eml", ".xhtml":
		return KindHTML
	case ".csv":
		return KindCSV
	case ".json":
		return KindJSON
	}
	return KindText
}

// IsEmail reports whether the artifact is an RFC 822 message.
func IsEmail(name, mimeType string) bool {
	mt, _, _ := mime.ParseMediaType(mimeType)
	return mt == "message/rfc822" || strings.EqualFold(filepath.Ext(name), ".eml")
}

// IsBlocksFile reports whether name is a saved OCR analysis.
func IsBlocksFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".blocks.json")
}

// Load builds a document from raw content. PDFs cannot be loaded directly;
// they yield ErrNeedsOCR. Saved OCR analyses (*.blocks.json) load as PDFs.
func Load(data []byte, name, mimeType string) (*Document, error) {
	var (
		doc *Document
		err error
	)
	switch {
	case IsBlocksFile(name):
		var a *ocr.Analysis
		a, err = ocr.ParseBlocksJSON(data)
		if err == nil {
			doc = FromAnalysis(a)
		}
	case IsEmail(name, mimeType):
		doc, err = ParseEmail(data)
	default:
		switch DetectKind(name, mimeType) {
		case KindPDF:
			return nil, fmt.Errorf("%s: %w", name, ErrNeedsOCR)
		case KindHTML:
			doc, err = ParseHTML(data)
		case KindCSV:
			doc, err = ParseCSV(data)
		case KindJSON:
			doc, err = ParseJSON(data)
		default:
			doc = ParseText(string(data))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}
	doc.Name = name
	return doc, nil
}

// VisibleText returns the whitespace-collapsed text of a tree, skipping
// script, style and template content.
func VisibleText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Template, atom.Noscript, atom.Head:
				return
			case atom.Br, atom.P, atom.Div, atom.Tr, atom.Li, atom.H1, atom.H2, atom.H3, atom.H4, atom.Table:
				sb.WriteByte('\n')
			case atom.Td, atom.Th:
				sb.WriteByte(' ')
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseLines(sb.String())
}

// Text returns the concatenated text of a node's subtree.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style) {
			continue
		}
		sb.WriteString(Text(c))
	}
	return sb.String()
}

// CollapseSpace trims s and replaces runs of whitespace with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func collapseLines(s string) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = CollapseSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

// Attr returns an attribute value of an element.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}
