// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/inspector/internal/cli/output"
)

// ProjectConfig is the inspector.yaml of SetupTestProject.
const ProjectConfig = `project: entities.yaml
output_dir: pipelines
state_path: .inspector/state.db
warehouse:
  type: sqlite
  path: warehouse.db
storage:
  type: local
  root: data
`

// EntityModel is the entity model of SetupTestProject: an INTERIM staging
// entity fed by the nabca template and a brand dimension built from it.
const EntityModel = `entities:
  - id: e-raw
    name: raw_nabca
    type: INTERIM
    fields:
      - name: brand
        data_type: TEXT
      - name: ytd_case_sales
        data_type: NUMERIC
  - id: e-brand
    name: dim_brand
    type: REFERENCE
    fields:
      - name: id
        data_type: INTEGER
        primary_key: true
      - name: brand_name
        data_type: TEXT
        metadata:
          source: raw_nabca.brand
relationships:
  - source: e-raw
    target: e-brand
    cardinality: "1:N"
templates:
  nabca: templates/nabca.json
pipelines:
  - entity: raw_nabca
    template: nabca
    sources: [src-1]
  - entity: dim_brand
`

// NabcaTemplate extracts the brand by CSS and the case sales by pattern.
const NabcaTemplate = `{
  "name": "nabca",
  "fields": {
    "brand": {"structural": {"cssSelector": "td.brand"}},
    "ytd_case_sales": {"pattern": {"primary": "YTD:\\s*([\\d,]+)"}}
  }
}`

// ReportHTML is a document NabcaTemplate fully resolves.
const ReportHTML = `<html><body>
<table id="report"><tr><td class="brand">Tito's Handmade</td><td class="total">YTD: 1,234</td></tr></table>
</body></html>`

// SetupTestProject creates a temporary project with an entity model, a
// template and one document under docs/.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	for _, dir := range []string{"templates", "docs", "data"} {
		if err := os.MkdirAll(filepath.Join(tmpDir, dir), 0o750); err != nil {
			t.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}

	files := map[string]string{
		"inspector.yaml":       ProjectConfig,
		"entities.yaml":        EntityModel,
		"templates/nabca.json": NabcaTemplate,
		"docs/report.html":     ReportHTML,
	}
	for name, content := range files {
		WriteFile(t, tmpDir, name, content)
	}
	return tmpDir
}

// WriteFile writes content to dir/name.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if fenceCount := strings.Count(md, "```"); fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
