package codegen

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/pipeline"
)

// parse checks the code is valid Go and returns its top-level function names.
func parse(t *testing.T, code string) (*ast.File, []string) {
	t.Helper()
	f, err := parser.ParseFile(token.NewFileSet(), "main.go", code, parser.ParseComments)
	require.NoError(t, err, code)
	var funcs []string
	for _, d := range f.Decls {
		if fn, ok := d.(*ast.FuncDecl); ok {
			funcs = append(funcs, fn.Name.Name)
		}
	}
	return f, funcs
}

func imports(f *ast.File) []string {
	var out []string
	for _, imp := range f.Imports {
		out = append(out, strings.Trim(imp.Path.Value, `"`))
	}
	return out
}

func TestGenerate_Generic(t *testing.T) {
	g := New(Config{BatchSize: 500, QualityThreshold: 0.9})
	out, err := g.Generate(Request{
		Entity:        entity(t, "fact_sales"),
		Entities:      model(),
		Relationships: []core.Relationship{brandToSales},
		Template:      htmlTemplate(),
		SourceIDs:     []string{"src-1"},
		Strategy:      pipeline.StrategyHybrid,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.Code, "// Code generated by inspector generate. DO NOT EDIT.\n"))
	f, funcs := parse(t, out.Code)
	assert.Equal(t, "main", f.Name.Name)
	assert.Equal(t, []string{"main", "stages", "extractFactSales", "transformFactSales", "loadFactSales"}, funcs)
	assert.ElementsMatch(t, []string{"os", pipelineImport, coreImport}, imports(f))

	assert.Contains(t, out.Code, "os.Exit(pipeline.Main(stages()))")
	assert.Contains(t, out.Code, `Deps: []string{"load_dim_brand"}`)
	assert.Regexp(t, `Template:\s+pipeline\.MustTemplate\(extractFactSalesTemplate\)`, out.Code)
	assert.Contains(t, out.Code, `"name": "nabca-html"`)
	assert.Regexp(t, `Strategy:\s+"hybrid"`, out.Code)
	assert.Regexp(t, `BatchSize:\s+500,`, out.Code)
	assert.Regexp(t, `QualityThreshold:\s+0\.9,`, out.Code)
	assert.Contains(t, out.Code, `{Name: "sale_id", DataType: core.DataType("INTEGER"), PrimaryKey: true}`)
	assert.Regexp(t, `Sources:\s+map\[string\]string\{\s+"case_sales":\s+"ytd_case_sales",\s+\}`, out.Code)

	assert.Equal(t, []string{"load_dim_brand"}, out.Config.Dependencies["extract_fact_sales"])
	assert.Contains(t, out.Config.TransformSQL, "LEFT JOIN dim_brand AS fk1")
}

func TestGenerate_Interim(t *testing.T) {
	out, err := New(Config{}).Generate(Request{Entity: entity(t, "raw_nabca"), Template: htmlTemplate()})
	require.NoError(t, err)

	f, funcs := parse(t, out.Code)
	assert.Equal(t, []string{"main", "stages", "extractRawNabca", "loadRawNabca"}, funcs)
	assert.ElementsMatch(t, []string{"os", pipelineImport}, imports(f))
	assert.NotContains(t, out.Code, "BatchSize")
}

func TestGenerate_Staging(t *testing.T) {
	out, err := New(Config{}).Generate(Request{Entity: entity(t, "dim_brand"), Entities: model()})
	require.NoError(t, err)

	parse(t, out.Code)
	assert.Contains(t, out.Code, "pipeline.StagingExtraction{")
	assert.Regexp(t, `SQL:\s+"SELECT brand AS brand_name FROM raw_nabca GROUP BY brand"`, out.Code)
	assert.Contains(t, out.Code, "// Extraction: staging")
}

func TestGenerate_Section(t *testing.T) {
	fields := []core.EntityField{
		{Name: "brand", DataType: core.DataTypeText, Metadata: core.FieldMetadata{NabcaSection: "Brands"}},
		{Name: "cases", DataType: core.DataTypeNumeric},
	}
	tmpl := &core.Template{Name: "nabca", Sections: []core.Section{{Name: "Brands", Title: "Brand Summary", StartPage: 1, EndPage: 3}}}
	out, err := New(Config{}).Generate(Request{Entity: entity(t, "raw_nabca"), Fields: fields, Template: tmpl})
	require.NoError(t, err)

	parse(t, out.Code)
	assert.Regexp(t, `Section:\s+core\.Section\{Name: "Brands", Title: "Brand Summary", StartPage: 1, EndPage: 3\}`, out.Code)
	assert.Contains(t, out.Code, `{Name: "cases", Type: "numeric"}`)
	assert.NotContains(t, out.Code, "MustTemplate")
}

func TestGenerate_MultiEntity(t *testing.T) {
	tmpl := &core.Template{
		Name: "nabca-`quoted`",
		TablePatterns: []core.TablePattern{
			{Name: "vendors", TargetEntity: "dim_vendor", RequiredHeaders: []string{"vendor"}},
		},
	}
	out, err := New(Config{}).Generate(Request{Entity: entity(t, "raw_nabca"), Entities: model(), Template: tmpl})
	require.NoError(t, err)

	_, funcs := parse(t, out.Code)
	assert.Equal(t, []string{"main", "stages", "extractRawNabca"}, funcs)
	assert.Contains(t, out.Code, `"dim_vendor": "vendors"`)
	assert.Contains(t, out.Code, `const extractRawNabcaTemplate = "{\n`)
	assert.Empty(t, out.Config.LoadAssets)
}

func TestRender_UnknownSpec(t *testing.T) {
	p := &Plan{
		Entity: core.Entity{Name: "x", Type: core.EntityInterim},
		Stages: []pipeline.Stage{{Name: "extract_x", Spec: unknownSpec{}}},
	}
	_, err := Render(p)
	assert.ErrorContains(t, err, "no code fragment for stage spec")
}

type unknownSpec struct{ pipeline.StagingExtraction }

func TestIdent(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"extract", "fact_sales"}, "extractFactSales"},
		{[]string{"load", "Brand Sales-2024"}, "loadBrandSales2024"},
		{[]string{"transform", "ÉTAT"}, "transformÉtat"},
		{[]string{"2024_report"}, "x2024Report"},
		{[]string{""}, "x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ident(tt.parts...), tt.parts)
	}
}
