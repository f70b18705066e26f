package nabca

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/inspector/internal/testutil"
	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/ocr"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cafe sales", Normalize("  Café--SALES "))
	assert.Equal(t, "% chg", Normalize("% Chg."))
	assert.Equal(t, "", Normalize(" -- "))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Case Sales", "CASE SALES YTD"))
	assert.InDelta(t, 0.888, Similarity("Brand", "Brnd"), 0.01)
	assert.Less(t, Similarity("Vendor", "Total"), 0.5)
	assert.Equal(t, 0.0, Similarity("", "x"))
}

func summaryTable(page int) ocr.Table {
	return ocr.Table{Page: page, Rows: [][]string{
		{"", "", ""},
		{"Brand", "Vendor", "Case Sales"},
		{"Tito's", "Fifth Generation", "1,200"},
	}}
}

func summaryPattern(name, entity string, keywords ...string) core.TablePattern {
	return core.TablePattern{
		Name:            name,
		TargetEntity:    entity,
		RequiredHeaders: []string{"Brand", "Vendor", "Case Sales"},
		TitleKeywords:   keywords,
		Fields: []core.PatternField{
			{Name: "brand"}, {Name: "vendor"}, {Name: "case_sales", Type: "numeric"},
		},
	}
}

func TestHeaderRow(t *testing.T) {
	row, frac, ok := HeaderRow(summaryTable(1), []string{"Brand", "Vendor", "Case Sales"}, 0)
	require.True(t, ok)
	assert.Equal(t, 1, row)
	assert.Equal(t, 1.0, frac)

	_, _, ok = HeaderRow(summaryTable(1), []string{"Brand", "Month", "Year"}, 0)
	assert.False(t, ok)
}

func TestScore_TitleKeywords(t *testing.T) {
	table := summaryTable(1)
	lines := []string{"TOP 100 BRAND SUMMARY", "Report period: March"}

	all, _, ok := Score(table, summaryPattern("brands", "brand_sales", "brand", "summary"), lines, nil)
	require.True(t, ok)
	assert.InDelta(t, 1.3, all, 1e-9)

	some, _, _ := Score(table, summaryPattern("brands", "brand_sales", "brand", "vendor ranking"), lines, nil)
	assert.InDelta(t, 1.075, some, 1e-9)

	vendors := summaryPattern("vendors", "vendor_sales", "vendor ranking")
	untitled, _, _ := Score(table, vendors, lines, nil)
	assert.Equal(t, 1.0, untitled, "no rival title on the page keeps the base")

	rivals := []core.TablePattern{vendors, summaryPattern("brands", "brand_sales", "brand summary")}
	none, _, _ := Score(table, vendors, lines, rivals)
	assert.InDelta(t, 0.5, none, 1e-9)

	plain, _, _ := Score(table, summaryPattern("plain", "x"), lines, rivals)
	assert.Equal(t, 1.0, plain)
}

func TestIdentify_ContinuationPage(t *testing.T) {
	brands := summaryPattern("brands", "brand_sales", "brand summary")
	brands.AllowMultiple = true
	a := &ocr.Analysis{
		Tables: []ocr.Table{summaryTable(1), summaryTable(2)},
		Lines:  []ocr.Line{{Page: 1, Text: "Brand Summary"}},
	}

	matches := Identify(a, []core.TablePattern{brands}, testutil.NewTestLogger(t))
	require.Len(t, matches, 2)
	assert.InDelta(t, 1.3, matches[0].Score, 1e-9)
	assert.Equal(t, 2, matches[1].Table.Page)
	assert.Equal(t, 1.0, matches[1].Score)
}

func TestIdentify_TitleDisambiguation(t *testing.T) {
	a := &ocr.Analysis{
		Tables: []ocr.Table{summaryTable(1), summaryTable(2)},
		Lines: []ocr.Line{
			{Page: 1, Text: "Brand Summary"},
			{Page: 2, Text: "Vendor Ranking"},
		},
	}
	patterns := []core.TablePattern{
		summaryPattern("brands", "brand_sales", "brand summary"),
		summaryPattern("vendors", "vendor_sales", "vendor ranking"),
	}

	matches := Identify(a, patterns, testutil.NewTestLogger(t))
	require.Len(t, matches, 2)
	assert.Equal(t, "brand_sales", matches[0].Pattern.TargetEntity)
	assert.Equal(t, 1, matches[0].HeaderRow)
	assert.Equal(t, "vendor_sales", matches[1].Pattern.TargetEntity)
}

func TestIdentify_SequentialGuard(t *testing.T) {
	a := &ocr.Analysis{Tables: []ocr.Table{summaryTable(1), summaryTable(2)}}

	single := []core.TablePattern{summaryPattern("brands", "brand_sales")}
	assert.Len(t, Identify(a, single, nil), 1)

	multi := summaryPattern("brands", "brand_sales")
	multi.AllowMultiple = true
	assert.Len(t, Identify(a, []core.TablePattern{multi}, nil), 2)
}

func TestExtractRows_ColumnCountGuard(t *testing.T) {
	table := ocr.Table{Rows: [][]string{
		{"Brand", "Vendor", "Case Sales"},
		{"Tito's", "Fifth Generation", "1,200"},
		{"Smirnoff", "Diageo"},
		{"Absolut", "Pernod", "300", "extra"},
		{"Ketel One", "Diageo", ".00"},
		{"TOTAL", "ALL", "TOTAL"},
	}}
	fields := summaryPattern("p", "e").Fields

	recs := ExtractRows(table, 0, fields, MultiEntityMinPopulated)
	require.Len(t, recs, 3)
	assert.Equal(t, core.Record{"brand": "Tito's", "vendor": "Fifth Generation", "case_sales": int64(1200)}, recs[0])
	assert.Equal(t, 0.0, recs[1]["case_sales"])
	assert.Equal(t, "TOTAL", recs[2]["brand"])
	assert.Nil(t, recs[2]["case_sales"])

	assert.Len(t, ExtractRows(table, 0, fields, 0.9), 2)
}

func TestMergeTables(t *testing.T) {
	merged := MergeTables([]ocr.Table{
		{Page: 3, Rows: [][]string{{"Brand", "Cases"}, {"A", "1"}}},
		{Page: 4, Rows: [][]string{{"Brand", "Cases"}, {"B", "2"}}},
	})
	assert.Equal(t, 3, merged.Page)
	assert.Equal(t, [][]string{{"Brand", "Cases"}, {"A", "1"}, {"B", "2"}}, merged.Rows)
}

func TestExtractSection(t *testing.T) {
	a := &ocr.Analysis{Tables: []ocr.Table{
		{Page: 1, Rows: [][]string{{"Other", "Table"}, {"x", "y"}}},
		{Page: 3, Rows: [][]string{{"Brand Name", "Total Cases", "Notes"}, {"Tito's", "100", ""}, {"", "", ""}}},
		{Page: 4, Rows: [][]string{{"Brand Name", "Total Cases", "Notes"}, {"Absolut", "40", "new"}}},
	}}
	fields := []core.PatternField{{Name: "brand_name"}, {Name: "total_cases", Type: "integer"}}

	recs := ExtractSection(a, core.Section{Name: "brands", StartPage: 3, EndPage: 4}, fields)
	require.Len(t, recs, 2)
	assert.Equal(t, core.Record{"brand_name": "Tito's", "total_cases": int64(100)}, recs[0])
	assert.Equal(t, core.Record{"brand_name": "Absolut", "total_cases": int64(40)}, recs[1])

	assert.Empty(t, ExtractSection(a, core.Section{StartPage: 7, EndPage: 9}, fields))
}

func TestExtractSection_Positional(t *testing.T) {
	a := &ocr.Analysis{Tables: []ocr.Table{
		{Page: 2, Rows: [][]string{{"Qty", "Qty"}, {"5", "7"}}},
	}}
	fields := []core.PatternField{{Name: "on_hand", Type: "numeric"}, {Name: "on_order", Type: "numeric"}}

	recs := ExtractSection(a, core.Section{StartPage: 2, EndPage: 2}, fields)
	require.Len(t, recs, 1)
	assert.Equal(t, core.Record{"on_hand": int64(5), "on_order": int64(7)}, recs[0])
}
