package nabca

import (
	"strings"

	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/ocr"
	"github.com/leapstack-labs/inspector/pkg/values"
)

// Minimum share of populated columns for a row to be kept.
const (
	MultiEntityMinPopulated = 0.4
	SectionMinPopulated     = 0.5
)

// ExtractRows maps rows below the header to records by column position.
// Rows whose width differs from the field count are skipped. Numeric columns
// reject purely alphabetic text.
func ExtractRows(t ocr.Table, headerRow int, fields []core.PatternField, minPopulated float64) []core.Record {
	if len(fields) == 0 {
		return nil
	}
	var records []core.Record
	for i := headerRow + 1; i < len(t.Rows); i++ {
		row := t.Rows[i]
		if len(row) != len(fields) {
			continue
		}
		rec, populated := make(core.Record, len(fields)), 0
		for j, f := range fields {
			v := cellValue(row[j], f.Numeric())
			if v != nil {
				populated++
			}
			rec[f.Name] = v
		}
		if float64(populated)/float64(len(fields)) >= minPopulated {
			records = append(records, rec)
		}
	}
	return records
}

func cellValue(raw string, numeric bool) any {
	raw = strings.TrimSpace(raw)
	if numeric {
		if values.IsAlphabetic(raw) {
			return nil
		}
		raw = values.RepairDecimal(raw)
	}
	return values.Clean(raw)
}

// HeaderGuess returns the row with the most non-empty cells among the first
// five rows of a table.
func HeaderGuess(rows [][]string) int {
	best, bestCount := 0, -1
	for i := 0; i < min(len(rows), 5); i++ {
		n := 0
		for _, c := range rows[i] {
			if strings.TrimSpace(c) != "" {
				n++
			}
		}
		if n > bestCount {
			best, bestCount = i, n
		}
	}
	return best
}

// MergeTables concatenates tables; every table after the first loses its
// repeated header row.
func MergeTables(tables []ocr.Table) ocr.Table {
	if len(tables) == 0 {
		return ocr.Table{}
	}
	merged := ocr.Table{Index: tables[0].Index, Page: tables[0].Page}
	merged.Rows = append(merged.Rows, tables[0].Rows...)
	for _, t := range tables[1:] {
		h := HeaderGuess(t.Rows)
		for i, r := range t.Rows {
			if i != h {
				merged.Rows = append(merged.Rows, r)
			}
		}
	}
	return merged
}

// ExtractSection extracts one entity from the tables inside a section's page
// range. Columns map by position when the header is blank or repeats names
// and the width matches; otherwise each field takes the header that best
// resembles its name.
func ExtractSection(a *ocr.Analysis, sec core.Section, fields []core.PatternField) []core.Record {
	tables := a.TablesInRange(sec.StartPage, sec.EndPage)
	if len(tables) == 0 || len(fields) == 0 {
		return nil
	}
	merged := MergeTables(tables)
	if len(merged.Rows) == 0 {
		return nil
	}
	h := HeaderGuess(merged.Rows)
	headers := merged.Rows[h]

	if positionalHeaders(headers) && len(headers) == len(fields) {
		return ExtractRows(merged, h, fields, SectionMinPopulated)
	}

	columns := make([]int, len(fields))
	mapped := 0
	for i, f := range fields {
		columns[i] = -1
		score, idx := bestMatch(strings.ReplaceAll(f.Name, "_", " "), headers)
		if score > 0.5 {
			columns[i] = idx
			mapped++
		}
	}
	if mapped == 0 {
		if len(headers) == len(fields) {
			return ExtractRows(merged, h, fields, SectionMinPopulated)
		}
		return nil
	}

	var records []core.Record
	for _, row := range merged.Rows[h+1:] {
		rec, populated := make(core.Record, len(fields)), 0
		for i, f := range fields {
			var v any
			if c := columns[i]; c >= 0 && c < len(row) {
				v = cellValue(row[c], f.Numeric())
			}
			if v != nil {
				populated++
			}
			rec[f.Name] = v
		}
		if float64(populated)/float64(len(fields)) >= SectionMinPopulated {
			records = append(records, rec)
		}
	}
	return records
}

func positionalHeaders(headers []string) bool {
	seen := make(map[string]bool)
	blank := true
	for _, h := range headers {
		n := Normalize(h)
		if n == "" {
			continue
		}
		blank = false
		if seen[n] {
			return true
		}
		seen[n] = true
	}
	return blank
}
