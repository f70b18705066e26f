package cascade

import (
	"context"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/leapstack-labs/inspector/internal/document"
	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/values"
)

// ExtractRecords returns every record a document holds. CSV documents yield
// one record per data row using each field's column index; JSON documents
// fan out over fields flagged as arrays. Other kinds yield the single record
// of Extract when it succeeded.
func (e *Engine) ExtractRecords(ctx context.Context, t *core.Template, doc *document.Document) ([]core.Record, error) {
	if err := checkDocument(doc); err != nil {
		return nil, err
	}
	switch doc.Kind {
	case document.KindCSV:
		return csvRecords(t, doc.Rows), nil
	case document.KindJSON:
		return jsonRecords(t, doc.JSON), nil
	}

	res, err := e.Extract(ctx, t, doc)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, nil
	}
	return []core.Record{res.Record()}, nil
}

func csvRecords(t *core.Template, rows [][]string) []core.Record {
	type column struct {
		field string
		index int
	}
	var cols []column
	for _, f := range t.FieldNames() {
		if st := t.Fields[f].Structural; st != nil && st.ColumnIndex != nil {
			cols = append(cols, column{field: f, index: *st.ColumnIndex})
		}
	}
	if len(cols) == 0 || len(rows) < 2 {
		return nil
	}

	var records []core.Record
	for _, row := range rows[1:] {
		rec := make(core.Record, len(cols))
		empty := true
		for _, c := range cols {
			var v any
			if c.index >= 0 && c.index < len(row) && strings.TrimSpace(row[c.index]) != "" {
				v = convert(t.Fields[c.field].Validation, strings.TrimSpace(row[c.index]))
				empty = false
			}
			rec[c.field] = v
		}
		if !empty {
			records = append(records, rec)
		}
	}
	return records
}

func jsonRecords(t *core.Template, data []byte) []core.Record {
	scalars := make(core.Record)
	arrays := make(map[string][]gjson.Result)
	n := 0
	for _, f := range t.FieldNames() {
		st := t.Fields[f].Structural
		if st == nil || st.JSONPath == "" {
			continue
		}
		r := gjson.GetBytes(data, GJSONPath(st.JSONPath))
		rule := t.Fields[f].Validation
		if st.IsArray {
			items := r.Array()
			arrays[f] = items
			n = max(n, len(items))
			continue
		}
		if r.Exists() && r.Type != gjson.Null {
			scalars[f] = convert(rule, r.String())
		} else {
			scalars[f] = nil
		}
	}

	if len(arrays) == 0 {
		if len(scalars) == 0 {
			return nil
		}
		return []core.Record{scalars}
	}

	records := make([]core.Record, 0, n)
	for i := 0; i < n; i++ {
		rec := make(core.Record, len(scalars)+len(arrays))
		for k, v := range scalars {
			rec[k] = v
		}
		for f, items := range arrays {
			var v any
			if i < len(items) && items[i].Type != gjson.Null {
				v = convert(t.Fields[f].Validation, items[i].String())
			}
			rec[f] = v
		}
		records = append(records, rec)
	}
	return records
}

var (
	indexSegment    = regexp.MustCompile(`\[(\d+)\]`)
	wildcardSegment = regexp.MustCompile(`\[\*\]`)
)

// GJSONPath converts a $-rooted JSONPath ("$.items[*].price") to gjson
// syntax ("items.#.price"). gjson paths pass through unchanged.
func GJSONPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "$")
	p = wildcardSegment.ReplaceAllString(p, ".#")
	p = indexSegment.ReplaceAllString(p, ".$1")
	return strings.TrimPrefix(p, ".")
}

func convert(rule *core.ValidationRule, v string) any {
	if rule == nil {
		return v
	}
	switch strings.ToLower(rule.Format) {
	case "numeric", "number", "currency":
		cleaned := values.Clean(strings.TrimLeft(v, "$€£"))
		switch cleaned.(type) {
		case int64, float64:
			return cleaned
		}
		return nil
	case "boolean":
		b, _ := parseBool(v)
		return b
	}
	return v
}
