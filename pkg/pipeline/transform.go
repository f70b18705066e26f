package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/values"
)

// Transformation coerces input records to the entity's field types.
// Values that fail to coerce become null with a warning. REFERENCE entities
// are deduplicated on their id and key fields.
type Transformation struct {
	Entity string
	Type   core.EntityType
	Fields []core.EntityField
	// Sources maps a field to the input column read when the record has no
	// column of the field's own name.
	Sources map[string]string
}

var _ StageSpec = Transformation{}

// Kind implements StageSpec.
func (Transformation) Kind() Kind { return KindTransform }

// Run implements StageSpec.
func (t Transformation) Run(ctx context.Context, env *Env, in Inputs) (*Output, error) {
	logger := env.logger().With("stage", KindTransform, "entity", t.Entity)
	records := in.Records()
	out := make([]core.Record, 0, len(records))

	var nulled int
	for i, r := range records {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(t.Fields) == 0 {
			out = append(out, r)
			continue
		}
		rec := make(core.Record, len(t.Fields))
		for _, f := range t.Fields {
			raw, ok := r[f.Name]
			if col, mapped := t.Sources[f.Name]; !ok && mapped {
				raw = r[col]
			}
			v, err := values.Coerce(raw, f.DataType)
			if err != nil {
				logger.Warn("value does not match field type",
					"field", f.Name, "type", f.DataType, "record", i, "error", err)
				nulled++
				v = nil
			}
			rec[f.Name] = v
		}
		out = append(out, rec)
	}

	if t.Type == core.EntityReference {
		before := len(out)
		out = dedupe(out, keyFields(t.Fields))
		if removed := before - len(out); removed > 0 {
			logger.Info("removed duplicate reference rows", "removed", removed)
		}
	}

	logger.Info("transform complete", "records", len(out), "nulled_values", nulled)
	return &Output{
		Records: out,
		Summary: Summary{Entity: t.Entity},
	}, nil
}

// keyFields returns the names of fields that identify a reference row.
func keyFields(fields []core.EntityField) []string {
	var keys []string
	for _, f := range fields {
		name := strings.ToLower(f.Name)
		if strings.Contains(name, "id") || strings.Contains(name, "key") {
			keys = append(keys, f.Name)
		}
	}
	return keys
}

// dedupe keeps the first record of each key. With no key fields, whole
// records are compared.
func dedupe(records []core.Record, keys []string) []core.Record {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, r := range records {
		k := recordKey(r, keys)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func recordKey(r core.Record, keys []string) string {
	if len(keys) == 0 {
		keys = recordColumns([]core.Record{r})
	}
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%v\x1f", r[k])
	}
	return b.String()
}
