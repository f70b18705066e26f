package pipeline

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/inspector/pkg/core"
)

func TestTransformation_CoercesAndNullsFailures(t *testing.T) {
	te := newTestEnv(t)
	spec := Transformation{
		Entity: "fact_sales",
		Type:   core.EntityMaster,
		Fields: []core.EntityField{
			{Name: "vendor", DataType: core.DataTypeText},
			{Name: "cases", DataType: core.DataTypeInteger},
			{Name: "amount", DataType: core.DataTypeNumeric},
		},
	}
	in := Inputs{"extract_fact_sales": {Records: []core.Record{
		{"vendor": "Acme", "cases": "12", "amount": "10.50", "ignored": "x"},
		{"vendor": "Beta", "cases": "lots", "amount": "3"},
	}}}

	out, err := spec.Run(context.Background(), te.Env, in)
	require.NoError(t, err)
	require.Len(t, out.Records, 2)

	first := out.Records[0]
	assert.Equal(t, "Acme", first["vendor"])
	assert.Equal(t, int64(12), first["cases"])
	assert.True(t, decimal.RequireFromString("10.50").Equal(first["amount"].(decimal.Decimal)))
	assert.NotContains(t, first, "ignored")

	assert.Nil(t, out.Records[1]["cases"])
	assert.True(t, te.logs.Contains("level=WARN", "value does not match field type", "field=cases"))
}

func TestTransformation_ReferenceDedupe(t *testing.T) {
	te := newTestEnv(t)
	spec := Transformation{
		Entity: "dim_vendor",
		Type:   core.EntityReference,
		Fields: []core.EntityField{
			{Name: "vendor_id", DataType: core.DataTypeText},
			{Name: "vendor_name", DataType: core.DataTypeText},
		},
	}
	in := Inputs{"extract_dim_vendor": {Records: []core.Record{
		{"vendor_id": "V1", "vendor_name": "Acme"},
		{"vendor_id": "V1", "vendor_name": "Acme Corp"},
		{"vendor_id": "V2", "vendor_name": "Beta"},
	}}}

	out, err := spec.Run(context.Background(), te.Env, in)
	require.NoError(t, err)
	assert.Equal(t, []core.Record{
		{"vendor_id": "V1", "vendor_name": "Acme"},
		{"vendor_id": "V2", "vendor_name": "Beta"},
	}, out.Records)
}

func TestTransformation_DedupeWithoutKeys(t *testing.T) {
	recs := []core.Record{{"name": "a"}, {"name": "a"}, {"name": "b"}}
	assert.Len(t, dedupe(recs, keyFields([]core.EntityField{{Name: "name"}})), 2)
}

func TestTransformation_PassThrough(t *testing.T) {
	te := newTestEnv(t)
	recs := []core.Record{{"a": "1"}}
	out, err := Transformation{Entity: "x"}.Run(context.Background(), te.Env, Inputs{"e": {Records: recs}})
	require.NoError(t, err)
	assert.Equal(t, recs, out.Records)
}

func TestTransformation_SourceColumnFallback(t *testing.T) {
	te := newTestEnv(t)
	spec := Transformation{
		Entity: "fact_sales",
		Type:   core.EntityMaster,
		Fields: []core.EntityField{
			{Name: "brand_name", DataType: core.DataTypeText},
			{Name: "case_sales", DataType: core.DataTypeInteger},
		},
		Sources: map[string]string{"brand_name": "brand", "case_sales": "ytd_case_sales"},
	}
	in := Inputs{"extract_fact_sales": {Records: []core.Record{
		{"brand": "Tito's", "ytd_case_sales": "1,200"},
		{"brand": "Tito's", "brand_name": "Tito's Handmade", "ytd_case_sales": "7"},
	}}}

	out, err := spec.Run(context.Background(), te.Env, in)
	require.NoError(t, err)
	assert.Equal(t, []core.Record{
		{"brand_name": "Tito's", "case_sales": int64(1200)},
		{"brand_name": "Tito's Handmade", "case_sales": int64(7)},
	}, out.Records)
}
