package mapping

import (
	"testing"

	"github.com/leapstack-labs/inspector/internal/testutil"
	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Classification(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		ok     bool
		entity string
		field  string
		isFK   bool
	}{
		{name: "dimension prefix", raw: "dim_brand.brand_name", ok: true, entity: "dim_brand", field: "brand_name", isFK: true},
		{name: "fact prefix", raw: "fact_sales.sale_id", ok: true, entity: "fact_sales", field: "sale_id", isFK: true},
		{name: "ref suffix", raw: "country_ref.code", ok: true, entity: "country_ref", field: "code", isFK: true},
		{name: "staging field", raw: "raw_html.brand_name", ok: true, entity: "raw_html", field: "brand_name", isFK: false},
		{name: "dim not a prefix", raw: "raw_dim_x.y", ok: true, entity: "raw_dim_x", field: "y", isFK: false},
		{name: "surrounding whitespace", raw: "  raw_nabca . brand ", ok: true, entity: "raw_nabca", field: "brand", isFK: false},
		{name: "no dot", raw: "no_dot_here", ok: false},
		{name: "too many segments", raw: "a.b.c", ok: false},
		{name: "empty field", raw: "raw_html.", ok: false},
		{name: "empty entity", raw: ".field", ok: false},
		{name: "empty", raw: "", ok: false},
	}

	p := NewParser(testutil.NewTestLogger(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Parse(tt.raw)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Equal(t, core.ParsedSource{}, got)
				return
			}
			assert.Equal(t, tt.entity, got.Entity)
			assert.Equal(t, tt.field, got.Field)
			assert.Equal(t, tt.isFK, got.IsFK)
		})
	}
}

func TestParse_PackageHelper(t *testing.T) {
	got, ok := Parse("dim_brand.brand_name")
	require.True(t, ok)
	assert.True(t, got.IsFK)
	assert.Equal(t, "dim_brand.brand_name", got.String())

	got, ok = Parse("raw_html.brand_name")
	require.True(t, ok)
	assert.False(t, got.IsFK)

	_, ok = Parse("no_dot_here")
	assert.False(t, ok)
}

func TestParseField(t *testing.T) {
	p := NewParser(nil)

	_, ok := p.ParseField(core.EntityField{Name: "brand"})
	assert.False(t, ok, "field without source has no mapping")

	got, ok := p.ParseField(core.EntityField{Name: "brand", Metadata: core.FieldMetadata{Source: "raw_nabca.brand"}})
	require.True(t, ok)
	assert.Equal(t, "raw_nabca", got.Entity)
}

func TestInferNaturalKeyField(t *testing.T) {
	assert.Equal(t, "brand_name", InferNaturalKeyField("brand_id"))
	assert.Equal(t, "product_name", InferNaturalKeyField("product"))
	assert.Equal(t, "vendor_id_name", InferNaturalKeyField("vendor_id_id"))
}

func TestNaturalKey(t *testing.T) {
	t.Run("inferred", func(t *testing.T) {
		assert.Equal(t, []string{"brand_name"}, NaturalKey(core.EntityField{Name: "brand_id"}))
	})

	t.Run("declared single", func(t *testing.T) {
		f := core.EntityField{Name: "brand_id", Metadata: core.FieldMetadata{NaturalKey: "brand"}}
		assert.Equal(t, []string{"brand"}, NaturalKey(f))
	})

	t.Run("declared multi column", func(t *testing.T) {
		f := core.EntityField{Name: "product_id", Metadata: core.FieldMetadata{NaturalKey: "brand_name, size ,"}}
		assert.Equal(t, []string{"brand_name", "size"}, NaturalKey(f))
	})

	t.Run("blank declaration falls back", func(t *testing.T) {
		f := core.EntityField{Name: "state_id", Metadata: core.FieldMetadata{NaturalKey: " , "}}
		assert.Equal(t, []string{"state_name"}, NaturalKey(f))
	})
}
