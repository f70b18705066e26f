package codegen

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/inspector/internal/testutil"
	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/pipeline"
)

func model() []core.Entity {
	return []core.Entity{
		{ID: "e-raw", Name: "raw_nabca", Type: core.EntityInterim, Fields: []core.EntityField{
			{Name: "brand", DataType: core.DataTypeText},
			{Name: "ytd_case_sales", DataType: core.DataTypeNumeric},
		}},
		{ID: "e-brand", Name: "dim_brand", Type: core.EntityReference, Fields: []core.EntityField{
			{Name: "id", DataType: core.DataTypeInteger, PrimaryKey: true},
			{Name: "brand_name", DataType: core.DataTypeText, Metadata: core.FieldMetadata{Source: "raw_nabca.brand"}},
		}},
		{ID: "e-vendor", Name: "dim_vendor", TableName: "vendors", Type: core.EntityReference},
		{ID: "e-sales", Name: "fact_sales", Type: core.EntityMaster, Fields: []core.EntityField{
			{Name: "sale_id", DataType: core.DataTypeInteger, PrimaryKey: true},
			{
				Name:       "brand_id",
				DataType:   core.DataTypeInteger,
				ForeignKey: &core.ForeignKeyRef{Entity: "e-brand", Field: "id"},
				Metadata:   core.FieldMetadata{Source: "raw_nabca.brand"},
			},
			{Name: "case_sales", DataType: core.DataTypeNumeric, Metadata: core.FieldMetadata{Source: "raw_nabca.ytd_case_sales"}},
		}},
	}
}

func entity(t *testing.T, name string) core.Entity {
	t.Helper()
	e, ok := core.FindEntity(model(), name)
	require.True(t, ok, name)
	return *e
}

var brandToSales = core.Relationship{ID: "r1", SourceEntityID: "e-brand", TargetEntityID: "e-sales", Cardinality: core.OneToMany}

func htmlTemplate() *core.Template {
	return &core.Template{
		Name: "nabca-html",
		Fields: map[string]core.FieldSelector{
			"brand":          {Structural: &core.StructuralSelector{CSSSelector: "td.brand"}},
			"ytd_case_sales": {Pattern: &core.PatternSelector{Primary: `YTD:\s*([\d,]+)`}},
		},
	}
}

func newGenerator(t *testing.T) *Generator {
	t.Helper()
	return New(Config{Logger: testutil.NewTestLogger(t)})
}

func TestPlan_DependencyMap(t *testing.T) {
	g := newGenerator(t)

	t.Run("interim loads straight from extraction", func(t *testing.T) {
		p, err := g.Plan(Request{Entity: entity(t, "raw_nabca"), Entities: model(), Template: htmlTemplate()})
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{
			"load_raw_nabca": {"extract_raw_nabca"},
		}, p.Dependencies())
		assert.NotContains(t, p.Dependencies(), "extract_raw_nabca")
		assert.NotContains(t, p.Dependencies(), "transform_raw_nabca")
		assert.Empty(t, p.Config.TransformationAssets)
	})

	t.Run("relationship target waits for the source load", func(t *testing.T) {
		p, err := g.Plan(Request{
			Entity:        entity(t, "fact_sales"),
			Entities:      model(),
			Relationships: []core.Relationship{brandToSales},
			Template:      htmlTemplate(),
		})
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{
			"extract_fact_sales":   {"load_dim_brand"},
			"transform_fact_sales": {"extract_fact_sales"},
			"load_fact_sales":      {"transform_fact_sales"},
		}, p.Dependencies())
		assert.Equal(t, []string{"extract_fact_sales"}, p.Config.ExtractionAssets)
		assert.Equal(t, []string{"transform_fact_sales"}, p.Config.TransformationAssets)
		assert.Equal(t, []string{"load_fact_sales"}, p.Config.LoadAssets)
	})

	t.Run("relationship source is unaffected", func(t *testing.T) {
		p, err := g.Plan(Request{
			Entity:        entity(t, "dim_brand"),
			Entities:      model(),
			Relationships: []core.Relationship{brandToSales},
		})
		require.NoError(t, err)
		assert.NotContains(t, p.Dependencies(), "extract_dim_brand")
		assert.Equal(t, []core.Relationship{brandToSales}, p.Config.EntityModel.Relationships)
	})
}

func TestPlan_SelfRelationshipIgnored(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger()
	g := New(Config{Logger: logger})

	self := core.Relationship{SourceEntityID: "e-sales", TargetEntityID: "fact_sales"}
	p, err := g.Plan(Request{
		Entity:        entity(t, "fact_sales"),
		Entities:      model(),
		Relationships: []core.Relationship{self, brandToSales},
		Template:      htmlTemplate(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"load_dim_brand"}, p.Dependencies()["extract_fact_sales"])
	assert.True(t, logs.Contains("ignoring self relationship", "entity=fact_sales"))
	assert.Contains(t, p.Warnings, "ignoring self relationship e-sales -> fact_sales")
}

func TestPlan_StageSelection(t *testing.T) {
	g := newGenerator(t)

	t.Run("multi-entity template extracts and loads in one stage", func(t *testing.T) {
		tmpl := &core.Template{
			Name: "nabca-report",
			TablePatterns: []core.TablePattern{
				{Name: "brands", TargetEntity: "raw_nabca", RequiredHeaders: []string{"brand"}},
				{Name: "vendors", TargetEntity: "dim_vendor", RequiredHeaders: []string{"vendor"}},
			},
		}
		p, err := g.Plan(Request{Entity: entity(t, "fact_sales"), Entities: model(), Template: tmpl, SourceIDs: []string{"s1"}})
		require.NoError(t, err)
		assert.Equal(t, StageMultiEntity, p.Kind)
		require.Len(t, p.Stages, 1)
		spec, ok := p.Stages[0].Spec.(pipeline.MultiEntityExtraction)
		require.True(t, ok)
		assert.Equal(t, map[string]string{"dim_vendor": "vendors"}, spec.Tables)
		assert.Equal(t, []string{"s1"}, spec.SourceIDs)
		assert.Empty(t, p.Config.LoadAssets)
		assert.Empty(t, p.Config.TransformSQL)
	})

	t.Run("nabca section", func(t *testing.T) {
		e := entity(t, "raw_nabca")
		fields := []core.EntityField{
			{Name: "brand", DataType: core.DataTypeText, Metadata: core.FieldMetadata{NabcaSection: "brand summary"}},
			{Name: "cases", DataType: core.DataTypeInteger},
			{Name: "other", DataType: core.DataTypeText, Metadata: core.FieldMetadata{NabcaSection: "vendors"}},
		}
		tmpl := &core.Template{Name: "nabca", Sections: []core.Section{{Name: "Brand Summary", StartPage: 2, EndPage: 4}}}
		p, err := g.Plan(Request{Entity: e, Fields: fields, Entities: model(), Template: tmpl})
		require.NoError(t, err)
		assert.Equal(t, StageSection, p.Kind)
		spec := p.Stages[0].Spec.(pipeline.SectionExtraction)
		assert.Equal(t, "Brand Summary", spec.Section.Name)
		assert.Equal(t, []core.PatternField{{Name: "brand", Type: "text"}, {Name: "cases", Type: "numeric"}}, spec.Fields)
		assert.Equal(t, []string{"brand", "cases", "other"}, p.Stages[1].Spec.(pipeline.Load).Fields)
	})

	t.Run("section with a bad page range falls back to generic", func(t *testing.T) {
		fields := []core.EntityField{{Name: "brand", Metadata: core.FieldMetadata{NabcaSection: "s"}}}
		tmpl := &core.Template{Name: "nabca", Sections: []core.Section{{Name: "s", StartPage: 5, EndPage: 2}}}
		p, err := g.Plan(Request{Entity: entity(t, "raw_nabca"), Fields: fields, Template: tmpl})
		require.NoError(t, err)
		assert.Equal(t, StageGeneric, p.Kind)
	})

	t.Run("derived entity without template reads staging rows", func(t *testing.T) {
		p, err := g.Plan(Request{Entity: entity(t, "dim_brand"), Entities: model()})
		require.NoError(t, err)
		assert.Equal(t, StageStaging, p.Kind)
		spec := p.Stages[0].Spec.(pipeline.StagingExtraction)
		assert.Equal(t, "SELECT brand AS brand_name FROM raw_nabca GROUP BY brand", spec.SQL)
		assert.Equal(t, "INSERT INTO dim_brand (brand_name) SELECT brand AS brand_name FROM raw_nabca GROUP BY brand", p.Config.TransformSQL)
		assert.Equal(t, []string{"brand_name"}, p.Stages[2].Spec.(pipeline.Load).Fields)
	})

	t.Run("generic with strategy", func(t *testing.T) {
		p, err := g.Plan(Request{
			Entity:    entity(t, "raw_nabca"),
			Entities:  model(),
			Template:  htmlTemplate(),
			SourceIDs: []string{"s1", "s2"},
			Strategy:  pipeline.StrategyHybrid,
		})
		require.NoError(t, err)
		assert.Equal(t, StageGeneric, p.Kind)
		spec := p.Stages[0].Spec.(pipeline.GenericExtraction)
		assert.Equal(t, pipeline.StrategyHybrid, spec.Strategy)
		assert.Equal(t, []string{"s1", "s2"}, spec.SourceIDs)
		assert.Equal(t, "hybrid", p.Config.EntityModel.Strategy)
		assert.Equal(t, "generic", p.Config.EntityModel.StageKind)
	})
}

func TestPlan_TransformStage(t *testing.T) {
	p, err := newGenerator(t).Plan(Request{
		Entity:   entity(t, "fact_sales"),
		Entities: model(),
		Template: htmlTemplate(),
	})
	require.NoError(t, err)
	require.Len(t, p.Stages, 3)

	tr, ok := p.Stages[1].Spec.(pipeline.Transformation)
	require.True(t, ok)
	assert.Equal(t, core.EntityMaster, tr.Type)
	assert.Len(t, tr.Fields, 3)
	assert.Contains(t, p.Config.TransformSQL, "INSERT INTO fact_sales")

	load := p.Stages[2].Spec.(pipeline.Load)
	assert.Equal(t, "fact_sales", load.Table)
	assert.Equal(t, []string{"brand_id", "case_sales"}, load.Fields)
}

func TestPlan_GenericTransformReadsSourceColumns(t *testing.T) {
	p, err := newGenerator(t).Plan(Request{
		Entity:   entity(t, "fact_sales"),
		Entities: model(),
		Template: htmlTemplate(),
	})
	require.NoError(t, err)
	require.Equal(t, StageGeneric, p.Kind)
	assert.Contains(t, p.Warnings, "foreign key brand_id is not resolved by generic extraction")

	tr := p.Stages[1].Spec.(pipeline.Transformation)
	assert.Equal(t, map[string]string{"case_sales": "ytd_case_sales"}, tr.Sources)

	env := &pipeline.Env{Logger: testutil.NewTestLogger(t)}
	in := pipeline.Inputs{"extract_fact_sales": {Records: []core.Record{
		{"brand": "Tito's", "ytd_case_sales": "1,200"},
	}}}
	out, err := tr.Run(context.Background(), env, in)
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	got, ok := out.Records[0]["case_sales"].(decimal.Decimal)
	require.True(t, ok, "case_sales is read from its source column")
	assert.True(t, decimal.NewFromInt(1200).Equal(got))
}

func TestPlan_GenericColumnsMatchNothing(t *testing.T) {
	ledger := core.Entity{Name: "fact_ledger", Type: core.EntityMaster, Fields: []core.EntityField{
		{Name: "id", DataType: core.DataTypeInteger, PrimaryKey: true},
		{Name: "amount", DataType: core.DataTypeNumeric},
	}}
	p, err := newGenerator(t).Plan(Request{
		Entity:        ledger,
		Entities:      append(model(), ledger),
		Relationships: []core.Relationship{{SourceEntityID: "raw_nabca", TargetEntityID: "fact_ledger"}},
		Template:      htmlTemplate(),
	})
	require.NoError(t, err)
	assert.Contains(t, p.Warnings, "template fields brand, ytd_case_sales match no field of fact_ledger")
}

func TestPlan_Unreachable(t *testing.T) {
	orphan := core.Entity{Name: "fact_orphan", Type: core.EntityMaster, Fields: []core.EntityField{
		{Name: "id", PrimaryKey: true},
		{Name: "amount", Metadata: core.FieldMetadata{Source: "nowhere.amount"}},
	}}
	_, err := newGenerator(t).Plan(Request{Entity: orphan, Entities: model()})
	require.ErrorIs(t, err, ErrUnreachable)

	viaRelationship := core.Relationship{SourceEntityID: "raw_nabca", TargetEntityID: "fact_orphan"}
	_, err = newGenerator(t).Plan(Request{
		Entity:        orphan,
		Entities:      model(),
		Relationships: []core.Relationship{viaRelationship},
	})
	assert.NoError(t, err)
}

func TestPlan_TransitiveReachability(t *testing.T) {
	// fact_sales is fed by dim_brand, which is fed by raw_nabca.
	sales := core.Entity{Name: "fact_sales", Type: core.EntityMaster, Fields: []core.EntityField{{Name: "id", PrimaryKey: true}}}
	entities := []core.Entity{entity(t, "raw_nabca"), entity(t, "dim_brand"), sales}
	p, err := newGenerator(t).Plan(Request{
		Entity:        sales,
		Entities:      entities,
		Relationships: []core.Relationship{{SourceEntityID: "dim_brand", TargetEntityID: "fact_sales"}},
		Template:      htmlTemplate(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.Warnings)
	assert.Empty(t, p.Config.TransformSQL)
}

func TestPlan_InvalidRequests(t *testing.T) {
	g := newGenerator(t)
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{name: "no name", req: Request{Entity: core.Entity{Type: core.EntityInterim}}, want: "entity name is required"},
		{name: "bad type", req: Request{Entity: core.Entity{Name: "x", Type: "FACT"}}, want: `unknown type "FACT"`},
		{
			name: "bad strategy",
			req:  Request{Entity: core.Entity{Name: "x", Type: core.EntityInterim}, Strategy: "magic"},
			want: `unknown extraction strategy "magic"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Plan(tt.req)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestPlan_RunnableInProcess(t *testing.T) {
	p, err := newGenerator(t).Plan(Request{
		Entity:        entity(t, "fact_sales"),
		Entities:      model(),
		Relationships: []core.Relationship{brandToSales},
		Template:      htmlTemplate(),
	})
	require.NoError(t, err)

	levels, external, err := pipeline.Plan(p.Stages)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"extract_fact_sales"}, {"transform_fact_sales"}, {"load_fact_sales"}}, levels)
	assert.Equal(t, []string{"load_dim_brand"}, external)
}

func TestValidateDependencies(t *testing.T) {
	assert.NoError(t, validateDependencies(map[string][]string{"load_a": {"extract_a"}}))
	assert.ErrorContains(t, validateDependencies(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}), "cycle")
}

func TestEntityGraph(t *testing.T) {
	g := EntityGraph(model(), []core.Relationship{brandToSales}, testutil.NewTestLogger(t))

	levels, err := g.Levels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"dim_vendor", "raw_nabca"}, {"dim_brand"}, {"fact_sales"}}, levels)
	assert.ElementsMatch(t, []string{"dim_brand", "raw_nabca"}, g.Parents("fact_sales"))
	assert.Equal(t, 3, g.EdgeCount())
}
