package commands

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/inspector/internal/cli/output"
	"github.com/leapstack-labs/inspector/internal/cli/testutil"
	"github.com/leapstack-labs/inspector/internal/codegen"
	"github.com/leapstack-labs/inspector/pkg/core"
)

func salesGraph(t *testing.T) (GraphQuerier, [][]string, func(string) core.EntityType) {
	t.Helper()
	entities := []core.Entity{
		{ID: "e-raw", Name: "raw_nabca", Type: core.EntityInterim},
		{ID: "e-brand", Name: "dim_brand", Type: core.EntityReference},
		{ID: "e-sales", Name: "fact_sales", Type: core.EntityMaster, Fields: []core.EntityField{
			{Name: "cases", Metadata: core.FieldMetadata{Source: "raw_nabca.ytd_case_sales"}},
		}},
	}
	rels := []core.Relationship{
		{SourceEntityID: "e-raw", TargetEntityID: "e-brand"},
		{SourceEntityID: "e-brand", TargetEntityID: "e-sales"},
	}
	graph := codegen.EntityGraph(entities, rels, slog.New(slog.DiscardHandler))
	levels, err := graph.Levels()
	require.NoError(t, err)
	typeOf := func(name string) core.EntityType {
		if n, ok := graph.Node(name); ok {
			return n.Data.Type
		}
		return ""
	}
	return graph, levels, typeOf
}

func TestDAGMarkdown(t *testing.T) {
	graph, levels, typeOf := salesGraph(t)
	tr := testutil.NewTestRenderer(output.ModeMarkdown, false)

	dagMarkdown(tr.Renderer, graph, levels, typeOf)

	out := tr.Output()
	testutil.AssertValidMarkdown(t, out)
	testutil.AssertNoANSI(t, out)
	assert.Contains(t, out, "# Entity Graph")
	assert.Contains(t, out, "## Level 0 (Sources)")
	assert.Contains(t, out, "- raw_nabca (INTERIM)")
	assert.Contains(t, out, "- **Total Entities:** 3")
	assert.Contains(t, out, "- **Total Dependencies:** 3")
}

func TestDAGText(t *testing.T) {
	graph, levels, typeOf := salesGraph(t)
	tr := testutil.NewTestRenderer(output.ModeText, false)

	dagText(tr.Renderer, graph, levels, typeOf)

	out := tr.Output()
	testutil.AssertNoANSI(t, out)
	assert.Contains(t, out, "Level 2:")
	assert.Contains(t, out, "fact_sales (MASTER)")
	assert.Contains(t, out, "Total: 3 entities, 3 dependencies")
}

func TestDAGJSON(t *testing.T) {
	graph, levels, typeOf := salesGraph(t)
	tr := testutil.NewTestRenderer(output.ModeJSON, false)

	require.NoError(t, dagJSON(tr.Renderer, graph, levels, typeOf))

	var out DAGOutput
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &out))
	assert.Equal(t, 3, out.TotalEntities)
	require.Len(t, out.Levels, 3)
	assert.Equal(t, "raw_nabca", out.Levels[0].Entities[0].Name)
	assert.Empty(t, out.Levels[0].Entities[0].DependsOn)
	assert.NotNil(t, out.Levels[0].Entities[0].DependsOn)
	assert.ElementsMatch(t, []string{"dim_brand", "raw_nabca"}, out.Levels[2].Entities[0].DependsOn)
}
