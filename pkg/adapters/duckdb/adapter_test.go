package duckdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/inspector/pkg/adapter"
	"github.com/leapstack-labs/inspector/pkg/core"
)

func TestParseParams(t *testing.T) {
	p := ParseParams(map[string]string{
		"extensions":       "httpfs, json,",
		"set.memory_limit": "4GB",
		"set.threads":      "4",
		"ignored":          "x",
	})
	assert.Equal(t, []string{"httpfs", "json"}, p.Extensions)
	assert.Equal(t, []string{
		"INSTALL httpfs", "LOAD httpfs",
		"INSTALL json", "LOAD json",
		"SET memory_limit = '4GB'",
		"SET threads = '4'",
	}, p.Statements())

	assert.Empty(t, ParseParams(nil).Statements())
}

func TestAdapter_NotConnected(t *testing.T) {
	a := New(nil)
	assert.Equal(t, "duckdb", a.DialectName())

	_, err := a.Exec(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, adapter.ErrNotConnected)
}

func TestAdapter_InsertAndQuery(t *testing.T) {
	ctx := context.Background()
	a := New(nil)
	require.NoError(t, a.Connect(ctx, adapter.Config{Path: ":memory:", Options: map[string]string{"set.threads": "1"}}))
	defer func() { _ = a.Close() }()

	_, err := a.Exec(ctx, "CREATE TABLE dim_brand (brand_name VARCHAR, category VARCHAR)")
	require.NoError(t, err)

	require.NoError(t, a.InsertBatch(ctx, "dim_brand", []string{"brand_name", "category"}, [][]any{
		{"Tito's", "Vodka"},
		{"Absolut", nil},
	}))
	require.NoError(t, a.Insert(ctx, "dim_brand", []string{"brand_name", "category"}, []any{"Jameson", "Whiskey"}))

	recs, err := a.Query(ctx, "SELECT brand_name FROM dim_brand WHERE category IS NOT NULL ORDER BY brand_name")
	require.NoError(t, err)
	assert.Equal(t, []core.Record{{"brand_name": "Jameson"}, {"brand_name": "Tito's"}}, recs)
}
