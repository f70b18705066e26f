package adapter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/inspector/pkg/adapter"
	"github.com/leapstack-labs/inspector/pkg/core"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/inspector/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/inspector/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/inspector/pkg/adapters/sqlite"
)

func TestListAdapters(t *testing.T) {
	adapters := adapter.ListAdapters()

	assert.Contains(t, adapters, "duckdb", "duckdb should be in adapter list")
	assert.Contains(t, adapters, "postgres", "postgres should be in adapter list")
	assert.Contains(t, adapters, "sqlite", "sqlite should be in adapter list")
}

func TestIsRegistered(t *testing.T) {
	tests := []struct {
		name        string
		adapterName string
		expected    bool
	}{
		{"duckdb registered", "duckdb", true},
		{"postgres registered", "postgres", true},
		{"sqlite registered", "sqlite", true},
		{"postgres alias", "postgresql", true},
		{"sqlite alias", "sqlite3", true},
		{"unknown not registered", "unknown_db", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adapter.IsRegistered(tt.adapterName)
			assert.Equal(t, tt.expected, got, "IsRegistered(%q)", tt.adapterName)
		})
	}
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	adp, err := adapter.Open(ctx, core.AdapterConfig{Type: "sqlite", Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer func() { _ = adp.Close() }()

	_, err = adp.Exec(ctx, "CREATE TABLE raw_orders (id TEXT, total REAL)")
	require.NoError(t, err)
	require.NoError(t, adp.InsertBatch(ctx, "raw_orders", []string{"id", "total"}, [][]any{{"a", 1.5}, {"b", 2.0}}))

	recs, err := adp.Query(ctx, "SELECT id FROM raw_orders ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []core.Record{{"id": "a"}, {"id": "b"}}, recs)
}

func TestNewAdapter_UnknownType(t *testing.T) {
	cfg := core.AdapterConfig{
		Type: "unknown_adapter",
	}

	_, err := adapter.NewAdapter(cfg, nil)
	require.Error(t, err, "NewAdapter(unknown_adapter) should fail")

	var unknownErr *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &unknownErr)

	assert.Equal(t, "unknown_adapter", unknownErr.Type, "error type")
	assert.Contains(t, unknownErr.Available, "sqlite", "Available adapters should include sqlite")
}
