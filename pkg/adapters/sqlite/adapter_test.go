package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/inspector/internal/testutil"
	"github.com/leapstack-labs/inspector/pkg/adapter"
	"github.com/leapstack-labs/inspector/pkg/core"
)

func TestAdapter_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "warehouse.db")

	a := New(testutil.NewTestLogger(t))
	require.NoError(t, a.Connect(ctx, adapter.Config{Path: path}))

	_, err := a.Exec(ctx, "CREATE TABLE raw_invoice (invoice_number TEXT, total REAL)")
	require.NoError(t, err)
	require.NoError(t, a.InsertBatch(ctx, "raw_invoice", []string{"invoice_number", "total"}, [][]any{
		{"INV-1", 10.5},
		{"INV-2", nil},
	}))
	require.NoError(t, a.Close())

	b := New(nil)
	require.NoError(t, b.Connect(ctx, adapter.Config{Path: path}))
	defer func() { _ = b.Close() }()

	recs, err := b.Query(ctx, "SELECT invoice_number, total FROM raw_invoice ORDER BY invoice_number")
	require.NoError(t, err)
	assert.Equal(t, []core.Record{
		{"invoice_number": "INV-1", "total": 10.5},
		{"invoice_number": "INV-2", "total": nil},
	}, recs)

	n, err := b.Exec(ctx, "DELETE FROM raw_invoice WHERE total IS NULL")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAdapter_InsertFailure(t *testing.T) {
	ctx := context.Background()
	a := New(nil)
	require.NoError(t, a.Connect(ctx, adapter.Config{}))
	defer func() { _ = a.Close() }()

	err := a.Insert(ctx, "missing_table", []string{"a"}, []any{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert 1 rows into missing_table")
}
