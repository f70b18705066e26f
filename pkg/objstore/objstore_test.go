package objstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_RoundTrip(t *testing.T) {
	ctx := context.Background()
	d := NewDir(t.TempDir())

	require.NoError(t, d.PutObject(ctx, "docs", "2024/jan/report.pdf", []byte("pdf"), "application/pdf"))
	require.NoError(t, d.PutObject(ctx, "docs", "2024/jan/notes.txt", []byte("txt"), "text/plain"))
	require.NoError(t, d.PutObject(ctx, "docs", "2023/old.pdf", []byte("old"), "application/pdf"))

	data, err := d.GetObject(ctx, "docs", "2024/jan/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(data))

	_, err = d.GetObject(ctx, "docs", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	objs, err := d.ListObjects(ctx, "docs", "2024/", `\.pdf$`, 0)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "2024/jan/report.pdf", objs[0].Key)
	assert.Equal(t, int64(3), objs[0].Size)

	objs, err = d.ListObjects(ctx, "docs", "", "", 2)
	require.NoError(t, err)
	assert.Len(t, objs, 2)

	objs, err = d.ListObjects(ctx, "nobucket", "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestMatcher(t *testing.T) {
	m, err := Matcher(`^report_\d+\.pdf$`)
	require.NoError(t, err)
	assert.True(t, m("a/b/report_12.pdf"))
	assert.False(t, m("report_x.pdf"))

	_, err = Matcher("(")
	assert.Error(t, err)
}
