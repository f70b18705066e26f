package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/inspector/internal/testutil"
	"github.com/leapstack-labs/inspector/pkg/adapter"
	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/objstore"
	"github.com/leapstack-labs/inspector/pkg/ocr"
)

var catalogDDL = []string{
	`CREATE TABLE sources (id TEXT PRIMARY KEY, name TEXT, source_type TEXT, configuration TEXT)`,
	`CREATE TABLE artifacts (
		id TEXT PRIMARY KEY, source_id TEXT, filename TEXT, mime_type TEXT,
		s3_bucket TEXT, s3_key TEXT, raw_content TEXT, extraction_status TEXT)`,
}

// testEnv is an Env over a sqlite file warehouse and a directory store.
type testEnv struct {
	*Env
	dbPath string
	root   string
	rec    *fakeRecognizer
	logs   *testutil.LogBuffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	te := &testEnv{
		dbPath: filepath.Join(dir, "warehouse.db"),
		root:   filepath.Join(dir, "store"),
		rec:    &fakeRecognizer{},
	}
	logger, logs := testutil.NewCaptureLogger()
	te.logs = logs

	metrics, err := NewMetrics()
	require.NoError(t, err)

	te.Env = &Env{
		Logger: logger,
		Settings: Settings{
			StagingBucket: "staging",
			OCR:           ocr.Options{PollInterval: time.Millisecond, MaxWait: time.Second},
		},
		Metrics: metrics,
		OpenWarehouse: func(ctx context.Context) (core.Adapter, error) {
			return adapter.Open(ctx, core.AdapterConfig{Type: "sqlite", Path: te.dbPath}, nil)
		},
		OpenStore: func(context.Context) (objstore.Store, error) {
			return objstore.NewDir(te.root), nil
		},
		OpenRecognizer: func(context.Context) (ocr.Recognizer, error) {
			return te.rec, nil
		},
	}
	for _, ddl := range catalogDDL {
		te.exec(t, ddl)
	}
	t.Cleanup(func() {
		if t.Failed() {
			t.Log(logs.String())
		}
	})
	return te
}

func (te *testEnv) exec(t *testing.T, sql string, args ...any) {
	t.Helper()
	ctx := context.Background()
	db, err := te.OpenWarehouse(ctx)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	_, err = db.Exec(ctx, sql, args...)
	require.NoError(t, err)
}

func (te *testEnv) query(t *testing.T, sql string) []core.Record {
	t.Helper()
	ctx := context.Background()
	db, err := te.OpenWarehouse(ctx)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	rows, err := db.Query(ctx, sql)
	require.NoError(t, err)
	return rows
}

func (te *testEnv) source(t *testing.T, id, kind, configuration string) {
	t.Helper()
	te.exec(t, `INSERT INTO sources (id, name, source_type, configuration) VALUES (?, ?, ?, ?)`,
		id, "source "+id, kind, configuration)
}

func (te *testEnv) upload(t *testing.T, id, sourceID, filename, content, status string) {
	t.Helper()
	te.exec(t, `INSERT INTO artifacts (id, source_id, filename, mime_type, s3_bucket, s3_key, raw_content, extraction_status)
		VALUES (?, ?, ?, '', '', '', ?, ?)`, id, sourceID, filename, content, status)
}

func (te *testEnv) writeObject(t *testing.T, bucket, key, content string) {
	t.Helper()
	p := filepath.Join(te.root, bucket, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

// fakeRecognizer completes every job at once with fixed blocks.
type fakeRecognizer struct {
	mu     sync.Mutex
	refs   []ocr.DocumentRef
	blocks []ocr.Block
}

func (f *fakeRecognizer) Start(_ context.Context, ref ocr.DocumentRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, ref)
	return fmt.Sprintf("job-%d", len(f.refs)), nil
}

func (f *fakeRecognizer) Fetch(context.Context, string, string) (*ocr.Page, error) {
	return &ocr.Page{Status: ocr.StatusSucceeded, Blocks: f.blocks}, nil
}

// tableBlocks renders rows as one OCR table on a page, with a title line.
func tableBlocks(prefix string, page int, title string, rows [][]string) []ocr.Block {
	blocks := []ocr.Block{{ID: prefix + "-title", BlockType: ocr.BlockLine, Text: title, Page: page}}
	table := ocr.Block{ID: prefix + "-table", BlockType: ocr.BlockTable, Page: page}
	var cells []string
	for r, row := range rows {
		for c, text := range row {
			cellID := fmt.Sprintf("%s-c%d-%d", prefix, r, c)
			wordID := cellID + "-w"
			cells = append(cells, cellID)
			blocks = append(blocks,
				ocr.Block{
					ID: cellID, BlockType: ocr.BlockCell, Page: page,
					RowIndex: r + 1, ColumnIndex: c + 1,
					Relationships: []ocr.Relationship{{Type: ocr.RelationshipChild, IDs: []string{wordID}}},
				},
				ocr.Block{ID: wordID, BlockType: ocr.BlockWord, Text: text, Page: page},
			)
		}
	}
	table.Relationships = []ocr.Relationship{{Type: ocr.RelationshipChild, IDs: cells}}
	return append(blocks, table)
}

// fakeAI returns a fixed record and remembers what it was sent.
type fakeAI struct {
	mu     sync.Mutex
	record core.Record
	err    error
	inputs []AIInput
}

func (f *fakeAI) ExtractAI(_ context.Context, input AIInput, _ string, _ *core.Template) (core.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	out := make(core.Record, len(f.record))
	for k, v := range f.record {
		out[k] = v
	}
	return out, nil
}
