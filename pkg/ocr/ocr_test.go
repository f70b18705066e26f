package ocr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func child(ids ...string) []Relationship {
	return []Relationship{{Type: RelationshipChild, IDs: ids}}
}

func sampleBlocks() []Block {
	return []Block{
		{ID: "p1", BlockType: BlockPage, Page: 1},
		{ID: "l1", BlockType: BlockLine, Text: "BRAND SUMMARY", Page: 1},
		{ID: "t1", BlockType: BlockTable, Page: 1, Relationships: child("c11", "c12", "c21", "c22")},
		{ID: "c11", BlockType: BlockCell, RowIndex: 1, ColumnIndex: 1, Relationships: child("w1")},
		{ID: "c12", BlockType: BlockCell, RowIndex: 1, ColumnIndex: 2, Relationships: child("w2", "w3")},
		{ID: "c21", BlockType: BlockCell, RowIndex: 2, ColumnIndex: 1, Relationships: child("w4")},
		{ID: "c22", BlockType: BlockCell, RowIndex: 2, ColumnIndex: 2},
		{ID: "w1", BlockType: BlockWord, Text: "Brand"},
		{ID: "w2", BlockType: BlockWord, Text: "Case"},
		{ID: "w3", BlockType: BlockWord, Text: "Sales"},
		{ID: "w4", BlockType: BlockWord, Text: "Tito's"},
		{ID: "l2", BlockType: BlockLine, Text: "continued", Page: 2},
	}
}

func TestParseTables(t *testing.T) {
	tables := ParseTables(sampleBlocks())
	require.Len(t, tables, 1)
	assert.Equal(t, 1, tables[0].Page)
	assert.Equal(t, [][]string{{"Brand", "Case Sales"}, {"Tito's", ""}}, tables[0].Rows)
	assert.Equal(t, 2, tables[0].ColumnCount())
}

func TestNewAnalysis(t *testing.T) {
	a := NewAnalysis("j", sampleBlocks())
	assert.Equal(t, 2, a.Pages)
	assert.Equal(t, "BRAND SUMMARY\ncontinued", a.Text())
	assert.Equal(t, []string{"continued"}, a.LinesOnPage(2))
	assert.Len(t, a.TablesInRange(1, 1), 1)
	assert.Empty(t, a.TablesInRange(2, 3))
}

func TestParseBlocksJSON(t *testing.T) {
	obj := `{"JobId":"abc","Blocks":[{"Id":"l","BlockType":"LINE","Text":"hello","Page":1}]}`
	a, err := ParseBlocksJSON([]byte(obj))
	require.NoError(t, err)
	assert.Equal(t, "abc", a.JobID)
	assert.Equal(t, "hello", a.Text())

	arr := `[{"Id":"l","BlockType":"LINE","Text":"bare"}]`
	a, err = ParseBlocksJSON([]byte(arr))
	require.NoError(t, err)
	assert.Equal(t, "bare", a.Text())

	_, err = ParseBlocksJSON([]byte("{"))
	assert.Error(t, err)
}

type scriptedRecognizer struct {
	statuses []JobStatus
	polls    int
	message  string
}

func (s *scriptedRecognizer) Start(context.Context, DocumentRef) (string, error) {
	return "job", nil
}

func (s *scriptedRecognizer) Fetch(_ context.Context, _ string, next string) (*Page, error) {
	if next == "more" {
		return &Page{Status: StatusSucceeded, Blocks: []Block{{ID: "x", BlockType: BlockLine, Text: "second"}}}, nil
	}
	i := s.polls
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.polls++
	p := &Page{Status: s.statuses[i], StatusMessage: s.message}
	if p.Status == StatusSucceeded {
		p.Blocks = []Block{{ID: "y", BlockType: BlockLine, Text: "first"}}
		p.NextToken = "more"
	}
	return p, nil
}

func TestAnalyze(t *testing.T) {
	opts := Options{PollInterval: time.Millisecond, MaxWait: time.Second}

	t.Run("polls until complete and follows pages", func(t *testing.T) {
		rec := &scriptedRecognizer{statuses: []JobStatus{StatusInProgress, StatusInProgress, StatusSucceeded}}
		a, err := Analyze(context.Background(), rec, DocumentRef{}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, rec.polls)
		assert.Equal(t, "first\nsecond", a.Text())
	})

	t.Run("failed job", func(t *testing.T) {
		rec := &scriptedRecognizer{statuses: []JobStatus{StatusFailed}, message: "bad pdf"}
		_, err := Analyze(context.Background(), rec, DocumentRef{}, opts)
		var jobErr *JobError
		require.ErrorAs(t, err, &jobErr)
		assert.Equal(t, "bad pdf", jobErr.Message)
	})

	t.Run("timeout", func(t *testing.T) {
		rec := &scriptedRecognizer{statuses: []JobStatus{StatusInProgress}}
		_, err := Analyze(context.Background(), rec, DocumentRef{},
			Options{PollInterval: 5 * time.Millisecond, MaxWait: 20 * time.Millisecond})
		assert.True(t, errors.Is(err, ErrTimeout))
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rec := &scriptedRecognizer{statuses: []JobStatus{StatusInProgress}}
		_, err := Analyze(ctx, rec, DocumentRef{}, Options{PollInterval: time.Second, MaxWait: time.Minute})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
