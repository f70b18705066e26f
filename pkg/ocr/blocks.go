// Package ocr turns the output of a table-recognition service into tables and
// text lines, and drives the service's poll-until-complete job protocol.
package ocr

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Block types emitted by the recognition service.
const (
	BlockPage             = "PAGE"
	BlockLine             = "LINE"
	BlockWord             = "WORD"
	BlockTable            = "TABLE"
	BlockCell             = "CELL"
	BlockMergedCell       = "MERGED_CELL"
	BlockSelectionElement = "SELECTION_ELEMENT"
)

// RelationshipChild links a block to the blocks it contains.
const RelationshipChild = "CHILD"

// Block is one element of a document analysis.
type Block struct {
	ID              string         `json:"Id"`
	BlockType       string         `json:"BlockType"`
	Text            string         `json:"Text,omitempty"`
	RowIndex        int            `json:"RowIndex,omitempty"`
	ColumnIndex     int            `json:"ColumnIndex,omitempty"`
	RowSpan         int            `json:"RowSpan,omitempty"`
	ColumnSpan      int            `json:"ColumnSpan,omitempty"`
	Page            int            `json:"Page,omitempty"`
	SelectionStatus string         `json:"SelectionStatus,omitempty"`
	Relationships   []Relationship `json:"Relationships,omitempty"`
}

// Relationship connects a block to other blocks by id.
type Relationship struct {
	Type string   `json:"Type"`
	IDs  []string `json:"Ids"`
}

// Children returns the ids of the block's CHILD relationships.
func (b Block) Children() []string {
	var ids []string
	for _, r := range b.Relationships {
		if r.Type == RelationshipChild {
			ids = append(ids, r.IDs...)
		}
	}
	return ids
}

// Table is a recognized table with its cell text in row-major order.
type Table struct {
	Index int        `json:"index"`
	Page  int        `json:"page"`
	Rows  [][]string `json:"rows"`
}

// ColumnCount returns the width of the widest row.
func (t Table) ColumnCount() int {
	n := 0
	for _, r := range t.Rows {
		if len(r) > n {
			n = len(r)
		}
	}
	return n
}

// Line is one line of text with the page it was found on.
type Line struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Analysis is the complete result of analyzing one document.
type Analysis struct {
	JobID  string  `json:"job_id,omitempty"`
	Pages  int     `json:"pages"`
	Blocks []Block `json:"-"`
	Tables []Table `json:"tables"`
	Lines  []Line  `json:"lines"`
}

// NewAnalysis builds tables and lines from raw blocks.
func NewAnalysis(jobID string, blocks []Block) *Analysis {
	a := &Analysis{
		JobID:  jobID,
		Blocks: blocks,
		Tables: ParseTables(blocks),
		Lines:  ParseLines(blocks),
	}
	for _, b := range blocks {
		if b.Page > a.Pages {
			a.Pages = b.Page
		}
	}
	return a
}

// Text returns every line of the document joined by newlines.
func (a *Analysis) Text() string {
	var sb strings.Builder
	for i, l := range a.Lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(l.Text)
	}
	return sb.String()
}

// LinesOnPage returns the text lines of one page.
func (a *Analysis) LinesOnPage(page int) []string {
	var out []string
	for _, l := range a.Lines {
		if l.Page == page {
			out = append(out, l.Text)
		}
	}
	return out
}

// TablesInRange returns tables whose page is within [start, end].
func (a *Analysis) TablesInRange(start, end int) []Table {
	var out []Table
	for _, t := range a.Tables {
		if t.Page >= start && t.Page <= end {
			out = append(out, t)
		}
	}
	return out
}

// ParseTables assembles TABLE blocks into row-major grids. Cell text is the
// space-joined text of the cell's WORD children.
func ParseTables(blocks []Block) []Table {
	byID := make(map[string]Block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}

	var tables []Table
	for _, b := range blocks {
		if b.BlockType != BlockTable {
			continue
		}

		type cell struct {
			row, col int
			text     string
		}
		var cells []cell
		maxRow, maxCol := 0, 0
		for _, id := range b.Children() {
			c, ok := byID[id]
			if !ok || c.BlockType != BlockCell {
				continue
			}
			cells = append(cells, cell{row: c.RowIndex, col: c.ColumnIndex, text: cellText(c, byID)})
			if c.RowIndex > maxRow {
				maxRow = c.RowIndex
			}
			if c.ColumnIndex > maxCol {
				maxCol = c.ColumnIndex
			}
		}
		if maxRow == 0 || maxCol == 0 {
			continue
		}

		rows := make([][]string, maxRow)
		for i := range rows {
			rows[i] = make([]string, maxCol)
		}
		for _, c := range cells {
			if c.row < 1 || c.col < 1 {
				continue
			}
			rows[c.row-1][c.col-1] = c.text
		}

		tables = append(tables, Table{Index: len(tables), Page: pageOf(b), Rows: rows})
	}
	return tables
}

func cellText(c Block, byID map[string]Block) string {
	var words []string
	for _, id := range c.Children() {
		w, ok := byID[id]
		if !ok {
			continue
		}
		switch w.BlockType {
		case BlockWord:
			words = append(words, w.Text)
		case BlockSelectionElement:
			if w.SelectionStatus == "SELECTED" {
				words = append(words, "X")
			}
		}
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

// ParseLines returns LINE blocks in document order.
func ParseLines(blocks []Block) []Line {
	var lines []Line
	for _, b := range blocks {
		if b.BlockType == BlockLine && strings.TrimSpace(b.Text) != "" {
			lines = append(lines, Line{Page: pageOf(b), Text: b.Text})
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Page < lines[j].Page })
	return lines
}

func pageOf(b Block) int {
	if b.Page == 0 {
		return 1
	}
	return b.Page
}

// ParseBlocksJSON decodes a saved analysis: either {"Blocks": [...]} as the
// service returns it, or a bare array of blocks.
func ParseBlocksJSON(data []byte) (*Analysis, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var blocks []Block
		if err := json.Unmarshal(data, &blocks); err != nil {
			return nil, fmt.Errorf("failed to decode blocks: %w", err)
		}
		return NewAnalysis("", blocks), nil
	}

	var doc struct {
		JobID  string  `json:"JobId"`
		Blocks []Block `json:"Blocks"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return NewAnalysis(doc.JobID, doc.Blocks), nil
}
