package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/values"
)

// Load inserts its input records into the entity's table.
type Load struct {
	Entity string
	Table  string
	// Fields are the columns to insert. Empty means every key seen in the input.
	Fields           []string
	BatchSize        int
	QualityThreshold float64
}

var _ StageSpec = Load{}

// Kind implements StageSpec.
func (Load) Kind() Kind { return KindLoad }

// Run implements StageSpec.
func (l Load) Run(ctx context.Context, env *Env, in Inputs) (*Output, error) {
	logger := env.logger().With("stage", KindLoad, "entity", l.Entity)
	records := in.Records()
	out := &Output{Summary: Summary{Entity: l.Entity}}
	if len(records) == 0 {
		logger.Warn("nothing to load")
		return out, nil
	}

	db, err := env.warehouse(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer closeQuietly(logger, "warehouse", db)

	table := l.Table
	if table == "" {
		table = l.Entity
	}
	columns := l.Fields
	if len(columns) == 0 {
		columns = recordColumns(records)
	}

	ld := loader{
		env:       env,
		logger:    logger,
		entity:    l.Entity,
		batchSize: l.BatchSize,
		threshold: l.QualityThreshold,
	}
	out.Summary.RecordsLoaded, out.Summary.RecordsFailed, err = ld.load(ctx, db, table, columns, records)
	out.Records = records
	return out, err
}

// loader batches cleaned records into a table.
type loader struct {
	env       *Env
	logger    *slog.Logger
	entity    string
	batchSize int
	threshold float64
}

// load inserts records in batches. A failed batch is retried one record at
// a time so a bad row costs only itself. It returns the loaded and failed
// counts; the error is reserved for context cancellation.
func (l loader) load(ctx context.Context, db core.Adapter, table string, columns []string, records []core.Record) (int, int, error) {
	size := l.batchSize
	if size <= 0 {
		size = l.env.Settings.batchSize()
	}
	threshold := l.threshold
	if threshold <= 0 {
		threshold = l.env.Settings.qualityThreshold()
	}

	rows := make([][]any, len(records))
	for i, r := range records {
		row := make([]any, len(columns))
		for j, c := range columns {
			row[j] = values.Clean(r[c])
		}
		rows[i] = row
	}

	var loaded, failed int
	for start := 0; start < len(rows); start += size {
		if err := ctx.Err(); err != nil {
			return loaded, failed, err
		}
		end := min(start+size, len(rows))
		batch := rows[start:end]

		err := db.InsertBatch(ctx, table, columns, batch)
		if err == nil {
			loaded += len(batch)
			l.logger.Debug("loaded batch", "table", table, "rows", len(batch))
			continue
		}

		l.logger.Warn("batch insert failed, retrying per record", "table", table, "rows", len(batch), "error", err)
		for i, row := range batch {
			if err := db.Insert(ctx, table, columns, row); err != nil {
				failed++
				l.logger.Warn("record insert failed", "table", table, "record", start+i, "error", err)
				continue
			}
			loaded++
		}
	}

	l.env.Metrics.Records(l.entity, "loaded", loaded)
	l.env.Metrics.Records(l.entity, "failed", failed)

	total := loaded + failed
	if total > 0 {
		rate := float64(loaded) / float64(total)
		if rate < threshold {
			l.logger.Warn("load success rate below threshold",
				"table", table, "loaded", loaded, "failed", failed,
				"rate", rate, "threshold", threshold)
		}
	}
	l.logger.Info("load complete", "table", table, "loaded", loaded, "failed", failed)
	return loaded, failed, nil
}

// recordColumns returns the sorted union of record keys.
func recordColumns(records []core.Record) []string {
	seen := make(map[string]bool)
	for _, r := range records {
		for k := range r {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
