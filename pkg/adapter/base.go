package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"

	"github.com/leapstack-labs/inspector/pkg/core"
)

// ErrNotConnected is returned when an adapter is used before Connect.
var ErrNotConnected = errors.New("database connection not established")

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, Query, Insert and InsertBatch implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    core.AdapterConfig
	Logger *slog.Logger
	// Placeholder is the bind-variable style of the driver. Defaults to "?".
	Placeholder sq.PlaceholderFormat
}

func (b *BaseSQLAdapter) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

func (b *BaseSQLAdapter) builder() sq.StatementBuilderType {
	ph := b.Placeholder
	if ph == nil {
		ph = sq.Question
	}
	return sq.StatementBuilder.PlaceholderFormat(ph)
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		b.logger().Debug("closing database connection")
		return b.DB.Close()
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string, args ...any) (int64, error) {
	if b.DB == nil {
		return 0, ErrNotConnected
	}
	res, err := b.DB.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute SQL: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Query executes a SQL statement and scans every row into a record.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string, args ...any) ([]core.Record, error) {
	if b.DB == nil {
		return nil, ErrNotConnected
	}
	rows, err := b.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return ScanRecords(rows)
}

// ScanRecords reads all rows into records keyed by column name.
func ScanRecords(rows *sql.Rows) ([]core.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []core.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec := make(core.Record, len(cols))
		for i, c := range cols {
			if bs, ok := vals[i].([]byte); ok {
				rec[c] = string(bs)
				continue
			}
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// InsertBatch inserts rows with one multi-row INSERT statement.
func (b *BaseSQLAdapter) InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) error {
	if b.DB == nil {
		return ErrNotConnected
	}
	if len(rows) == 0 {
		return nil
	}
	ins := b.builder().Insert(table).Columns(columns...)
	for _, r := range rows {
		if len(r) != len(columns) {
			return fmt.Errorf("row has %d values for %d columns", len(r), len(columns))
		}
		ins = ins.Values(r...)
	}
	query, args, err := ins.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := b.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %d rows into %s: %w", len(rows), table, err)
	}
	return nil
}

// Insert inserts a single row.
func (b *BaseSQLAdapter) Insert(ctx context.Context, table string, columns []string, row []any) error {
	return b.InsertBatch(ctx, table, columns, [][]any{row})
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}
