package core

import (
	"context"
)

// Record is one row of extracted or loaded data keyed by column name.
type Record map[string]any

// Adapter defines the interface that all destination store adapters must implement.
type Adapter interface {
	// Connect establishes a connection to the database.
	Connect(ctx context.Context, cfg AdapterConfig) error

	// Close closes the database connection.
	Close() error

	// DialectName returns the SQL dialect spoken by the adapter.
	DialectName() string

	// Exec executes a SQL statement that doesn't return rows and reports affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Query executes a SQL statement and returns all rows as records.
	Query(ctx context.Context, sql string, args ...any) ([]Record, error)

	// InsertBatch inserts many rows into a table in one statement.
	InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) error

	// Insert inserts a single row into a table.
	Insert(ctx context.Context, table string, columns []string, row []any) error
}

// AdapterConfig holds configuration for connecting to a database.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
}
