package adapter

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/inspector/pkg/core"
)

func newMockBase(t *testing.T) (*BaseSQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &BaseSQLAdapter{DB: db}, mock
}

func TestBaseSQLAdapter_Close(t *testing.T) {
	tests := []struct {
		name    string
		setupDB bool
	}{
		{name: "close with nil DB", setupDB: false},
		{name: "close with open DB", setupDB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectClose()
				base.DB = db
			}

			assert.NoError(t, base.Close())
		})
	}
}

func TestBaseSQLAdapter_Exec(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		setupMock func(mock sqlmock.Sqlmock)
		sql       string
		want      int64
		errMsg    string
	}{
		{
			name:    "exec without connection",
			setupDB: false,
			sql:     "SELECT 1",
			errMsg:  "database connection not established",
		},
		{
			name:    "exec reports affected rows",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO dim_brand").WillReturnResult(sqlmock.NewResult(0, 3))
			},
			sql:  "INSERT INTO dim_brand SELECT 1",
			want: 3,
		},
		{
			name:    "exec with error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INVALID SQL").WillReturnError(assert.AnError)
			},
			sql:    "INVALID SQL",
			errMsg: "failed to execute SQL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}
			if tt.setupDB {
				var mock sqlmock.Sqlmock
				base, mock = newMockBase(t)
				tt.setupMock(mock)
			}

			n, err := base.Exec(context.Background(), tt.sql)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestBaseSQLAdapter_Query(t *testing.T) {
	base, mock := newMockBase(t)
	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), []byte("alice")).
		AddRow(int64(2), "bob")
	mock.ExpectQuery("SELECT id, name FROM users WHERE id > ?").WithArgs(0).WillReturnRows(rows)

	recs, err := base.Query(context.Background(), "SELECT id, name FROM users WHERE id > ?", 0)
	require.NoError(t, err)
	assert.Equal(t, []core.Record{
		{"id": int64(1), "name": "alice"},
		{"id": int64(2), "name": "bob"},
	}, recs)

	mock.ExpectQuery("INVALID").WillReturnError(assert.AnError)
	_, err = base.Query(context.Background(), "INVALID SQL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute query")

	_, err = (&BaseSQLAdapter{}).Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestBaseSQLAdapter_InsertBatch(t *testing.T) {
	base, mock := newMockBase(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO raw_orders (id,total) VALUES (?,?),(?,?)")).
		WithArgs("a", 1.5, "b", nil).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := base.InsertBatch(context.Background(), "raw_orders", []string{"id", "total"},
		[][]any{{"a", 1.5}, {"b", nil}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_InsertBatchDollar(t *testing.T) {
	base, mock := newMockBase(t)
	base.Placeholder = sq.Dollar
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO t (a) VALUES ($1)")).
		WithArgs("x").
		WillReturnError(assert.AnError)

	err := base.Insert(context.Background(), "t", []string{"a"}, []any{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert 1 rows into t")
}

func TestBaseSQLAdapter_InsertBatchValidation(t *testing.T) {
	base, _ := newMockBase(t)

	assert.NoError(t, base.InsertBatch(context.Background(), "t", []string{"a"}, nil))

	err := base.InsertBatch(context.Background(), "t", []string{"a", "b"}, [][]any{{"only"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row has 1 values for 2 columns")

	err = (&BaseSQLAdapter{}).InsertBatch(context.Background(), "t", []string{"a"}, [][]any{{1}})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestBaseSQLAdapter_IsConnected(t *testing.T) {
	assert.False(t, (&BaseSQLAdapter{}).IsConnected())
	base, _ := newMockBase(t)
	assert.True(t, base.IsConnected())
}
