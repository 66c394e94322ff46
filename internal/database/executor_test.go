package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/lian/config"
	"github.com/BaSui01/lian/internal/ctxkeys"
	"github.com/BaSui01/lian/internal/metrics"
	"github.com/BaSui01/lian/types"
)

// =============================================================================
// 🧪 执行门面测试
// =============================================================================

func setupMockManager(t *testing.T, opts ...Option) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	driver := NewSQLDriver(func(config.DatabaseConfig) (*sql.DB, error) {
		return mockDB, nil
	}, "COMMIT")

	m := NewManager(append([]Option{WithDriver(driver)}, opts...)...)
	require.NoError(t, m.Init([]config.DatabaseConfig{{Name: "default", MaxConnections: 1}}, ""))
	t.Cleanup(func() { _ = m.Close() })
	return m, mock
}

// mockRows 带列定义的结果集，ColumnTypes 依赖列定义
func mockRows(mock sqlmock.Sqlmock, columns ...string) *sqlmock.Rows {
	defs := make([]*sqlmock.Column, len(columns))
	for i, c := range columns {
		defs[i] = sqlmock.NewColumn(c)
	}
	return mock.NewRowsWithColumnDefinition(defs...)
}

func TestManager_Execute(t *testing.T) {
	m, mock := setupMockManager(t)

	const stmt = "INSERT INTO `app`.`users` (`name`) VALUES ('bob')"
	mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := m.Execute(context.Background(), stmt, WithAutoCommit(true))
	require.NoError(t, err)
	assert.Nil(t, res.Rows)
	assert.Equal(t, int64(1), res.RowCount)
	assert.Equal(t, int64(7), res.LastInsertID)
	_, err = uuid.Parse(res.QueryID)
	assert.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_ExecuteWithoutCommit(t *testing.T) {
	m, mock := setupMockManager(t)

	const stmt = "UPDATE `app`.`users` SET `n` = `n` + 1 WHERE 1"
	mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 3))

	res, err := m.Execute(context.Background(), stmt)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RowCount)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Query(t *testing.T) {
	m, mock := setupMockManager(t)

	const stmt = "SELECT `id`, `name`, `avatar` FROM `app`.`users` WHERE 1"
	rows := mock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("BIGINT", int64(0)).Nullable(false),
		sqlmock.NewColumn("name").OfType("VARCHAR", "").Nullable(true),
		sqlmock.NewColumn("avatar").OfType("BLOB", []byte{}).Nullable(true),
	).
		AddRow([]byte("1"), []byte("bob"), []byte{0xff}).
		AddRow([]byte("2"), nil, nil)
	mock.ExpectQuery(stmt).WillReturnRows(rows)
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := m.Query(context.Background(), stmt)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, int64(2), res.RowCount)

	assert.Equal(t, []ColumnDescriptor{
		{Name: "id", DatabaseType: "BIGINT", Nullable: false},
		{Name: "name", DatabaseType: "VARCHAR", Nullable: true},
		{Name: "avatar", DatabaseType: "BLOB", Nullable: true},
	}, res.Columns)

	assert.Equal(t, map[string]any{"id": int64(1), "name": "bob", "avatar": []byte{0xff}}, res.Rows[0].Map())
	v, ok := res.Rows[1].Get("name")
	assert.True(t, ok)
	assert.Nil(t, v)
	_, ok = res.Rows[1].Get("missing")
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_QueryWithoutCommit(t *testing.T) {
	m, mock := setupMockManager(t)

	const stmt = "SELECT COUNT(1) FROM `app`.`users` WHERE 1"
	mock.ExpectQuery(stmt).WillReturnRows(mockRows(mock, "COUNT(1)").AddRow(int64(4)))

	res, err := m.Query(context.Background(), stmt, WithAutoCommit(false), OnDatabase("default"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(4), res.Rows[0].Values[0])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_ExecutionError(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m, mock := setupMockManager(t, WithLogger(zap.New(core)))

	const stmt = "DELETE FROM `app`.`users` WHERE (`id` = 1)"
	mock.ExpectExec(stmt).WillReturnError(errors.New("lock wait timeout exceeded"))

	_, err := m.Execute(context.Background(), stmt, WithAutoCommit(true))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrExecution))

	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "default", e.Database)
	assert.NotEmpty(t, e.QueryID)

	failed := logs.FilterMessage("sql execution failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, e.QueryID, failed[0].ContextMap()["query_id"])
	assert.Equal(t, stmt, failed[0].ContextMap()["sql"])

	// 失败后连接已归还，可以继续使用
	mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = m.Execute(context.Background(), stmt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_CommitError(t *testing.T) {
	m, mock := setupMockManager(t)

	const stmt = "UPDATE `t` SET `a` = 1 WHERE 1"
	mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("COMMIT").WillReturnError(errors.New("connection reset"))

	_, err := m.Execute(context.Background(), stmt, WithAutoCommit(true))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrExecution))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_SlowQuery(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	reg := prometheus.NewRegistry()
	m, mock := setupMockManager(t,
		WithLogger(zap.New(core)),
		WithSlowQueryThreshold(time.Millisecond),
		WithMetrics(metrics.NewCollector("test", reg, zap.NewNop())),
	)

	const stmt = "SELECT 1"
	mock.ExpectQuery(stmt).
		WillDelayFor(10 * time.Millisecond).
		WillReturnRows(mockRows(mock, "1").AddRow(int64(1)))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := m.Query(context.Background(), stmt)
	require.NoError(t, err)

	slow := logs.FilterMessage("slow sql").All()
	require.Len(t, slow, 1)
	assert.Equal(t, stmt, slow[0].ContextMap()["sql"])

	n, err := testutil.GatherAndCount(reg, "test_db_slow_queries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = testutil.GatherAndCount(reg, "test_db_query_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManager_QuerySpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	m, mock := setupMockManager(t, WithTracerProvider(tp))

	const stmt = "SELECT `id` FROM `app`.`users` WHERE 1"
	mock.ExpectQuery(stmt).WillReturnRows(mockRows(mock, "id"))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := ctxkeys.WithTraceID(context.Background(), "trace-1")
	res, err := m.Query(ctx, stmt)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.NotNil(t, res.Rows)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.select", spans[0].Name())

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "mysql", attrs["db.system"].AsString())
	assert.Equal(t, "default", attrs["db.name"].AsString())
	assert.Equal(t, stmt, attrs["db.statement"].AsString())
	assert.Equal(t, res.QueryID, attrs["db.query_id"].AsString())
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name   string
		dbType string
		in     any
		want   any
	}{
		{"int", "INT", []byte("42"), int64(42)},
		{"unsigned bigint", "UNSIGNED BIGINT", []byte("18446744073709551615"), uint64(18446744073709551615)},
		{"double", "DOUBLE", []byte("1.5"), 1.5},
		{"decimal stays text", "DECIMAL", []byte("1.50"), "1.50"},
		{"varchar", "VARCHAR", []byte("x"), "x"},
		{"unknown type", "", []byte("x"), "x"},
		{"binary", "VARBINARY", []byte{1, 2}, []byte{1, 2}},
		{"non bytes", "INT", int64(3), int64(3)},
		{"nil", "INT", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeValue(tt.dbType, tt.in))
		})
	}
}

func TestOperationOf(t *testing.T) {
	assert.Equal(t, "select", operationOf("  select * from t"))
	assert.Equal(t, "insert", operationOf("INSERT INTO t VALUES (1)"))
	assert.Equal(t, "other", operationOf("COMMIT"))
	assert.Equal(t, "other", operationOf(""))
}
