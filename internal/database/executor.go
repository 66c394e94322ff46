package database

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/lian/internal/ctxkeys"
	"github.com/BaSui01/lian/types"
)

// =============================================================================
// ⚡ 执行门面
// =============================================================================

// ColumnDescriptor 结果列描述
type ColumnDescriptor struct {
	Name         string `json:"name"`
	DatabaseType string `json:"database_type,omitempty"`
	Nullable     bool   `json:"nullable"`
}

// Row 一行结果，按列顺序保存取值
type Row struct {
	Columns []string `json:"columns"`
	Values  []any    `json:"values"`
}

// Get 按列名取值
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map 转换为列名到取值的映射
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// Result 归一化的执行结果
// Execute 的 Rows 为 nil；Query 的 RowCount 为返回的行数
type Result struct {
	Rows         []Row              `json:"rows"`
	RowCount     int64              `json:"row_count"`
	Columns      []ColumnDescriptor `json:"columns,omitempty"`
	LastInsertID int64              `json:"last_insert_id"`
	QueryID      string             `json:"query_id"`
	Duration     time.Duration      `json:"duration"`
}

type execOptions struct {
	database   string
	autoCommit bool
}

// ExecOption 执行选项
type ExecOption func(*execOptions)

// OnDatabase 指定逻辑库，默认使用默认库
func OnDatabase(db string) ExecOption {
	return func(o *execOptions) {
		o.database = db
	}
}

// WithAutoCommit 指定执行后是否提交
func WithAutoCommit(autoCommit bool) ExecOption {
	return func(o *execOptions) {
		o.autoCommit = autoCommit
	}
}

// Execute 执行不返回行的语句，默认不提交
func (m *Manager) Execute(ctx context.Context, query string, opts ...ExecOption) (*Result, error) {
	o := execOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return m.run(ctx, query, false, o)
}

// Query 执行查询并读取全部行，默认提交以刷新会话快照
func (m *Manager) Query(ctx context.Context, query string, opts ...ExecOption) (*Result, error) {
	o := execOptions{autoCommit: true}
	for _, opt := range opts {
		opt(&o)
	}
	return m.run(ctx, query, true, o)
}

func (m *Manager) run(ctx context.Context, query string, needRows bool, o execOptions) (*Result, error) {
	inst, err := m.Instance(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := inst.Pool(o.database)
	if err != nil {
		return nil, err
	}
	db := pool.Name()
	op := operationOf(query)

	queryID := uuid.NewString()
	ctx = ctxkeys.WithQueryID(ctx, queryID)
	ctx = ctxkeys.WithDatabase(ctx, db)
	logger := m.loggerFor(db).With(zap.String("query_id", queryID), zap.String("database", db))
	if traceID, ok := ctxkeys.TraceID(ctx); ok {
		logger = logger.With(zap.String("trace_id", traceID))
	}

	ctx, span := m.tracer.Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mysql"),
			attribute.String("db.name", db),
			attribute.String("db.operation", op),
			attribute.String("db.statement", query),
			attribute.String("db.query_id", queryID),
		),
	)
	defer span.End()

	pc, err := inst.Acquire(ctx, db)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire connection")
		return nil, err
	}
	defer pc.Release()

	start := time.Now()
	res, err := runOn(ctx, pc, query, needRows, o.autoCommit)
	elapsed := time.Since(start)
	m.metrics.RecordDBQuery(db, op, elapsed, err)

	if err != nil {
		logger.Error("sql execution failed",
			zap.String("sql", query),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "execute statement")
		return nil, types.NewError(types.ErrExecution, "execute statement").
			WithDatabase(db).
			WithQueryID(queryID).
			WithCause(err)
	}

	res.QueryID = queryID
	res.Duration = elapsed
	span.SetAttributes(attribute.Int64("db.rows", res.RowCount))

	if m.slowQueryThreshold > 0 && elapsed > m.slowQueryThreshold {
		m.metrics.RecordSlowQuery(db)
		logger.Warn("slow sql",
			zap.String("sql", query),
			zap.Duration("duration", elapsed),
			zap.Duration("threshold", m.slowQueryThreshold),
		)
	} else {
		logger.Debug("sql executed",
			zap.String("sql", query),
			zap.Duration("duration", elapsed),
			zap.Int64("row_count", res.RowCount),
		)
	}
	return res, nil
}

func runOn(ctx context.Context, pc *PooledConnection, query string, needRows, autoCommit bool) (*Result, error) {
	var (
		res *Result
		err error
	)
	if needRows {
		res, err = queryRows(ctx, pc, query)
	} else {
		res, err = execStatement(ctx, pc, query)
	}
	if err != nil {
		return nil, err
	}
	if autoCommit {
		if err := pc.Commit(ctx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func execStatement(ctx context.Context, pc *PooledConnection, query string) (*Result, error) {
	r, err := pc.ExecContext(ctx, query)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if n, err := r.RowsAffected(); err == nil {
		res.RowCount = n
	}
	if id, err := r.LastInsertId(); err == nil {
		res.LastInsertID = id
	}
	return res, nil
}

func queryRows(ctx context.Context, pc *PooledConnection, query string) (*Result, error) {
	rows, err := pc.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	columns := make([]string, len(colTypes))
	descs := make([]ColumnDescriptor, len(colTypes))
	for i, ct := range colTypes {
		nullable, _ := ct.Nullable()
		columns[i] = ct.Name()
		descs[i] = ColumnDescriptor{
			Name:         ct.Name(),
			DatabaseType: ct.DatabaseTypeName(),
			Nullable:     nullable,
		}
	}

	res := &Result{Rows: []Row{}, Columns: descs}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(descs[i].DatabaseType, v)
		}
		res.Rows = append(res.Rows, Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res.RowCount = int64(len(res.Rows))
	return res, nil
}

// normalizeValue 将文本协议返回的 []byte 按列类型还原
// 二进制列保持 []byte
func normalizeValue(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	t := strings.ToUpper(dbType)
	switch {
	case strings.Contains(t, "BLOB"), strings.Contains(t, "BINARY"):
		return b
	case strings.HasSuffix(t, "INT"):
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(string(b), 10, 64); err == nil {
			return n
		}
	case t == "FLOAT", t == "DOUBLE":
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	}
	return string(b)
}

var knownOperations = map[string]bool{
	"select":  true,
	"insert":  true,
	"replace": true,
	"update":  true,
	"delete":  true,
	"show":    true,
}

// operationOf 取语句首个关键字作为指标标签
func operationOf(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "other"
	}
	op := strings.ToLower(fields[0])
	if knownOperations[op] {
		return op
	}
	return "other"
}
