package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey  contextKey = "trace_id"
	queryIDKey  contextKey = "query_id"
	databaseKey contextKey = "database"
)

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	return stringValue(ctx, traceIDKey)
}

// WithQueryID 设置单次语句执行的关联 ID
func WithQueryID(ctx context.Context, queryID string) context.Context {
	return context.WithValue(ctx, queryIDKey, queryID)
}

// QueryID 获取单次语句执行的关联 ID
func QueryID(ctx context.Context) (string, bool) {
	return stringValue(ctx, queryIDKey)
}

// WithDatabase 设置目标逻辑库名
func WithDatabase(ctx context.Context, db string) context.Context {
	return context.WithValue(ctx, databaseKey, db)
}

// Database 获取目标逻辑库名
func Database(ctx context.Context) (string, bool) {
	return stringValue(ctx, databaseKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
