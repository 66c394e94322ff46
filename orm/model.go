package orm

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/BaSui01/lian/config"
	"github.com/BaSui01/lian/internal/cache"
	"github.com/BaSui01/lian/internal/database"
	"github.com/BaSui01/lian/sqlbuilder"
	"github.com/BaSui01/lian/types"
)

// =============================================================================
// 📋 模型
// =============================================================================

// DefaultPK 默认主键列
const DefaultPK = "id"

// Executor 执行语句并提供逻辑库配置，*database.Manager 实现该接口
type Executor interface {
	Execute(ctx context.Context, query string, opts ...database.ExecOption) (*database.Result, error)
	Query(ctx context.Context, query string, opts ...database.ExecOption) (*database.Result, error)
	Config(db string) (config.DatabaseConfig, error)
}

// RowCache 按主键缓存行，*cache.Manager 实现该接口
type RowCache interface {
	Row(ctx context.Context, db, table, field string, pk any, load cache.LoadFunc) (*database.Row, error)
	Invalidate(ctx context.Context, db, table string) error
}

// Model 绑定到一张表的行映射
type Model struct {
	exec   Executor
	cache  RowCache
	logger *zap.Logger

	database string
	table    string
	schema   string
	pk       string
	fields   []string
}

// Option 模型选项
type Option func(*Model)

// WithDatabase 指定逻辑库，默认使用默认库
func WithDatabase(db string) Option {
	return func(m *Model) { m.database = db }
}

// WithSchema 指定库名，覆盖逻辑库配置中的 database
func WithSchema(schema string) Option {
	return func(m *Model) { m.schema = schema }
}

// WithPK 指定主键列
func WithPK(pk string) Option {
	return func(m *Model) { m.pk = pk }
}

// WithFields 指定默认列：未指定投影的查询与位置插入使用
func WithFields(fields ...string) Option {
	return func(m *Model) { m.fields = fields }
}

// WithCache 为 Get 启用行缓存，写操作使整表缓存失效
func WithCache(c RowCache) Option {
	return func(m *Model) { m.cache = c }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(m *Model) { m.logger = logger }
}

// New 创建表模型
func New(exec Executor, table string, opts ...Option) *Model {
	m := &Model{
		exec:   exec,
		logger: zap.NewNop(),
		table:  table,
		pk:     DefaultPK,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "orm"), zap.String("table", table))
	return m
}

// NewFor 以类型名的下划线形式作为表名创建模型，例如 UserProfile → user_profile
func NewFor[T any](exec Executor, opts ...Option) *Model {
	return New(exec, TableNameOf(*new(T)), opts...)
}

// TableName 将驼峰类型名转换为下划线表名
func TableName(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TableNameOf 返回 v 的类型名对应的表名
func TableNameOf(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return TableName(t.Name())
}

// Table 返回表名
func (m *Model) Table() string { return m.table }

// Database 返回逻辑库名
func (m *Model) Database() string { return m.database }

// Schema 解析库名：WithSchema 优先，其次为逻辑库配置的 database
func (m *Model) Schema() (string, error) {
	if m.schema != "" {
		return m.schema, nil
	}
	cfg, err := m.exec.Config(m.database)
	if err != nil {
		return "", err
	}
	if cfg.Database == "" {
		return "", types.Errorf(types.ErrConfiguration, "model %s has not specified database", m.table).WithDatabase(m.database)
	}
	return cfg.Database, nil
}

// FullTableName 返回 <schema>.<table>
func (m *Model) FullTableName() (string, error) {
	schema, err := m.Schema()
	if err != nil {
		return "", err
	}
	return schema + "." + m.table, nil
}

func (m *Model) builder() (sqlbuilder.Table, error) {
	schema, err := m.Schema()
	if err != nil {
		return sqlbuilder.Table{}, err
	}
	return sqlbuilder.NewTable(m.table, schema), nil
}

// =============================================================================
// 🔍 读取
// =============================================================================

// Select 查询并返回行；未指定投影时使用模型默认列
func (m *Model) Select(ctx context.Context, opts ...sqlbuilder.SelectOption) ([]database.Row, error) {
	t, err := m.builder()
	if err != nil {
		return nil, err
	}
	if len(m.fields) > 0 {
		opts = append([]sqlbuilder.SelectOption{sqlbuilder.DefaultFields(sqlbuilder.Cols(m.fields...)...)}, opts...)
	}
	query, err := t.Select(opts...)
	if err != nil {
		return nil, err
	}
	return m.SelectRaw(ctx, query)
}

// SelectRaw 执行原始 SQL 查询
func (m *Model) SelectRaw(ctx context.Context, query string) ([]database.Row, error) {
	res, err := m.exec.Query(ctx, query, database.OnDatabase(m.database))
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Find 按条件查询
func (m *Model) Find(ctx context.Context, where sqlbuilder.Expr, opts ...sqlbuilder.SelectOption) ([]database.Row, error) {
	return m.Select(ctx, append(opts, sqlbuilder.Where(where))...)
}

// Get 按主键取一行；key 为空时使用模型主键。不存在时返回 ErrObjectNotFound
func (m *Model) Get(ctx context.Context, pk any, key ...string) (*database.Row, error) {
	field := m.pk
	if len(key) > 0 && key[0] != "" {
		field = key[0]
	}

	schema, err := m.Schema()
	if err != nil {
		return nil, err
	}
	full := schema + "." + m.table

	load := func(ctx context.Context) (*database.Row, error) {
		rows, err := m.Find(ctx, sqlbuilder.Values{{Key: field, Value: pk}})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return &rows[0], nil
	}

	var row *database.Row
	if m.cache != nil {
		row, err = m.cache.Row(ctx, schema, m.table, field, pk, load)
	} else {
		row, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, types.Errorf(types.ErrObjectNotFound, "%s #%v", full, pk).WithDatabase(m.database)
	}
	return row, nil
}

// Count 统计匹配行数
func (m *Model) Count(ctx context.Context, where sqlbuilder.Expr) (int64, error) {
	t, err := m.builder()
	if err != nil {
		return 0, err
	}
	query, err := t.Count(where)
	if err != nil {
		return 0, err
	}
	rows, err := m.SelectRaw(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	v, ok := rows[0].Get(sqlbuilder.CountColumn)
	if !ok && len(rows[0].Values) > 0 {
		v = rows[0].Values[0]
	}
	return toInt64(v)
}

// =============================================================================
// ✏️ 写入
// =============================================================================

// Insert 插入一行并自动提交，随后按自增主键读回该行
// 未插入任何行时（例如 ModeInsertNotExists 命中已有记录）返回 nil
func (m *Model) Insert(ctx context.Context, values sqlbuilder.Values, opts ...sqlbuilder.InsertOption) (*database.Row, error) {
	t, err := m.builder()
	if err != nil {
		return nil, err
	}
	query, err := t.Insert(values, opts...)
	if err != nil {
		return nil, err
	}
	return m.insert(ctx, query)
}

// InsertRow 按模型默认列插入一行位置取值
func (m *Model) InsertRow(ctx context.Context, row []any, opts ...sqlbuilder.InsertOption) (*database.Row, error) {
	t, err := m.builder()
	if err != nil {
		return nil, err
	}
	query, err := t.InsertRow(m.fields, row, opts...)
	if err != nil {
		return nil, err
	}
	return m.insert(ctx, query)
}

func (m *Model) insert(ctx context.Context, query string) (*database.Row, error) {
	res, err := m.write(ctx, query)
	if err != nil {
		return nil, err
	}
	if res.RowCount == 0 {
		return nil, nil
	}
	return m.Get(ctx, res.LastInsertID)
}

// InsertMany 以单条多值 INSERT 插入共享列的多行，返回影响行数
// 各行的键集合必须与第一行一致
func (m *Model) InsertMany(ctx context.Context, rows []sqlbuilder.Values, opts ...sqlbuilder.InsertOption) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	fields := rows[0].Keys()
	data := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(fields) {
			return 0, types.Errorf(types.ErrInvalidArgument, "row %d: %d values for %d fields", i, len(row), len(fields))
		}
		vals := make([]any, len(fields))
		for j, f := range fields {
			v, ok := row.Get(f)
			if !ok {
				return 0, types.Errorf(types.ErrInvalidArgument, "row %d: missing field %q", i, f)
			}
			vals[j] = v
		}
		data[i] = vals
	}

	t, err := m.builder()
	if err != nil {
		return 0, err
	}
	query, err := t.InsertMany(fields, data, opts...)
	if err != nil {
		return 0, err
	}
	res, err := m.write(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowCount, nil
}

// Update 更新匹配行并返回影响行数；键前缀 ADD: 表示自增
func (m *Model) Update(ctx context.Context, set sqlbuilder.Values, where sqlbuilder.Expr) (int64, error) {
	t, err := m.builder()
	if err != nil {
		return 0, err
	}
	query, err := t.Update(set, where)
	if err != nil {
		return 0, err
	}
	res, err := m.write(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowCount, nil
}

// Delete 删除匹配行并返回影响行数
func (m *Model) Delete(ctx context.Context, where sqlbuilder.Expr) (int64, error) {
	t, err := m.builder()
	if err != nil {
		return 0, err
	}
	query, err := t.Delete(where)
	if err != nil {
		return 0, err
	}
	res, err := m.write(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowCount, nil
}

// write 自动提交执行写语句，成功后使行缓存失效
func (m *Model) write(ctx context.Context, query string) (*database.Result, error) {
	res, err := m.exec.Execute(ctx, query, database.OnDatabase(m.database), database.WithAutoCommit(true))
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		schema, err := m.Schema()
		if err == nil {
			err = m.cache.Invalidate(ctx, schema, m.table)
		}
		if err != nil {
			m.logger.Warn("row cache invalidation failed", zap.Error(err))
		}
	}
	return res, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	}
	return 0, fmt.Errorf("unexpected count value %T", v)
}
