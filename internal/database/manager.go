package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/lian/config"
	"github.com/BaSui01/lian/internal/metrics"
	"github.com/BaSui01/lian/types"
)

const tracerName = "github.com/BaSui01/lian/internal/database"

// =============================================================================
// 🏗️ 连接池管理器
// =============================================================================

// Manager 持有整个进程的连接池状态
// 生命周期：NewManager → Init（仅一次）→ Instance / Execute / Query → Close
type Manager struct {
	driver    Driver
	logger    *zap.Logger
	dbLoggers map[string]*zap.Logger
	metrics   *metrics.Collector
	tracer    trace.Tracer

	slowQueryThreshold time.Duration
	connectBackoff     time.Duration

	// mu 只保护配置与生命周期标记，不跨越建连
	mu          sync.Mutex
	inited      bool
	closed      bool
	configs     config.DatabaseList
	defaultDB   string
	cancelBuild context.CancelFunc

	// buildMu 串行化连接池构建
	buildMu  sync.Mutex
	instance atomic.Pointer[ConnectionPool]
}

// Option 管理器选项
type Option func(*Manager)

// WithLogger 设置根日志
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDriver 设置底层驱动，默认 go-sql-driver/mysql
func WithDriver(driver Driver) Option {
	return func(m *Manager) {
		if driver != nil {
			m.driver = driver
		}
	}
}

// WithDatabaseLogger 为指定逻辑库设置独立日志
func WithDatabaseLogger(name string, logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.dbLoggers[name] = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

// WithTracerProvider 设置 TracerProvider，默认使用全局 provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		if tp != nil {
			m.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithSlowQueryThreshold 设置慢查询阈值
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(m *Manager) {
		m.slowQueryThreshold = d
	}
}

// WithConnectBackoff 设置建连失败后的重试间隔
func WithConnectBackoff(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.connectBackoff = d
		}
	}
}

// NewManager 创建未初始化的管理器
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:             zap.NewNop(),
		dbLoggers:          make(map[string]*zap.Logger),
		tracer:             otel.GetTracerProvider().Tracer(tracerName),
		slowQueryThreshold: time.Second,
		connectBackoff:     time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.driver == nil {
		m.driver = NewMySQLDriver()
	}
	m.logger = m.logger.With(zap.String("component", "database"))
	return m
}

// Init 校验并保存逻辑库配置，只允许调用一次
// defaultDB 为空时依次取名为 "default" 的逻辑库与第一个逻辑库
func (m *Manager) Init(dbs []config.DatabaseConfig, defaultDB string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inited {
		return types.NewError(types.ErrConfiguration, "connection pool already initialized")
	}
	if len(dbs) == 0 {
		return types.NewError(types.ErrConfiguration, "no database configured")
	}

	list := make(config.DatabaseList, 0, len(dbs))
	for _, d := range dbs {
		d = d.WithDefaults()
		if err := d.Validate(); err != nil {
			return types.NewError(types.ErrConfiguration, "invalid database config").
				WithDatabase(d.Name).
				WithCause(err)
		}
		if _, dup := list.Get(d.Name); dup {
			return types.Errorf(types.ErrConfiguration, "duplicate database %q", d.Name).WithDatabase(d.Name)
		}
		list = append(list, d)
	}

	switch {
	case defaultDB != "":
		if _, ok := list.Get(defaultDB); !ok {
			return types.Errorf(types.ErrConfiguration, "default database %q is not configured", defaultDB)
		}
	default:
		if _, ok := list.Get(config.DefaultDatabaseName); ok {
			defaultDB = config.DefaultDatabaseName
		} else {
			defaultDB = list[0].Name
			m.logger.Info("no default database configured, using the first one", zap.String("database", defaultDB))
		}
	}

	m.configs = list
	m.defaultDB = defaultDB
	m.inited = true
	return nil
}

// Initialized 返回是否已完成 Init
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inited
}

// DefaultDatabase 返回解析后的默认逻辑库名
func (m *Manager) DefaultDatabase() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultDB
}

// Config 返回逻辑库的配置，"" 与 "default" 指向默认库
func (m *Manager) Config(db string) (config.DatabaseConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.inited {
		return config.DatabaseConfig{}, types.NewError(types.ErrNotInitialized, "connection pool need initialize")
	}
	name := m.resolveLocked(db)
	cfg, ok := m.configs.Get(name)
	if !ok {
		return config.DatabaseConfig{}, types.Errorf(types.ErrConfiguration, "database %q is not configured", db).WithDatabase(db)
	}
	return cfg, nil
}

func (m *Manager) resolveLocked(db string) string {
	if db == "" {
		return m.defaultDB
	}
	if db == config.DefaultDatabaseName {
		if _, ok := m.configs.Get(db); !ok {
			return m.defaultDB
		}
	}
	return db
}

// Instance 返回进程内唯一的连接池，首次调用时构建并预热所有逻辑库
// 预热期间不持有 mu，Config 等读取与 Close 不受阻塞；Close 会中止预热
func (m *Manager) Instance(ctx context.Context) (*ConnectionPool, error) {
	if inst := m.instance.Load(); inst != nil {
		return inst, nil
	}

	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	if inst := m.instance.Load(); inst != nil {
		return inst, nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errManagerClosed()
	}
	if !m.inited {
		m.mu.Unlock()
		return nil, types.NewError(types.ErrNotInitialized, "connection pool need initialize")
	}
	configs, defaultDB := m.configs, m.defaultDB
	buildCtx, cancel := context.WithCancel(ctx)
	m.cancelBuild = cancel
	m.mu.Unlock()
	defer cancel()

	inst := &ConnectionPool{
		defaultDB: defaultDB,
		pools:     make(map[string]*Pool, len(configs)),
		order:     configs.Names(),
	}
	for _, cfg := range configs {
		inst.pools[cfg.Name] = newPool(cfg, m.driver, m.connectBackoff, m.loggerFor(cfg.Name), m.metrics)
	}

	g, gctx := errgroup.WithContext(buildCtx)
	for _, p := range inst.pools {
		g.Go(func() error {
			return p.warm(gctx)
		})
	}
	warmErr := g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelBuild = nil

	if m.closed {
		inst.close()
		return nil, errManagerClosed()
	}
	if warmErr != nil {
		inst.close()
		return nil, fmt.Errorf("warm up connection pool: %w", warmErr)
	}

	m.logger.Info("connection pool ready",
		zap.Strings("databases", inst.order),
		zap.String("default", inst.defaultDB),
	)
	m.instance.Store(inst)
	return inst, nil
}

func errManagerClosed() error {
	return types.NewError(types.ErrConnection, "connection pool manager is closed")
}

func (m *Manager) loggerFor(db string) *zap.Logger {
	if l, ok := m.dbLoggers[db]; ok {
		return l
	}
	return m.logger
}

// Close 关闭所有连接池与底层驱动
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	if m.cancelBuild != nil {
		m.cancelBuild()
	}
	inst := m.instance.Swap(nil)
	m.mu.Unlock()

	var errs []error
	if inst != nil {
		if err := inst.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.driver.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close driver: %w", err))
	}
	return errors.Join(errs...)
}

// =============================================================================
// 🗂️ 连接池集合
// =============================================================================

// ConnectionPool 按逻辑库名组织的连接池集合
type ConnectionPool struct {
	defaultDB string
	pools     map[string]*Pool
	order     []string
}

// Pool 返回逻辑库的连接池，"" 与 "default" 指向默认库
func (c *ConnectionPool) Pool(db string) (*Pool, error) {
	name := db
	if name == "" {
		name = c.defaultDB
	}
	p, ok := c.pools[name]
	if !ok && name == config.DefaultDatabaseName {
		p, ok = c.pools[c.defaultDB]
	}
	if !ok {
		return nil, types.Errorf(types.ErrConfiguration, "database %q is not configured", db).WithDatabase(db)
	}
	return p, nil
}

// Acquire 从逻辑库取出一条连接，调用方必须 Release
func (c *ConnectionPool) Acquire(ctx context.Context, db string) (*PooledConnection, error) {
	p, err := c.Pool(db)
	if err != nil {
		return nil, err
	}
	pc, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &PooledConnection{pool: p, conn: pc}, nil
}

// DefaultDatabase 返回默认逻辑库名
func (c *ConnectionPool) DefaultDatabase() string {
	return c.defaultDB
}

// Stats 按声明顺序返回各逻辑库的连接池快照
func (c *ConnectionPool) Stats() []PoolStats {
	out := make([]PoolStats, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.pools[name].Stats())
	}
	return out
}

func (c *ConnectionPool) close() error {
	var errs []error
	for _, name := range c.order {
		if err := c.pools[name].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
