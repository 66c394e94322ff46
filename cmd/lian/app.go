package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/lian/config"
	"github.com/BaSui01/lian/internal/cache"
	"github.com/BaSui01/lian/internal/database"
	"github.com/BaSui01/lian/internal/metrics"
	"github.com/BaSui01/lian/internal/server"
	"github.com/BaSui01/lian/internal/telemetry"
)

// =============================================================================
// 🖥️ App 结构
// =============================================================================

// App 组装连接池、缓存、遥测与运维 HTTP 服务
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	collector *metrics.Collector
	otel      *telemetry.Providers
	poolObs   metric.Registration

	db     *database.Manager
	dbOpts []database.Option
	cache  *cache.Manager
	http   *server.Manager
}

// NewApp 创建应用实例
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 依次初始化指标、遥测、连接池（预热）、缓存与 HTTP 服务
func (a *App) Start(ctx context.Context) error {
	// 1. 指标
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if a.cfg.Metrics.Enabled {
		a.collector = metrics.NewCollector(a.cfg.Metrics.Namespace, a.registry, a.logger)
	}

	// 2. 遥测，失败时降级为 noop
	otelProviders, err := telemetry.Init(ctx, a.cfg.Telemetry, a.logger,
		attribute.StringSlice("lian.databases", a.cfg.Databases.Names()),
	)
	if err != nil {
		a.logger.Warn("failed to initialize telemetry", zap.Error(err))
		otelProviders = &telemetry.Providers{}
	}
	a.otel = otelProviders

	// 3. 连接池，Instance 预热所有逻辑库
	a.db, err = newManager(a.cfg, a.logger, a.collector, a.otel.TracerProvider(), a.dbOpts...)
	if err != nil {
		return err
	}
	inst, err := a.db.Instance(ctx)
	if err != nil {
		return err
	}
	a.poolObs, err = telemetry.ObservePools(a.otel.MeterProvider(), inst.Stats)
	if err != nil {
		a.logger.Warn("failed to observe pools", zap.Error(err))
	}

	// 4. 行缓存，不可用时不阻止启动
	if a.cfg.Cache.Enabled {
		a.cache, err = cache.NewManager(a.cfg.Cache, a.logger, a.collector)
		if err != nil {
			a.logger.Warn("row cache disabled", zap.Error(err))
			a.cache = nil
		}
	}

	// 5. HTTP 服务
	a.http = server.NewManager(a.handler(inst), a.cfg.Server, a.logger)
	if err := a.http.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	return nil
}

func (a *App) handler(inst *database.ConnectionPool) http.Handler {
	health := server.NewHealthHandler(a.logger, 0)
	for _, name := range a.cfg.Databases.Names() {
		health.RegisterCheck(server.NewCheck("db:"+name, func(ctx context.Context) error {
			return pingDatabase(ctx, a.db, name)
		}))
	}
	if a.cache != nil {
		health.RegisterCheck(server.NewCheck("redis", a.cache.Ping))
	}

	mux := server.NewMux(server.Routes{
		Gatherer: a.registry,
		Health:   health,
		Pools:    inst.Stats,
	})
	return Chain(mux,
		Recovery(a.logger),
		RequestID(),
		OTelTracing(a.otel.TracerProvider()),
		RequestLogger(a.logger),
	)
}

// WaitForShutdown 阻塞至收到信号或 ctx 结束，然后关闭全部组件
func (a *App) WaitForShutdown(ctx context.Context) {
	a.http.WaitForShutdown(ctx)
	if err := a.Shutdown(context.WithoutCancel(ctx)); err != nil {
		a.logger.Error("shutdown error", zap.Error(err))
	}
}

// Shutdown 按启动的逆序释放资源，可重复调用
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.http != nil {
		if err := a.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
		a.cache = nil
	}
	if a.poolObs != nil {
		if err := a.poolObs.Unregister(); err != nil {
			errs = append(errs, fmt.Errorf("pool observer: %w", err))
		}
		a.poolObs = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
		a.otel = nil
	}
	return errors.Join(errs...)
}

// newManager 按配置创建并初始化连接池管理器
func newManager(cfg *config.Config, logger *zap.Logger, mc *metrics.Collector, tp trace.TracerProvider, extra ...database.Option) (*database.Manager, error) {
	opts := []database.Option{
		database.WithLogger(logger),
		database.WithSlowQueryThreshold(cfg.SlowQueryThreshold),
		database.WithConnectBackoff(cfg.ConnectBackoff),
	}
	if mc != nil {
		opts = append(opts, database.WithMetrics(mc))
	}
	if tp != nil {
		opts = append(opts, database.WithTracerProvider(tp))
	}
	opts = append(opts, extra...)

	m := database.NewManager(opts...)
	if err := m.Init(cfg.Databases, cfg.DefaultDatabase); err != nil {
		return nil, err
	}
	return m, nil
}
