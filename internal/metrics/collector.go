// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
// 所有 Record 方法在 nil 接收者上为空操作
type Collector struct {
	// 连接池指标
	dbConnectionsInUse   *prometheus.GaugeVec
	dbConnectionsIdle    *prometheus.GaugeVec
	dbAcquireWait        *prometheus.HistogramVec
	dbConnectRetries     *prometheus.CounterVec
	dbConnectionsDropped *prometheus.CounterVec

	// 查询指标
	dbQueryDuration *prometheus.HistogramVec
	dbQueryErrors   *prometheus.CounterVec
	dbSlowQueries   *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
// reg 为 nil 时注册到 prometheus.DefaultRegisterer
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 连接池指标
	c.dbConnectionsInUse = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_in_use",
			Help:      "Number of checked-out database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbAcquireWait = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_acquire_wait_seconds",
			Help:      "Time spent waiting to check out a database connection",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"database"},
	)

	c.dbConnectRetries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_connect_retries_total",
			Help:      "Total number of failed connection attempts that were retried",
		},
		[]string{"database"},
	)

	c.dbConnectionsDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_connections_discarded_total",
			Help:      "Total number of connections discarded after a failed health check",
		},
		[]string{"database"},
	)

	// 查询指标
	c.dbQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"database", "operation"},
	)

	c.dbQueryErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_query_errors_total",
			Help:      "Total number of failed database statements",
		},
		[]string{"database", "operation"},
	)

	c.dbSlowQueries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_slow_queries_total",
			Help:      "Total number of statements slower than the slow query threshold",
		},
		[]string{"database"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of row cache hits",
		},
		[]string{"table"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of row cache misses",
		},
		[]string{"table"},
	)

	c.logger.Debug("metrics collector registered", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 连接池指标
// =============================================================================

// RecordPoolState 记录连接池的空闲与占用连接数
func (c *Collector) RecordPoolState(database string, idle, inUse int) {
	if c == nil {
		return
	}
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
	c.dbConnectionsInUse.WithLabelValues(database).Set(float64(inUse))
}

// RecordAcquireWait 记录获取连接的等待时长
func (c *Collector) RecordAcquireWait(database string, d time.Duration) {
	if c == nil {
		return
	}
	c.dbAcquireWait.WithLabelValues(database).Observe(d.Seconds())
}

// RecordConnectRetry 记录一次失败后重试的建连
func (c *Collector) RecordConnectRetry(database string) {
	if c == nil {
		return
	}
	c.dbConnectRetries.WithLabelValues(database).Inc()
}

// RecordConnectionDiscarded 记录一次健康检查失败被丢弃的连接
func (c *Collector) RecordConnectionDiscarded(database string) {
	if c == nil {
		return
	}
	c.dbConnectionsDropped.WithLabelValues(database).Inc()
}

// =============================================================================
// 🎯 查询指标
// =============================================================================

// RecordDBQuery 记录语句执行耗时，err 非 nil 时计入错误数
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
	if err != nil {
		c.dbQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordSlowQuery 记录一次慢查询
func (c *Collector) RecordSlowQuery(database string) {
	if c == nil {
		return
	}
	c.dbSlowQueries.WithLabelValues(database).Inc()
}

// =============================================================================
// 🎯 缓存指标
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(table string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(table).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(table string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(table).Inc()
}
