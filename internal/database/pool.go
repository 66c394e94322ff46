package database

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/lian/config"
	"github.com/BaSui01/lian/internal/metrics"
	"github.com/BaSui01/lian/types"
)

// =============================================================================
// 🗄️ 单个逻辑库的连接池
// =============================================================================

// poolConn 池中的一条连接，id 在池内唯一
type poolConn struct {
	id  uint64
	raw Conn
}

// Pool 管理一个逻辑库的有界连接集合
// 空闲队列、占用表与建连预留数由同一把锁保护，始终满足
// len(idle) + len(using) + opening <= max。
type Pool struct {
	name    string
	cfg     config.DatabaseConfig
	driver  Driver
	backoff time.Duration
	logger  *zap.Logger
	metrics *metrics.Collector

	// 建连失败日志限流
	retryLog rate.Sometimes

	mu      sync.Mutex
	idle    []*poolConn
	using   map[uint64]*poolConn
	opening int
	nextID  uint64
	wake    chan struct{}
	closed  bool
}

// PoolStats 连接池快照
type PoolStats struct {
	Database string `json:"database"`
	Idle     int    `json:"idle"`
	InUse    int    `json:"in_use"`
	Opening  int    `json:"opening"`
	Max      int    `json:"max"`
}

func newPool(cfg config.DatabaseConfig, driver Driver, backoff time.Duration, logger *zap.Logger, mc *metrics.Collector) *Pool {
	return &Pool{
		name:     cfg.Name,
		cfg:      cfg,
		driver:   driver,
		backoff:  backoff,
		logger:   logger.With(zap.String("component", "db_pool"), zap.String("database", cfg.Name)),
		metrics:  mc,
		retryLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
		using:    make(map[uint64]*poolConn, cfg.MaxConnections),
		wake:     make(chan struct{}),
	}
}

// Name 返回逻辑库名
func (p *Pool) Name() string {
	return p.name
}

// Stats 返回连接池快照
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool) statsLocked() PoolStats {
	return PoolStats{
		Database: p.name,
		Idle:     len(p.idle),
		InUse:    len(p.using),
		Opening:  p.opening,
		Max:      p.cfg.MaxConnections,
	}
}

// broadcastLocked 唤醒所有等待者
func (p *Pool) broadcastLocked() {
	close(p.wake)
	p.wake = make(chan struct{})
	s := p.statsLocked()
	p.metrics.RecordPoolState(p.name, s.Idle, s.InUse)
}

// =============================================================================
// 🎯 获取与归还
// =============================================================================

// take 在一个临界区内完成出队或预留：
// 有空闲连接时出队并登记为占用；未达上限时预留一个建连名额；否则返回等待通道。
func (p *Pool) take() (pc *poolConn, reserved bool, wait <-chan struct{}, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, nil, types.Errorf(types.ErrConnection, "pool %q is closed", p.name).WithDatabase(p.name)
	}
	if len(p.idle) > 0 {
		pc = p.idle[0]
		p.idle[0] = nil
		p.idle = p.idle[1:]
		p.using[pc.id] = pc
		s := p.statsLocked()
		p.metrics.RecordPoolState(p.name, s.Idle, s.InUse)
		return pc, false, nil, nil
	}
	if len(p.using)+p.opening < p.cfg.MaxConnections {
		p.opening++
		return nil, true, nil, nil
	}
	return nil, false, p.wake, nil
}

// Acquire 取出一条健康的连接，必要时新建
// 池满时阻塞直到有连接归还或 ctx 结束
func (p *Pool) Acquire(ctx context.Context) (*poolConn, error) {
	start := time.Now()

	var pc *poolConn
	for pc == nil {
		got, reserved, wait, err := p.take()
		if err != nil {
			return nil, err
		}
		switch {
		case got != nil:
			pc = got
		case reserved:
			if pc, err = p.openReserved(ctx, true); err != nil {
				return nil, err
			}
		default:
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, types.Errorf(types.ErrConnection, "acquire connection for %q", p.name).
					WithDatabase(p.name).
					WithCause(ctx.Err())
			}
		}
	}
	p.metrics.RecordAcquireWait(p.name, time.Since(start))

	// 健康检查，失败则丢弃并在同一名额上重建
	for {
		err := pc.raw.Ping(ctx)
		if err == nil {
			return pc, nil
		}
		// 调用方 ctx 结束导致的失败不代表连接失效，原样归还
		if ctxErr := ctx.Err(); ctxErr != nil {
			p.Release(pc)
			return nil, types.Errorf(types.ErrConnection, "acquire connection for %q", p.name).
				WithDatabase(p.name).
				WithCause(ctxErr)
		}
		p.logger.Warn("connection failed health check, reconnecting",
			zap.Uint64("conn_id", pc.id),
			zap.Error(err),
		)
		p.metrics.RecordConnectionDiscarded(p.name)

		p.mu.Lock()
		delete(p.using, pc.id)
		p.opening++
		p.mu.Unlock()
		_ = pc.raw.Close()

		if pc, err = p.openReserved(ctx, true); err != nil {
			return nil, err
		}
	}
}

// openReserved 在已预留的名额上建连；inUse 决定新连接登记为占用还是空闲
func (p *Pool) openReserved(ctx context.Context, inUse bool) (*poolConn, error) {
	raw, err := p.connect(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.opening--
	if err != nil {
		// 名额释放，唤醒等待者
		p.broadcastLocked()
		return nil, err
	}
	if p.closed {
		p.broadcastLocked()
		_ = raw.Close()
		return nil, types.Errorf(types.ErrConnection, "pool %q is closed", p.name).WithDatabase(p.name)
	}

	p.nextID++
	pc := &poolConn{id: p.nextID, raw: raw}
	if inUse {
		p.using[pc.id] = pc
	} else {
		p.idle = append(p.idle, pc)
	}
	p.broadcastLocked()
	return pc, nil
}

// Release 归还连接并唤醒等待者
// 未登记为占用的连接只记录告警，不改变状态
func (p *Pool) Release(pc *poolConn) {
	if pc == nil {
		return
	}

	p.mu.Lock()
	if cur, ok := p.using[pc.id]; !ok || cur != pc {
		p.mu.Unlock()
		p.logger.Warn("release of a connection that is not in use", zap.Uint64("conn_id", pc.id))
		return
	}
	delete(p.using, pc.id)
	if p.closed {
		p.broadcastLocked()
		p.mu.Unlock()
		_ = pc.raw.Close()
		return
	}
	p.idle = append(p.idle, pc)
	p.broadcastLocked()
	p.mu.Unlock()
}

// =============================================================================
// 🔧 建连
// =============================================================================

// connect 建立一条原始连接，失败后按固定间隔无限重试
// 配置错误立即返回；ctx 结束时返回连接错误
func (p *Pool) connect(ctx context.Context) (Conn, error) {
	p.logger.Debug("connecting database", zap.Object("config", p.cfg))

	for attempt := 1; ; attempt++ {
		raw, err := p.driver.Connect(ctx, p.cfg)
		if err == nil {
			if err = raw.Ping(ctx); err == nil {
				p.logger.Info("database connected", zap.Int("attempt", attempt))
				return raw, nil
			}
			_ = raw.Close()
		}
		if types.IsCode(err, types.ErrConfiguration) {
			return nil, err
		}

		p.metrics.RecordConnectRetry(p.name)
		p.retryLog.Do(func() {
			p.logger.Error("connect failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", p.backoff),
				zap.Error(err),
			)
		})

		timer := time.NewTimer(p.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, types.Errorf(types.ErrConnection, "connect %q after %d attempts", p.name, attempt).
				WithDatabase(p.name).
				WithRetryable(true).
				WithCause(ctx.Err())
		case <-timer.C:
		}
	}
}

// warm 将连接池填满到上限
func (p *Pool) warm(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.closed || len(p.idle)+len(p.using)+p.opening >= p.cfg.MaxConnections {
			p.mu.Unlock()
			return nil
		}
		p.opening++
		p.mu.Unlock()

		if _, err := p.openReserved(ctx, false); err != nil {
			return err
		}
	}
}

// Close 关闭空闲连接；占用中的连接在归还时关闭
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.broadcastLocked()
	p.mu.Unlock()

	p.logger.Info("closing database pool", zap.Int("idle", len(idle)))
	for _, pc := range idle {
		_ = pc.raw.Close()
	}
	return nil
}
