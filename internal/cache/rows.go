package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/lian/internal/database"
)

// =============================================================================
// 📦 行缓存
// =============================================================================

// 行按 <prefix>:row:<db>.<table>:<generation>:<field>:<pk> 存储，
// 任何写操作对 <prefix>:gen:<db>.<table> 执行 INCR，旧代的键随 TTL 过期。

var (
	rowEncMode cbor.EncMode
	rowDecMode cbor.DecMode
)

func init() {
	var err error

	rowEncMode, err = cbor.EncOptions{
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}

	rowDecMode, err = cbor.DecOptions{
		IntDec:       cbor.IntDecConvertSigned,
		TimeTagToAny: cbor.TimeTagToTime,
	}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
}

type cachedRow struct {
	Columns []string `cbor:"1,keyasint"`
	Values  []any    `cbor:"2,keyasint"`
}

// LoadFunc 缓存未命中时加载行；返回 nil 表示不存在，不写入缓存
type LoadFunc func(ctx context.Context) (*database.Row, error)

// Row 读取一行，未命中时通过 load 加载并写入缓存
// 同一个键的并发未命中只触发一次 load；Redis 不可用时直接 load
func (m *Manager) Row(ctx context.Context, db, table, field string, pk any, load LoadFunc) (*database.Row, error) {
	name := db + "." + table

	gen, err := m.generation(ctx, name)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return nil, err
		}
		m.logger.Warn("row cache unavailable, loading directly", zap.String("table", name), zap.Error(err))
		return load(ctx)
	}

	key := m.key("row", name, gen, field, fmt.Sprint(pk))
	if data, err := m.Get(ctx, key); err == nil {
		var cr cachedRow
		if err := rowDecMode.Unmarshal(data, &cr); err == nil {
			m.metrics.RecordCacheHit(name)
			return &database.Row{Columns: cr.Columns, Values: cr.Values}, nil
		}
		m.logger.Warn("discarding undecodable cached row", zap.String("key", key))
	} else if !IsCacheMiss(err) {
		m.logger.Warn("row cache get failed", zap.String("key", key), zap.Error(err))
	}
	m.metrics.RecordCacheMiss(name)

	v, err, _ := m.group.Do(key, func() (any, error) {
		row, err := load(ctx)
		if err != nil || row == nil {
			return row, err
		}
		data, err := rowEncMode.Marshal(cachedRow{Columns: row.Columns, Values: row.Values})
		if err != nil {
			m.logger.Warn("row is not cacheable", zap.String("key", key), zap.Error(err))
			return row, nil
		}
		if err := m.Set(ctx, key, data, 0); err != nil {
			m.logger.Warn("row cache set failed", zap.String("key", key), zap.Error(err))
		}
		return row, nil
	})
	if err != nil {
		return nil, err
	}
	row, _ := v.(*database.Row)
	return row, nil
}

// Invalidate 使一张表的全部缓存行失效
func (m *Manager) Invalidate(ctx context.Context, db, table string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	name := db + "." + table
	if err := m.redis.Incr(ctx, m.key("gen", name)).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", name, err)
	}
	m.logger.Debug("row cache invalidated", zap.String("table", name))
	return nil
}

func (m *Manager) generation(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrClosed
	}

	gen, err := m.redis.Get(ctx, m.key("gen", name)).Int64()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(gen, 10), nil
}
