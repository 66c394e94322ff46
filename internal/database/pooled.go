package database

import (
	"context"
	"database/sql"

	"github.com/BaSui01/lian/types"
)

// PooledConnection 借出的连接，由持有者独占直到 Release
// Release 与 Close 可重复调用
type PooledConnection struct {
	pool *Pool
	conn *poolConn
}

// Database 返回所属逻辑库名
func (c *PooledConnection) Database() string {
	return c.pool.Name()
}

// ID 返回连接在池内的标识，归还后为 0
func (c *PooledConnection) ID() uint64 {
	if c.conn == nil {
		return 0
	}
	return c.conn.id
}

func (c *PooledConnection) raw() (Conn, error) {
	if c.conn == nil {
		return nil, types.NewError(types.ErrConnection, "connection already released").WithDatabase(c.pool.Name())
	}
	return c.conn.raw, nil
}

// ExecContext 执行不返回行的语句
func (c *PooledConnection) ExecContext(ctx context.Context, query string) (sql.Result, error) {
	raw, err := c.raw()
	if err != nil {
		return nil, err
	}
	return raw.ExecContext(ctx, query)
}

// QueryContext 执行返回行的语句
func (c *PooledConnection) QueryContext(ctx context.Context, query string) (*sql.Rows, error) {
	raw, err := c.raw()
	if err != nil {
		return nil, err
	}
	return raw.QueryContext(ctx, query)
}

// Commit 提交当前会话
func (c *PooledConnection) Commit(ctx context.Context) error {
	raw, err := c.raw()
	if err != nil {
		return err
	}
	return raw.Commit(ctx)
}

// Release 归还连接
func (c *PooledConnection) Release() {
	if c.conn == nil {
		return
	}
	c.pool.Release(c.conn)
	c.conn = nil
}

// Close 等同于 Release
func (c *PooledConnection) Close() error {
	c.Release()
	return nil
}
