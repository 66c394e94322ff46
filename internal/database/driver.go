package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/go-sql-driver/mysql"

	"github.com/BaSui01/lian/config"
	"github.com/BaSui01/lian/types"
)

// =============================================================================
// 🔌 驱动能力
// =============================================================================

// Conn 单条原始驱动连接
type Conn interface {
	Ping(ctx context.Context) error
	ExecContext(ctx context.Context, query string) (sql.Result, error)
	QueryContext(ctx context.Context, query string) (*sql.Rows, error)
	Commit(ctx context.Context) error
	Close() error
}

// Driver 按逻辑库配置建立原始连接
type Driver interface {
	Connect(ctx context.Context, cfg config.DatabaseConfig) (Conn, error)
	Close() error
}

// OpenFunc 为一个逻辑库打开 *sql.DB
type OpenFunc func(cfg config.DatabaseConfig) (*sql.DB, error)

// SQLDriver 基于 database/sql 的驱动适配
// 每个逻辑库缓存一个 *sql.DB，每次 Connect 取出一条独占的 *sql.Conn
type SQLDriver struct {
	open      OpenFunc
	commitSQL string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewSQLDriver 创建驱动适配。commitSQL 为空时 Commit 为空操作
func NewSQLDriver(open OpenFunc, commitSQL string) *SQLDriver {
	return &SQLDriver{
		open:      open,
		commitSQL: commitSQL,
		dbs:       make(map[string]*sql.DB),
	}
}

// NewMySQLDriver 创建 go-sql-driver/mysql 驱动
func NewMySQLDriver() *SQLDriver {
	return NewSQLDriver(openMySQL, "COMMIT")
}

func openMySQL(cfg config.DatabaseConfig) (*sql.DB, error) {
	mc, err := cfg.MySQLConfig()
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	// 空闲连接由连接池持有，关闭 *sql.Conn 即断开物理连接
	db.SetMaxIdleConns(0)
	return db, nil
}

// Connect 建立一条原始连接
func (d *SQLDriver) Connect(ctx context.Context, cfg config.DatabaseConfig) (Conn, error) {
	db, err := d.handle(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{conn: conn, commitSQL: d.commitSQL}, nil
}

func (d *SQLDriver) handle(cfg config.DatabaseConfig) (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if db, ok := d.dbs[cfg.Name]; ok {
		return db, nil
	}
	db, err := d.open(cfg)
	if err != nil {
		return nil, types.Errorf(types.ErrConfiguration, "open database %q", cfg.Name).
			WithDatabase(cfg.Name).
			WithCause(err)
	}
	d.dbs[cfg.Name] = db
	return db, nil
}

// Close 关闭所有缓存的 *sql.DB
func (d *SQLDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, db := range d.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database %q: %w", name, err))
		}
		delete(d.dbs, name)
	}
	return errors.Join(errs...)
}

type sqlConn struct {
	conn      *sql.Conn
	commitSQL string
}

func (c *sqlConn) Ping(ctx context.Context) error {
	return c.conn.PingContext(ctx)
}

func (c *sqlConn) ExecContext(ctx context.Context, query string) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query)
}

func (c *sqlConn) QueryContext(ctx context.Context, query string) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query)
}

func (c *sqlConn) Commit(ctx context.Context) error {
	if c.commitSQL == "" {
		return nil
	}
	_, err := c.conn.ExecContext(ctx, c.commitSQL)
	return err
}

func (c *sqlConn) Close() error {
	return c.conn.Close()
}
