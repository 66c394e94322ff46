// =============================================================================
// Lian 主入口
// =============================================================================
// 数据库访问层的运维入口：运维 HTTP 服务、即席查询与连通性检查
//
// 使用方法:
//
//	lian serve --config config.yaml          # 预热连接池并提供 /metrics /health
//	lian query --config config.yaml "SQL"    # 在默认库上执行查询
//	lian query --db report "SELECT 1"        # 指定逻辑库
//	lian ping --config config.yaml           # 检查所有逻辑库的连通性
//	lian health --addr http://localhost:9091 # 检查运行中服务的健康状态
//	lian version                             # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/lian/config"
	"github.com/BaSui01/lian/internal/database"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "query":
		err = runQuery(os.Args[2:], os.Stdout)
	case "ping":
		err = runPing(os.Args[2:], os.Stdout)
	case "health":
		err = runHealthCheck(os.Args[2:], os.Stdout)
	case "version":
		printVersion(os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting Lian",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx := context.Background()
	app := NewApp(cfg, logger)
	if err := app.Start(ctx); err != nil {
		_ = app.Shutdown(ctx)
		return err
	}

	app.WaitForShutdown(ctx)
	logger.Info("Lian stopped")
	return nil
}

// =============================================================================
// 🔎 query 命令
// =============================================================================

func runQuery(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	db := fs.String("db", "", "Logical database name (default database when empty)")
	exec := fs.Bool("exec", false, "Run as a statement and commit instead of reading rows")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall timeout")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return errors.New("missing SQL statement")
	}
	stmt := strings.Join(fs.Args(), " ")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	mgr, err := newManager(cfg, logger, nil, nil)
	if err != nil {
		return err
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var res *database.Result
	if *exec {
		res, err = mgr.Execute(ctx, stmt, database.OnDatabase(*db), database.WithAutoCommit(true))
	} else {
		res, err = mgr.Query(ctx, stmt, database.OnDatabase(*db))
	}
	if err != nil {
		return err
	}
	return writeResult(out, res)
}

// writeResult 以 JSON 输出结果，行以列名映射展示
func writeResult(out io.Writer, res *database.Result) error {
	type output struct {
		Rows         []map[string]any `json:"rows,omitempty"`
		RowCount     int64            `json:"row_count"`
		LastInsertID int64            `json:"last_insert_id,omitempty"`
		QueryID      string           `json:"query_id"`
		Duration     string           `json:"duration"`
	}
	o := output{
		RowCount:     res.RowCount,
		LastInsertID: res.LastInsertID,
		QueryID:      res.QueryID,
		Duration:     res.Duration.String(),
	}
	for _, r := range res.Rows {
		m := r.Map()
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		o.Rows = append(o.Rows, m)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}

// =============================================================================
// 📡 ping 命令
// =============================================================================

func runPing(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	timeout := fs.Duration("timeout", 10*time.Second, "Overall timeout")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	mgr, err := newManager(cfg, logger, nil, nil)
	if err != nil {
		return err
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	return pingAll(ctx, mgr, cfg.Databases.Names(), out)
}

// pingAll 并发检查每个逻辑库，全部输出后返回第一个错误
func pingAll(ctx context.Context, mgr *database.Manager, names []string, out io.Writer) error {
	results := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = pingDatabase(ctx, mgr, name)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for i, name := range names {
		if results[i] != nil {
			fmt.Fprintf(out, "%-16s FAIL %v\n", name, results[i])
			failed = append(failed, fmt.Errorf("%s: %w", name, results[i]))
			continue
		}
		fmt.Fprintf(out, "%-16s OK\n", name)
	}
	return errors.Join(failed...)
}

// pingDatabase 取出一条连接即完成存活探测
func pingDatabase(ctx context.Context, mgr *database.Manager, db string) error {
	inst, err := mgr.Instance(ctx)
	if err != nil {
		return err
	}
	pc, err := inst.Acquire(ctx, db)
	if err != nil {
		return err
	}
	pc.Release()
	return nil
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:9091", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(*addr, "/") + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("health check failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Fprintln(out, "OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "Lian %s\n", Version)
	fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `Lian - lightweight MySQL access layer

Usage:
  lian <command> [options]

Commands:
  serve     Warm up connection pools and serve /metrics, /health, /debug/pools
  query     Run one SQL statement and print the result as JSON
  ping      Check connectivity of every configured database
  health    Check a running server's /health endpoint
  version   Show version information
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML), all commands
  --db <name>         Logical database for 'query'
  --exec              Execute and commit instead of reading rows ('query')
  --timeout <dur>     Overall timeout ('query', 'ping')
  --addr <url>        Server address ('health')

Examples:
  lian serve --config /etc/lian/config.yaml
  lian query --config config.yaml "SELECT * FROM app.users LIMIT 10"
  lian query --exec "UPDATE app.users SET age = age + 1 WHERE id = 1"
  lian ping --config config.yaml
  lian health --addr http://localhost:9091
  lian version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
