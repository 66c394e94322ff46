package config

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/lian/internal/tlsutil"
)

// =============================================================================
// 🗄️ 逻辑库配置
// =============================================================================

// DefaultDatabaseName 约定的默认逻辑库名
const DefaultDatabaseName = "default"

const redactedPassword = "******"

// DatabaseConfig 单个逻辑库的连接配置
type DatabaseConfig struct {
	// 逻辑库名，由 YAML 映射的键填充
	Name string `yaml:"name,omitempty" env:"-"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 实际库名（schema），为空时与逻辑库名相同
	Database string `yaml:"database" env:"DATABASE"`
	// 字符集
	Charset string `yaml:"charset" env:"CHARSET"`
	// 最大连接数
	MaxConnections int `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	// 建连超时
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	// 读超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 会话是否自动提交
	AutoCommit bool `yaml:"auto_commit" env:"AUTO_COMMIT"`
	// TLS 配置
	TLS TLSConfig `yaml:"tls" env:"TLS"`
	// 额外的会话参数
	Params map[string]string `yaml:"params" env:"PARAMS"`
}

// TLSConfig 客户端 TLS 配置
type TLSConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 证书校验使用的服务器名
	ServerName string `yaml:"server_name" env:"SERVER_NAME"`
	// 自定义 CA 证书文件
	CAFile string `yaml:"ca_file" env:"CA_FILE"`
	// 跳过证书校验（仅限测试环境）
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
}

// ClientConfig 构建 *tls.Config，未启用时返回 nil
func (c TLSConfig) ClientConfig() (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	return tlsutil.ClientConfig(c.ServerName, c.CAFile, c.InsecureSkipVerify)
}

// WithDefaults 返回补全默认值后的副本
func (d DatabaseConfig) WithDefaults() DatabaseConfig {
	def := DefaultDatabaseConfig()
	if d.Host == "" {
		d.Host = def.Host
	}
	if d.Port == 0 {
		d.Port = def.Port
	}
	if d.User == "" {
		d.User = def.User
	}
	if d.Charset == "" {
		d.Charset = def.Charset
	}
	if d.MaxConnections == 0 {
		d.MaxConnections = def.MaxConnections
	}
	if d.ConnectTimeout == 0 {
		d.ConnectTimeout = def.ConnectTimeout
	}
	if d.Database == "" {
		d.Database = d.Name
	}
	return d
}

// Validate 验证逻辑库配置
func (d DatabaseConfig) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("database name must not be empty")
	}
	if d.MaxConnections < 1 {
		return fmt.Errorf("database %q: max_connections must be at least 1, got %d", d.Name, d.MaxConnections)
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("database %q: invalid port %d", d.Name, d.Port)
	}
	return nil
}

// MySQLConfig 转换为 go-sql-driver/mysql 的连接配置
// 未开启 AutoCommit 时会话以 autocommit=0 建立，写操作需要显式提交
func (d DatabaseConfig) MySQLConfig() (*mysql.Config, error) {
	c := mysql.NewConfig()
	c.User = d.User
	c.Passwd = d.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	c.DBName = d.Database
	c.Timeout = d.ConnectTimeout
	c.ReadTimeout = d.ReadTimeout
	c.WriteTimeout = d.WriteTimeout
	c.ParseTime = true

	c.Params = make(map[string]string, len(d.Params)+2)
	for k, v := range d.Params {
		c.Params[k] = v
	}
	if d.Charset != "" {
		c.Params["charset"] = d.Charset
	}
	if !d.AutoCommit {
		c.Params["autocommit"] = "0"
	}

	// charset 只能经由 DSN 解析进入驱动配置
	parsed, err := mysql.ParseDSN(c.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("database %q: build dsn: %w", d.Name, err)
	}

	tlsCfg, err := d.TLS.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("database %q: %w", d.Name, err)
	}
	parsed.TLS = tlsCfg

	return parsed, nil
}

// DSN 返回连接字符串
func (d DatabaseConfig) DSN() (string, error) {
	c, err := d.MySQLConfig()
	if err != nil {
		return "", err
	}
	return c.FormatDSN(), nil
}

// RedactedDSN 返回隐藏密码的连接字符串，用于日志输出
func (d DatabaseConfig) RedactedDSN() string {
	if d.Password != "" {
		d.Password = redactedPassword
	}
	dsn, err := d.DSN()
	if err != nil {
		return ""
	}
	return dsn
}

// MarshalLogObject 实现 zapcore.ObjectMarshaler，不输出密码
func (d DatabaseConfig) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("name", d.Name)
	enc.AddString("host", d.Host)
	enc.AddInt("port", d.Port)
	enc.AddString("user", d.User)
	enc.AddString("database", d.Database)
	enc.AddString("charset", d.Charset)
	enc.AddInt("max_connections", d.MaxConnections)
	enc.AddBool("auto_commit", d.AutoCommit)
	enc.AddBool("tls", d.TLS.Enabled)
	if d.Password != "" {
		enc.AddString("password", redactedPassword)
	}
	return nil
}

// =============================================================================
// 📋 有序逻辑库列表
// =============================================================================

// DatabaseList 逻辑库列表，在 YAML 中以映射表示并保持键的声明顺序
//
//	databases:
//	  default:
//	    host: db.internal
//	  report:
//	    database: report_v2
type DatabaseList []DatabaseConfig

// Get 按逻辑库名查找
func (l DatabaseList) Get(name string) (DatabaseConfig, bool) {
	for _, d := range l {
		if d.Name == name {
			return d, true
		}
	}
	return DatabaseConfig{}, false
}

// Names 按声明顺序返回逻辑库名
func (l DatabaseList) Names() []string {
	names := make([]string, len(l))
	for i, d := range l {
		names[i] = d.Name
	}
	return names
}

// UnmarshalYAML 支持映射（键为逻辑库名）与带 name 字段的序列两种写法
func (l *DatabaseList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		list := make(DatabaseList, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			var d DatabaseConfig
			if err := val.Decode(&d); err != nil {
				return fmt.Errorf("database %q: %w", key.Value, err)
			}
			d.Name = key.Value
			list = append(list, d)
		}
		*l = list
		return nil

	case yaml.SequenceNode:
		var list []DatabaseConfig
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	return fmt.Errorf("line %d: databases must be a mapping or a sequence", node.Line)
}
