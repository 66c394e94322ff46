// =============================================================================
// 📦 Lian 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
// Databases 默认为空，必须由配置文件声明
func DefaultConfig() *Config {
	return &Config{
		SlowQueryThreshold: time.Second,
		ConnectBackoff:     time.Second,
		Server:             DefaultServerConfig(),
		Metrics:            DefaultMetricsConfig(),
		Cache:              DefaultCacheConfig(),
		Log:                DefaultLogConfig(),
		Telemetry:          DefaultTelemetryConfig(),
	}
}

// DefaultDatabaseConfig 返回逻辑库连接的默认值
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:           "localhost",
		Port:           3306,
		User:           "root",
		Charset:        "utf8mb4",
		MaxConnections: 5,
		ConnectTimeout: 10 * time.Second,
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":9091",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "lian",
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   false,
		Addr:      "localhost:6379",
		DB:        0,
		KeyPrefix: "lian",
		TTL:       5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "lian",
		SampleRate:   0.1,
	}
}
