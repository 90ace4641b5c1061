// =============================================================================
// 📦 FlowDecompose 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Analyzer:  DefaultAnalyzerConfig(),
		Pipeline:  DefaultPipelineConfig(),
		Storage:   DefaultStorageConfig(),
		Motion:    DefaultMotionConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
		StreamInterval:  500 * time.Millisecond,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置（嵌入式 sqlite）
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "flowdecompose",
		Name:            "flowdecompose.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultAnalyzerConfig 返回默认模型配置
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		BaseURL:       "https://www.sophnet.com/api/open-apis/v1",
		Model:         "Qwen2.5-VL-7B-Instruct",
		Timeout:       120 * time.Second,
		CacheTTL:      24 * time.Hour,
		TokenEncoding: "cl100k_base",
	}
}

// DefaultPipelineConfig 返回默认流水线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		DataDir:         "./data",
		FFmpegBin:       "ffmpeg",
		FFprobeBin:      "ffprobe",
		DownloadTimeout: 10 * time.Minute,
	}
}

// DefaultStorageConfig 返回默认存储配置（内存）
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:   "memory",
		KeyPrefix: "flowdecompose:",
	}
}

// DefaultMotionConfig 返回默认虚拟运镜配置（mock 渲染）
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		Model:      "img2video-default",
		Timeout:    5 * time.Minute,
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
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
		Insecure:     true,
		ServiceName:  "flowdecompose",
		SampleRate:   0.1,
	}
}
