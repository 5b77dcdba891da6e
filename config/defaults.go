// =============================================================================
// 📦 ToneFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfig(),
		Cache:  DefaultCacheConfig(),
		LLM:    DefaultLLMConfig(),
		Auth:   AuthConfig{},
		Log:    DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultCacheConfig 返回默认缓存配置
// 条目有效期 30 天，过期清理每 6 小时一次
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Driver:        "gorm",
		TTL:           30 * 24 * time.Hour,
		SweepInterval: 6 * time.Hour,
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			Password:     "",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "toneflow",
			Password: "",
			Name:     "toneflow",
			SSLMode:  "disable",
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "toneflow",
			Collection: "tone_cache",
		},
	}
}

// DefaultLLMConfig 返回默认上游模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		APIKey:         "",
		BaseURL:        "https://api.groq.com/openai/v1",
		Model:          "llama-3.3-70b-versatile",
		Timeout:        30 * time.Second,
		MaxTokens:      1024,
		MaxInputTokens: 8000,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}
