// Package config default values.
package config

import "time"

// DefaultConfig returns the router's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:         DefaultServerConfig(),
		Database:       DefaultDatabaseConfig(),
		Redis:          DefaultRedisConfig(),
		LLM:            DefaultLLMConfig(),
		Cache:          DefaultCacheConfig(),
		History:        DefaultHistoryConfig(),
		RateLimit:      DefaultRateLimitConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Router:         DefaultRouterConfig(),
		Log:            DefaultLogConfig(),
	}
}

// DefaultServerConfig returns the default HTTP/metrics server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		CORSAllowedOrigins: nil,
		IPRateLimitRPS:     50,
		IPRateLimitBurst:   100,
	}
}

// DefaultDatabaseConfig returns the default warehouse connection configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "router",
		Password:        "",
		Name:            "enterprise_tool_router",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig returns the default cache/rate-limiter backing store configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		URL:          "redis://localhost:6379/0",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLLMConfig returns the default SQL planner LLM backend configuration.
// An empty BaseURL leaves the planner disabled; the SQL tool still accepts
// raw, pre-validated SQL.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL: "",
		APIKey:  "",
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
	}
}

// DefaultCacheConfig returns the default hot plan cache configuration:
// a 1800s TTL and a 1 MiB entry size cap, per spec.md §6.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTLSeconds: 1800,
		MaxBytes:   1 << 20,
	}
}

// DefaultHistoryConfig returns the default warm plan history configuration.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		RetentionDays: 30,
	}
}

// DefaultRateLimitConfig returns the default admission limiter
// configuration, per spec.md §6: 100 requests per 60s window.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:       true,
		MaxRequests:   100,
		WindowSeconds: 60,
	}
}

// DefaultCircuitBreakerConfig returns the default LLM provider breaker configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		WindowSeconds:    60,
		RecoverySeconds:  30,
	}
}

// DefaultRouterConfig returns the default dispatcher-wide
// configuration: a 0.7 confidence threshold, per spec.md §6.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ConfidenceThreshold: 0.7,
	}
}

// DefaultLogConfig returns the default logger configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		EnableCaller: true,
	}
}
