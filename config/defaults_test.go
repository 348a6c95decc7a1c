package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_AllSectionsPopulated(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultServerConfig(), cfg.Server)
	assert.Equal(t, DefaultDatabaseConfig(), cfg.Database)
	assert.Equal(t, DefaultRedisConfig(), cfg.Redis)
	assert.Equal(t, DefaultLLMConfig(), cfg.LLM)
	assert.Equal(t, DefaultCacheConfig(), cfg.Cache)
	assert.Equal(t, DefaultHistoryConfig(), cfg.History)
	assert.Equal(t, DefaultRateLimitConfig(), cfg.RateLimit)
	assert.Equal(t, DefaultCircuitBreakerConfig(), cfg.CircuitBreaker)
	assert.Equal(t, DefaultRouterConfig(), cfg.Router)
	assert.Equal(t, DefaultLogConfig(), cfg.Log)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	err := DefaultConfig().Validate()
	assert.NoError(t, err)
}

func TestDefaultCircuitBreakerConfig_MatchesBreakerDefaults(t *testing.T) {
	cb := DefaultCircuitBreakerConfig()
	assert.Equal(t, 5, cb.FailureThreshold)
	assert.Equal(t, 60, cb.WindowSeconds)
	assert.Equal(t, 30, cb.RecoverySeconds)
}
