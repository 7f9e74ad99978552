package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, "memory", cfg.QueueBackend)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("ACCESS_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("OWNER_EMAIL", "boss@school.test")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 10, cfg.RateLimitPerMin)
	assert.Equal(t, "boss@school.test", cfg.OwnerEmail)
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("ACCESS_TTL", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "many")

	cfg := Load()
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}
