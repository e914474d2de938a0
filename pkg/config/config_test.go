package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/archgate/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"ARCHGATE_PORT", "ARCHGATE_LOG_LEVEL", "ARCHGATE_CONSTRAINTS",
		"ARCHGATE_ACR_STORE", "ARCHGATE_ARTIFACT_STORE", "ARCHGATE_RATE_LIMIT",
		"ARCHGATE_REDIS_ADDR", "ARCHGATE_NATS_URL", "ARCHGATE_JWT_SECRET",
	} {
		t.Setenv(k, "")
	}

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, ".archgate/constraints.json", cfg.ConstraintsPath)
	assert.Equal(t, "sqlite", cfg.ACRStore)
	assert.Equal(t, "fs", cfg.ArtifactStore)
	assert.Equal(t, 10.0, cfg.RateLimit)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.NATSURL)
	assert.Empty(t, cfg.JWTSecret)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ARCHGATE_PORT", "9090")
	t.Setenv("ARCHGATE_LOG_LEVEL", "DEBUG")
	t.Setenv("ARCHGATE_ACR_STORE", "postgres")
	t.Setenv("ARCHGATE_DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("ARCHGATE_RATE_LIMIT", "2.5")
	t.Setenv("ARCHGATE_RATE_BURST", "not-a-number")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres", cfg.ACRStore)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, 20, cfg.RateBurst)
}
