package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/cravebiz")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "postgres://localhost/cravebiz", cfg.Database.URL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "invoice-dispatch", cfg.Kafka.DispatchTopic)
	assert.Equal(t, 15*time.Minute, cfg.Recurrence.Interval)
	assert.Equal(t, 24, cfg.Recurrence.MaxCatchUp)
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/cravebiz")
	t.Setenv("JWKS_URL", "https://auth.example.com/.well-known/jwks.json")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("RECURRENCE_INTERVAL", "1h")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Hour, cfg.Recurrence.Interval)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := &Config{Recurrence: RecurrenceConfig{Interval: time.Minute, MaxCatchUp: 1}}
	assert.ErrorContains(t, cfg.Validate(), "DATABASE_URL")

	cfg.Database.URL = "postgres://x"
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")

	cfg.Auth.JWTSecret = "s"
	cfg.Recurrence.Interval = 0
	assert.ErrorContains(t, cfg.Validate(), "RECURRENCE_INTERVAL")
}
