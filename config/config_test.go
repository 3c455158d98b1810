package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("SESSION_TTL_HOURS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 72*time.Hour, cfg.Business.SessionTTL)
	assert.Equal(t, 100, cfg.Business.RefundMinContent)
	assert.Equal(t, 2000, cfg.Business.RefundMaxContent)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SESSION_TTL_HOURS", "1")
	t.Setenv("SESSION_SECURE_COOKIE", "true")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Hour, cfg.Business.SessionTTL)
	assert.True(t, cfg.Auth.SecureCookie)
}
