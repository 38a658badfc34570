package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := New()

	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Contains(t, cfg.DB.DSN, "@tcp(localhost:3306)/blinddate")
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AdminSessionTTL)
	assert.Equal(t, 20, cfg.Discovery.PageSize)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestNew_PostgresDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")

	cfg := New()

	assert.Equal(t, "postgres://app:pw@pg:5432/blinddate?sslmode=disable", cfg.DB.DSN)
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("AUTH_SESSION_TTL", "2h")
	t.Setenv("DISCOVER_PAGE_SIZE", "5")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_DB", "3")

	cfg := New()

	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 5, cfg.Discovery.PageSize)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		assert.True(t, isTruthy(v), v)
	}
	for _, v := range []string{"", "0", "off", "nope"} {
		assert.False(t, isTruthy(v), v)
	}
}
