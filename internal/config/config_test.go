package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("testdata/missing.env")
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, StoreMemory, cfg.SessionStore())
	assert.Equal(t, BrokerLocal, cfg.BrokerBackend)
	assert.Equal(t, 168*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 2000, cfg.MaxMessageLength)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 30*time.Second, cfg.SessionCheckInterval)
	assert.Equal(t, 3, cfg.TypingRateBurst)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadMissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load("testdata/missing.env")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Host:                 "localhost",
			Port:                 8080,
			LogLevel:             "INFO",
			StoreBackend:         StoreMemory,
			BrokerBackend:        BrokerLocal,
			JWTSecret:            "0123456789abcdef0123",
			AccessTokenTTL:       time.Minute,
			SessionTTL:           time.Hour,
			SessionSweepInterval: time.Minute,
			SessionCheckInterval: time.Second,
			MaxMessageLength:     100,
			HistoryLimit:         10,
			ClientBuffer:         8,
			IPRateLimit:          1,
			IPRateBurst:          1,
			MessageRateLimit:     1,
			MessageRateBurst:     1,
			TypingRateLimit:      1,
			TypingRateBurst:      1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.StoreBackend = "mysql" }, wantErr: true},
		{name: "postgres without url", mutate: func(c *Config) { c.StoreBackend = StorePostgres }, wantErr: true},
		{name: "postgres with url", mutate: func(c *Config) {
			c.StoreBackend = StorePostgres
			c.DBURL = "postgres://localhost/paychat"
		}},
		{name: "nats without url", mutate: func(c *Config) { c.BrokerBackend = BrokerNATS }, wantErr: true},
		{name: "redis sessions without url", mutate: func(c *Config) { c.SessionBackend = StoreRedis }, wantErr: true},
		{name: "redis broker with url", mutate: func(c *Config) {
			c.BrokerBackend = BrokerRedis
			c.RedisURL = "redis://localhost:6379/0"
		}},
		{name: "sessions in another sql store", mutate: func(c *Config) { c.SessionBackend = StorePostgres }, wantErr: true},
		{name: "sessions matching store", mutate: func(c *Config) { c.SessionBackend = StoreMemory }},
		// Message IDs from per-instance stores are told apart by origin on
		// the bus, so a local store may share a broker.
		{name: "memory store with nats broker", mutate: func(c *Config) {
			c.BrokerBackend = BrokerNATS
			c.NATSURL = "nats://localhost:4222"
		}},
		{name: "badger store with redis broker", mutate: func(c *Config) {
			c.StoreBackend = StoreBadger
			c.BrokerBackend = BrokerRedis
			c.RedisURL = "redis://localhost:6379/0"
		}},
		{name: "zero session check", mutate: func(c *Config) { c.SessionCheckInterval = 0 }, wantErr: true},
		{name: "short secret", mutate: func(c *Config) { c.JWTSecret = "short" }, wantErr: true},
		{name: "admin without password", mutate: func(c *Config) { c.AdminUsername = "root" }, wantErr: true},
		{name: "zero session ttl", mutate: func(c *Config) { c.SessionTTL = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Config{LogLevel: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, Config{LogLevel: "WARN"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, Config{LogLevel: "loud"}.SlogLevel())
}
