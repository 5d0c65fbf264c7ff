// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreBadger   = "badger"
	StoreRedis    = "redis"

	BrokerLocal = "local"
	BrokerNATS  = "nats"
	BrokerRedis = "redis"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// StoreBackend holds accounts and messages. SessionBackend defaults to
	// the store backend when empty.
	StoreBackend   string `env:"STORE_BACKEND,default=memory" validate:"oneof=memory postgres badger"`
	SessionBackend string `env:"SESSION_BACKEND" validate:"omitempty,oneof=memory postgres badger redis"`
	BrokerBackend  string `env:"BROKER_BACKEND,default=local" validate:"oneof=local nats redis"`

	DBURL      string `env:"DB_URL" validate:"required_if=StoreBackend postgres"`
	BadgerPath string `env:"BADGER_PATH,default=data/badger"`
	RedisURL   string `env:"REDIS_URL"`

	NATSURL      string `env:"NATS_URL" validate:"required_if=BrokerBackend nats"`
	NATSCred     string `env:"NATS_CRED"`
	NATSUser     string `env:"NATS_USER"`
	NATSPassword string `env:"NATS_PASSWORD"`

	JWTSecret      string        `env:"JWT_SECRET,required=true" validate:"min=16"`
	JWTIssuer      string        `env:"JWT_ISS,default=paychat"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL,default=5m" validate:"gt=0"`

	SessionTTL           time.Duration `env:"SESSION_TTL,default=168h" validate:"gt=0"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL,default=10m" validate:"gt=0"`
	// How often open websocket and SSE connections re-validate their
	// session. Revocations on this instance close them at once.
	SessionCheckInterval time.Duration `env:"SESSION_CHECK_INTERVAL,default=30s" validate:"gt=0"`

	MaxMessageLength int `env:"MAX_MESSAGE_LENGTH,default=2000" validate:"min=1"`
	HistoryLimit     int `env:"HISTORY_LIMIT,default=50" validate:"min=1"`
	ClientBuffer     int `env:"CLIENT_BUFFER,default=256" validate:"min=1"`

	// Per-IP limit on the account endpoints and per-connection limit on
	// chat sends, in events per second with a burst.
	IPRateLimit      float64 `env:"IP_RATE_LIMIT,default=1" validate:"gt=0"`
	IPRateBurst      int     `env:"IP_RATE_BURST,default=5" validate:"min=1"`
	MessageRateLimit float64 `env:"MESSAGE_RATE_LIMIT,default=5" validate:"gt=0"`
	MessageRateBurst int     `env:"MESSAGE_RATE_BURST,default=10" validate:"min=1"`
	TypingRateLimit  float64 `env:"TYPING_RATE_LIMIT,default=1" validate:"gt=0"`
	TypingRateBurst  int     `env:"TYPING_RATE_BURST,default=3" validate:"min=1"`

	// Optional administrator created at startup when missing.
	AdminUsername string `env:"ADMIN_USERNAME" validate:"required_with=AdminPassword"`
	AdminPassword string `env:"ADMIN_PASSWORD" validate:"required_with=AdminUsername"`

	SecureCookies bool `env:"SECURE_COOKIES,default=true"`
}

var validate = validator.New()

// Load reads an optional .env file then decodes and validates the
// environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		slog.Debug("no .env file loaded", slog.Any("error", err))
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.SessionStore() == StoreRedis || c.BrokerBackend == BrokerRedis {
		if c.RedisURL == "" {
			return errors.New("invalid config: REDIS_URL is required for the redis backends")
		}
	}
	if s := c.SessionStore(); s != c.StoreBackend && s != StoreRedis {
		return fmt.Errorf("invalid config: SESSION_BACKEND %q must be redis or match STORE_BACKEND", s)
	}
	return nil
}

// SessionStore returns the backend that holds sessions.
func (c Config) SessionStore() string {
	if c.SessionBackend == "" {
		return c.StoreBackend
	}
	return c.SessionBackend
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values fall back to
// info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
