package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	PresenceStorePostgres = "postgres"
	PresenceStoreRedis    = "redis"
)

type Config struct {
	ServerAddr     string   `env:"DUOCHAT_ADDR" envDefault:"localhost:8000"`
	DatabaseDSN    string   `env:"DUOCHAT_DSN" envDefault:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	SigningSecret  string   `env:"DUOCHAT_SIGNING_KEY"`
	AllowedOrigins []string `env:"DUOCHAT_ALLOWED_ORIGINS" envSeparator:","`

	// TypingTimeout is how long a typing indicator lives without a refresh.
	TypingTimeout time.Duration `env:"DUOCHAT_TYPING_TIMEOUT" envDefault:"3s"`
	TokenTTL      time.Duration `env:"DUOCHAT_TOKEN_TTL" envDefault:"24h"`

	PresenceStore     string        `env:"DUOCHAT_PRESENCE_STORE" envDefault:"postgres"`
	RedisAddr         string        `env:"DUOCHAT_REDIS_ADDR" envDefault:"localhost:6379"`
	StoreWriteTimeout time.Duration `env:"DUOCHAT_STORE_WRITE_TIMEOUT" envDefault:"5s"`

	// SigningKey is the decoded SigningSecret, set by Validate.
	SigningKey []byte `env:"-"`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("empty signing key")
	}

	return key, nil
}

// FromEnv loads a Config from the environment, applying tag defaults.
// The result still needs Validate before use.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	if c.SigningSecret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}
	if c.TypingTimeout <= 0 {
		return fmt.Errorf("typing timeout must be positive")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.StoreWriteTimeout <= 0 {
		return fmt.Errorf("store write timeout must be positive")
	}

	switch c.PresenceStore {
	case PresenceStorePostgres:
	case PresenceStoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	default:
		return fmt.Errorf("unknown presence store %q", c.PresenceStore)
	}

	signingKey, err := decodeSigningSecret(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	return nil
}
