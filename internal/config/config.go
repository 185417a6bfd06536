package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the server runtime parameters.
type Config struct {
	HTTPAddress         string         `mapstructure:"http_address"`
	LogLevel            string         `mapstructure:"log_level"`
	ShutdownGracePeriod time.Duration  `mapstructure:"shutdown_grace_period"`
	Database            DatabaseConfig `mapstructure:"database"`
	Redis               RedisConfig    `mapstructure:"redis"`
	Auth                AuthConfig     `mapstructure:"auth"`
	Crypto              CryptoConfig   `mapstructure:"crypto"`
	Realtime            RealtimeConfig `mapstructure:"realtime"`
}

// DatabaseConfig points at the PostgreSQL instance holding users and messages.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig configures the lastSeen cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig describes how bearer tokens are verified.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// CryptoConfig holds the shared message secret.
type CryptoConfig struct {
	Secret string `mapstructure:"secret"`
}

// RealtimeConfig tunes the live channel.
type RealtimeConfig struct {
	SendBuffer int `mapstructure:"send_buffer"`
}

const (
	defaultHTTPAddress         = ":8080"
	defaultLogLevel            = "info"
	defaultShutdownGracePeriod = 10 * time.Second
	defaultDSN                 = "host=localhost user=user password=password dbname=pinchatdb port=5432 sslmode=disable"
	defaultIssuer              = "pinchat-service"
	defaultTokenTTL            = 72 * time.Hour
)

// Load reads configuration from the provided file path (if any) and the environment.
// Environment variables are prefixed with PINCHAT_ and override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PINCHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("http_address", defaultHTTPAddress)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("shutdown_grace_period", defaultShutdownGracePeriod.String())
	v.SetDefault("database.dsn", defaultDSN)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", defaultIssuer)
	v.SetDefault("auth.token_ttl", defaultTokenTTL.String())
	v.SetDefault("crypto.secret", "")
	v.SetDefault("realtime.send_buffer", DefaultSendBuffer)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	grace, err := time.ParseDuration(v.GetString("shutdown_grace_period"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid shutdown_grace_period: %w", err)
	}
	cfg.ShutdownGracePeriod = grace

	ttl, err := time.ParseDuration(v.GetString("auth.token_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid auth.token_ttl: %w", err)
	}
	cfg.Auth.TokenTTL = ttl

	if cfg.Realtime.SendBuffer <= 0 {
		cfg.Realtime.SendBuffer = DefaultSendBuffer
	}

	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if strings.TrimSpace(c.Crypto.Secret) == "" {
		return fmt.Errorf("crypto.secret is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	return nil
}
