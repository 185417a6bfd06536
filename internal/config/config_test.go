package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, defaultHTTPAddress, cfg.HTTPAddress)
	assert.Equal(t, defaultLogLevel, cfg.LogLevel)
	assert.Equal(t, defaultShutdownGracePeriod, cfg.ShutdownGracePeriod)
	assert.Equal(t, defaultDSN, cfg.Database.DSN)
	assert.Equal(t, defaultTokenTTL, cfg.Auth.TokenTTL)
	assert.Equal(t, DefaultSendBuffer, cfg.Realtime.SendBuffer)
	assert.Empty(t, cfg.Redis.Addr, "redis cache is disabled by default")
}

func TestLoadWithFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
http_address: "127.0.0.1:9000"
log_level: "debug"
shutdown_grace_period: "5s"
redis:
  addr: "localhost:6380"
auth:
  jwt_secret: "file-secret"
  token_ttl: "1h"
crypto:
  secret: "passphrase"
`), 0o644))

	t.Setenv("PINCHAT_HTTP_ADDRESS", ":7000")
	t.Setenv("PINCHAT_CRYPTO_SECRET", "env-passphrase")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTPAddress, "env must override file")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "env-passphrase", cfg.Crypto.Secret)
	assert.NoError(t, cfg.Validate())
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("PINCHAT_SHUTDOWN_GRACE_PERIOD", "soon")

	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateRequiresSecrets(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.ErrorContains(t, cfg.Validate(), "jwt_secret")

	cfg.Auth.JWTSecret = "x"
	assert.ErrorContains(t, cfg.Validate(), "crypto.secret")

	cfg.Crypto.Secret = "y"
	assert.NoError(t, cfg.Validate())
}
