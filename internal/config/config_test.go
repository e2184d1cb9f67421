package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	cfg.Chains.ApechainRPCURL = "https://apechain.calderachain.xyz/http"
	return cfg
}

func TestDefaultsValidateWithWallet(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingWallet(t *testing.T) {
	cfg := Defaults()
	cfg.Chains.ApechainRPCURL = "https://apechain.calderachain.xyz/http"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet")
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "arbitrage"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateServeModeSkipsWallet(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "serve"
	require.NoError(t, cfg.Validate())
}

func TestValidateLockTTLMustExceedTick(t *testing.T) {
	cfg := validConfig()
	cfg.Watcher.TickInterval = duration{time.Minute}
	cfg.Watcher.LockTTL = duration{30 * time.Second}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock_ttl")
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "serve"

[marketplace]
chain = "arbitrum"

[watcher]
tick_interval = "45s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("FLOORBOT_MARKETPLACE_CHAIN", "apechain")
	t.Setenv("FLOORBOT_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "apechain", cfg.Marketplace.Chain, "env beats TOML")
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 45*time.Second, cfg.Watcher.TickInterval.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Watcher.LockTTL.Duration, "default survives partial TOML")
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "hunter2", cfg.Postgres.Password, "original untouched")
}
