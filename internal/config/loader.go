package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FLOORBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FLOORBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "FLOORBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "FLOORBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "FLOORBOT_WALLET_KEY_PASSWORD")

	// ── Chains ──
	setStr(&cfg.Chains.ArbitrumRPCURL, "FLOORBOT_CHAINS_ARBITRUM_RPC_URL")
	setStr(&cfg.Chains.ApechainRPCURL, "FLOORBOT_CHAINS_APECHAIN_RPC_URL")

	// ── Marketplace ──
	setStr(&cfg.Marketplace.BaseURL, "FLOORBOT_MARKETPLACE_BASE_URL")
	setStr(&cfg.Marketplace.Chain, "FLOORBOT_MARKETPLACE_CHAIN")
	setStr(&cfg.Marketplace.ApiKey, "FLOORBOT_MARKETPLACE_API_KEY")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "FLOORBOT_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.ApiKey, "FLOORBOT_ORACLE_API_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FLOORBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FLOORBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FLOORBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FLOORBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FLOORBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FLOORBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FLOORBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FLOORBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FLOORBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FLOORBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FLOORBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FLOORBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FLOORBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FLOORBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FLOORBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FLOORBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "FLOORBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FLOORBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "FLOORBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FLOORBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FLOORBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FLOORBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FLOORBOT_S3_FORCE_PATH_STYLE")

	// ── Watcher ──
	setBool(&cfg.Watcher.Enabled, "FLOORBOT_WATCHER_ENABLED")
	setDuration(&cfg.Watcher.TickInterval, "FLOORBOT_WATCHER_TICK_INTERVAL")
	setDuration(&cfg.Watcher.LockTTL, "FLOORBOT_WATCHER_LOCK_TTL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "FLOORBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "FLOORBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "FLOORBOT_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FLOORBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FLOORBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FLOORBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "FLOORBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "FLOORBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "FLOORBOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FLOORBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FLOORBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FLOORBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FLOORBOT_NOTIFY_EVENTS")
	setStr(&cfg.Notify.SMTPHost, "FLOORBOT_NOTIFY_SMTP_HOST")
	setInt(&cfg.Notify.SMTPPort, "FLOORBOT_NOTIFY_SMTP_PORT")
	setStr(&cfg.Notify.SMTPFrom, "FLOORBOT_NOTIFY_SMTP_FROM")
	setStr(&cfg.Notify.SMTPUsername, "FLOORBOT_NOTIFY_SMTP_USERNAME")
	setStr(&cfg.Notify.SMTPPassword, "FLOORBOT_NOTIFY_SMTP_PASSWORD")

	// ── Top-level ──
	setStr(&cfg.Mode, "FLOORBOT_MODE")
	setStr(&cfg.LogLevel, "FLOORBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
