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
// built-in defaults, applies CTFD_* environment variable overrides, and
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

// applyEnvOverrides replaces config values with CTFD_-prefixed environment
// variables when they are set. Environment always wins over file values.
func applyEnvOverrides(cfg *Config) {
	// Top level
	setStr(&cfg.Mode, "CTFD_MODE")
	setStr(&cfg.LogLevel, "CTFD_LOG_LEVEL")

	// Identity
	setStr(&cfg.Identity.PrivateKey, "CTFD_PRIVATE_KEY")
	setStr(&cfg.Identity.EncryptedKeyPath, "CTFD_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Identity.KeyPassword, "CTFD_KEY_PASSWORD")

	// Auth
	setStr(&cfg.Auth.SessionSecret, "CTFD_SESSION_SECRET")
	setDuration(&cfg.Auth.SessionTTL, "CTFD_SESSION_TTL")
	setDuration(&cfg.Auth.MaxClockSkew, "CTFD_MAX_CLOCK_SKEW")
	setStringSlice(&cfg.Auth.APIKeys, "CTFD_API_KEYS")

	// Ledger
	setInt(&cfg.Ledger.ChainID, "CTFD_CHAIN_ID")

	// Collateral
	setBool(&cfg.Collateral.AllowMint, "CTFD_ALLOW_MINT")

	// Postgres
	setStr(&cfg.Postgres.DSN, "CTFD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CTFD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CTFD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CTFD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CTFD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CTFD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CTFD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CTFD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CTFD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CTFD_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setStr(&cfg.Redis.Addr, "CTFD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CTFD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CTFD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CTFD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CTFD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CTFD_REDIS_TLS_ENABLED")

	// S3
	setStr(&cfg.S3.Endpoint, "CTFD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CTFD_S3_REGION")
	setStr(&cfg.S3.Bucket, "CTFD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CTFD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CTFD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CTFD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CTFD_S3_FORCE_PATH_STYLE")

	// Pipeline
	setBool(&cfg.Pipeline.Enabled, "CTFD_PIPELINE_ENABLED")
	setDuration(&cfg.Pipeline.SnapshotInterval, "CTFD_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Pipeline.ArchiveInterval, "CTFD_ARCHIVE_INTERVAL")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "CTFD_ARCHIVE_RETENTION_DAYS")
	setInt(&cfg.Pipeline.ArchiveBatchSize, "CTFD_ARCHIVE_BATCH_SIZE")

	// Server
	setBool(&cfg.Server.Enabled, "CTFD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CTFD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CTFD_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "CTFD_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CTFD_RATE_WINDOW")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "CTFD_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CTFD_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CTFD_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CTFD_NOTIFY_EVENTS")
}

// ---------------------------------------------------------------------------
// Typed environment setters
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
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
