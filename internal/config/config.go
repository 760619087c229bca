// Package config defines the daemon configuration: a TOML file layered
// under CTFD_* environment overrides, with validation that reports every
// problem in one pass.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// duration wraps time.Duration so TOML can carry values like "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root configuration structure. Fields come from a TOML file
// and may then be overridden by CTFD_* environment variables.
type Config struct {
	Identity   IdentityConfig   `toml:"identity"`
	Auth       AuthConfig       `toml:"auth"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Collateral CollateralConfig `toml:"collateral"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// IdentityConfig holds the service's secp256k1 key. Its derived address is
// the collateral custody account, so it must stay stable across restarts.
type IdentityConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// AuthConfig holds API authentication parameters.
type AuthConfig struct {
	// SessionSecret signs HMAC session tokens minted after signature login.
	SessionSecret string   `toml:"session_secret"`
	SessionTTL    duration `toml:"session_ttl"`
	// MaxClockSkew bounds how far a login message timestamp may drift from
	// server time.
	MaxClockSkew duration `toml:"max_clock_skew"`
	// APIKeys grant access to the operations surface (status, pipeline).
	APIKeys []string `toml:"api_keys"`
}

// LedgerConfig holds engine parameters. ChainID partitions auth signature
// domains between deployments.
type LedgerConfig struct {
	ChainID int `toml:"chain_id"`
}

// CollateralAssetConfig describes one collateral token to register at boot.
type CollateralAssetConfig struct {
	Address  string `toml:"address"`
	Symbol   string `toml:"symbol"`
	Name     string `toml:"name"`
	Decimals int    `toml:"decimals"`
}

// CollateralConfig seeds the collateral asset registry. AllowMint exposes
// the faucet endpoint and belongs in development deployments only.
type CollateralConfig struct {
	Assets    []CollateralAssetConfig `toml:"assets"`
	AllowMint bool                    `toml:"allow_mint"`
}

// PostgresConfig holds primary store connection parameters. A non-empty DSN
// wins over the individual fields.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds cache and signal bus connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds cold storage parameters for any S3-compatible provider.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig holds background worker parameters.
type PipelineConfig struct {
	Enabled              bool     `toml:"enabled"`
	SnapshotInterval     duration `toml:"snapshot_interval"`
	ArchiveInterval      duration `toml:"archive_interval"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveBatchSize     int      `toml:"archive_batch_size"`
}

// ServerConfig holds HTTP server parameters. RateLimit caps requests per
// caller per RateWindow; 0 disables limiting.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Auth: AuthConfig{
			SessionTTL:   duration{24 * time.Hour},
			MaxClockSkew: duration{5 * time.Minute},
		},
		Ledger: LedgerConfig{
			ChainID: 7777,
		},
		Collateral: CollateralConfig{
			Assets:    []CollateralAssetConfig{},
			AllowMint: false,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "ctfd-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Pipeline: PipelineConfig{
			Enabled:              false,
			SnapshotInterval:     duration{time.Hour},
			ArchiveInterval:      duration{24 * time.Hour},
			ArchiveRetentionDays: 90,
			ArchiveBatchSize:     5000,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"condition_resolution", "payout_redemption", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// problems collects validation findings so one pass reports them all.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// Validate checks the configuration and returns a single error naming every
// problem found, or nil.
func (c *Config) Validate() error {
	var p problems

	mode := strings.ToLower(c.Mode)
	if !oneOf(mode, "serve", "archive", "monitor", "full") {
		p.addf("unknown mode %q (valid: serve, archive, monitor, full)", c.Mode)
	}
	if !oneOf(strings.ToLower(c.LogLevel), "debug", "info", "warn", "error") {
		p.addf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	if c.Ledger.ChainID <= 0 {
		p.addf("ledger: chain_id must be positive")
	}

	c.checkIdentity(mode, &p)
	c.checkAuth(&p)
	c.checkCollateral(&p)
	c.checkPostgres(&p)
	c.checkRedis(&p)
	c.checkS3(&p)
	c.checkPipeline(mode, &p)
	c.checkServer(&p)

	if len(p) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}
	return nil
}

// Mutating modes hold custody funds keyed on the identity address, so they
// need a key; read-only modes run without one.
func (c *Config) checkIdentity(mode string, p *problems) {
	if mode != "serve" && mode != "full" {
		return
	}
	if c.Identity.PrivateKey == "" && c.Identity.EncryptedKeyPath == "" {
		p.addf("identity: either private_key or encrypted_key_path must be set for mode %s", c.Mode)
	}
	if c.Identity.EncryptedKeyPath != "" && c.Identity.KeyPassword == "" {
		p.addf("identity: key_password is required when encrypted_key_path is set")
	}
}

func (c *Config) checkAuth(p *problems) {
	if !c.Server.Enabled {
		return
	}
	switch {
	case c.Auth.SessionSecret == "":
		p.addf("auth: session_secret must be set when the server is enabled")
	case len(c.Auth.SessionSecret) < 32:
		p.addf("auth: session_secret must be at least 32 characters")
	}
	if c.Auth.SessionTTL.Duration <= 0 {
		p.addf("auth: session_ttl must be positive")
	}
	if c.Auth.MaxClockSkew.Duration <= 0 {
		p.addf("auth: max_clock_skew must be positive")
	}
}

func (c *Config) checkCollateral(p *problems) {
	seen := make(map[common.Address]bool)
	for i, a := range c.Collateral.Assets {
		if !common.IsHexAddress(a.Address) {
			p.addf("collateral: assets[%d]: %q is not a hex address", i, a.Address)
			continue
		}
		addr := common.HexToAddress(a.Address)
		if seen[addr] {
			p.addf("collateral: assets[%d]: duplicate address %s", i, a.Address)
		}
		seen[addr] = true
		if a.Symbol == "" {
			p.addf("collateral: assets[%d]: symbol must not be empty", i)
		}
		if a.Decimals < 0 || a.Decimals > 18 {
			p.addf("collateral: assets[%d]: decimals must be 0-18, got %d", i, a.Decimals)
		}
	}
}

func (c *Config) checkPostgres(p *problems) {
	pg := c.Postgres
	if strings.TrimSpace(pg.DSN) == "" {
		if pg.Host == "" {
			p.addf("postgres: host must not be empty (or set postgres.dsn)")
		}
		if pg.Port <= 0 || pg.Port > 65535 {
			p.addf("postgres: port must be 1-65535, got %d", pg.Port)
		}
		if pg.Database == "" {
			p.addf("postgres: database must not be empty")
		}
	}
	if pg.PoolMaxConns < 1 {
		p.addf("postgres: pool_max_conns must be >= 1")
	}
	if pg.PoolMinConns < 0 {
		p.addf("postgres: pool_min_conns must be >= 0")
	}
	if pg.PoolMinConns > pg.PoolMaxConns {
		p.addf("postgres: pool_min_conns must not exceed pool_max_conns")
	}
}

func (c *Config) checkRedis(p *problems) {
	if c.Redis.Addr == "" {
		p.addf("redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		p.addf("redis: pool_size must be >= 1")
	}
}

func (c *Config) checkS3(p *problems) {
	if c.S3.Endpoint == "" {
		p.addf("s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		p.addf("s3: bucket must not be empty")
	}
}

// The pipeline settings matter whenever the workers can run: archive mode
// unconditionally, full mode when pipeline.enabled is set.
func (c *Config) checkPipeline(mode string, p *problems) {
	if !c.Pipeline.Enabled && mode != "archive" {
		return
	}
	if c.Pipeline.SnapshotInterval.Duration <= 0 {
		p.addf("pipeline: snapshot_interval must be positive")
	}
	if c.Pipeline.ArchiveInterval.Duration <= 0 {
		p.addf("pipeline: archive_interval must be positive")
	}
	if c.Pipeline.ArchiveRetentionDays < 1 {
		p.addf("pipeline: archive_retention_days must be >= 1")
	}
	if c.Pipeline.ArchiveBatchSize < 1 {
		p.addf("pipeline: archive_batch_size must be >= 1")
	}
}

func (c *Config) checkServer(p *problems) {
	if !c.Server.Enabled {
		return
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		p.addf("server: port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		p.addf("server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		p.addf("server: rate_window must be positive when rate_limit is set")
	}
}
