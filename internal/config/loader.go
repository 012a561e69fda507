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
// built-in defaults, applies RISKD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known RISKD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Account ──
	setStr(&cfg.Account.ID, "RISKD_ACCOUNT_ID")
	setFloat64(&cfg.Account.StartingBalance, "RISKD_ACCOUNT_STARTING_BALANCE")

	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "RISKD_FEED_WS_URL")
	setStringSlice(&cfg.Feed.Symbols, "RISKD_FEED_SYMBOLS")
	setInt(&cfg.Feed.BatchSize, "RISKD_FEED_BATCH_SIZE")
	setDuration(&cfg.Feed.FlushInterval, "RISKD_FEED_FLUSH_INTERVAL")

	// ── Risk ──
	setInt(&cfg.Risk.MinLeverage, "RISKD_RISK_MIN_LEVERAGE")
	setInt(&cfg.Risk.MaxLeverage, "RISKD_RISK_MAX_LEVERAGE")
	setDuration(&cfg.Risk.PriceMaxAge, "RISKD_RISK_PRICE_MAX_AGE")
	setFloat64(&cfg.Risk.MaxSlippageBps, "RISKD_RISK_MAX_SLIPPAGE_BPS")
	setFloat64(&cfg.Risk.SanityBandPct, "RISKD_RISK_SANITY_BAND_PCT")
	setDuration(&cfg.Risk.LiquidationInterval, "RISKD_RISK_LIQUIDATION_INTERVAL")
	setDuration(&cfg.Risk.CloseLockTTL, "RISKD_RISK_CLOSE_LOCK_TTL")
	setFloat64(&cfg.Risk.MaintenanceRate, "RISKD_RISK_MAINTENANCE_RATE")
	setInt(&cfg.Risk.OrdersPerMinute, "RISKD_RISK_ORDERS_PER_MINUTE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "RISKD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "RISKD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RISKD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RISKD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RISKD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RISKD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RISKD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RISKD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RISKD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RISKD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "RISKD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RISKD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RISKD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RISKD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RISKD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RISKD_REDIS_TLS_ENABLED")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "RISKD_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "RISKD_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "RISKD_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "RISKD_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "RISKD_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "RISKD_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "RISKD_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "RISKD_ARCHIVE_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "RISKD_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "RISKD_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RISKD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RISKD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "RISKD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "RISKD_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RISKD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RISKD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RISKD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RISKD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "RISKD_MODE")
	setStr(&cfg.LogLevel, "RISKD_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
