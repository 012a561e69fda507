// Package config defines the top-level configuration for the risk daemon and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by RISKD_* environment variables.
type Config struct {
	Account  AccountConfig  `toml:"account"`
	Feed     FeedConfig     `toml:"feed"`
	Risk     RiskConfig     `toml:"risk"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// AccountConfig describes the demo account bootstrapped at startup.
type AccountConfig struct {
	ID              string  `toml:"id"`
	StartingBalance float64 `toml:"starting_balance"`
}

// FeedConfig holds upstream feed and ingestion batching parameters.
type FeedConfig struct {
	WsURL         string   `toml:"ws_url"`
	Symbols       []string `toml:"symbols"`
	BatchSize     int      `toml:"batch_size"`
	FlushInterval duration `toml:"flush_interval"`
}

// RiskConfig holds the tunables for admission control, the liquidation scan
// and the conditional-order watcher.
type RiskConfig struct {
	MinLeverage int `toml:"min_leverage"`
	MaxLeverage int `toml:"max_leverage"`

	// PriceMaxAge is the staleness threshold for admission; an older mark
	// rejects the order instead of blocking.
	PriceMaxAge duration `toml:"price_max_age"`

	// MaxSlippageBps bounds the distance between a caller-supplied price and
	// the authoritative mark, in basis points.
	MaxSlippageBps float64 `toml:"max_slippage_bps"`

	// SanityBandPct rejects client prices more than this fraction away from
	// the mark outright, regardless of slippage tolerance.
	SanityBandPct float64 `toml:"sanity_band_pct"`

	// LiquidationInterval is the cadence of the enforcement scan. This is a
	// deliberate responsiveness/load trade-off, not a sub-second SLA.
	LiquidationInterval duration `toml:"liquidation_interval"`

	// CloseLockTTL is the expiry on the per-position close lock.
	CloseLockTTL duration `toml:"close_lock_ttl"`

	// MaintenanceRate overrides the leverage-tiered maintenance schedule with
	// a flat rate when > 0.
	MaintenanceRate float64 `toml:"maintenance_rate"`

	// OrdersPerMinute rate-limits the order placement surface per account.
	OrdersPerMinute int `toml:"orders_per_minute"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ArchiveConfig holds tick archival parameters. When enabled, ticks older
// than the retention window are exported to object storage and deleted.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	RetentionDays  int      `toml:"retention_days"`
	Interval       duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials. Events restricts
// delivery to the listed alert types (TP_HIT, SL_HIT, LIQUIDATED); an empty
// list delivers all of them.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "1m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "1m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Account: AccountConfig{
			ID:              "demo",
			StartingBalance: 5000,
		},
		Feed: FeedConfig{
			WsURL:         "wss://fstream.binance.com/stream",
			Symbols:       []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"},
			BatchSize:     100,
			FlushInterval: duration{time.Second},
		},
		Risk: RiskConfig{
			MinLeverage:         1,
			MaxLeverage:         100,
			PriceMaxAge:         duration{5 * time.Second},
			MaxSlippageBps:      50,
			SanityBandPct:       0.10,
			LiquidationInterval: duration{time.Second},
			CloseLockTTL:        duration{3 * time.Second},
			MaintenanceRate:     0,
			OrdersPerMinute:     60,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "xness",
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
		Archive: ArchiveConfig{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "riskd-ticks",
			UseSSL:         false,
			ForcePathStyle: true,
			RetentionDays:  90,
			Interval:       duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8081,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: nil, // deliver every closure alert
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"feed":   true,
	"risk":   true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, feed, risk, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Account.ID) == "" {
		errs = append(errs, "account: id must be set")
	}
	if c.Account.StartingBalance < 0 {
		errs = append(errs, "account: starting_balance must not be negative")
	}

	if c.Feed.WsURL == "" {
		errs = append(errs, "feed: ws_url must be set")
	}
	if len(c.Feed.Symbols) == 0 {
		errs = append(errs, "feed: at least one symbol must be configured")
	}
	if c.Feed.BatchSize <= 0 {
		errs = append(errs, "feed: batch_size must be positive")
	}
	if c.Feed.FlushInterval.Duration <= 0 {
		errs = append(errs, "feed: flush_interval must be positive")
	}

	if c.Risk.MinLeverage < 1 {
		errs = append(errs, "risk: min_leverage must be at least 1")
	}
	if c.Risk.MaxLeverage < c.Risk.MinLeverage {
		errs = append(errs, "risk: max_leverage must not be below min_leverage")
	}
	if c.Risk.PriceMaxAge.Duration <= 0 {
		errs = append(errs, "risk: price_max_age must be positive")
	}
	if c.Risk.MaxSlippageBps < 0 {
		errs = append(errs, "risk: max_slippage_bps must not be negative")
	}
	if c.Risk.LiquidationInterval.Duration <= 0 {
		errs = append(errs, "risk: liquidation_interval must be positive")
	}
	if c.Risk.CloseLockTTL.Duration <= 0 {
		errs = append(errs, "risk: close_lock_ttl must be positive")
	}
	if c.Risk.MaintenanceRate < 0 || c.Risk.MaintenanceRate >= 1 {
		errs = append(errs, "risk: maintenance_rate must be in [0, 1)")
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must be set when enabled")
		}
		if c.Archive.RetentionDays <= 0 {
			errs = append(errs, "archive: retention_days must be positive when enabled")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: invalid port %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
