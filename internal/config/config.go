// Package config defines the top-level configuration for the trench bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRENCH_* environment variables.
type Config struct {
	Telegram    TelegramConfig    `toml:"telegram"`
	Solana      SolanaConfig      `toml:"solana"`
	Jupiter     JupiterConfig     `toml:"jupiter"`
	Dexscreener DexscreenerConfig `toml:"dexscreener"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Security    SecurityConfig    `toml:"security"`
	Trading     TradingConfig     `toml:"trading"`
	Monitor     MonitorConfig     `toml:"monitor"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// TelegramConfig holds the bot API credentials.
type TelegramConfig struct {
	Token string `toml:"token"`
}

// SolanaConfig holds the RPC endpoint (Helius or any standard RPC node).
type SolanaConfig struct {
	RpcURL string `toml:"rpc_url"`
}

// JupiterConfig holds the swap aggregator endpoints.
type JupiterConfig struct {
	BaseURL string `toml:"base_url"`
}

// DexscreenerConfig holds the market data API endpoint.
type DexscreenerConfig struct {
	BaseURL string `toml:"base_url"`
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

// S3Config holds S3-compatible object storage parameters for the trade
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// SecurityConfig holds the key-encryption secret.
type SecurityConfig struct {
	EncryptionSecret string `toml:"encryption_secret"`
}

// TradingConfig holds the buy/sell limits.
type TradingConfig struct {
	MinBuySol          float64 `toml:"min_buy_sol"`
	MinTradeBalanceSol float64 `toml:"min_trade_balance_sol"`
	DefaultSlippagePct float64 `toml:"default_slippage_pct"`
	MaxSlippagePct     float64 `toml:"max_slippage_pct"`
	FeeReserveSol      float64 `toml:"fee_reserve_sol"`
	MaxTradesPerMinute int     `toml:"max_trades_per_minute"`
	MaxUsers           int     `toml:"max_users"`
	MaxWalletsPerUser  int     `toml:"max_wallets_per_user"`
}

// MonitorConfig holds the TP/SL monitor thresholds and the transaction retry
// policy.
type MonitorConfig struct {
	TakeProfitPct float64  `toml:"take_profit_pct"`
	StopLossPct   float64  `toml:"stop_loss_pct"`
	PollInterval  duration `toml:"poll_interval"`
	MaxRpcRetries int      `toml:"max_rpc_retries"`
	RetryDelay    duration `toml:"retry_delay"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "15s", "1m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "15s".
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
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RpcURL: "https://api.mainnet-beta.solana.com",
		},
		Jupiter: JupiterConfig{
			BaseURL: "https://lite-api.jup.ag",
		},
		Dexscreener: DexscreenerConfig{
			BaseURL: "https://api.dexscreener.com",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "trenchbot",
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
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "trenchbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Trading: TradingConfig{
			MinBuySol:          0.05,
			MinTradeBalanceSol: 0.1,
			DefaultSlippagePct: 20,
			MaxSlippagePct:     50,
			FeeReserveSol:      0.01,
			MaxTradesPerMinute: 5,
			MaxUsers:           20,
			MaxWalletsPerUser:  3,
		},
		Monitor: MonitorConfig{
			TakeProfitPct: 80,
			StopLossPct:   -25,
			PollInterval:  duration{15 * time.Second},
			MaxRpcRetries: 2,
			RetryDelay:    duration{time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"bot":     true,
	"monitor": true,
	"full":    true,
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: bot, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Telegram.Token == "" {
		errs = append(errs, "telegram: token must not be empty")
	}
	if c.Solana.RpcURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}
	if c.Jupiter.BaseURL == "" {
		errs = append(errs, "jupiter: base_url must not be empty")
	}
	if c.Dexscreener.BaseURL == "" {
		errs = append(errs, "dexscreener: base_url must not be empty")
	}

	if c.Security.EncryptionSecret == "" {
		errs = append(errs, "security: encryption_secret must not be empty")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 (only when the archive is on)
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1 when enabled")
		}
	}

	// Trading
	if c.Trading.MinBuySol <= 0 {
		errs = append(errs, "trading: min_buy_sol must be > 0")
	}
	if c.Trading.MinTradeBalanceSol <= 0 {
		errs = append(errs, "trading: min_trade_balance_sol must be > 0")
	}
	if c.Trading.DefaultSlippagePct <= 0 {
		errs = append(errs, "trading: default_slippage_pct must be > 0")
	}
	if c.Trading.MaxSlippagePct < c.Trading.DefaultSlippagePct {
		errs = append(errs, "trading: max_slippage_pct must not be below default_slippage_pct")
	}
	if c.Trading.FeeReserveSol < 0 {
		errs = append(errs, "trading: fee_reserve_sol must be >= 0")
	}
	if c.Trading.MaxTradesPerMinute < 1 {
		errs = append(errs, "trading: max_trades_per_minute must be >= 1")
	}
	if c.Trading.MaxUsers < 1 {
		errs = append(errs, "trading: max_users must be >= 1")
	}
	if c.Trading.MaxWalletsPerUser < 1 {
		errs = append(errs, "trading: max_wallets_per_user must be >= 1")
	}

	// Monitor
	if c.Monitor.TakeProfitPct <= 0 {
		errs = append(errs, "monitor: take_profit_pct must be > 0")
	}
	if c.Monitor.StopLossPct >= 0 {
		errs = append(errs, "monitor: stop_loss_pct must be < 0")
	}
	if c.Monitor.PollInterval.Duration <= 0 {
		errs = append(errs, "monitor: poll_interval must be > 0")
	}
	if c.Monitor.MaxRpcRetries < 0 {
		errs = append(errs, "monitor: max_rpc_retries must be >= 0")
	}
	if c.Monitor.RetryDelay.Duration < 0 {
		errs = append(errs, "monitor: retry_delay must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
