package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRENCH_* environment variable overrides, and
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

// applyEnvOverrides reads well-known TRENCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Telegram ──
	setStr(&cfg.Telegram.Token, "TRENCH_TELEGRAM_TOKEN")

	// ── Solana / Jupiter / Dexscreener ──
	setStr(&cfg.Solana.RpcURL, "TRENCH_SOLANA_RPC_URL")
	setStr(&cfg.Jupiter.BaseURL, "TRENCH_JUPITER_BASE_URL")
	setStr(&cfg.Dexscreener.BaseURL, "TRENCH_DEXSCREENER_BASE_URL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRENCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRENCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRENCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRENCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRENCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRENCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRENCH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRENCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRENCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRENCH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRENCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRENCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRENCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRENCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRENCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRENCH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRENCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRENCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRENCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRENCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRENCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRENCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRENCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRENCH_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "TRENCH_S3_RETENTION_DAYS")

	// ── Security ──
	setStr(&cfg.Security.EncryptionSecret, "TRENCH_SECURITY_ENCRYPTION_SECRET")

	// ── Trading ──
	setFloat64(&cfg.Trading.MinBuySol, "TRENCH_TRADING_MIN_BUY_SOL")
	setFloat64(&cfg.Trading.MinTradeBalanceSol, "TRENCH_TRADING_MIN_TRADE_BALANCE_SOL")
	setFloat64(&cfg.Trading.DefaultSlippagePct, "TRENCH_TRADING_DEFAULT_SLIPPAGE_PCT")
	setFloat64(&cfg.Trading.MaxSlippagePct, "TRENCH_TRADING_MAX_SLIPPAGE_PCT")
	setFloat64(&cfg.Trading.FeeReserveSol, "TRENCH_TRADING_FEE_RESERVE_SOL")
	setInt(&cfg.Trading.MaxTradesPerMinute, "TRENCH_TRADING_MAX_TRADES_PER_MINUTE")
	setInt(&cfg.Trading.MaxUsers, "TRENCH_TRADING_MAX_USERS")
	setInt(&cfg.Trading.MaxWalletsPerUser, "TRENCH_TRADING_MAX_WALLETS_PER_USER")

	// ── Monitor ──
	setFloat64(&cfg.Monitor.TakeProfitPct, "TRENCH_MONITOR_TAKE_PROFIT_PCT")
	setFloat64(&cfg.Monitor.StopLossPct, "TRENCH_MONITOR_STOP_LOSS_PCT")
	setDuration(&cfg.Monitor.PollInterval, "TRENCH_MONITOR_POLL_INTERVAL")
	setInt(&cfg.Monitor.MaxRpcRetries, "TRENCH_MONITOR_MAX_RPC_RETRIES")
	setDuration(&cfg.Monitor.RetryDelay, "TRENCH_MONITOR_RETRY_DELAY")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRENCH_MODE")
	setStr(&cfg.LogLevel, "TRENCH_LOG_LEVEL")
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
