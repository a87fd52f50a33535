package app

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	s3blob "github.com/xtrenches/trenchbot/internal/blob/s3"
	"github.com/xtrenches/trenchbot/internal/cache/redis"
	"github.com/xtrenches/trenchbot/internal/config"
	"github.com/xtrenches/trenchbot/internal/domain"
	"github.com/xtrenches/trenchbot/internal/oracle"
	"github.com/xtrenches/trenchbot/internal/store/postgres"
	"github.com/xtrenches/trenchbot/internal/trading"
	"github.com/xtrenches/trenchbot/internal/wallet"
)

// Dependencies bundles every dependency that the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	TradeStore  domain.TradeStore
	UserStore   domain.UserStore
	WalletStore domain.WalletStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Chain and market access
	Vault        *wallet.Vault
	Gateway      *wallet.Gateway
	Jupiter      *trading.JupiterClient
	JupiterPrice *oracle.JupiterPrice
	Oracle       domain.PriceOracle

	// Telegram
	BotAPI *tgbotapi.BotAPI

	// Trade archive; nil unless s3.enabled.
	Archiver *s3blob.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	tradeStore := postgres.NewTradeStore(pool)
	deps.TradeStore = tradeStore
	deps.UserStore = postgres.NewUserStore(pool)
	deps.WalletStore = postgres.NewWalletStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- Key vault and chain gateway ---
	vault, err := wallet.NewVault(cfg.Security.EncryptionSecret)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: vault: %w", err)
	}
	deps.Vault = vault
	deps.Gateway = wallet.NewGateway(cfg.Solana.RpcURL, logger)

	// --- Market clients ---
	deps.Jupiter = trading.NewJupiterClient(cfg.Jupiter.BaseURL, logger)
	deps.JupiterPrice = oracle.NewJupiterPrice(cfg.Jupiter.BaseURL, logger)
	deps.Oracle = oracle.NewDexscreener(cfg.Dexscreener.BaseURL, logger)

	// --- Telegram ---
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: telegram: %w", err)
	}
	deps.BotAPI = botAPI

	// --- S3 trade archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), tradeStore, logger)
	}

	return deps, cleanup, nil
}
