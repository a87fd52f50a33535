package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtrenches/trenchbot/internal/bot"
	"github.com/xtrenches/trenchbot/internal/notify"
	"github.com/xtrenches/trenchbot/internal/service"
	"github.com/xtrenches/trenchbot/internal/trading"
)

// archiveInterval is how often the archive loop checks for expired trades.
const archiveInterval = 24 * time.Hour

// subsystems holds the wired-up application components shared across modes.
type subsystems struct {
	trades   *service.TradeService
	users    *service.UserService
	executor *trading.Executor
	monitor  *trading.Monitor
	bot      *bot.Bot
}

// build assembles services and the trading components on top of the wired
// infrastructure.
func (a *App) build(deps *Dependencies) *subsystems {
	logger := a.logger

	trades := service.NewTradeService(deps.TradeStore, deps.Oracle, deps.PriceCache, logger)
	users := service.NewUserService(
		service.UserServiceConfig{
			MaxUsers:          a.cfg.Trading.MaxUsers,
			MaxWalletsPerUser: a.cfg.Trading.MaxWalletsPerUser,
		},
		deps.UserStore, deps.WalletStore, deps.Vault, logger,
	)

	executor := trading.NewExecutor(
		deps.Gateway,
		deps.Jupiter,
		deps.Vault,
		deps.JupiterPrice,
		trades,
		deps.WalletStore,
		deps.LockManager,
		trading.ExecutorConfig{
			MinBuySol:          a.cfg.Trading.MinBuySol,
			FeeReserveSol:      a.cfg.Trading.FeeReserveSol,
			DefaultSlippagePct: a.cfg.Trading.DefaultSlippagePct,
			MaxSlippagePct:     a.cfg.Trading.MaxSlippagePct,
			MaxRetries:         a.cfg.Monitor.MaxRpcRetries,
			RetryDelay:         a.cfg.Monitor.RetryDelay.Duration,
		},
		logger,
	)

	notifier := notify.NewTelegramNotifier(deps.BotAPI, deps.UserStore, logger)

	monitor := trading.NewMonitor(
		trading.MonitorConfig{
			Interval:      a.cfg.Monitor.PollInterval.Duration,
			TakeProfitPct: a.cfg.Monitor.TakeProfitPct,
			StopLossPct:   a.cfg.Monitor.StopLossPct,
		},
		trades,
		deps.Oracle,
		executor,
		deps.UserStore,
		notifier,
		deps.PriceCache,
		logger,
	)

	tgBot := bot.New(
		deps.BotAPI,
		bot.Config{
			MinBuySol:          a.cfg.Trading.MinBuySol,
			MinTradeBalanceSol: a.cfg.Trading.MinTradeBalanceSol,
			FeeReserveSol:      a.cfg.Trading.FeeReserveSol,
			TakeProfitPct:      a.cfg.Monitor.TakeProfitPct,
			StopLossPct:        a.cfg.Monitor.StopLossPct,
			MaxTradesPerMinute: a.cfg.Trading.MaxTradesPerMinute,
		},
		users, trades, executor, deps.Gateway, deps.Vault, deps.Oracle, deps.RateLimiter,
		logger,
	)

	return &subsystems{
		trades:   trades,
		users:    users,
		executor: executor,
		monitor:  monitor,
		bot:      tgBot,
	}
}

// BotMode runs only the Telegram front end: trading is manual, no TP/SL
// watcher.
func (a *App) BotMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting bot mode")
	sub := a.build(deps)
	return sub.bot.Run(ctx)
}

// MonitorMode runs only the TP/SL watcher over whatever open trades exist.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	sub := a.build(deps)

	sub.monitor.Start(ctx)
	defer sub.monitor.Stop()

	<-ctx.Done()
	return ctx.Err()
}

// FullMode runs the bot, the TP/SL monitor, and the archive loop together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	sub := a.build(deps)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sub.bot.Run(ctx)
	})

	sub.monitor.Start(ctx)
	defer sub.monitor.Stop()

	if deps.Archiver != nil {
		retention := time.Duration(a.cfg.S3.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps, retention)
		})
	}

	return g.Wait()
}

// runArchiveLoop periodically moves closed trades past the retention window
// to object storage. Failures are logged and retried on the next cycle.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies, retention time.Duration) error {
	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			count, err := deps.Archiver.Archive(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive run failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "archive run complete",
					slog.Int64("archived", count),
				)
			}
		}
	}
}
