// Package bot implements the Telegram front end: command routing, the
// trading and wallet handlers, and the short-lived conversation state used
// for PIN prompts and destructive confirmations.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xtrenches/trenchbot/internal/domain"
	"github.com/xtrenches/trenchbot/internal/service"
	"github.com/xtrenches/trenchbot/internal/trading"
	"github.com/xtrenches/trenchbot/internal/wallet"
)

const (
	sessionTTL      = 60 * time.Second
	cleanupInterval = 5 * time.Minute
	rateLimitWindow = time.Minute
)

// Config carries the limits and thresholds the handlers show and enforce.
type Config struct {
	MinBuySol          float64
	MinTradeBalanceSol float64
	FeeReserveSol      float64
	TakeProfitPct      float64
	StopLossPct        float64
	MaxTradesPerMinute int
}

// Bot long-polls Telegram and dispatches commands.
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      Config
	users    *service.UserService
	trades   *service.TradeService
	executor *trading.Executor
	gateway  *wallet.Gateway
	vault    *wallet.Vault
	oracle   domain.PriceOracle
	limiter  domain.RateLimiter
	sessions *SessionStore
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(
	api *tgbotapi.BotAPI,
	cfg Config,
	users *service.UserService,
	trades *service.TradeService,
	executor *trading.Executor,
	gateway *wallet.Gateway,
	vault *wallet.Vault,
	oracle domain.PriceOracle,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *Bot {
	return &Bot{
		api:      api,
		cfg:      cfg,
		users:    users,
		trades:   trades,
		executor: executor,
		gateway:  gateway,
		vault:    vault,
		oracle:   oracle,
		limiter:  limiter,
		sessions: NewSessionStore(sessionTTL),
		logger:   logger.With(slog.String("component", "bot")),
	}
}

// Run long-polls for updates until the context is cancelled or Stop is
// called. Each update is handled on its own goroutine so a slow swap does
// not block the queue.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot: already running")
	}
	b.running = true
	b.stopCh = make(chan struct{})
	stopCh := b.stopCh
	b.mu.Unlock()

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := b.api.GetUpdatesChan(updateCfg)

	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	b.logger.Info("bot started", slog.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return ctx.Err()
		case <-stopCh:
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return nil
		case <-cleanup.C:
			b.sessions.Cleanup()
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			msg := update.Message
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				defer func() {
					if r := recover(); r != nil {
						b.logger.Error("handler panicked",
							slog.Any("panic", r),
							slog.Int64("telegram_id", msg.From.ID),
						)
						b.reply(msg.Chat.ID, "Something went wrong. Try again.")
					}
				}()
				b.handleMessage(ctx, msg)
			}()
		}
	}
}

// Stop halts polling and waits for in-flight handlers.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	b.mu.Unlock()
	b.logger.Info("bot stopping")
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.sessions.Clear(msg.From.ID)
		b.handleCommand(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	// A non-command message either answers a pending prompt or is a pasted
	// token address we can scan.
	if sess, ok := b.sessions.Take(msg.From.ID); ok {
		b.handleSession(ctx, msg, sess, text)
		return
	}
	if wallet.IsValidAddress(text) {
		b.handleScan(ctx, msg, text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "help":
		b.reply(msg.Chat.ID, b.helpText())
	case "balance":
		b.handleBalance(ctx, msg)
	case "buy":
		b.handleBuy(ctx, msg, args)
	case "sell":
		b.handleSell(ctx, msg, args)
	case "positions":
		b.handlePositions(ctx, msg)
	case "pnl", "closed":
		b.handleClosed(ctx, msg)
	case "scan", "analyze":
		if len(args) < 1 {
			b.reply(msg.Chat.ID, "Usage: /scan <token_address>")
			return
		}
		b.handleScan(ctx, msg, args[0])
	case "withdraw":
		b.handleWithdraw(ctx, msg, args)
	case "setpin":
		b.handleSetPin(ctx, msg, args)
	case "settings":
		b.handleSettings(ctx, msg)
	case "tp":
		b.handleToggle(ctx, msg, args, true)
	case "sl":
		b.handleToggle(ctx, msg, args, false)
	case "wallets":
		b.handleWallets(ctx, msg)
	case "addwallet":
		b.handleAddWallet(ctx, msg, args)
	case "usewallet":
		b.handleUseWallet(ctx, msg, args)
	case "removewallet":
		b.handleRemoveWallet(ctx, msg, args)
	case "exportkey":
		b.handleExportKey(ctx, msg, args)
	default:
		b.reply(msg.Chat.ID, "Unknown command. /help for the list.")
	}
}

// handleSession resumes a flow that was waiting for user input.
func (b *Bot) handleSession(ctx context.Context, msg *tgbotapi.Message, sess Session, text string) {
	if strings.EqualFold(text, "cancel") {
		b.reply(msg.Chat.ID, "Cancelled.")
		return
	}

	switch sess.Kind {
	case SessionPendingWithdraw:
		b.completeWithdraw(ctx, msg, sess, text)
	case SessionAwaitPinExport:
		b.completeExportKey(ctx, msg, sess, text)
	case SessionPendingRemoval:
		b.completeRemoveWallet(ctx, msg, sess, text)
	default:
		b.reply(msg.Chat.ID, "Session expired. Start again.")
	}
}

// requireUser resolves the sender to a registered user, replying with the
// registration hint when unknown.
func (b *Bot) requireUser(ctx context.Context, msg *tgbotapi.Message) (domain.User, bool) {
	user, err := b.users.Get(ctx, msg.From.ID)
	if err != nil {
		b.reply(msg.Chat.ID, "Not registered. Run /start first.")
		return domain.User{}, false
	}
	return user, true
}

// checkTradeRate enforces the per-user trade rate limit. Limiter errors fail
// open so a Redis hiccup does not halt trading.
func (b *Bot) checkTradeRate(ctx context.Context, msg *tgbotapi.Message, userID string) bool {
	allowed, err := b.limiter.Allow(ctx, "trades:"+userID, b.cfg.MaxTradesPerMinute, rateLimitWindow)
	if err != nil {
		b.logger.WarnContext(ctx, "rate limit check failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return true
	}
	if !allowed {
		b.reply(msg.Chat.ID, "Slow down soldier.")
		return false
	}
	return true
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("reply failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bot) helpText() string {
	return fmt.Sprintf(`TRENCHBOT Commands

Trading:
/buy <CA> <SOL> - Buy token
/sell <CA> [percent] - Sell token (default: 100%%)

Portfolio:
/positions - Open positions
/pnl - Closed trade history
/balance - Check wallet balance

Analysis:
/scan <CA> - Token entry score

Wallet:
/withdraw <SOL> <address> - Withdraw to external
/setpin <4 digits> - Set/change PIN
/wallets - List wallets
/addwallet [label] - Create extra wallet
/usewallet <id> - Switch active wallet
/removewallet <id> - Remove a wallet
/exportkey <id> - Export private key (PIN)

Settings:
/settings - View current settings
/tp on|off - Auto take profit (+%.0f%%)
/sl on|off - Auto stop loss (%.0f%%)

WAGMI`, b.cfg.TakeProfitPct, b.cfg.StopLossPct)
}
