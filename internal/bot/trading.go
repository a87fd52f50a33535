package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xtrenches/trenchbot/internal/domain"
	"github.com/xtrenches/trenchbot/internal/scoring"
	"github.com/xtrenches/trenchbot/internal/wallet"
)

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	_, w, err := b.users.Register(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUserLimit) {
			b.reply(msg.Chat.ID, "Closed beta is full.\n\nCome back next deployment.")
			return
		}
		b.logger.ErrorContext(ctx, "registration failed",
			slog.Int64("telegram_id", msg.From.ID),
			slog.String("error", err.Error()),
		)
		b.reply(msg.Chat.ID, "Something broke. Try again.")
		return
	}

	balance, err := b.gateway.SolBalance(ctx, w.PublicKey)
	if err != nil {
		b.logger.WarnContext(ctx, "balance fetch failed", slog.String("error", err.Error()))
	}

	b.reply(msg.Chat.ID, fmt.Sprintf(`Welcome to the trenches.

Send SOL to this war wallet:
%s

Balance: %.4f SOL
Minimum to fight: %g SOL
Minimum buy: %g SOL

You're not here to spectate.

/help for all commands.`,
		w.PublicKey, balance, b.cfg.MinTradeBalanceSol, b.cfg.MinBuySol))
}

func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}
	w, err := b.users.ActiveWallet(ctx, user.ID)
	if err != nil {
		b.reply(msg.Chat.ID, "No active wallet.")
		return
	}

	balance, err := b.gateway.SolBalance(ctx, w.PublicKey)
	if err != nil {
		b.reply(msg.Chat.ID, "Failed to fetch balance.")
		return
	}

	status := "Ready to fight."
	if balance < b.cfg.MinTradeBalanceSol {
		status = "Deposit more to trade."
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Wallet: %s\n\nBalance: %.6f SOL\n\n%s", w.PublicKey, balance, status))
}

func (b *Bot) handleBuy(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 2 {
		b.reply(msg.Chat.ID, "Usage: /buy <token_address> <SOL_amount>\n\nExample: /buy So11111... 0.1")
		return
	}
	tokenAddress := args[0]
	if !wallet.IsValidAddress(tokenAddress) {
		b.reply(msg.Chat.ID, "Invalid token address.")
		return
	}
	amountSol, err := strconv.ParseFloat(args[1], 64)
	if err != nil || amountSol <= 0 {
		b.reply(msg.Chat.ID, "Invalid SOL amount.")
		return
	}
	if amountSol < b.cfg.MinBuySol {
		b.reply(msg.Chat.ID, fmt.Sprintf("Minimum buy: %g SOL", b.cfg.MinBuySol))
		return
	}

	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}

	w, err := b.users.ActiveWallet(ctx, user.ID)
	if err != nil {
		b.reply(msg.Chat.ID, "No active wallet.")
		return
	}
	balance, err := b.gateway.SolBalance(ctx, w.PublicKey)
	if err != nil {
		b.reply(msg.Chat.ID, "Failed to fetch balance.")
		return
	}
	if balance < b.cfg.MinTradeBalanceSol {
		b.reply(msg.Chat.ID, fmt.Sprintf("Minimum balance: %g SOL\nCurrent: %.4f SOL", b.cfg.MinTradeBalanceSol, balance))
		return
	}

	if !b.checkTradeRate(ctx, msg, user.ID) {
		return
	}

	if _, err := b.trades.GetOpenByToken(ctx, user.ID, tokenAddress); err == nil {
		b.reply(msg.Chat.ID, "Already have open position on this token.\nSell first or use different token.")
		return
	}

	b.reply(msg.Chat.ID, "Executing buy...")

	res := b.executor.Buy(ctx, user.ID, tokenAddress, amountSol, 0)
	if !res.Success {
		b.reply(msg.Chat.ID, "Buy failed: "+res.Err)
		return
	}

	symbol := b.tokenSymbol(ctx, tokenAddress)
	b.reply(msg.Chat.ID, fmt.Sprintf(`BUY EXECUTED

Token: %s
Amount: %.4f SOL
Tx: %s...

Position open. Watch it or set TP/SL.`,
		symbol, amountSol, shortSig(res.Signature)))
}

func (b *Bot) handleSell(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 1 {
		b.reply(msg.Chat.ID, "Usage: /sell <token_address> [percent]\n\nExamples:\n/sell So11111... 100 (sell all)\n/sell So11111... 50 (sell half)")
		return
	}
	tokenAddress := args[0]
	if !wallet.IsValidAddress(tokenAddress) {
		b.reply(msg.Chat.ID, "Invalid token address.")
		return
	}
	percent := 100.0
	if len(args) > 1 {
		p, err := strconv.ParseFloat(args[1], 64)
		if err != nil || p <= 0 || p > 100 {
			b.reply(msg.Chat.ID, "Invalid percentage (1-100).")
			return
		}
		percent = p
	}

	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}
	if !b.checkTradeRate(ctx, msg, user.ID) {
		return
	}

	b.reply(msg.Chat.ID, "Executing sell...")

	res := b.executor.Sell(ctx, user.ID, tokenAddress, percent, 0)
	switch {
	case res.Busy:
		b.reply(msg.Chat.ID, "Position busy. A close is already in flight; try again in a moment.")
		return
	case !res.Success:
		b.reply(msg.Chat.ID, "Sell failed: "+res.Err)
		return
	}

	outcome := "Profit secured."
	if res.PnlSol < 0 {
		outcome = "Loss cut. Move on."
	}
	b.reply(msg.Chat.ID, fmt.Sprintf(`SELL EXECUTED

Sold: %g%%
PNL: %+.2f%% (%+.4f SOL)
Tx: %s...

%s`, percent, res.PnlPercent, res.PnlSol, shortSig(res.Signature), outcome))
}

func (b *Bot) handlePositions(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}

	views, err := b.trades.OpenPositions(ctx, user.ID)
	if err != nil {
		b.reply(msg.Chat.ID, "Failed to fetch positions.")
		return
	}
	if len(views) == 0 {
		b.reply(msg.Chat.ID, "No open positions.\n\nUse /buy <CA> <SOL> to enter.")
		return
	}

	var sb strings.Builder
	sb.WriteString("OPEN POSITIONS\n")
	for _, v := range views {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("CA: %s\n", shortAddr(v.Trade.TokenAddress)))
		sb.WriteString(fmt.Sprintf("Entry: %.4f SOL\n", v.Trade.AmountSol))
		if v.Priced {
			sb.WriteString(fmt.Sprintf("PNL: %+.2f%% (%+.4f SOL)\n", v.PnlPercent, v.PnlSol))
		} else {
			sb.WriteString("PNL: n/a\n")
		}
	}
	b.reply(msg.Chat.ID, sb.String())
}

func (b *Bot) handleClosed(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}

	trades, err := b.trades.History(ctx, user.ID, 10)
	if err != nil {
		b.reply(msg.Chat.ID, "Failed to fetch history.")
		return
	}
	if len(trades) == 0 {
		b.reply(msg.Chat.ID, "No closed trades yet.")
		return
	}

	var total float64
	var sb strings.Builder
	sb.WriteString("CLOSED TRADES\n")
	for _, t := range trades {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("CA: %s\n", shortAddr(t.TokenAddress)))
		if t.PnlPercent != nil && t.PnlSol != nil {
			sb.WriteString(fmt.Sprintf("PNL: %+.2f%% (%+.4f SOL)\n", *t.PnlPercent, *t.PnlSol))
			total += *t.PnlSol
		}
		if t.ClosedAt != nil {
			sb.WriteString(fmt.Sprintf("Closed: %s\n", t.ClosedAt.Format("Jan 2 15:04")))
		}
	}
	sb.WriteString(fmt.Sprintf("\nTotal realized: %+.4f SOL", total))
	b.reply(msg.Chat.ID, sb.String())
}

func (b *Bot) handleScan(ctx context.Context, msg *tgbotapi.Message, tokenAddress string) {
	if !wallet.IsValidAddress(tokenAddress) {
		b.reply(msg.Chat.ID, "Invalid token address.")
		return
	}

	td, err := b.oracle.TokenData(ctx, tokenAddress)
	if err != nil {
		b.reply(msg.Chat.ID, "No DEX data found for that token.")
		return
	}

	// Holder distribution is best effort; the scorer skips those rules
	// when the lookup fails.
	holders, err := b.gateway.TopHolders(ctx, tokenAddress)
	if err != nil {
		b.logger.DebugContext(ctx, "holder lookup failed",
			slog.String("token", tokenAddress),
			slog.String("error", err.Error()),
		)
		holders = nil
	}

	score := scoring.EntryScore(td, holders, time.Now())
	b.reply(msg.Chat.ID, scoring.FormatReport(td, score))
}

func (b *Bot) handleSettings(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}

	onOff := func(v bool) string {
		if v {
			return "ON"
		}
		return "OFF"
	}
	pinSet := "NO"
	if user.PinHash != nil {
		pinSet = "YES"
	}

	b.reply(msg.Chat.ID, fmt.Sprintf(`SETTINGS

Auto Take Profit: %s
  Trigger: +%.0f%%

Auto Stop Loss: %s
  Trigger: %.0f%%

PIN Set: %s

Commands:
/tp on|off - Toggle auto TP
/sl on|off - Toggle auto SL
/setpin <4digits> - Set withdrawal PIN`,
		onOff(user.AutoTakeProfit), b.cfg.TakeProfitPct,
		onOff(user.AutoStopLoss), b.cfg.StopLossPct,
		pinSet))
}

// handleToggle flips the auto TP or SL flag per "/tp on|off" and "/sl on|off".
func (b *Bot) handleToggle(ctx context.Context, msg *tgbotapi.Message, args []string, takeProfit bool) {
	cmd := "/sl"
	if takeProfit {
		cmd = "/tp"
	}
	if len(args) < 1 || (args[0] != "on" && args[0] != "off") {
		b.reply(msg.Chat.ID, "Usage: "+cmd+" on|off")
		return
	}
	want := args[0] == "on"

	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}

	var current bool
	var err error
	if takeProfit {
		current = user.AutoTakeProfit
	} else {
		current = user.AutoStopLoss
	}
	if current != want {
		if takeProfit {
			_, err = b.users.ToggleAutoTakeProfit(ctx, user.ID)
		} else {
			_, err = b.users.ToggleAutoStopLoss(ctx, user.ID)
		}
		if err != nil {
			b.reply(msg.Chat.ID, "Failed to update setting.")
			return
		}
	}

	if takeProfit {
		detail := "Manual sell required."
		if want {
			detail = "Positions will auto-close at TP."
		}
		b.reply(msg.Chat.ID, fmt.Sprintf("Auto Take Profit: %s\nTrigger: +%.0f%%\n\n%s", strings.ToUpper(args[0]), b.cfg.TakeProfitPct, detail))
		return
	}
	detail := "Manual sell required. Don't fumble."
	if want {
		detail = "Positions will auto-close at SL."
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Auto Stop Loss: %s\nTrigger: %.0f%%\n\n%s", strings.ToUpper(args[0]), b.cfg.StopLossPct, detail))
}

func (b *Bot) handleSetPin(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 1 {
		b.reply(msg.Chat.ID, "Usage: /setpin <4 digits>\n\nExample: /setpin 1234")
		return
	}

	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}

	if err := b.users.SetPin(ctx, user.ID, args[0]); err != nil {
		if errors.Is(err, wallet.ErrInvalidPin) {
			b.reply(msg.Chat.ID, "PIN must be exactly 4 digits.")
			return
		}
		b.reply(msg.Chat.ID, "Failed to set PIN. Try again.")
		return
	}
	b.reply(msg.Chat.ID, "PIN set successfully.\n\nDon't forget it. Required for withdrawals and key export.")
}

// tokenSymbol best-effort resolves a display symbol, falling back to a
// shortened address.
func (b *Bot) tokenSymbol(ctx context.Context, tokenAddress string) string {
	if td, err := b.oracle.TokenData(ctx, tokenAddress); err == nil && td.Symbol != "" {
		return td.Symbol
	}
	return shortAddr(tokenAddress)
}

func shortAddr(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:8] + "..."
}

func shortSig(sig string) string {
	if len(sig) <= 20 {
		return sig
	}
	return sig[:20]
}
