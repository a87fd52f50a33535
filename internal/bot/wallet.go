package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xtrenches/trenchbot/internal/domain"
	"github.com/xtrenches/trenchbot/internal/wallet"
)

// withdrawFeeReserveSol is kept back so the transfer itself can pay its fee.
const withdrawFeeReserveSol = 0.001

func (b *Bot) handleWithdraw(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 2 {
		b.reply(msg.Chat.ID, "Usage: /withdraw <SOL_amount> <destination_address>\n\nExample: /withdraw 0.5 YourExternalWallet...\n\nNote: Requires PIN. Set one with /setpin if you haven't.")
		return
	}
	amountSol, err := strconv.ParseFloat(args[0], 64)
	if err != nil || amountSol <= 0 {
		b.reply(msg.Chat.ID, "Invalid withdrawal amount.")
		return
	}
	destination := args[1]
	if !wallet.IsValidAddress(destination) {
		b.reply(msg.Chat.ID, "Invalid destination address.")
		return
	}

	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}
	if user.PinHash == nil {
		b.reply(msg.Chat.ID, "No PIN set. Use /setpin <4digits> first.")
		return
	}

	b.sessions.Put(msg.From.ID, SessionPendingWithdraw, map[string]string{
		"amount":      args[0],
		"destination": destination,
	})
	b.reply(msg.Chat.ID, fmt.Sprintf(`Withdrawal request:
Amount: %.4f SOL
To: %s

Reply with your 4-digit PIN to confirm.
Or type 'cancel' to abort.`, amountSol, destination))
}

// completeWithdraw runs after the user answers the PIN prompt.
func (b *Bot) completeWithdraw(ctx context.Context, msg *tgbotapi.Message, sess Session, pin string) {
	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}

	valid, err := b.users.VerifyPin(ctx, user.ID, pin)
	if err != nil || !valid {
		b.reply(msg.Chat.ID, "Invalid PIN. Start again with /withdraw")
		return
	}

	amountSol, err := strconv.ParseFloat(sess.Data["amount"], 64)
	if err != nil {
		b.reply(msg.Chat.ID, "Withdrawal expired. Start again with /withdraw")
		return
	}
	destination := sess.Data["destination"]

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
	if balance < amountSol+withdrawFeeReserveSol {
		b.reply(msg.Chat.ID, fmt.Sprintf("Insufficient balance.\nHave: %.4f SOL\nNeed: %.4f SOL (includes fee)", balance, amountSol+withdrawFeeReserveSol))
		return
	}

	b.reply(msg.Chat.ID, "Processing withdrawal...")

	key, err := b.vault.Open(w.EncryptedPrivateKey)
	if err != nil {
		b.logger.ErrorContext(ctx, "key decrypt failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		b.reply(msg.Chat.ID, "Withdrawal failed. Try again.")
		return
	}

	sig, err := b.gateway.TransferSol(ctx, key, destination, amountSol)
	if err != nil {
		b.logger.ErrorContext(ctx, "withdrawal transfer failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		b.reply(msg.Chat.ID, "Withdrawal failed. Try again.")
		return
	}

	b.reply(msg.Chat.ID, fmt.Sprintf(`WITHDRAWAL COMPLETE

Amount: %.4f SOL
To: %s
Tx: %s...

Funds sent.`, amountSol, destination, shortSig(sig)))
}

func (b *Bot) handleWallets(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}

	wallets, err := b.users.ListWallets(ctx, user.ID)
	if err != nil {
		b.reply(msg.Chat.ID, "Failed to list wallets.")
		return
	}

	var sb strings.Builder
	sb.WriteString("YOUR WALLETS\n")
	for i, w := range wallets {
		marker := " "
		if w.Active {
			marker = "*"
		}
		sb.WriteString(fmt.Sprintf("\n%s %d. %s\n   %s\n   id: %s\n", marker, i+1, w.Label, w.PublicKey, w.ID))
	}
	sb.WriteString("\n* = active\n/usewallet <id> to switch\n/addwallet [label] for a new one")
	b.reply(msg.Chat.ID, sb.String())
}

func (b *Bot) handleAddWallet(ctx context.Context, msg *tgbotapi.Message, args []string) {
	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}

	label := "wallet"
	if len(args) > 0 {
		label = args[0]
	}

	w, err := b.users.AddWallet(ctx, user.ID, label)
	if err != nil {
		if errors.Is(err, domain.ErrWalletLimit) {
			b.reply(msg.Chat.ID, "Wallet limit reached. Remove one first.")
			return
		}
		b.reply(msg.Chat.ID, "Failed to create wallet.")
		return
	}

	b.reply(msg.Chat.ID, fmt.Sprintf("Wallet created.\n\n%s\n\nIt is not active yet. /usewallet %s to switch.", w.PublicKey, w.ID))
}

func (b *Bot) handleUseWallet(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 1 {
		b.reply(msg.Chat.ID, "Usage: /usewallet <id>\n\n/wallets to see ids.")
		return
	}

	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}

	if err := b.users.SetActiveWallet(ctx, user.ID, args[0]); err != nil {
		b.reply(msg.Chat.ID, "Failed to switch wallet. Check the id with /wallets.")
		return
	}
	b.reply(msg.Chat.ID, "Active wallet switched.")
}

func (b *Bot) handleRemoveWallet(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 1 {
		b.reply(msg.Chat.ID, "Usage: /removewallet <id>\n\n/wallets to see ids.")
		return
	}

	if _, ok := b.requireUser(ctx, msg); !ok {
		return
	}

	b.sessions.Put(msg.From.ID, SessionPendingRemoval, map[string]string{"wallet_id": args[0]})
	b.reply(msg.Chat.ID, "Removing a wallet deletes its key from this bot.\nAnything left in it is gone unless you exported the key.\n\nType 'confirm' to proceed or 'cancel' to abort.")
}

func (b *Bot) completeRemoveWallet(ctx context.Context, msg *tgbotapi.Message, sess Session, text string) {
	if !strings.EqualFold(text, "confirm") {
		b.reply(msg.Chat.ID, "Removal aborted.")
		return
	}

	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}

	if err := b.users.RemoveWallet(ctx, user.ID, sess.Data["wallet_id"]); err != nil {
		b.reply(msg.Chat.ID, "Failed to remove wallet. The active wallet cannot be removed.")
		return
	}
	b.reply(msg.Chat.ID, "Wallet removed.")
}

func (b *Bot) handleExportKey(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 1 {
		b.reply(msg.Chat.ID, "Usage: /exportkey <id>\n\n/wallets to see ids.")
		return
	}

	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}
	if user.PinHash == nil {
		b.reply(msg.Chat.ID, "No PIN set. Use /setpin <4digits> first.")
		return
	}

	b.sessions.Put(msg.From.ID, SessionAwaitPinExport, map[string]string{"wallet_id": args[0]})
	b.reply(msg.Chat.ID, "Reply with your 4-digit PIN to export the key.\nOr type 'cancel' to abort.")
}

func (b *Bot) completeExportKey(ctx context.Context, msg *tgbotapi.Message, sess Session, pin string) {
	user, ok := b.requireUser(ctx, msg)
	if !ok {
		return
	}

	key, err := b.users.ExportKey(ctx, user.ID, sess.Data["wallet_id"], pin)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			b.reply(msg.Chat.ID, "Invalid PIN. Start again with /exportkey")
			return
		}
		b.reply(msg.Chat.ID, "Export failed.")
		return
	}

	b.reply(msg.Chat.ID, fmt.Sprintf("PRIVATE KEY\n\n%s\n\nDelete this message after importing. Anyone with this key owns the wallet.", key))
}
