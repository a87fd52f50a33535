// Package notify delivers out-of-band messages to individual users over
// Telegram. It is how the position monitor reaches a user who is not in the
// middle of a conversation with the bot.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xtrenches/trenchbot/internal/domain"
)

// MessageSender is the slice of the Telegram bot API the notifier needs.
// Satisfied by *tgbotapi.BotAPI.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier resolves internal user IDs to Telegram chats and sends
// plain-text messages.
type TelegramNotifier struct {
	bot    MessageSender
	users  domain.UserStore
	logger *slog.Logger
}

var _ domain.UserNotifier = (*TelegramNotifier)(nil)

func NewTelegramNotifier(bot MessageSender, users domain.UserStore, logger *slog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:    bot,
		users:  users,
		logger: logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends text to the user's Telegram chat. The chat ID is the user's
// Telegram ID since the bot only runs in private chats.
func (n *TelegramNotifier) Notify(ctx context.Context, userID, text string) error {
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("notify: resolve user: %w", err)
	}

	msg := tgbotapi.NewMessage(user.TelegramID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("notify: send message: %w", err)
	}

	n.logger.DebugContext(ctx, "notification sent",
		slog.String("user_id", userID),
	)
	return nil
}
