package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrenches/trenchbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

type fakeUserSource struct {
	domain.UserStore

	users map[string]domain.User
}

func (f *fakeUserSource) GetByID(ctx context.Context, id string) (domain.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return domain.User{}, domain.ErrNotFound
}

func TestNotifyResolvesTelegramChat(t *testing.T) {
	sender := &fakeSender{}
	users := &fakeUserSource{users: map[string]domain.User{
		"u1": {ID: "u1", TelegramID: 424242},
	}}
	n := NewTelegramNotifier(sender, users, testLogger())

	err := n.Notify(context.Background(), "u1", "TP HIT")

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(424242), sender.sent[0].ChatID)
	assert.Equal(t, "TP HIT", sender.sent[0].Text)
}

func TestNotifyUnknownUser(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, &fakeUserSource{}, testLogger())

	err := n.Notify(context.Background(), "ghost", "hello")

	require.Error(t, err)
	assert.Empty(t, sender.sent)
}

func TestNotifySendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram 502")}
	users := &fakeUserSource{users: map[string]domain.User{
		"u1": {ID: "u1", TelegramID: 1},
	}}
	n := NewTelegramNotifier(sender, users, testLogger())

	err := n.Notify(context.Background(), "u1", "hello")
	assert.ErrorContains(t, err, "send message")
}
