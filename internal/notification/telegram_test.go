package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-sync/internal/logging"
	"github.com/wallet-sync/internal/models"
)

type fakeSender struct {
	sent []*bot.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &tgmodels.Message{ID: len(f.sent)}, nil
}

func TestNewTelegramNotifier_Validation(t *testing.T) {
	_, err := NewTelegramNotifier("", 42, "", nil)
	assert.Error(t, err)

	_, err = NewTelegramNotifier("123:abc", 0, "", nil)
	assert.Error(t, err)
}

func TestTelegramNotifier_Deliver(t *testing.T) {
	sender := &fakeSender{}
	n := newTelegramNotifier(sender, 42, "https://wallet.example.com/", logging.NewNopLogger())

	err := n.Deliver(context.Background(), "Payment <received>", models.NotificationOptions{
		Body: "You received 10.00 & more",
		Data: map[string]interface{}{"url": "/payments"},
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgmodels.ParseModeHTML, msg.ParseMode)
	assert.Equal(t,
		"<b>Payment &lt;received&gt;</b>\nYou received 10.00 &amp; more\n<a href=\"https://wallet.example.com/payments\">Open</a>",
		msg.Text)
	require.NotNil(t, msg.LinkPreviewOptions)
	assert.True(t, *msg.LinkPreviewOptions.IsDisabled)
}

func TestTelegramNotifier_NoLinkWithoutBaseURL(t *testing.T) {
	sender := &fakeSender{}
	n := newTelegramNotifier(sender, 42, "", logging.NewNopLogger())

	require.NoError(t, n.Deliver(context.Background(), "Hi", models.NotificationOptions{
		Data: map[string]interface{}{"url": "/payments"},
	}))
	assert.Equal(t, "<b>Hi</b>", sender.sent[0].Text)
}

func TestTelegramNotifier_SendError(t *testing.T) {
	n := newTelegramNotifier(&fakeSender{err: errors.New("chat not found")}, 42, "", logging.NewNopLogger())

	err := n.Deliver(context.Background(), "Hi", models.NotificationOptions{})
	assert.ErrorContains(t, err, "chat not found")
}
