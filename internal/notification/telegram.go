package notification

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/wallet-sync/internal/logging"
	"github.com/wallet-sync/internal/models"
)

// messageSender is the part of *bot.Bot used for delivery
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramNotifier delivers notifications as messages to one Telegram chat
type TelegramNotifier struct {
	sender  messageSender
	chatID  int64
	baseURL string
	logger  *logging.Logger
}

// NewTelegramNotifier creates a notifier for chatID. baseURL, when set, turns
// a notification's data.url into an absolute link.
func NewTelegramNotifier(token string, chatID int64, baseURL string, logger *logging.Logger) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id cannot be empty")
	}

	tgBot, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return newTelegramNotifier(tgBot, chatID, baseURL, logger), nil
}

func newTelegramNotifier(sender messageSender, chatID int64, baseURL string, logger *logging.Logger) *TelegramNotifier {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TelegramNotifier{
		sender:  sender,
		chatID:  chatID,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger.WithComponent("telegram"),
	}
}

// Deliver sends the notification; it has the DeliverFunc signature
func (t *TelegramNotifier) Deliver(ctx context.Context, title string, opts models.NotificationOptions) error {
	disablePreview := true
	_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      t.format(title, opts),
		ParseMode: tgmodels.ParseModeHTML,
		LinkPreviewOptions: &tgmodels.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	t.logger.WithField("tag", opts.Tag).Debug("notification sent to telegram")
	return nil
}

func (t *TelegramNotifier) format(title string, opts models.NotificationOptions) string {
	var sb strings.Builder
	sb.WriteString("<b>")
	sb.WriteString(html.EscapeString(title))
	sb.WriteString("</b>")
	if opts.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(html.EscapeString(opts.Body))
	}
	if u := opts.URL(); u != "" && t.baseURL != "" {
		link := u
		if strings.HasPrefix(u, "/") {
			link = t.baseURL + u
		}
		fmt.Fprintf(&sb, "\n<a href=\"%s\">Open</a>", html.EscapeString(link))
	}
	return sb.String()
}
