package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"market_watch/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends notifications through a Telegram bot.
type Telegram struct {
	api telegramAPI
}

// NewTelegram creates a bot client for token.
func NewTelegram(token string, client *http.Client) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api}, nil
}

// Chat returns a notifier bound to chatID.
func (t *Telegram) Chat(chatID int64) Notifier {
	return &telegramChat{api: t.api, chatID: chatID}
}

type telegramChat struct {
	api    telegramAPI
	chatID int64
}

// Notify implements Notifier.
func (c *telegramChat) Notify(ctx context.Context, n model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(c.chatID, FormatTelegram(n))
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := c.api.Send(msg); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0) {
			return &RateLimitError{Sink: "telegram", RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second}
		}
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FormatTelegram renders a notification as Telegram HTML.
func FormatTelegram(n model.Notification) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(n.Title))
	b.WriteString("</b>\n\n")
	b.WriteString(html.EscapeString(n.Description))
	if n.URL != "" {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, `<a href="%s">Open listing</a>`, html.EscapeString(n.URL))
	}
	return b.String()
}
