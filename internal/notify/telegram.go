package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
)

const telegramAPIBase = "https://api.telegram.org"

var _ Channel = (*Telegram)(nil)

// Telegram delivers messages to one chat through the Bot API.
type Telegram struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegram creates a Telegram channel for the given bot token and chat ID.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		apiBase: telegramAPIBase,
		token:   token,
		chatID:  chatID,
		client:  newHTTPClient(),
	}
}

// Name returns the channel identifier.
func (t *Telegram) Name() string {
	return "telegram"
}

// Deliver posts the message over sendMessage. HTML parse mode keeps market
// titles with Markdown metacharacters intact.
func (t *Telegram) Deliver(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"chat_id": t.chatID,
		"text": fmt.Sprintf("<b>%s</b>\n%s",
			html.EscapeString(msg.Subject), html.EscapeString(msg.Body)),
		"parse_mode": "HTML",
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	if err := postJSON(ctx, t.client, url, payload); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}
