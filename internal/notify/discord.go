package notify

import (
	"context"
	"fmt"
	"net/http"
)

var _ Channel = (*Discord)(nil)

// Discord delivers messages through an incoming webhook.
type Discord struct {
	webhookURL string
	client     *http.Client
}

// NewDiscord creates a Discord channel for the given webhook URL.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		client:     newHTTPClient(),
	}
}

// Name returns the channel identifier.
func (d *Discord) Name() string {
	return "discord"
}

// Deliver posts the message to the webhook with the subject in bold.
func (d *Discord) Deliver(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", msg.Subject, msg.Body),
	}
	if err := postJSON(ctx, d.client, d.webhookURL, payload); err != nil {
		return fmt.Errorf("discord: post webhook: %w", err)
	}
	return nil
}
