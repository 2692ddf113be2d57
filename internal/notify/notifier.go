// Package notify pushes radar output to operator channels. The alert
// generator hands it high-score alerts and the pipeline loops hand it run
// failures; each is rendered once and fanned out to every configured
// channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pmradar/pmradar/internal/domain"
)

// Events the notifier can announce. Config lists the subset operators
// subscribed to.
const (
	EventPatternAlert = "pattern_alert"
	EventRunFailed    = "run_failed"
)

// Message is the channel-agnostic rendering of one notification. Channels
// apply their own markup to the subject line.
type Message struct {
	Subject string
	Body    string
}

// Channel delivers rendered messages over one transport.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// Notifier renders radar events into messages and fans them out. A failing
// channel never blocks delivery to the remaining ones.
type Notifier struct {
	channels []Channel
	events   map[string]bool
	logger   *slog.Logger
}

// New creates a Notifier delivering to the given channels. events holds the
// event names operators subscribed to; an empty list subscribes to all.
func New(channels []Channel, events []string, logger *slog.Logger) *Notifier {
	subscribed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			subscribed[e] = true
		}
	}
	return &Notifier{
		channels: channels,
		events:   subscribed,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// AlertRaised announces one tier-gated alert.
func (n *Notifier) AlertRaised(ctx context.Context, alert domain.Alert) error {
	if !n.subscribed(EventPatternAlert) {
		return nil
	}
	return n.fanOut(ctx, Message{
		Subject: alert.Title,
		Body: fmt.Sprintf("Score %.0f | %s | tier %s\n%s\n%s",
			alert.Score, alert.MarketID, alert.Tier, alert.Message, alert.Action),
	})
}

// RunFailed announces a failed pipeline run so operators hear about a
// broken loop without tailing logs.
func (n *Notifier) RunFailed(ctx context.Context, loop string, runErr error) error {
	if !n.subscribed(EventRunFailed) {
		return nil
	}
	return n.fanOut(ctx, Message{
		Subject: fmt.Sprintf("Run failed: %s", loop),
		Body:    runErr.Error(),
	})
}

func (n *Notifier) subscribed(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// fanOut delivers msg to every channel, collecting per-channel errors so one
// broken transport does not starve the others.
func (n *Notifier) fanOut(ctx context.Context, msg Message) error {
	var errs []error
	for _, ch := range n.channels {
		if err := ch.Deliver(ctx, msg); err != nil {
			n.logger.WarnContext(ctx, "channel delivery failed",
				slog.String("channel", ch.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification delivered",
			slog.String("channel", ch.Name()),
			slog.String("subject", msg.Subject),
		)
	}
	return errors.Join(errs...)
}
