// Package notify implements domain.Notifier (component K): the opaque sink
// for critical events (permanent failures, payment delay, retry
// exhaustion, loop detection).
package notify

import (
	"fmt"

	"github.com/slack-go/slack"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

// SlackNotifier posts NotificationEvents to a single Slack channel via an
// incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
}

// NewSlackNotifier constructs a SlackNotifier. channel may be empty to use
// the webhook's default channel.
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL, channel: channel}
}

func (s *SlackNotifier) Notify(ctx domain.Context, event domain.NotificationEvent) error {
	msg := &slack.WebhookMessage{
		Channel: s.channel,
		Text:    fmt.Sprintf("[%s] %s", event.Severity, event.Title),
		Attachments: []slack.Attachment{
			{
				Color: colorFor(event.Severity),
				Fields: []slack.AttachmentField{
					{Title: "Email", Value: event.Email, Short: true},
					{Title: "At", Value: event.At.Format("2006-01-02 15:04:05"), Short: true},
					{Title: "Detail", Value: event.Detail, Short: false},
				},
			},
		},
	}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("op=notify.SlackNotifier.Notify: %w: %v", domain.ErrUpstreamTimeout, err)
	}
	return nil
}

func colorFor(sev domain.NotificationSeverity) string {
	switch sev {
	case domain.SeverityCritical:
		return "danger"
	case domain.SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}
