// Package notify forwards support escalations to staff.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/slack-go/slack"

	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

// Slack posts escalations to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	guildID    string
	logger     *slog.Logger
}

// NewSlack creates a Slack notifier. guildID, when set, is used to build
// links back to the Discord thread.
func NewSlack(webhookURL, guildID string, logger *slog.Logger) (*Slack, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("notify: slack webhook_url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Slack{
		webhookURL: webhookURL,
		guildID:    guildID,
		logger:     logger.With("component", "notify.slack"),
	}, nil
}

// Escalate posts one message describing e.
func (s *Slack) Escalate(ctx context.Context, e protocol.Escalation) error {
	if err := slack.PostWebhookContext(ctx, s.webhookURL, s.message(e)); err != nil {
		return fmt.Errorf("notify: slack webhook: %w", err)
	}
	s.logger.Debug("escalation posted", "thread", e.ThreadID)
	return nil
}

func (s *Slack) message(e protocol.Escalation) *slack.WebhookMessage {
	title := e.ThreadName
	if title == "" {
		title = e.ThreadID
	}
	att := slack.Attachment{
		Color:    "#ED4245",
		Fallback: "Support escalation: " + title,
		Title:    title,
		Text:     "Auto-detection did not fix this user's problem.",
		Fields: []slack.AttachmentField{
			{Title: "Owner", Value: e.OwnerID, Short: true},
			{Title: "Reported by", Value: e.ReporterID, Short: true},
		},
	}
	if len(e.Issues) > 0 {
		att.Fields = append(att.Fields, slack.AttachmentField{Title: "Detected", Value: strings.Join(e.Issues, "\n")})
	}
	if s.guildID != "" {
		att.TitleLink = fmt.Sprintf("https://discord.com/channels/%s/%s", s.guildID, e.ThreadID)
	}
	if !e.At.IsZero() {
		att.Ts = jsonNumber(e.At.Unix())
	}
	return &slack.WebhookMessage{
		Text:        ":rotating_light: A support thread needs a human.",
		Attachments: []slack.Attachment{att},
	}
}

func jsonNumber(n int64) json.Number {
	return json.Number(strconv.FormatInt(n, 10))
}
