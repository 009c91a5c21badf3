// Package dispatch runs user messages in ticket threads through the log
// classifier and posts the resulting diagnosis.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/toolkit-community/helpdesk/internal/connector"
	"github.com/toolkit-community/helpdesk/internal/diagnose"
	"github.com/toolkit-community/helpdesk/internal/metrics"
	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

// Outcome names the step at which a message left the pipeline.
type Outcome string

const (
	OutcomeReplied   Outcome = "replied"
	OutcomeFromBot   Outcome = "from_bot"
	OutcomeBotReply  Outcome = "bot_reply"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNotLog    Outcome = "not_log"
	OutcomeNoMatch   Outcome = "no_match"
	OutcomeFailed    Outcome = "failed"
)

// Result describes what HandleMessage did.
type Result struct {
	Outcome   Outcome
	Diagnosis *protocol.Diagnosis
}

// Dispatcher classifies messages and replies with known fixes.
type Dispatcher struct {
	platform connector.Platform
	matcher  *diagnose.Matcher
	guard    *Guard
	fetcher  AttachmentFetcher

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// New creates a dispatcher. A nil matcher uses the built-in pattern table; a
// nil fetcher skips attachments.
func New(platform connector.Platform, matcher *diagnose.Matcher, guard *Guard, fetcher AttachmentFetcher) *Dispatcher {
	if matcher == nil {
		matcher = diagnose.Default
	}
	return &Dispatcher{
		platform: platform,
		matcher:  matcher,
		guard:    guard,
		fetcher:  fetcher,
		Metrics:  metrics.Discard(),
		Logger:   slog.Default(),
	}
}

// HandleMessage runs one user message through the pipeline. msg is expected
// to be a non-bot message posted inside a ticket thread.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg connector.Message) (Result, error) {
	res, err := d.handle(ctx, msg)
	d.Metrics.Diagnoses.WithLabelValues(string(res.Outcome)).Inc()
	return res, err
}

func (d *Dispatcher) handle(ctx context.Context, msg connector.Message) (Result, error) {
	if msg.AuthorBot {
		return Result{Outcome: OutcomeFromBot}, nil
	}

	if msg.ReferenceID != "" {
		ref, err := d.platform.FetchMessage(ctx, msg.ChannelID, msg.ReferenceID)
		if err != nil {
			d.Logger.Debug("referenced message unavailable", "message", msg.ID, "ref", msg.ReferenceID, "error", err)
		} else if ref.AuthorBot {
			return Result{Outcome: OutcomeBotReply}, nil
		}
	}

	if !d.guard.Claim(msg.ID) {
		d.Logger.Debug("message already in flight", "message", msg.ID)
		return Result{Outcome: OutcomeDuplicate}, nil
	}

	text := d.scanText(ctx, msg)
	if !diagnose.LooksLikeProductLog(text) {
		return Result{Outcome: OutcomeNotLog}, nil
	}
	issues := d.matcher.Classify(text)
	if len(issues) == 0 {
		return Result{Outcome: OutcomeNoMatch}, nil
	}

	reply, err := d.platform.Send(ctx, msg.ChannelID, connector.OutboundMessage{
		Embeds:  []connector.Embed{Render(issues)},
		ReplyTo: msg.ID,
	})
	if err != nil {
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("dispatch: reply: %w", err)
	}

	for _, emoji := range []string{connector.EmojiResolved, connector.EmojiNotResolved} {
		if err := d.platform.AddReaction(ctx, msg.ChannelID, reply.ID, emoji); err != nil {
			d.Metrics.SideEffectFailures.WithLabelValues("react").Inc()
			d.Logger.Warn("add reaction failed", "step", "react", "thread", msg.ChannelID, "emoji", emoji, "error", err)
		}
	}

	diag := &protocol.Diagnosis{MessageID: reply.ID, Issues: issues}
	for _, name := range diag.Names() {
		d.Metrics.IssuesDetected.WithLabelValues(name).Inc()
	}
	d.Logger.Info("diagnosis posted", "thread", msg.ChannelID, "message", msg.ID, "issues", diag.Names())
	return Result{Outcome: OutcomeReplied, Diagnosis: diag}, nil
}

// scanText joins the message content with every readable attachment.
func (d *Dispatcher) scanText(ctx context.Context, msg connector.Message) string {
	var b strings.Builder
	b.WriteString(msg.Content)
	if d.fetcher == nil {
		return b.String()
	}
	for _, a := range msg.Attachments {
		if !scannable(a) {
			continue
		}
		body, err := d.fetcher.Fetch(ctx, a.URL)
		if err != nil {
			d.Logger.Warn("attachment skipped", "thread", msg.ChannelID, "attachment", a.Name, "error", err)
			continue
		}
		b.WriteString("\n")
		b.WriteString(body)
	}
	return b.String()
}
