// Package desk routes chat platform events to the ticket store, the
// diagnosis dispatcher and the lifecycle machine.
package desk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/toolkit-community/helpdesk/internal/clock"
	"github.com/toolkit-community/helpdesk/internal/connector"
	"github.com/toolkit-community/helpdesk/internal/dispatch"
	"github.com/toolkit-community/helpdesk/internal/lifecycle"
	"github.com/toolkit-community/helpdesk/internal/metrics"
	"github.com/toolkit-community/helpdesk/internal/ticket"
)

const (
	defaultNoticeTTL = 5 * time.Second
	noticeTimeout    = 10 * time.Second
	maxTitle         = 90
)

// Config holds desk settings.
type Config struct {
	SupportChannelID string
	// NoticeTTL is how long the "use /support" notice stays up.
	NoticeTTL time.Duration
}

// Desk implements connector.EventHandler.
type Desk struct {
	cfg        Config
	store      ticket.Store
	platform   connector.Platform
	dispatcher *dispatch.Dispatcher
	machine    *lifecycle.Machine
	clock      clock.Clock

	Metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a desk. A nil clock means the wall clock.
func New(cfg Config, store ticket.Store, platform connector.Platform, d *dispatch.Dispatcher, m *lifecycle.Machine, clk clock.Clock, logger *slog.Logger) *Desk {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.NoticeTTL <= 0 {
		cfg.NoticeTTL = defaultNoticeTTL
	}
	return &Desk{
		cfg:        cfg,
		store:      store,
		platform:   platform,
		dispatcher: d,
		machine:    m,
		clock:      clk,
		Metrics:    metrics.Discard(),
		logger:     logger.With("component", "desk"),
	}
}

// HandleMessage keeps the support channel clear of chatter and feeds
// messages in open ticket threads to the dispatcher.
func (d *Desk) HandleMessage(ctx context.Context, msg connector.Message) {
	if msg.AuthorBot {
		return
	}
	if msg.ChannelID == d.cfg.SupportChannelID {
		d.redirect(ctx, msg)
		return
	}

	t, err := d.store.Get(ctx, msg.ChannelID)
	if errors.Is(err, ticket.ErrNotFound) {
		return
	}
	if err != nil {
		d.logger.Error("load ticket failed", "thread", msg.ChannelID, "error", err)
		return
	}
	if t.Status.Terminal() {
		return
	}

	if err := d.store.TouchActivity(ctx, t.ThreadID); err != nil {
		d.logger.Warn("touch activity failed", "thread", t.ThreadID, "error", err)
	}
	if _, err := d.dispatcher.HandleMessage(ctx, msg); err != nil {
		d.logger.Warn("diagnosis failed", "thread", t.ThreadID, "message", msg.ID, "error", err)
	}
}

// redirect removes a top-level message from the support channel and leaves
// a short-lived pointer to /support.
func (d *Desk) redirect(ctx context.Context, msg connector.Message) {
	if err := d.platform.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		d.logger.Warn("delete stray message failed", "step", "delete", "message", msg.ID, "error", err)
		return
	}
	notice, err := d.platform.Send(ctx, msg.ChannelID, connector.OutboundMessage{
		Content: fmt.Sprintf("<@%s>, please use `/support` to open a ticket. Messages here are removed to keep the channel tidy.", msg.AuthorID),
	})
	if err != nil {
		d.logger.Warn("post notice failed", "step", "notice", "error", err)
		return
	}
	d.clock.AfterFunc(d.cfg.NoticeTTL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), noticeTimeout)
		defer cancel()
		if err := d.platform.DeleteMessage(ctx, notice.ChannelID, notice.ID); err != nil {
			d.logger.Debug("delete notice failed", "message", notice.ID, "error", err)
		}
	})
}

func (d *Desk) HandleReaction(ctx context.Context, r connector.Reaction) {
	if r.UserBot || (r.Emoji != connector.EmojiResolved && r.Emoji != connector.EmojiNotResolved) {
		return
	}
	res, err := d.machine.ConfirmReaction(ctx, r)
	if err != nil {
		d.logger.Error("reaction handling failed", "thread", r.ChannelID, "message", r.MessageID, "error", err)
		return
	}
	d.logger.Debug("reaction handled", "thread", r.ChannelID, "emoji", r.Emoji, "result", res)
}

func (d *Desk) HandleResolve(ctx context.Context, cmd connector.ResolveCommand) connector.Response {
	res, err := d.machine.Resolve(ctx, lifecycle.ResolveRequest{
		ThreadID:   cmd.ChannelID,
		ActorID:    cmd.UserID,
		Privileged: cmd.Privileged,
	})
	if err != nil {
		d.logger.Error("resolve failed", "thread", cmd.ChannelID, "user", cmd.UserID, "error", err)
		return connector.Response{Content: "Something went wrong while resolving this thread. Please try again.", Ephemeral: true}
	}

	switch res {
	case lifecycle.ResultResolved:
		return connector.Response{Content: "Thread marked as resolved.", Ephemeral: true}
	case lifecycle.ResultAlreadyClosed:
		return connector.Response{Content: "This thread is already closed.", Ephemeral: true}
	case lifecycle.ResultUnauthorized:
		return connector.Response{Content: "Only the thread owner or staff can resolve this thread.", Ephemeral: true}
	default:
		return connector.Response{Content: "This command can only be used inside a support thread.", Ephemeral: true}
	}
}

// HandleTicketSubmission opens a ticket: a summary card in the support
// channel, a thread started from it, and the opening posts in the thread.
func (d *Desk) HandleTicketSubmission(ctx context.Context, sub connector.TicketSubmission) connector.Response {
	title := strings.TrimSpace(sub.Title)
	if title == "" {
		return connector.Response{Content: "Please give your ticket a title.", Ephemeral: true}
	}
	if r := []rune(title); len(r) > maxTitle {
		title = string(r[:maxTitle])
	}
	failed := connector.Response{Content: "Sorry, your ticket could not be created. Please try again.", Ephemeral: true}

	summary, err := d.platform.Send(ctx, d.cfg.SupportChannelID, connector.OutboundMessage{
		Embeds: []connector.Embed{summaryEmbed(sub, title, d.clock.Now())},
	})
	if err != nil {
		d.logger.Error("post ticket summary failed", "user", sub.UserID, "error", err)
		return failed
	}

	thread, err := d.platform.StartThread(ctx, d.cfg.SupportChannelID, summary.ID, lifecycle.OpenName(title))
	if err != nil {
		d.logger.Error("start ticket thread failed", "user", sub.UserID, "error", err)
		if err := d.platform.DeleteMessage(ctx, d.cfg.SupportChannelID, summary.ID); err != nil {
			d.logger.Warn("remove orphan summary failed", "message", summary.ID, "error", err)
		}
		return failed
	}

	// Record the ticket before posting into the thread so early replies are
	// already tracked.
	if _, err := d.store.Create(ctx, thread.ID, sub.UserID, title); err != nil {
		d.logger.Error("create ticket failed", "thread", thread.ID, "error", err)
		return failed
	}
	d.Metrics.TicketsCreated.Inc()

	opening := []connector.OutboundMessage{
		{
			Content: "<@" + sub.UserID + ">",
			Embeds: []connector.Embed{{
				Title:       "Description",
				Description: sub.Description,
				Color:       connector.ColorPending,
			}},
		},
		{
			Embeds: []connector.Embed{{
				Title: "📄 Please share your logs",
				Description: "Paste the output of your setup log here or attach the `.log` file. " +
					"Known problems are detected automatically.",
				Color: connector.ColorAlert,
			}},
		},
	}
	for _, m := range opening {
		if _, err := d.platform.Send(ctx, thread.ID, m); err != nil {
			d.logger.Warn("post opening message failed", "step", "opening", "thread", thread.ID, "error", err)
		}
	}

	d.logger.Info("ticket opened", "thread", thread.ID, "user", sub.UserID, "title", title)
	return connector.Response{Content: fmt.Sprintf("Your ticket has been created: <#%s>", thread.ID), Ephemeral: true}
}

func summaryEmbed(sub connector.TicketSubmission, title string, now time.Time) connector.Embed {
	orNA := func(s string) string {
		if s = strings.TrimSpace(s); s == "" {
			return "N/A"
		}
		return s
	}
	return connector.Embed{
		Title: "🎫 " + title,
		Color: connector.ColorPending,
		Fields: []connector.EmbedField{
			{Name: "Reporter", Value: "<@" + sub.UserID + ">", Inline: true},
			{Name: "OS", Value: orNA(sub.OS), Inline: true},
			{Name: "Version", Value: orNA(sub.Version), Inline: true},
		},
		Footer:    "Click the thread below to help!",
		Timestamp: now,
	}
}

var _ connector.EventHandler = (*Desk)(nil)

