// Package lifecycle applies ticket status transitions and the platform side
// effects that go with them.
package lifecycle

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
	"github.com/toolkit-community/helpdesk/internal/metrics"
	"github.com/toolkit-community/helpdesk/internal/ticket"
	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

const (
	DefaultResolveArchiveDelay   = 5 * time.Second
	DefaultAutoCloseArchiveDelay = 3 * time.Second

	archiveTimeout = 10 * time.Second
)

// Result is the outcome of a lifecycle request.
type Result string

const (
	ResultResolved      Result = "resolved"
	ResultAutoClosed    Result = "auto_closed"
	ResultAlreadyClosed Result = "already_closed"
	ResultUnauthorized  Result = "unauthorized"
	ResultNotTicket     Result = "not_ticket"
	ResultEscalated     Result = "escalated"
	ResultReminded      Result = "reminded"
	ResultIgnored       Result = "ignored"
)

// Trigger labels what started a transition.
const (
	TriggerCommand   = "command"
	TriggerReaction  = "reaction"
	TriggerScheduler = "scheduler"
)

// Notifier alerts staff when a user rejects a diagnosis.
type Notifier interface {
	Escalate(ctx context.Context, e protocol.Escalation) error
}

// ResolveRequest asks to resolve the ticket of a thread.
type ResolveRequest struct {
	ThreadID   string
	ActorID    string
	Privileged bool
}

// Staleness holds the inactivity thresholds for reminders and auto-close.
type Staleness struct {
	RemindAfter    time.Duration
	AutoCloseAfter time.Duration
}

// errSuperseded stops a pipeline whose transition was applied by someone else.
var errSuperseded = errors.New("transition superseded")

// Machine drives ticket transitions. Pipelines for the same thread never
// overlap.
type Machine struct {
	store    ticket.Store
	platform connector.Platform
	clock    clock.Clock
	locks    keyedMutex

	ResolveArchiveDelay   time.Duration
	AutoCloseArchiveDelay time.Duration
	Notifier              Notifier
	Metrics               *metrics.Metrics
	Logger                *slog.Logger
}

// New creates a Machine. A nil clock means the wall clock.
func New(store ticket.Store, platform connector.Platform, clk clock.Clock) *Machine {
	if clk == nil {
		clk = clock.Real()
	}
	return &Machine{
		store:                 store,
		platform:              platform,
		clock:                 clk,
		ResolveArchiveDelay:   DefaultResolveArchiveDelay,
		AutoCloseArchiveDelay: DefaultAutoCloseArchiveDelay,
		Metrics:               metrics.Discard(),
		Logger:                slog.Default(),
	}
}

// Resolve handles an explicit resolve request. Only the ticket owner or a
// privileged actor may resolve.
func (m *Machine) Resolve(ctx context.Context, req ResolveRequest) (Result, error) {
	unlock := m.locks.lock(req.ThreadID)
	defer unlock()

	t, res, err := m.openTicket(ctx, req.ThreadID)
	if t == nil {
		return res, err
	}
	if !req.Privileged && req.ActorID != t.UserID {
		m.Logger.Info("resolve rejected", "thread", t.ThreadID, "actor", req.ActorID)
		return ResultUnauthorized, nil
	}
	return m.resolve(ctx, t, req.ActorID, TriggerCommand)
}

// ConfirmReaction handles a reaction on a diagnosis reply. ✅ resolves the
// ticket on behalf of the reacting user; ❌ escalates to staff.
func (m *Machine) ConfirmReaction(ctx context.Context, r connector.Reaction) (Result, error) {
	if r.UserBot || (r.Emoji != connector.EmojiResolved && r.Emoji != connector.EmojiNotResolved) {
		return ResultIgnored, nil
	}

	unlock := m.locks.lock(r.ChannelID)
	defer unlock()

	t, res, err := m.openTicket(ctx, r.ChannelID)
	if t == nil {
		return res, err
	}

	msg, err := m.platform.FetchMessage(ctx, r.ChannelID, r.MessageID)
	if err != nil {
		if errors.Is(err, connector.ErrUnknownMessage) {
			return ResultIgnored, nil
		}
		return "", fmt.Errorf("lifecycle: fetch reacted message: %w", err)
	}
	if msg.AuthorID != m.platform.BotUserID() || len(msg.Embeds) == 0 || !dispatch.IsDiagnosis(msg.Embeds[0]) {
		return ResultIgnored, nil
	}

	embed := msg.Embeds[0]
	if r.Emoji == connector.EmojiResolved {
		embed.Color = connector.ColorResolved
		embed.Footer = "Issue resolved by auto-detection!"
		m.run(ctx, t.ThreadID, []step{
			{name: "diagnosis_embed", run: m.editEmbed(r.ChannelID, msg.ID, embed)},
			{name: "clear_reactions", run: m.clearReactions(r.ChannelID, msg.ID)},
		})
		return m.resolve(ctx, t, r.UserID, TriggerReaction)
	}

	embed.Color = connector.ColorClosed
	embed.Footer = "A human will help you shortly."
	err = m.run(ctx, t.ThreadID, []step{
		{name: "diagnosis_embed", run: m.editEmbed(r.ChannelID, msg.ID, embed)},
		{name: "clear_reactions", run: m.clearReactions(r.ChannelID, msg.ID)},
		{name: "escalation_notice", run: func(ctx context.Context) error {
			_, err := m.platform.Send(ctx, r.ChannelID, connector.OutboundMessage{
				Content: fmt.Sprintf("Got it, <@%s>. The auto-detection didn't resolve your issue. Someone will be with you shortly!", r.UserID),
			})
			return err
		}},
		{name: "notify_staff", run: func(ctx context.Context) error {
			if m.Notifier == nil {
				return nil
			}
			return m.Notifier.Escalate(ctx, protocol.Escalation{
				ThreadID:   t.ThreadID,
				ThreadName: t.Title,
				OwnerID:    t.UserID,
				ReporterID: r.UserID,
				Issues:     issueNames(msg.Embeds[0]),
				At:         m.clock.Now(),
			})
		}},
	})
	if err != nil {
		return "", err
	}
	m.Logger.Info("diagnosis rejected, escalated", "thread", t.ThreadID, "user", r.UserID)
	return ResultEscalated, nil
}

// AutoClose closes a ticket that is still open and still idle for at least
// s.AutoCloseAfter. If the thread is gone on the platform the status is
// still persisted.
func (m *Machine) AutoClose(ctx context.Context, threadID string, s Staleness) (Result, error) {
	unlock := m.locks.lock(threadID)
	defer unlock()

	current, res, err := m.openTicket(ctx, threadID)
	if current == nil {
		return res, err
	}
	now := m.clock.Now()
	if current.Inactivity(now) < s.AutoCloseAfter {
		return ResultIgnored, nil
	}

	thread, gone := m.fetchThread(ctx, current.ThreadID)
	idle := int(current.Inactivity(now).Hours() / 24)

	tr := transition{
		ticket:     current,
		status:     protocol.TicketAutoClosed,
		trigger:    TriggerScheduler,
		thread:     thread,
		threadGone: gone,
		marker:     MarkerAutoClosed,
		starter: func(e *connector.Embed) {
			e.Color = connector.ColorClosed
			e.Footer = "Auto-closed due to inactivity"
		},
		confirm: connector.Embed{
			Title:       MarkerAutoClosed + " Thread Auto-Closed",
			Description: fmt.Sprintf("This thread was closed after %d days without activity. If you still need help, open a new ticket.", idle),
			Color:       connector.ColorClosed,
			Timestamp:   now,
		},
		archiveDelay: m.AutoCloseArchiveDelay,
	}
	if err := m.apply(ctx, tr); err != nil {
		if errors.Is(err, errSuperseded) {
			return ResultAlreadyClosed, nil
		}
		return "", err
	}
	return ResultAutoClosed, nil
}

// Remind posts the one stale-thread reminder for a ticket that is still
// open, idle for at least s.RemindAfter and not yet reminded. A failed post
// leaves the ticket unmarked so a later sweep retries.
func (m *Machine) Remind(ctx context.Context, threadID string, s Staleness) (Result, error) {
	unlock := m.locks.lock(threadID)
	defer unlock()

	t, res, err := m.openTicket(ctx, threadID)
	if t == nil {
		return res, err
	}
	now := m.clock.Now()
	if t.ReminderSentAt != nil || t.Inactivity(now) < s.RemindAfter {
		return ResultIgnored, nil
	}

	remindDays := int(s.RemindAfter.Hours() / 24)
	leftDays := int((s.AutoCloseAfter - s.RemindAfter).Hours() / 24)
	_, err = m.platform.Send(ctx, t.ThreadID, connector.OutboundMessage{
		Content: "<@" + t.UserID + ">",
		Embeds: []connector.Embed{{
			Title: "⏰ Still need help?",
			Description: fmt.Sprintf("Hey <@%s>, this thread has been inactive for %d days.\n\n"+
				"If your issue is resolved, use `/resolve` to close it. "+
				"Otherwise this thread will be auto-closed in %d days.", t.UserID, remindDays, leftDays),
			Color:     connector.ColorWarning,
			Timestamp: now,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("lifecycle: post reminder: %w", err)
	}

	changed, err := m.store.MarkReminderSent(ctx, t.ThreadID)
	if err != nil {
		return "", fmt.Errorf("lifecycle: mark reminder: %w", err)
	}
	if !changed {
		return ResultIgnored, nil
	}
	m.Metrics.RemindersSent.Inc()
	return ResultReminded, nil
}

func (m *Machine) resolve(ctx context.Context, t *protocol.Ticket, actorID, trigger string) (Result, error) {
	thread, gone := m.fetchThread(ctx, t.ThreadID)
	tr := transition{
		ticket:     t,
		status:     protocol.TicketResolved,
		trigger:    trigger,
		thread:     thread,
		threadGone: gone,
		marker:     MarkerResolved,
		starter: func(e *connector.Embed) {
			e.Color = connector.ColorResolved
			e.Footer = "This thread has been resolved!"
		},
		confirm: connector.Embed{
			Title:       MarkerResolved + " Thread Resolved",
			Description: "This thread has been marked as resolved and will be archived shortly.",
			Color:       connector.ColorResolved,
			Fields:      []connector.EmbedField{{Name: "Resolved by", Value: "<@" + actorID + ">", Inline: true}},
			Timestamp:   m.clock.Now(),
		},
		archiveDelay: m.ResolveArchiveDelay,
	}
	if err := m.apply(ctx, tr); err != nil {
		if errors.Is(err, errSuperseded) {
			return ResultAlreadyClosed, nil
		}
		return "", err
	}
	m.Logger.Info("ticket resolved", "thread", t.ThreadID, "actor", actorID, "trigger", trigger)
	return ResultResolved, nil
}

// openTicket loads a ticket and returns it only if it is open; otherwise
// it returns the result to report.
func (m *Machine) openTicket(ctx context.Context, threadID string) (*protocol.Ticket, Result, error) {
	t, err := m.store.Get(ctx, threadID)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return nil, ResultNotTicket, nil
		}
		return nil, "", fmt.Errorf("lifecycle: load ticket: %w", err)
	}
	if t.Status.Terminal() {
		return nil, ResultAlreadyClosed, nil
	}
	return t, "", nil
}

// fetchThread loads the platform thread. gone reports that the thread no
// longer exists; any other failure returns a nil thread with gone unset.
func (m *Machine) fetchThread(ctx context.Context, threadID string) (thread *connector.Thread, gone bool) {
	thread, err := m.platform.FetchThread(ctx, threadID)
	if err != nil {
		if errors.Is(err, connector.ErrUnknownChannel) {
			m.Logger.Info("thread no longer exists", "thread", threadID)
			return nil, true
		}
		m.Metrics.SideEffectFailures.WithLabelValues("fetch_thread").Inc()
		m.Logger.Warn("fetch thread failed", "step", "fetch_thread", "thread", threadID, "error", err)
		return nil, false
	}
	return thread, false
}

func (m *Machine) editEmbed(channelID, messageID string, embed connector.Embed) func(context.Context) error {
	return func(ctx context.Context) error {
		return m.platform.EditEmbed(ctx, channelID, messageID, embed)
	}
}

func (m *Machine) clearReactions(channelID, messageID string) func(context.Context) error {
	return func(ctx context.Context) error {
		return m.platform.RemoveAllReactions(ctx, channelID, messageID)
	}
}

// issueNames reads the issue names back out of a diagnosis embed.
func issueNames(e connector.Embed) []string {
	var names []string
	for _, f := range e.Fields {
		if name, ok := strings.CutPrefix(f.Name, dispatch.IssueFieldPrefix); ok {
			names = append(names, name)
		}
	}
	return names
}
