package ticket

import (
	"context"
	"errors"

	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

var (
	// ErrNotFound is returned by Get when no ticket exists for a thread.
	ErrNotFound = errors.New("ticket not found")
	// ErrInvalidTransition is returned when Transition targets a
	// non-terminal status.
	ErrInvalidTransition = errors.New("invalid ticket transition")
)

// Store is the persistence interface for support tickets. Every mutation is
// safe to retry and safe to call concurrently for the same thread.
type Store interface {
	// Create opens a ticket for a thread. If the thread already has a ticket,
	// the existing one is returned unchanged.
	Create(ctx context.Context, threadID, userID, title string) (*protocol.Ticket, error)
	// Get retrieves a ticket by thread ID.
	Get(ctx context.Context, threadID string) (*protocol.Ticket, error)
	// TouchActivity bumps last_activity_at of an open ticket. Absent or
	// terminal tickets are left alone.
	TouchActivity(ctx context.Context, threadID string) error
	// MarkReminderSent records the stale reminder. Reports false when the
	// ticket is not open or already had a reminder.
	MarkReminderSent(ctx context.Context, threadID string) (bool, error)
	// Transition moves an open ticket to a terminal status and stamps
	// resolved_at. Reports false when the ticket is absent or already terminal.
	Transition(ctx context.Context, threadID string, status protocol.TicketStatus) (bool, error)
	// ListOpen returns every open ticket, least recently active first.
	ListOpen(ctx context.Context) ([]*protocol.Ticket, error)
	// List returns tickets matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*protocol.Ticket, error)
	// Count returns the number of tickets matching the filter.
	Count(ctx context.Context, filter Filter) (int, error)
	// GetMeta reads a durable scalar. Missing keys return "" and false.
	GetMeta(ctx context.Context, key string) (string, bool, error)
	// SetMeta writes a durable scalar.
	SetMeta(ctx context.Context, key, value string) error
}

// Filter constrains ticket list queries.
type Filter struct {
	Status *protocol.TicketStatus
	UserID string
	Limit  int // 0 = no limit
}
