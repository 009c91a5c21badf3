package protocol

import "time"

// TicketStatus represents the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketResolved   TicketStatus = "resolved"
	TicketAutoClosed TicketStatus = "auto-closed"
)

// Terminal reports whether no further transitions are accepted from s.
func (s TicketStatus) Terminal() bool {
	return s == TicketResolved || s == TicketAutoClosed
}

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketResolved, TicketAutoClosed:
		return true
	}
	return false
}

// Ticket is one support thread tracked by the desk. ThreadID is the opaque
// chat-platform handle of the thread and doubles as the primary key.
type Ticket struct {
	ThreadID       string       `json:"thread_id"`
	UserID         string       `json:"user_id"`
	Title          string       `json:"title"`
	Status         TicketStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
	ReminderSentAt *time.Time   `json:"reminder_sent_at,omitempty"`
	ResolvedAt     *time.Time   `json:"resolved_at,omitempty"`
}

// Inactivity returns how long the ticket has gone without user activity,
// measured from LastActivityAt or CreatedAt when no activity was recorded.
func (t *Ticket) Inactivity(now time.Time) time.Duration {
	last := t.LastActivityAt
	if last.IsZero() {
		last = t.CreatedAt
	}
	return now.Sub(last)
}
