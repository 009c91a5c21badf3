package ticket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/toolkit-community/helpdesk/internal/clock"
	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const ticketColumns = "thread_id, user_id, title, status, created_at, last_activity_at, reminder_sent_at, resolved_at"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// A nil clock means the real wall clock.
func NewSQLiteStore(path string, clk clock.Clock) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}
	// One connection serialises writers from the scheduler and the event
	// handlers without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: wal: %w", err)
	}

	if clk == nil {
		clk = clock.Real()
	}
	s := &SQLiteStore{db: db, clock: clk}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			thread_id        TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			title            TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'open',
			created_at       TEXT NOT NULL,
			last_activity_at TEXT NOT NULL,
			reminder_sent_at TEXT,
			resolved_at      TEXT
		);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets(user_id);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) now() string {
	return formatTime(s.clock.Now())
}

func (s *SQLiteStore) Create(ctx context.Context, threadID, userID, title string) (*protocol.Ticket, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (thread_id, user_id, title, status, created_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO NOTHING
	`, threadID, userID, title, string(protocol.TicketOpen), now, now)
	if err != nil {
		return nil, fmt.Errorf("ticket store: create: %w", err)
	}
	return s.Get(ctx, threadID)
}

func (s *SQLiteStore) Get(ctx context.Context, threadID string) (*protocol.Ticket, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE thread_id = ?", threadID)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket %q: %w", threadID, ErrNotFound)
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) TouchActivity(ctx context.Context, threadID string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET last_activity_at = ?
		WHERE thread_id = ? AND status = ? AND last_activity_at < ?
	`, now, threadID, string(protocol.TicketOpen), now)
	if err != nil {
		return fmt.Errorf("ticket store: touch activity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkReminderSent(ctx context.Context, threadID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET reminder_sent_at = ?
		WHERE thread_id = ? AND status = ? AND reminder_sent_at IS NULL
	`, s.now(), threadID, string(protocol.TicketOpen))
	if err != nil {
		return false, fmt.Errorf("ticket store: mark reminder: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) Transition(ctx context.Context, threadID string, status protocol.TicketStatus) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("ticket store: transition to %q: %w", status, ErrInvalidTransition)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = ?, resolved_at = ?
		WHERE thread_id = ? AND status = ?
	`, string(status), s.now(), threadID, string(protocol.TicketOpen))
	if err != nil {
		return false, fmt.Errorf("ticket store: transition: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) ListOpen(ctx context.Context) ([]*protocol.Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE status = ? ORDER BY last_activity_at ASC",
		string(protocol.TicketOpen))
	if err != nil {
		return nil, fmt.Errorf("ticket store: list open: %w", err)
	}
	return collect(rows)
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*protocol.Ticket, error) {
	where, args := filter.where()
	query := "SELECT " + ticketColumns + " FROM tickets" + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	return collect(rows)
}

func (s *SQLiteStore) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := filter.where()
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tickets"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ticket store: count: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ticket store: get meta: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("ticket store: set meta: %w", err)
	}
	return nil
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

func (f Filter) where() (string, []any) {
	clause := " WHERE 1=1"
	var args []any
	if f.Status != nil {
		clause += " AND status = ?"
		args = append(args, string(*f.Status))
	}
	if f.UserID != "" {
		clause += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	return clause, args
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(row scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var status, createdAt, lastActivity string
	var reminderSent, resolved sql.NullString

	err := row.Scan(&t.ThreadID, &t.UserID, &t.Title, &status, &createdAt, &lastActivity, &reminderSent, &resolved)
	if err != nil {
		return nil, err
	}

	t.Status = protocol.TicketStatus(status)
	t.CreatedAt = parseTime(createdAt)
	t.LastActivityAt = parseTime(lastActivity)
	t.ReminderSentAt = parseNullTime(reminderSent)
	t.ResolvedAt = parseNullTime(resolved)
	return &t, nil
}

func collect(rows *sql.Rows) ([]*protocol.Ticket, error) {
	defer rows.Close()

	var tickets []*protocol.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}
