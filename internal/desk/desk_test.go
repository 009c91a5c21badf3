package desk

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/toolkit-community/helpdesk/internal/clock"
	"github.com/toolkit-community/helpdesk/internal/connector"
	"github.com/toolkit-community/helpdesk/internal/connector/connectortest"
	"github.com/toolkit-community/helpdesk/internal/dispatch"
	"github.com/toolkit-community/helpdesk/internal/lifecycle"
	"github.com/toolkit-community/helpdesk/internal/ticket"
	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

const (
	supportChannel = "support"
	refusedLog     = "=== setup started ===\n2026-05-04 09:30:00 [ERROR] connect ECONNREFUSED 127.0.0.1:11434"
)

var epoch = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type fixture struct {
	desk  *Desk
	store *ticket.SQLiteStore
	p     *connectortest.Platform
	clk   *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.Fake(epoch)
	store, err := ticket.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), clk)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	p := connectortest.New()
	guard := dispatch.NewGuard(time.Minute)
	t.Cleanup(guard.Close)

	d := New(Config{SupportChannelID: supportChannel}, store, p,
		dispatch.New(p, nil, guard, nil), lifecycle.New(store, p, clk), clk, nil)
	return &fixture{desk: d, store: store, p: p, clk: clk}
}

// openTicket submits the form and returns the new thread ID.
func (f *fixture) openTicket(t *testing.T, user string) string {
	t.Helper()
	resp := f.desk.HandleTicketSubmission(context.Background(), connector.TicketSubmission{
		UserID: user, Title: "Ollama refuses connections", Version: "1.2.0", OS: "Windows 11",
		Description: "Setup stops at the embedding step.",
	})
	if !strings.Contains(resp.Content, "has been created") {
		t.Fatalf("submission response = %q", resp.Content)
	}
	for id := range f.p.Threads {
		return id
	}
	t.Fatal("no thread started")
	return ""
}

func TestTicketSubmission(t *testing.T) {
	f := newFixture(t)
	threadID := f.openTicket(t, "alice")

	summary := f.p.SentTo(supportChannel)
	if len(summary) != 1 {
		t.Fatalf("summary posts = %d", len(summary))
	}
	card := summary[0].Message.Embeds[0]
	if card.Title != "🎫 Ollama refuses connections" || card.Footer != "Click the thread below to help!" {
		t.Errorf("summary = %+v", card)
	}
	if len(card.Fields) != 3 || card.Fields[0].Value != "<@alice>" || card.Fields[1].Value != "Windows 11" {
		t.Errorf("summary fields = %+v", card.Fields)
	}

	if threadID != summary[0].ID {
		t.Errorf("thread %q not started from summary %q", threadID, summary[0].ID)
	}
	if name := f.p.ThreadName(threadID); name != "📋 Ollama refuses connections" {
		t.Errorf("thread name = %q", name)
	}
	if n := len(f.p.SentTo(threadID)); n != 2 {
		t.Errorf("opening posts = %d, want description and log request", n)
	}

	tk, err := f.store.Get(context.Background(), threadID)
	if err != nil {
		t.Fatalf("ticket not created: %v", err)
	}
	if tk.UserID != "alice" || tk.Status != protocol.TicketOpen {
		t.Errorf("ticket = %+v", tk)
	}
}

func TestTicketSubmission_EmptyTitle(t *testing.T) {
	f := newFixture(t)
	resp := f.desk.HandleTicketSubmission(context.Background(), connector.TicketSubmission{UserID: "alice", Title: "  "})
	if !resp.Ephemeral || len(f.p.Sentlog) != 0 {
		t.Errorf("response = %+v, posts = %d", resp, len(f.p.Sentlog))
	}
}

func TestTicketSubmission_ThreadFailureCleansUp(t *testing.T) {
	f := newFixture(t)
	f.p.Fail["start_thread"] = errors.New("missing permission")

	resp := f.desk.HandleTicketSubmission(context.Background(), connector.TicketSubmission{UserID: "alice", Title: "x"})
	if !strings.Contains(resp.Content, "could not be created") {
		t.Errorf("response = %q", resp.Content)
	}
	if len(f.p.Deleted) != 1 {
		t.Errorf("orphan summary not deleted: %v", f.p.Deleted)
	}
	if n, _ := f.store.Count(context.Background(), ticket.Filter{}); n != 0 {
		t.Errorf("tickets = %d", n)
	}
}

func TestHandleMessage_DiagnosesAndTouches(t *testing.T) {
	f := newFixture(t)
	threadID := f.openTicket(t, "alice")
	f.clk.Advance(time.Hour)

	f.desk.HandleMessage(context.Background(), connector.Message{
		ID: "u1", ChannelID: threadID, AuthorID: "alice", Content: refusedLog,
	})

	tk, _ := f.store.Get(context.Background(), threadID)
	if !tk.LastActivityAt.Equal(epoch.Add(time.Hour)) {
		t.Errorf("last activity = %v", tk.LastActivityAt)
	}
	sent := f.p.SentTo(threadID)
	if len(sent) != 3 || !dispatch.IsDiagnosis(sent[2].Message.Embeds[0]) {
		t.Errorf("thread posts = %d, want diagnosis last", len(sent))
	}
}

func TestHandleMessage_IgnoresUnknownThreads(t *testing.T) {
	f := newFixture(t)
	f.desk.HandleMessage(context.Background(), connector.Message{
		ID: "u1", ChannelID: "general", AuthorID: "alice", Content: refusedLog,
	})
	if len(f.p.Sentlog) != 0 {
		t.Error("messages outside tickets should be ignored")
	}
}

func TestHandleMessage_ClosedTicketNotDiagnosed(t *testing.T) {
	f := newFixture(t)
	threadID := f.openTicket(t, "alice")
	f.store.Transition(context.Background(), threadID, protocol.TicketResolved)
	before := len(f.p.Sentlog)

	f.desk.HandleMessage(context.Background(), connector.Message{
		ID: "u1", ChannelID: threadID, AuthorID: "alice", Content: refusedLog,
	})
	if len(f.p.Sentlog) != before {
		t.Error("closed ticket received a diagnosis")
	}
}

func TestHandleMessage_SupportChannelHygiene(t *testing.T) {
	f := newFixture(t)

	f.desk.HandleMessage(context.Background(), connector.Message{
		ID: "stray", ChannelID: supportChannel, AuthorID: "bob", Content: "help pls",
	})

	if len(f.p.Deleted) != 1 || f.p.Deleted[0] != "stray" {
		t.Fatalf("deleted = %v", f.p.Deleted)
	}
	notice := f.p.SentTo(supportChannel)
	if len(notice) != 1 || !strings.Contains(notice[0].Message.Content, "<@bob>") {
		t.Fatalf("notice = %+v", notice)
	}

	f.clk.Advance(5 * time.Second)
	if len(f.p.Deleted) != 2 || f.p.Deleted[1] != notice[0].ID {
		t.Errorf("notice not removed: %v", f.p.Deleted)
	}
}

func TestHandleMessage_BotMessagesInSupportChannelKept(t *testing.T) {
	f := newFixture(t)
	f.desk.HandleMessage(context.Background(), connector.Message{
		ID: "card", ChannelID: supportChannel, AuthorID: "bot", AuthorBot: true,
	})
	if len(f.p.Deleted) != 0 {
		t.Error("bot message deleted")
	}
}

func TestHandleResolve(t *testing.T) {
	f := newFixture(t)
	threadID := f.openTicket(t, "alice")
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  connector.ResolveCommand
		want string
	}{
		{"stranger", connector.ResolveCommand{ChannelID: threadID, UserID: "mallory"}, "Only the thread owner"},
		{"not a thread", connector.ResolveCommand{ChannelID: "general", UserID: "alice"}, "inside a support thread"},
		{"owner", connector.ResolveCommand{ChannelID: threadID, UserID: "alice"}, "marked as resolved"},
		{"again", connector.ResolveCommand{ChannelID: threadID, UserID: "alice"}, "already closed"},
	}
	for _, tt := range tests {
		resp := f.desk.HandleResolve(ctx, tt.cmd)
		if !strings.Contains(resp.Content, tt.want) || !resp.Ephemeral {
			t.Errorf("%s: response = %+v, want %q", tt.name, resp, tt.want)
		}
	}
}

func TestHandleReaction_ResolvesTicket(t *testing.T) {
	f := newFixture(t)
	threadID := f.openTicket(t, "alice")
	ctx := context.Background()

	f.desk.HandleMessage(ctx, connector.Message{ID: "u1", ChannelID: threadID, AuthorID: "alice", Content: refusedLog})
	sent := f.p.SentTo(threadID)
	diag := sent[len(sent)-1].ID

	r := connector.Reaction{ChannelID: threadID, MessageID: diag, UserID: "alice", Emoji: connector.EmojiResolved}
	f.desk.HandleReaction(ctx, r)
	f.desk.HandleReaction(ctx, r)

	tk, _ := f.store.Get(ctx, threadID)
	if tk.Status != protocol.TicketResolved {
		t.Errorf("status = %q", tk.Status)
	}
	if n := len(f.p.SentTo(threadID)) - len(sent); n != 1 {
		t.Errorf("confirmations = %d, want 1", n)
	}
}
