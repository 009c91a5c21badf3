package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/toolkit-community/helpdesk/internal/clock"
	"github.com/toolkit-community/helpdesk/internal/connector"
	"github.com/toolkit-community/helpdesk/internal/connector/connectortest"
	"github.com/toolkit-community/helpdesk/internal/lifecycle"
	"github.com/toolkit-community/helpdesk/internal/metrics"
	"github.com/toolkit-community/helpdesk/internal/ticket"
	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

var epoch = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type fixture struct {
	sched *Scheduler
	store *ticket.SQLiteStore
	p     *connectortest.Platform
	clk   *clock.FakeClock
}

// listHookStore runs afterList once ListOpen has taken its snapshot.
type listHookStore struct {
	ticket.Store
	afterList func()
}

func (s *listHookStore) ListOpen(ctx context.Context) ([]*protocol.Ticket, error) {
	open, err := s.Store.ListOpen(ctx)
	if s.afterList != nil {
		s.afterList()
	}
	return open, err
}

// blockingPlatform holds the first Send until release is closed.
type blockingPlatform struct {
	*connectortest.Platform
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPlatform) Send(ctx context.Context, channelID string, msg connector.OutboundMessage) (*connector.Message, error) {
	p.once.Do(func() {
		close(p.entered)
		<-p.release
	})
	return p.Platform.Send(ctx, channelID, msg)
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clk := clock.Fake(epoch)
	store, err := ticket.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), clk)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	p := connectortest.New()
	m := lifecycle.New(store, p, clk)
	s := New(store, m, clk, cfg, nil)
	t.Cleanup(s.Stop)
	return &fixture{sched: s, store: store, p: p, clk: clk}
}

func (f *fixture) open(t *testing.T, id, user string) {
	t.Helper()
	f.p.AddThread(id, "support", lifecycle.OpenName("help"), &connector.Embed{Title: "🎫 help"})
	if _, err := f.store.Create(context.Background(), id, user, "help"); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func (f *fixture) get(t *testing.T, id string) *protocol.Ticket {
	t.Helper()
	tk, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return tk
}

func TestSweep_AutoClosesAfterSixDays(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "th-1", "alice")
	f.clk.Advance(6 * 24 * time.Hour)

	res := f.sched.Sweep(context.Background())
	if res.AutoClosed != 1 || res.Reminded != 0 || res.Errors != 0 {
		t.Errorf("result = %+v", res)
	}
	tk := f.get(t, "th-1")
	if tk.Status != protocol.TicketAutoClosed {
		t.Errorf("status = %q", tk.Status)
	}
	if tk.ReminderSentAt != nil {
		t.Error("auto-close should not also send a reminder")
	}
}

func TestSweep_RemindsAfterFourDays(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "th-1", "alice")
	f.clk.Advance(4 * 24 * time.Hour)

	res := f.sched.Sweep(context.Background())
	if res.Reminded != 1 || res.AutoClosed != 0 {
		t.Errorf("result = %+v", res)
	}
	tk := f.get(t, "th-1")
	if tk.Status != protocol.TicketOpen || tk.ReminderSentAt == nil {
		t.Errorf("ticket = %+v", tk)
	}

	sent := f.p.SentTo("th-1")
	if len(sent) != 1 {
		t.Fatalf("expected one reminder, got %d", len(sent))
	}
	desc := sent[0].Message.Embeds[0].Description
	for _, want := range []string{"<@alice>", "/resolve", "2 days"} {
		if !strings.Contains(desc, want) {
			t.Errorf("reminder %q missing %q", desc, want)
		}
	}
}

func TestSweep_RemindsAtMostOnce(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "th-1", "alice")
	f.clk.Advance(3*24*time.Hour + time.Minute)

	f.sched.Sweep(context.Background())
	f.clk.Advance(time.Hour)
	res := f.sched.Sweep(context.Background())

	if res.Reminded != 0 {
		t.Errorf("second sweep reminded again: %+v", res)
	}
	if n := len(f.p.SentTo("th-1")); n != 1 {
		t.Errorf("reminders posted = %d", n)
	}
}

func TestSweep_FreshTicketsUntouched(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "th-1", "alice")
	f.clk.Advance(2 * 24 * time.Hour)

	res := f.sched.Sweep(context.Background())
	if res.Open != 1 || res.Reminded != 0 || res.AutoClosed != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(f.p.Sentlog) != 0 {
		t.Error("nothing should be posted")
	}
}

func TestSweep_ActivityResetsClock(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "th-1", "alice")
	f.clk.Advance(4 * 24 * time.Hour)
	f.store.TouchActivity(context.Background(), "th-1")
	f.clk.Advance(24 * time.Hour)

	res := f.sched.Sweep(context.Background())
	if res.Reminded != 0 || res.AutoClosed != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestSweep_ReminderSendFailureLeavesTicketUnmarked(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "th-1", "alice")
	f.clk.Advance(4 * 24 * time.Hour)
	f.p.Fail["send"] = errors.New("rate limited")

	res := f.sched.Sweep(context.Background())
	if res.Errors != 1 || res.Reminded != 0 {
		t.Errorf("result = %+v", res)
	}
	if f.get(t, "th-1").ReminderSentAt != nil {
		t.Error("reminder marked without being posted")
	}
}

func TestSweep_ClosedAfterDowntime(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "th-1", "alice")
	f.open(t, "th-2", "bob")
	delete(f.p.Threads, "th-2")
	f.clk.Advance(30 * 24 * time.Hour)

	res := f.sched.Sweep(context.Background())
	if res.AutoClosed != 2 || res.Reminded != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestSweep_RecordsMetaAndMetrics(t *testing.T) {
	f := newFixture(t, Config{})
	m := metrics.Discard()
	f.sched.Metrics = m
	f.open(t, "th-1", "alice")

	res := f.sched.Sweep(context.Background())
	if res.ID == "" {
		t.Error("sweep id not set")
	}

	v, ok, err := f.store.GetMeta(context.Background(), LastSweepKey)
	if err != nil || !ok {
		t.Fatalf("meta: ok=%v err=%v", ok, err)
	}
	if v != epoch.Format(time.RFC3339Nano) {
		t.Errorf("last sweep = %q", v)
	}
	if got := testutil.ToFloat64(m.Sweeps); got != 1 {
		t.Errorf("sweeps = %v", got)
	}
	if got := testutil.ToFloat64(m.OpenTickets); got != 1 {
		t.Errorf("open tickets = %v", got)
	}
	if !f.sched.LastRun().Equal(epoch) {
		t.Errorf("last run = %v", f.sched.LastRun())
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	f := newFixture(t, Config{Interval: time.Hour})
	f.open(t, "th-1", "alice")
	f.clk.Advance(6 * 24 * time.Hour)
	ctx := context.Background()

	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !f.sched.IsRunning() {
		t.Error("expected running")
	}
	// Start sweeps immediately.
	if f.get(t, "th-1").Status != protocol.TicketAutoClosed {
		t.Error("initial sweep did not run")
	}
	if f.sched.NextRun().IsZero() {
		t.Error("next run not scheduled")
	}

	f.sched.Stop()
	f.sched.Stop()
	if f.sched.IsRunning() {
		t.Error("expected stopped")
	}
	if !f.sched.NextRun().IsZero() {
		t.Error("stopped scheduler reports a next run")
	}

	st := f.sched.Status()
	if st.Running || st.LastSweep == nil || st.LastSweep.AutoClosed != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestStart_RunsPeriodically(t *testing.T) {
	f := newFixture(t, Config{Interval: time.Second})
	m := metrics.Discard()
	f.sched.Metrics = m

	f.sched.Start(context.Background())
	time.Sleep(2500 * time.Millisecond)
	f.sched.Stop()

	if got := testutil.ToFloat64(m.Sweeps); got < 2 {
		t.Errorf("sweeps = %v, want the initial one plus at least one tick", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.sched.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	if f.sched.IsRunning() {
		t.Error("still running")
	}
}

func TestStart_RestoresLastRun(t *testing.T) {
	f := newFixture(t, Config{})
	earlier := epoch.Add(-time.Hour)
	f.store.SetMeta(context.Background(), LastSweepKey, earlier.Format(time.RFC3339Nano))

	f.sched.mu.Lock()
	f.sched.loadLastRun(context.Background())
	f.sched.mu.Unlock()

	if !f.sched.LastRun().Equal(earlier) {
		t.Errorf("last run = %v", f.sched.LastRun())
	}
}

func TestSweep_ResolvedAfterSnapshotNotReminded(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "th-1", "alice")
	f.clk.Advance(4 * 24 * time.Hour)

	m := lifecycle.New(f.store, f.p, f.clk)
	store := &listHookStore{Store: f.store, afterList: func() {
		m.Resolve(context.Background(), lifecycle.ResolveRequest{ThreadID: "th-1", ActorID: "alice"})
	}}
	s := New(store, m, f.clk, Config{}, nil)

	res := s.Sweep(context.Background())
	if res.Reminded != 0 || res.Errors != 0 {
		t.Errorf("result = %+v", res)
	}
	for _, sent := range f.p.SentTo("th-1") {
		if len(sent.Message.Embeds) > 0 && strings.Contains(sent.Message.Embeds[0].Title, "Still need help") {
			t.Error("reminder posted to a resolved ticket")
		}
	}
	if f.get(t, "th-1").ReminderSentAt != nil {
		t.Error("resolved ticket marked as reminded")
	}
}

func TestSweep_ActivityAfterSnapshotPreventsAutoClose(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "th-1", "alice")
	f.clk.Advance(6 * 24 * time.Hour)

	store := &listHookStore{Store: f.store, afterList: func() {
		f.store.TouchActivity(context.Background(), "th-1")
	}}
	s := New(store, lifecycle.New(f.store, f.p, f.clk), f.clk, Config{}, nil)

	res := s.Sweep(context.Background())
	if res.AutoClosed != 0 || res.Errors != 0 {
		t.Errorf("result = %+v", res)
	}
	if st := f.get(t, "th-1").Status; st != protocol.TicketOpen {
		t.Errorf("status = %q", st)
	}
	if len(f.p.Sentlog) != 0 {
		t.Error("close notice posted for an active thread")
	}
}

func TestStart_StopDuringInitialSweep(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "th-1", "alice")
	f.clk.Advance(4 * 24 * time.Hour)

	bp := &blockingPlatform{
		Platform: f.p,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	m := metrics.Discard()
	s := New(f.store, lifecycle.New(f.store, bp, f.clk), f.clk, Config{Interval: time.Second}, nil)
	s.Metrics = m
	t.Cleanup(s.Stop)

	started := make(chan error, 1)
	go func() { started <- s.Start(context.Background()) }()

	select {
	case <-bp.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("initial sweep never reached the platform")
	}
	s.Stop()
	close(bp.release)

	select {
	case err := <-started:
		if err != nil {
			t.Fatalf("start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return")
	}

	time.Sleep(2500 * time.Millisecond)
	if s.IsRunning() {
		t.Error("running after stop")
	}
	if got := testutil.ToFloat64(m.Sweeps); got != 1 {
		t.Errorf("sweeps = %v, want only the initial one", got)
	}
	if !s.NextRun().IsZero() {
		t.Error("stopped scheduler reports a next run")
	}
}
