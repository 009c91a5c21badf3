// Package scheduler periodically sweeps open tickets, reminding owners of
// quiet threads and auto-closing abandoned ones.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/toolkit-community/helpdesk/internal/clock"
	"github.com/toolkit-community/helpdesk/internal/lifecycle"
	"github.com/toolkit-community/helpdesk/internal/metrics"
	"github.com/toolkit-community/helpdesk/internal/ticket"
)

// LastSweepKey is the meta key holding the time of the last completed sweep.
const LastSweepKey = "scheduler.last_sweep_at"

// Defaults.
const (
	DefaultInterval       = time.Hour
	DefaultRemindAfter    = 72 * time.Hour
	DefaultAutoCloseAfter = 120 * time.Hour
)

// Actor applies the sweep's decisions. Both calls re-check the ticket under
// its lock, so a snapshot that went stale during the sweep is harmless.
type Actor interface {
	AutoClose(ctx context.Context, threadID string, s lifecycle.Staleness) (lifecycle.Result, error)
	Remind(ctx context.Context, threadID string, s lifecycle.Staleness) (lifecycle.Result, error)
}

// Config holds the sweep thresholds.
type Config struct {
	Interval       time.Duration
	RemindAfter    time.Duration
	AutoCloseAfter time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.RemindAfter <= 0 {
		c.RemindAfter = DefaultRemindAfter
	}
	if c.AutoCloseAfter <= 0 {
		c.AutoCloseAfter = DefaultAutoCloseAfter
	}
}

// SweepResult summarises one sweep.
type SweepResult struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Open       int           `json:"open"`
	Reminded   int           `json:"reminded"`
	AutoClosed int           `json:"auto_closed"`
	Errors     int           `json:"errors"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running   bool         `json:"running"`
	Interval  string       `json:"interval"`
	NextRun   *time.Time   `json:"next_run,omitempty"`
	LastRun   *time.Time   `json:"last_run,omitempty"`
	LastSweep *SweepResult `json:"last_sweep,omitempty"`
}

// Scheduler runs the stale-thread sweep on a fixed interval.
type Scheduler struct {
	mu        sync.Mutex
	cron      *cron.Cron
	entry     cron.EntryID
	running   bool
	lastRun   time.Time
	lastSweep *SweepResult

	// sweepMu keeps cron-driven and on-demand sweeps from overlapping.
	sweepMu sync.Mutex

	store ticket.Store
	actor Actor
	clock clock.Clock
	cfg   Config

	Metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a scheduler. Zero thresholds in cfg take the defaults.
func New(store ticket.Store, actor Actor, clk clock.Clock, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	cfg.applyDefaults()
	return &Scheduler{
		store:   store,
		actor:   actor,
		clock:   clk,
		cfg:     cfg,
		Metrics: metrics.Discard(),
		logger:  logger.With("component", "scheduler"),
	}
}

// Start runs one sweep right away and then one per interval. Calling Start
// on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.lastRun.IsZero() {
		s.loadLastRun(ctx)
	}

	cl := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl)))
	s.entry = c.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(func() {
		s.Sweep(context.Background())
	}))
	s.cron = c
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", s.cfg.Interval,
		"remind_after", s.cfg.RemindAfter, "auto_close_after", s.cfg.AutoCloseAfter)

	s.Sweep(ctx)

	// A Stop during the initial sweep already dropped c.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == c {
		c.Start()
	}
	return nil
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// Stop halts periodic sweeps and waits for a running one to finish. It is
// safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.running = false
	s.cron = nil
	s.mu.Unlock()

	// Stop on a cron that never started returns a done context.
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether periodic sweeps are active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns when the next periodic sweep fires, or the zero time when
// stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// LastRun returns when the last sweep started.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Status returns a snapshot for the admin API.
func (s *Scheduler) Status() Status {
	st := Status{Running: s.IsRunning(), Interval: s.cfg.Interval.String()}
	if next := s.NextRun(); !next.IsZero() {
		st.NextRun = &next
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastRun.IsZero() {
		last := s.lastRun
		st.LastRun = &last
	}
	if s.lastSweep != nil {
		cp := *s.lastSweep
		st.LastSweep = &cp
	}
	return st
}

// Sweep evaluates every open ticket once. Auto-close wins over reminding.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	start := time.Now()
	now := s.clock.Now()
	res := SweepResult{ID: uuid.NewString(), StartedAt: now}
	logger := s.logger.With("sweep_id", res.ID)

	s.mu.Lock()
	s.lastRun = now
	s.mu.Unlock()

	open, err := s.store.ListOpen(ctx)
	if err != nil {
		logger.Error("list open tickets failed", "error", err)
		res.Errors++
		return s.finish(ctx, logger, res, start)
	}
	res.Open = len(open)
	s.Metrics.OpenTickets.Set(float64(len(open)))

	for _, t := range open {
		if ctx.Err() != nil {
			logger.Warn("sweep interrupted", "error", ctx.Err())
			break
		}
		idle := t.Inactivity(now)
		switch {
		case idle >= s.cfg.AutoCloseAfter:
			result, err := s.actor.AutoClose(ctx, t.ThreadID, s.staleness())
			if err != nil {
				logger.Error("auto-close failed", "thread", t.ThreadID, "error", err)
				res.Errors++
				continue
			}
			if result == lifecycle.ResultAutoClosed {
				res.AutoClosed++
				logger.Info("ticket auto-closed", "thread", t.ThreadID, "idle", idle)
			}
		case idle >= s.cfg.RemindAfter && t.ReminderSentAt == nil:
			result, err := s.actor.Remind(ctx, t.ThreadID, s.staleness())
			if err != nil {
				logger.Warn("reminder failed", "step", "remind", "thread", t.ThreadID, "error", err)
				res.Errors++
				continue
			}
			if result == lifecycle.ResultReminded {
				res.Reminded++
				logger.Info("reminder sent", "thread", t.ThreadID, "idle", idle)
			}
		}
	}
	return s.finish(ctx, logger, res, start)
}

func (s *Scheduler) finish(ctx context.Context, logger *slog.Logger, res SweepResult, start time.Time) SweepResult {
	res.Duration = time.Since(start)
	s.Metrics.Sweeps.Inc()
	s.Metrics.SweepDuration.Observe(res.Duration.Seconds())

	if err := s.store.SetMeta(ctx, LastSweepKey, res.StartedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		logger.Warn("record last sweep failed", "error", err)
	}

	s.mu.Lock()
	cp := res
	s.lastSweep = &cp
	s.mu.Unlock()

	logger.Info("sweep finished", "open", res.Open, "reminded", res.Reminded,
		"auto_closed", res.AutoClosed, "errors", res.Errors, "duration", res.Duration)
	return res
}

func (s *Scheduler) staleness() lifecycle.Staleness {
	return lifecycle.Staleness{RemindAfter: s.cfg.RemindAfter, AutoCloseAfter: s.cfg.AutoCloseAfter}
}

// loadLastRun restores LastRun from the store after a restart. Caller holds mu.
func (s *Scheduler) loadLastRun(ctx context.Context) {
	v, ok, err := s.store.GetMeta(ctx, LastSweepKey)
	if err != nil || !ok {
		return
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		s.logger.Warn("bad last sweep timestamp", "value", v, "error", err)
		return
	}
	s.lastRun = t
}

// cronLogger routes robfig/cron's logging into slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
