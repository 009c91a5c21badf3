package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/toolkit-community/helpdesk/internal/api"
	"github.com/toolkit-community/helpdesk/internal/clock"
	"github.com/toolkit-community/helpdesk/internal/config"
	"github.com/toolkit-community/helpdesk/internal/connector/discord"
	"github.com/toolkit-community/helpdesk/internal/desk"
	"github.com/toolkit-community/helpdesk/internal/diagnose"
	"github.com/toolkit-community/helpdesk/internal/dispatch"
	"github.com/toolkit-community/helpdesk/internal/lifecycle"
	"github.com/toolkit-community/helpdesk/internal/logbuf"
	"github.com/toolkit-community/helpdesk/internal/metrics"
	"github.com/toolkit-community/helpdesk/internal/notify"
	"github.com/toolkit-community/helpdesk/internal/scheduler"
	"github.com/toolkit-community/helpdesk/internal/ticket"
)

const logBufferSize = 2000

func main() {
	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:           "helpdeskd",
		Short:         "Discord support desk daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, verbose)
		},
	}
	root.Flags().StringVar(&configPath, "config", os.Getenv("HELPDESK_CONFIG"), "path to config file (JSON or YAML); environment only if empty")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "helpdeskd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, verbose bool) error {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(logBufferSize)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))
	slog.SetDefault(logger)

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}
	logger.Info("helpdeskd starting", "support_channel", cfg.Discord.SupportChannelID, "store", cfg.Store.Path)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	clk := clock.Real()

	// 1. Ticket store
	if dir := filepath.Dir(cfg.Store.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := ticket.NewSQLiteStore(cfg.Store.Path, clk)
	if err != nil {
		return err
	}
	defer store.Close()

	// 2. Discord
	dc, err := discord.New(discord.Config{
		Token:   cfg.Discord.Token,
		GuildID: cfg.Discord.GuildID,
	}, logger)
	if err != nil {
		return err
	}

	// 3. Diagnosis
	guard := dispatch.NewGuard(cfg.Desk.GuardTTL)
	defer guard.Close()
	dispatcher := dispatch.New(dc, diagnose.Default, guard,
		dispatch.NewHTTPFetcher(cfg.Desk.AttachmentTimeout, cfg.Desk.AttachmentMaxBytes))
	dispatcher.Metrics = m
	dispatcher.Logger = logger

	// 4. Lifecycle
	machine := lifecycle.New(store, dc, clk)
	machine.ResolveArchiveDelay = cfg.Desk.ResolveArchiveDelay
	machine.AutoCloseArchiveDelay = cfg.Desk.AutoCloseArchiveDelay
	machine.Metrics = m
	machine.Logger = logger
	var notifiers notify.Multi
	if cfg.Notify.SlackWebhookURL != "" {
		slack, err := notify.NewSlack(cfg.Notify.SlackWebhookURL, cfg.Discord.GuildID, logger)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, slack)
		logger.Info("slack escalation enabled")
	}
	if cfg.Notify.WebhookURL != "" {
		hook, err := notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret, logger)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, hook)
		logger.Info("webhook escalation enabled", "signed", cfg.Notify.WebhookSecret != "")
	}
	if len(notifiers) > 0 {
		machine.Notifier = notifiers
	}

	// 5. Scheduler
	sched := scheduler.New(store, machine, clk, scheduler.Config{
		Interval:       cfg.Scheduler.Interval,
		RemindAfter:    cfg.Scheduler.RemindAfter,
		AutoCloseAfter: cfg.Scheduler.AutoCloseAfter,
	}, logger)
	sched.Metrics = m

	// 6. Desk
	d := desk.New(desk.Config{
		SupportChannelID: cfg.Discord.SupportChannelID,
		NoticeTTL:        cfg.Desk.NoticeTTL,
	}, store, dc, dispatcher, machine, clk, logger)
	d.Metrics = m
	dc.SetHandler(d)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(dc.Start(ctx)) })
	g.Go(func() error { return ignoreCanceled(sched.Run(ctx)) })

	if cfg.API.Port != 0 {
		srv := api.NewServer(api.Deps{
			Tickets:  store,
			Sweeper:  sched,
			Matcher:  diagnose.Default,
			Logs:     logBuf,
			Gatherer: reg,
		}, api.Config{
			Host: cfg.API.Host,
			Port: cfg.API.Port,
			Key:  cfg.API.Key,
		}, logger)
		g.Go(func() error { return srv.Start(ctx) })
	}

	err = g.Wait()
	logger.Info("helpdeskd stopped")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
