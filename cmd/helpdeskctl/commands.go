package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolkit-community/helpdesk/internal/api"
	"github.com/toolkit-community/helpdesk/internal/config"
	"github.com/toolkit-community/helpdesk/internal/diagnose"
	"github.com/toolkit-community/helpdesk/internal/logbuf"
	"github.com/toolkit-community/helpdesk/internal/scheduler"
	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

// --- health ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon health",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := newAPIClient().get("/api/health")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	},
}

// --- tickets ---

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Inspect support tickets",
}

var ticketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickets",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		user, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		if status != "" {
			q.Set("status", status)
		}
		if user != "" {
			q.Set("user", user)
		}

		body, err := newAPIClient().get("/api/tickets?" + q.Encode())
		if err != nil {
			return err
		}
		var list struct {
			Tickets []*protocol.Ticket `json:"tickets"`
			Total   int                `json:"total"`
		}
		if err := json.Unmarshal(body, &list); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		printTickets(cmd.OutOrStdout(), list.Tickets)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d tickets\n", len(list.Tickets), list.Total)
		return nil
	},
}

var ticketsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Show ticket details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := newAPIClient().get("/api/tickets/" + url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
		return nil
	},
}

func init() {
	ticketsListCmd.Flags().String("status", "", "filter by status (open|resolved|auto-closed)")
	ticketsListCmd.Flags().String("user", "", "filter by owner user ID")
	ticketsListCmd.Flags().Int("limit", 50, "max results")
	ticketsCmd.AddCommand(ticketsListCmd, ticketsShowCmd)
}

func printTickets(w io.Writer, tickets []*protocol.Ticket) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "THREAD\tSTATUS\tOWNER\tLAST ACTIVITY\tREMINDED")
	for _, t := range tickets {
		reminded := "-"
		if t.ReminderSentAt != nil {
			reminded = t.ReminderSentAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.ThreadID, t.Status, t.UserID, t.LastActivityAt.Local().Format(time.DateTime), reminded)
	}
	tw.Flush()
}

// --- sweep / scheduler ---

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a stale-thread sweep now",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := newAPIClient().post("/api/sweep", nil)
		if err != nil {
			return err
		}
		var res scheduler.SweepResult
		if err := json.Unmarshal(body, &res); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sweep %s: %d open, %d reminded, %d auto-closed, %d errors (%s)\n",
			res.ID, res.Open, res.Reminded, res.AutoClosed, res.Errors, res.Duration)
		return nil
	},
}

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Show scheduler status",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := newAPIClient().get("/api/scheduler")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
		return nil
	},
}

// --- logs ---

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent daemon log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("level")
		component, _ := cmd.Flags().GetString("component")
		thread, _ := cmd.Flags().GetString("thread")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")

		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		if level != "" {
			q.Set("level", level)
		}
		if component != "" {
			q.Set("component", component)
		}
		if thread != "" {
			q.Set("thread", thread)
		}
		if since > 0 {
			q.Set("since", strconv.FormatInt(time.Now().Add(-since).UnixMilli(), 10))
		}

		body, err := newAPIClient().get("/api/logs?" + q.Encode())
		if err != nil {
			return err
		}
		var entries []logbuf.Entry
		if err := json.Unmarshal(body, &entries); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-5s %-10s %s\n",
				e.Time.Local().Format(time.TimeOnly), e.Level, e.Component, e.Message)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().String("level", "", "minimum level (debug|info|warn|error)")
	logsCmd.Flags().String("component", "", "component prefix filter")
	logsCmd.Flags().String("thread", "", "thread ID filter")
	logsCmd.Flags().Int("limit", 100, "max entries")
	logsCmd.Flags().Duration("since", 0, "only entries newer than this, e.g. 15m")
}

// --- diagnose ---

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose [file]",
	Short: "Scan log text for known issues",
	Long: `Scan log text for known issues.

Reads the file argument, or stdin when none is given. By default the scan
runs locally; --remote sends the text to the daemon instead.

Examples:
  helpdeskctl diagnose ./latest.log
  cat latest.log | helpdeskctl diagnose --force
  helpdeskctl diagnose --remote ./latest.log`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		remote, _ := cmd.Flags().GetBool("remote")

		var (
			data []byte
			err  error
		)
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		text := string(data)

		var resp api.DiagnoseResponse
		if remote {
			body, err := newAPIClient().post("/api/diagnose", api.DiagnoseRequest{Text: text, Force: force})
			if err != nil {
				return err
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		} else {
			resp.LooksLikeLog = diagnose.LooksLikeProductLog(text)
			if force {
				resp.Issues = diagnose.Default.Detect(text)
			} else {
				resp.Issues = diagnose.Default.Classify(text)
			}
		}
		printDiagnosis(cmd.OutOrStdout(), resp, force)
		return nil
	},
}

func init() {
	diagnoseCmd.Flags().Bool("force", false, "scan even if the text does not look like a product log")
	diagnoseCmd.Flags().Bool("remote", false, "scan on the daemon instead of locally")
}

func printDiagnosis(w io.Writer, resp api.DiagnoseResponse, force bool) {
	if !resp.LooksLikeLog && !force {
		fmt.Fprintln(w, "input does not look like a product log (use --force to scan anyway)")
		return
	}
	if len(resp.Issues) == 0 {
		fmt.Fprintln(w, "no known issues found")
		return
	}
	for i, is := range resp.Issues {
		fmt.Fprintf(w, "%d. %s\n", i+1, is.Name)
		for _, line := range strings.Split(is.Remediation, "\n") {
			fmt.Fprintf(w, "   %s\n", line)
		}
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(args[0]); err != nil {
			return fmt.Errorf("invalid: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "config is valid")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
