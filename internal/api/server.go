// Package api serves the helpdesk admin REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolkit-community/helpdesk/internal/diagnose"
	"github.com/toolkit-community/helpdesk/internal/logbuf"
	"github.com/toolkit-community/helpdesk/internal/scheduler"
	"github.com/toolkit-community/helpdesk/internal/ticket"
	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

const (
	defaultTicketLimit = 100
	defaultLogLimit    = 200
	maxDiagnoseBody    = 4 << 20
)

// LogQuerier abstracts log entry querying to avoid coupling to logbuf directly.
type LogQuerier interface {
	Query(q logbuf.Query) []logbuf.Entry
}

// TicketReader is the read side of the ticket store.
type TicketReader interface {
	Get(ctx context.Context, threadID string) (*protocol.Ticket, error)
	List(ctx context.Context, filter ticket.Filter) ([]*protocol.Ticket, error)
	Count(ctx context.Context, filter ticket.Filter) (int, error)
}

// Sweeper triggers and reports on stale-thread sweeps.
type Sweeper interface {
	Sweep(ctx context.Context) scheduler.SweepResult
	Status() scheduler.Status
}

// Deps are the services behind the API. Logs and Gatherer may be nil.
type Deps struct {
	Tickets  TicketReader
	Sweeper  Sweeper
	Matcher  *diagnose.Matcher
	Logs     LogQuerier
	Gatherer prometheus.Gatherer
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth
}

// Server is the helpdesk admin API server.
type Server struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	srv    *http.Server
}

// NewServer creates a new API server.
func NewServer(deps Deps, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Matcher == nil {
		deps.Matcher = diagnose.Default
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/api/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		if deps.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
		}
		r.Get("/api/tickets", s.handleListTickets)
		r.Get("/api/tickets/{id}", s.handleGetTicket)
		r.Post("/api/sweep", s.handleSweep)
		r.Get("/api/scheduler", s.handleScheduler)
		r.Get("/api/logs", s.handleGetLogs)
		r.Post("/api/diagnose", s.handleDiagnose)
	})

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ticketList struct {
	Tickets []*protocol.Ticket `json:"tickets"`
	Total   int                `json:"total"`
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ticket.Filter{UserID: q.Get("user"), Limit: defaultTicketLimit}
	if status := q.Get("status"); status != "" {
		ts := protocol.TicketStatus(status)
		if !ts.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
			return
		}
		filter.Status = &ts
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	tickets, err := s.deps.Tickets.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list tickets failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.deps.Tickets.Count(r.Context(), filter)
	if err != nil {
		s.logger.Error("count tickets failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tickets == nil {
		tickets = []*protocol.Ticket{}
	}
	writeJSON(w, http.StatusOK, ticketList{Tickets: tickets, Total: total})
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Tickets.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ticket.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	res := s.deps.Sweeper.Sweep(r.Context())
	s.logger.Info("manual sweep", "sweep_id", res.ID)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleScheduler(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Sweeper.Status())
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	q := r.URL.Query()
	query := logbuf.Query{
		MinLevel:  slog.LevelDebug,
		Component: q.Get("component"),
		Thread:    q.Get("thread"),
		Limit:     defaultLogLimit,
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			query.Limit = n
		}
	}
	if lvl := q.Get("level"); lvl != "" {
		query.MinLevel = logbuf.ParseLevel(lvl)
	}
	if since := q.Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			query.Since = time.UnixMilli(ms)
		}
	}

	entries := s.deps.Logs.Query(query)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// DiagnoseRequest is the body of POST /api/diagnose.
type DiagnoseRequest struct {
	Text string `json:"text"`
	// Force skips the log-shape gate.
	Force bool `json:"force,omitempty"`
}

// DiagnoseResponse is the result of POST /api/diagnose.
type DiagnoseResponse struct {
	LooksLikeLog bool             `json:"looks_like_log"`
	Issues       []protocol.Issue `json:"issues"`
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var req DiagnoseRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDiagnoseBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	resp := DiagnoseResponse{LooksLikeLog: diagnose.LooksLikeProductLog(req.Text)}
	if req.Force {
		resp.Issues = s.deps.Matcher.Detect(req.Text)
	} else {
		resp.Issues = s.deps.Matcher.Classify(req.Text)
	}
	if resp.Issues == nil {
		resp.Issues = []protocol.Issue{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
