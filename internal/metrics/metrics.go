package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the desk's Prometheus collectors.
type Metrics struct {
	Diagnoses          *prometheus.CounterVec
	IssuesDetected     *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	SideEffectFailures *prometheus.CounterVec
	TicketsCreated     prometheus.Counter
	RemindersSent      prometheus.Counter
	Sweeps             prometheus.Counter
	SweepDuration      prometheus.Histogram
	OpenTickets        prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Diagnoses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_diagnoses_total",
			Help: "Messages run through the diagnosis pipeline, by outcome",
		}, []string{"outcome"}),
		IssuesDetected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_issues_detected_total",
			Help: "Known issues recognised in user logs, by issue name",
		}, []string{"issue"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_transitions_total",
			Help: "Ticket status transitions applied, by target status and trigger",
		}, []string{"status", "trigger"}),
		SideEffectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_side_effect_failures_total",
			Help: "Platform side effects that failed and were skipped, by step",
		}, []string{"step"}),
		TicketsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_tickets_created_total",
			Help: "Support tickets opened",
		}),
		RemindersSent: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_reminders_sent_total",
			Help: "Stale-thread reminders posted",
		}),
		Sweeps: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_sweeps_total",
			Help: "Stale-thread sweeps executed",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpdesk_sweep_duration_seconds",
			Help:    "Time spent in one stale-thread sweep",
			Buckets: prometheus.DefBuckets,
		}),
		OpenTickets: f.NewGauge(prometheus.GaugeOpts{
			Name: "helpdesk_open_tickets",
			Help: "Open tickets seen by the last sweep",
		}),
	}
}

// Discard returns collectors bound to a private registry nobody scrapes.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}
