// Package metrics exposes Prometheus collectors for the bot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	eventsTotal      *prometheus.CounterVec
	stepsTotal       *prometheus.CounterVec
	dateResolutions  *prometheus.CounterVec
	ticketsTotal     *prometheus.CounterVec
	notifyFailures   prometheus.Counter
	collaboratorTime *prometheus.HistogramVec
	sessionsExpired  prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		eventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jirabot_events_total",
				Help: "Inbound events by dispatch outcome",
			},
			[]string{"outcome"},
		),
		stepsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jirabot_dialogue_steps_total",
				Help: "Dialogue transitions by the step entered",
			},
			[]string{"step"},
		),
		dateResolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jirabot_date_resolutions_total",
				Help: "Due-date resolutions by resolver and result",
			},
			[]string{"resolver", "result"},
		),
		ticketsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jirabot_tickets_total",
				Help: "Ticket creation attempts by result",
			},
			[]string{"result"},
		),
		notifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "jirabot_notify_failures_total",
			Help: "Outbound chat messages that could not be delivered",
		}),
		collaboratorTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jirabot_collaborator_duration_seconds",
				Help:    "Latency of calls to external collaborators",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collaborator"},
		),
		sessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "jirabot_sessions_expired_total",
			Help: "Sessions dropped by the idle sweeper",
		}),
	}
}

// RegisterSessionGauge exposes the live session count through fn.
func RegisterSessionGauge(reg prometheus.Registerer, fn func() int) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "jirabot_active_sessions",
		Help: "Users with an unanswered prompt",
	}, func() float64 { return float64(fn()) })
}

func (m *Metrics) Event(outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Step(step string) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(step).Inc()
}

func (m *Metrics) DateResolution(resolver, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.dateResolutions.WithLabelValues(resolver, result).Inc()
	m.collaboratorTime.WithLabelValues("date_resolver").Observe(d.Seconds())
}

func (m *Metrics) Ticket(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ticketsTotal.WithLabelValues(result).Inc()
	m.collaboratorTime.WithLabelValues("ticket_creator").Observe(d.Seconds())
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

func (m *Metrics) SessionExpired() {
	if m == nil {
		return
	}
	m.sessionsExpired.Inc()
}
