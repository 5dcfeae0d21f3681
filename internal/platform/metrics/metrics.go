package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the engine's prometheus instruments. Methods tolerate a
// zero-value receiver so unit tests can pass &Metrics{} without registering
// collectors.
type Metrics struct {
	TransitionsTotal        *prometheus.CounterVec
	InvalidTransitionsTotal *prometheus.CounterVec
	TransitionConflicts     prometheus.Counter
	SweepMarkedTotal        prometheus.Counter
	SweepDuration           prometheus.Histogram
	NotificationsDropped    prometheus.Counter
	NotificationFailures    prometheus.Counter
	HistoryWriteFailures    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "remedia_transitions_total",
			Help: "Total number of applied status transitions",
		}, []string{"entity", "to"}),
		InvalidTransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "remedia_invalid_transitions_total",
			Help: "Total number of rejected status transitions",
		}, []string{"entity"}),
		TransitionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "remedia_transition_conflicts_total",
			Help: "Total number of conditional status writes lost to a concurrent transition",
		}),
		SweepMarkedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "remedia_sweep_marked_overdue_total",
			Help: "Total number of observations marked overdue by the sweeper",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "remedia_sweep_duration_seconds",
			Help:    "Duration of overdue sweep runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		NotificationsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "remedia_notifications_dropped_total",
			Help: "Total number of notifications dropped because the dispatch buffer was full",
		}),
		NotificationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "remedia_notification_failures_total",
			Help: "Total number of notification sink failures (logged, never propagated)",
		}),
		HistoryWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "remedia_history_write_failures_total",
			Help: "Total number of status history appends that failed after a committed transition",
		}),
	}
}

func (m *Metrics) IncTransition(entity, to string) {
	if m == nil || m.TransitionsTotal == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(entity, to).Inc()
}

func (m *Metrics) IncInvalidTransition(entity string) {
	if m == nil || m.InvalidTransitionsTotal == nil {
		return
	}
	m.InvalidTransitionsTotal.WithLabelValues(entity).Inc()
}

func (m *Metrics) IncTransitionConflict() {
	if m == nil || m.TransitionConflicts == nil {
		return
	}
	m.TransitionConflicts.Inc()
}

func (m *Metrics) AddSweepMarked(n int) {
	if m == nil || m.SweepMarkedTotal == nil {
		return
	}
	m.SweepMarkedTotal.Add(float64(n))
}

func (m *Metrics) ObserveSweepDuration(seconds float64) {
	if m == nil || m.SweepDuration == nil {
		return
	}
	m.SweepDuration.Observe(seconds)
}

func (m *Metrics) IncNotificationDropped() {
	if m == nil || m.NotificationsDropped == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

func (m *Metrics) IncNotificationFailure() {
	if m == nil || m.NotificationFailures == nil {
		return
	}
	m.NotificationFailures.Inc()
}

func (m *Metrics) IncHistoryWriteFailure() {
	if m == nil || m.HistoryWriteFailures == nil {
		return
	}
	m.HistoryWriteFailures.Inc()
}
