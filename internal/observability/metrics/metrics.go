// Package metrics defines Prometheus instrumentation for the reminder
// scheduler and the call state machine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callminder"

// ReminderMetrics instruments the scheduler loop and dispatch pipeline.
// All methods are safe on a nil receiver so tests can pass nil.
type ReminderMetrics struct {
	ticks          prometheus.Counter
	tickDuration   prometheus.Histogram
	dispatches     *prometheus.CounterVec
	dispatchErrors *prometheus.CounterVec
	dedupSkips     *prometheus.CounterVec
}

func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	m := &ReminderMetrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Completed scheduler ticks.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one scheduler tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "dispatches_total",
			Help:      "Reminder calls dispatched, by reminder kind.",
		}, []string{"kind"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "dispatch_errors_total",
			Help:      "Failed dispatch attempts, by reminder kind and reason.",
		}, []string{"kind", "reason"}),
		dedupSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "dedup_skips_total",
			Help:      "Reminders skipped because an attempt was already recorded.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.ticks, m.tickDuration, m.dispatches, m.dispatchErrors, m.dedupSkips)
	}
	return m
}

func (m *ReminderMetrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *ReminderMetrics) IncDispatch(kind string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(kind).Inc()
}

func (m *ReminderMetrics) IncDispatchError(kind, reason string) {
	if m == nil {
		return
	}
	m.dispatchErrors.WithLabelValues(kind, reason).Inc()
}

func (m *ReminderMetrics) IncDedupSkip(kind string) {
	if m == nil {
		return
	}
	m.dedupSkips.WithLabelValues(kind).Inc()
}

// CallMetrics instruments webhook-driven call sessions. All methods are safe
// on a nil receiver.
type CallMetrics struct {
	events       *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	interpretDur prometheus.Histogram
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "events_total",
			Help:      "Telephony webhook events processed, by event type.",
		}, []string{"event_type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "state_transitions_total",
			Help:      "Call session state transitions.",
		}, []string{"from", "to"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "outcomes_total",
			Help:      "Terminal call outcomes, by final action.",
		}, []string{"final_action"}),
		interpretDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "interpret_duration_seconds",
			Help:      "Latency of utterance interpretation.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.transitions, m.outcomes, m.interpretDur)
	}
	return m
}

func (m *CallMetrics) IncEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

func (m *CallMetrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *CallMetrics) IncOutcome(finalAction string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(finalAction).Inc()
}

func (m *CallMetrics) ObserveInterpret(d time.Duration) {
	if m == nil {
		return
	}
	m.interpretDur.Observe(d.Seconds())
}
