// Package metrics provides Prometheus collectors for moderation, triage and realtime delivery.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the service exports. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ModerationDecisions *prometheus.CounterVec   // decisions by action and content kind
	ClassifierRequests  *prometheus.CounterVec   // classifier calls by operation and outcome
	ClassifierLatency   *prometheus.HistogramVec // classifier latency by operation

	NotificationsDispatched *prometheus.CounterVec // notification rows written by type

	RealtimeReconnects    prometheus.Counter
	RealtimePollFallbacks prometheus.Counter
	RealtimeMode          *prometheus.GaugeVec // active subscribers by mode

	TriageMessages *prometheus.CounterVec // AI messages posted by kind (intro, reply)

	registry *prometheus.Registry
}

// New creates the collectors and registers them on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.init()

	collectors := []prometheus.Collector{
		m.ModerationDecisions,
		m.ClassifierRequests,
		m.ClassifierLatency,
		m.NotificationsDispatched,
		m.RealtimeReconnects,
		m.RealtimePollFallbacks,
		m.RealtimeMode,
		m.TriageMessages,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) init() {
	m.ModerationDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_decisions_total",
			Help: "Moderation decisions by action and content kind",
		},
		[]string{"action", "kind"},
	)
	m.ClassifierRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_requests_total",
			Help: "Calls to the external classifier by operation and outcome",
		},
		[]string{"operation", "outcome"}, // outcome: success, error
	)
	m.ClassifierLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_request_duration_seconds",
			Help:    "Latency of calls to the external classifier",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"operation"},
	)
	m.NotificationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notification rows written by notification type",
		},
		[]string{"type"},
	)
	m.RealtimeReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_reconnect_attempts_total",
		Help: "Resubscribe attempts after a realtime channel failure",
	})
	m.RealtimePollFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_poll_fallbacks_total",
		Help: "Times a subscriber exhausted its retries and fell back to polling",
	})
	m.RealtimeMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_subscribers",
			Help: "Active realtime subscribers by delivery mode",
		},
		[]string{"mode"},
	)
	m.TriageMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_ai_messages_total",
			Help: "AI messages posted into chat rooms by kind",
		},
		[]string{"kind"},
	)
}

// Registry returns the registry the collectors were registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveDecision(action, kind string) {
	if m == nil {
		return
	}
	m.ModerationDecisions.WithLabelValues(action, kind).Inc()
}

func (m *Metrics) ObserveClassifier(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ClassifierRequests.WithLabelValues(operation, outcome).Inc()
	m.ClassifierLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) ObserveNotifications(notificationType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.NotificationsDispatched.WithLabelValues(notificationType).Add(float64(n))
}

func (m *Metrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.RealtimeReconnects.Inc()
}

func (m *Metrics) ObservePollFallback() {
	if m == nil {
		return
	}
	m.RealtimePollFallbacks.Inc()
}

// ObserveModeChange moves one subscriber from one mode gauge to another. Empty modes are skipped.
func (m *Metrics) ObserveModeChange(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.RealtimeMode.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.RealtimeMode.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) ObserveTriageMessage(kind string) {
	if m == nil {
		return
	}
	m.TriageMessages.WithLabelValues(kind).Inc()
}
