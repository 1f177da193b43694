package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records per-consumer fan-out outcomes.
type DispatchMetrics struct {
	duration      *prometheus.HistogramVec
	events        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	pushes        *prometheus.CounterVec
}

// Event outcome labels.
const (
	OutcomeHandled = "handled"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// NewDispatchMetrics registers the dispatcher metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "event_handle_duration_seconds",
		Help:    "Duration of change-event handling in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"consumer"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_total",
		Help: "Change events received, by consumer and outcome.",
	}, []string{"consumer", "outcome"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_written_total",
		Help: "In-app notification documents created.",
	}, []string{"consumer"})
	pushes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pushes_sent_total",
		Help: "Push tokens addressed by accepted FCM sends.",
	}, []string{"consumer"})
	reg.MustRegister(duration, events, notifications, pushes)
	return &DispatchMetrics{
		duration:      duration,
		events:        events,
		notifications: notifications,
		pushes:        pushes,
	}
}

// ObserveDuration records how long a consumer spent on one event.
func (d *DispatchMetrics) ObserveDuration(consumer string, duration time.Duration) {
	if d == nil || d.duration == nil {
		return
	}
	d.duration.WithLabelValues(normalizeLabel(consumer)).Observe(duration.Seconds())
}

// IncEvent counts one received event with its outcome.
func (d *DispatchMetrics) IncEvent(consumer, outcome string) {
	if d == nil || d.events == nil {
		return
	}
	d.events.WithLabelValues(normalizeLabel(consumer), normalizeLabel(outcome)).Inc()
}

// AddNotifications counts in-app notification documents written.
func (d *DispatchMetrics) AddNotifications(consumer string, count int) {
	if d == nil || d.notifications == nil || count <= 0 {
		return
	}
	d.notifications.WithLabelValues(normalizeLabel(consumer)).Add(float64(count))
}

// AddPushes counts device tokens addressed by a send.
func (d *DispatchMetrics) AddPushes(consumer string, count int) {
	if d == nil || d.pushes == nil || count <= 0 {
		return
	}
	d.pushes.WithLabelValues(normalizeLabel(consumer)).Add(float64(count))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
