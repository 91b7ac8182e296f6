// Package metrics exposes Prometheus instrumentation for the push delivery
// and reconnection subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PushMetrics counts push intake and presentation outcomes.
type PushMetrics struct {
	PayloadDecoded       *prometheus.CounterVec
	NotificationsShown   prometheus.Counter
	NotificationsGrouped prometheus.Counter
}

// RoutingMetrics counts click fan-out delivery per channel and relay dedupe.
type RoutingMetrics struct {
	EventsDispatched  *prometheus.CounterVec
	DuplicatesDropped prometheus.Counter
	WindowsOpened     prometheus.Counter
	ContextsFocused   prometheus.Counter
}

// ConnectionMetrics tracks supervisor activity.
type ConnectionMetrics struct {
	LivenessChecks prometheus.Counter
	Reconnects     prometheus.Counter
	Rejoins        prometheus.Counter
	Foreground     prometheus.Gauge
}

// Metrics bundles every metric group behind a single registry.
type Metrics struct {
	Push       *PushMetrics
	Routing    *RoutingMetrics
	Connection *ConnectionMetrics

	registry *prometheus.Registry
}

// NewMetrics creates and registers all pushkit metrics on a fresh registry.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Push: &PushMetrics{
			PayloadDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pushkit_push_payloads_decoded_total",
				Help: "Push payloads decoded, by outcome (ok, empty, malformed).",
			}, []string{"outcome"}),
			NotificationsShown: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pushkit_notifications_shown_total",
				Help: "OS notifications presented.",
			}),
			NotificationsGrouped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pushkit_notifications_grouped_total",
				Help: "Notifications coalesced into an existing tag.",
			}),
		},
		Routing: &RoutingMetrics{
			EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pushkit_click_events_dispatched_total",
				Help: "Routed click events dispatched, by channel (direct, broadcast, stored).",
			}, []string{"channel"}),
			DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pushkit_click_events_duplicates_dropped_total",
				Help: "Routed click events discarded by relay deduplication.",
			}),
			WindowsOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pushkit_windows_opened_total",
				Help: "New app contexts opened because no live context existed.",
			}),
			ContextsFocused: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pushkit_contexts_focused_total",
				Help: "Existing app contexts brought to focus after a click.",
			}),
		},
		Connection: &ConnectionMetrics{
			LivenessChecks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pushkit_liveness_checks_total",
				Help: "Connection liveness checks run by the supervisor.",
			}),
			Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pushkit_reconnects_total",
				Help: "Realtime transport reconnections initiated.",
			}),
			Rejoins: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pushkit_room_rejoins_total",
				Help: "Room rejoins performed after a reconnect.",
			}),
			Foreground: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "pushkit_foreground",
				Help: "1 while the app is foreground, 0 while background.",
			}),
		},
		registry: reg,
	}

	collectors := []prometheus.Collector{
		m.Push.PayloadDecoded,
		m.Push.NotificationsShown,
		m.Push.NotificationsGrouped,
		m.Routing.EventsDispatched,
		m.Routing.DuplicatesDropped,
		m.Routing.WindowsOpened,
		m.Routing.ContextsFocused,
		m.Connection.LivenessChecks,
		m.Connection.Reconnects,
		m.Connection.Rejoins,
		m.Connection.Foreground,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the underlying registry for HTTP exposition.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
