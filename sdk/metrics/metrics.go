// Package metrics instruments the room store and its reactions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "roomsdk"

type Metrics struct {
	EventsApplied  *prometheus.CounterVec
	ReactionsFired *prometheus.CounterVec
	StaleDropped   *prometheus.CounterVec
	ProtocolErrors prometheus.Counter
	QueueDepth     prometheus.Gauge
	SignalingMsgs  *prometheus.CounterVec
}

// New registers the sdk collectors with reg. A nil reg yields unregistered
// collectors, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_applied_total",
			Help:      "Events applied to the room state by kind",
		}, []string{"kind"}),
		ReactionsFired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_fired_total",
			Help:      "Reactions fired by name",
		}, []string{"reaction"}),
		StaleDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_dropped_total",
			Help:      "Async results dropped because the session epoch moved on",
		}, []string{"kind"}),
		ProtocolErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Events rejected as protocol violations",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items waiting in the store queue",
		}),
		SignalingMsgs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signaling_messages_total",
			Help:      "Signaling messages by direction and type",
		}, []string{"direction", "type"}),
	}
}

// IncEvent records an applied event.
func (m *Metrics) IncEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsApplied.WithLabelValues(sanitize(kind)).Inc()
}

func (m *Metrics) IncReaction(name string) {
	if m == nil {
		return
	}
	m.ReactionsFired.WithLabelValues(sanitize(name)).Inc()
}

func (m *Metrics) IncStale(kind string) {
	if m == nil {
		return
	}
	m.StaleDropped.WithLabelValues(sanitize(kind)).Inc()
}

func (m *Metrics) IncProtocolError() {
	if m == nil {
		return
	}
	m.ProtocolErrors.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// IncSignaling records a signaling message; direction is "in" or "out".
func (m *Metrics) IncSignaling(direction, msgType string) {
	if m == nil {
		return
	}
	m.SignalingMsgs.WithLabelValues(direction, sanitize(msgType)).Inc()
}

func sanitize(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}
