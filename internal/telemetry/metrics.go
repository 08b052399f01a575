// Package telemetry exports relay activity as Prometheus metrics and
// publishes match events to an MQTT broker.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "sanicrelay"

// Metrics holds the relay's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	datagramsReceived *prometheus.CounterVec
	datagramsSent     *prometheus.CounterVec
	decodeErrors      *prometheus.CounterVec
	rosterErrors      *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	clients           prometheus.Gauge
	players           prometheus.Gauge
	handleDuration    prometheus.Histogram
}

// NewMetrics registers the relay collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		datagramsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "datagrams_received_total",
			Help:      "Inbound datagrams by message class",
		}, []string{"class"}),

		datagramsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "datagrams_sent_total",
			Help:      "Outbound datagrams by message class",
		}, []string{"class"}),

		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decode_errors_total",
			Help:      "Dropped inbound datagrams by reason",
		}, []string{"reason"}),

		rosterErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "roster_errors_total",
			Help:      "Match messages that referenced an unknown client or player, or had no effect implemented",
		}, []string{"message"}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transitions_total",
			Help:      "Lifecycle transitions fired by the lobby and stage-load timers",
		}, []string{"transition"}),

		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "clients",
			Help:      "Registered clients",
		}),

		players: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "players",
			Help:      "Registered players",
		}),

		handleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "handle_duration_seconds",
			Help:      "Time spent dispatching one inbound datagram",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),
	}
}

func (m *Metrics) Received(class string) {
	if m == nil {
		return
	}
	m.datagramsReceived.WithLabelValues(class).Inc()
}

func (m *Metrics) Sent(class string) {
	if m == nil {
		return
	}
	m.datagramsSent.WithLabelValues(class).Inc()
}

func (m *Metrics) DecodeError(reason string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) RosterError(message string) {
	if m == nil {
		return
	}
	m.rosterErrors.WithLabelValues(message).Inc()
}

func (m *Metrics) Transition(name string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name).Inc()
}

// SetRoster records the current roster size.
func (m *Metrics) SetRoster(clients, players int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(clients))
	m.players.Set(float64(players))
}

// ObserveHandle records how long one dispatch took, in seconds.
func (m *Metrics) ObserveHandle(seconds float64) {
	if m == nil {
		return
	}
	m.handleDuration.Observe(seconds)
}
