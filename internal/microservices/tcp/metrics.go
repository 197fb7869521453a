package tcp

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "eventcast"

// Metrics holds the Prometheus collectors for one server. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	eventsReceived    *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	eventsDispatched  prometheus.Counter
	broadcastSends    *prometheus.CounterVec
	framesCorrupt     prometheus.Counter
	busDepth          prometheus.Gauge
}

// NewMetrics registers the server collectors with reg.
// Use a fresh prometheus.NewRegistry() per server in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_active",
			Help:      "Number of registered peer connections",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Total number of accepted peer connections",
		}),
		eventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_received_total",
			Help:      "Total number of events decoded from peers",
		}, []string{"opcode"}),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_dropped_total",
			Help:      "Total number of inbound events dropped before reaching the bus",
		}, []string{"reason"}),
		eventsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_dispatched_total",
			Help:      "Total number of events handed to a bus handler",
		}),
		broadcastSends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcast_sends_total",
			Help:      "Per-connection send attempts made by broadcasts",
		}, []string{"result"}),
		framesCorrupt: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_corrupt_total",
			Help:      "Total number of connections dropped for a corrupt frame",
		}),
		busDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "bus_queue_depth",
			Help:      "Events waiting in the event bus",
		}),
	}
}

func (m *Metrics) connectionAdded() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) connectionRemoved() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) eventReceived(opcode uint8) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(strconv.Itoa(int(opcode))).Inc()
}

func (m *Metrics) eventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) eventDispatched() {
	if m == nil {
		return
	}
	m.eventsDispatched.Inc()
}

func (m *Metrics) broadcastSend(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.broadcastSends.WithLabelValues(result).Inc()
}

func (m *Metrics) frameCorrupt() {
	if m == nil {
		return
	}
	m.framesCorrupt.Inc()
}

func (m *Metrics) setBusDepth(n int) {
	if m == nil {
		return
	}
	m.busDepth.Set(float64(n))
}
