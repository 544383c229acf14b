package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "liveplot"

// Frame kinds used as the "kind" label on frame counters.
const (
	KindSample = "sample"
	KindPong   = "pong"
	KindClose  = "close"
	KindText   = "text"
	KindBinary = "binary"
	KindPing   = "ping"
)

// Relay holds the collectors for the ingest path and the WebSocket hub.
type Relay struct {
	SamplesIngested  prometheus.Counter
	RecordsMalformed prometheus.Counter
	SamplesDropped   prometheus.Counter
	QueueDepth       prometheus.Gauge

	ActiveConnections  prometheus.Gauge
	ConnectionsTotal   prometheus.Counter
	HandshakeFailures  prometheus.Counter
	RejectedClients    prometheus.Counter
	SlowClientsEvicted prometheus.Counter
	FramesSent         *prometheus.CounterVec
	FramesReceived     *prometheus.CounterVec
}

// NewRelay creates the relay collectors and registers them on reg.
func NewRelay(reg prometheus.Registerer) *Relay {
	m := &Relay{
		SamplesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "samples_total",
			Help:      "Samples accepted onto the distribution queue.",
		}),
		RecordsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "malformed_records_total",
			Help:      "Input records skipped because they could not be parsed.",
		}),
		SamplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "samples_dropped_total",
			Help:      "Samples evicted from a full distribution queue.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Encoded samples waiting in the distribution queue.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Number of open viewer connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections_total",
			Help:      "Viewer connections accepted since start.",
		}),
		HandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "handshake_failures_total",
			Help:      "Upgrade requests that failed the WebSocket handshake.",
		}),
		RejectedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "rejected_connections_total",
			Help:      "Connections refused because max_clients was reached.",
		}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "slow_clients_evicted_total",
			Help:      "Viewers disconnected because their send buffer overflowed.",
		}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "frames_sent_total",
			Help:      "Frames written to viewers by kind.",
		}, []string{"kind"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "frames_received_total",
			Help:      "Frames read from viewers by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.SamplesIngested,
		m.RecordsMalformed,
		m.SamplesDropped,
		m.QueueDepth,
		m.ActiveConnections,
		m.ConnectionsTotal,
		m.HandshakeFailures,
		m.RejectedClients,
		m.SlowClientsEvicted,
		m.FramesSent,
		m.FramesReceived,
	)
	return m
}

// NewUnregistered returns collectors that are not registered anywhere.
// Handy for components constructed without a metrics endpoint.
func NewUnregistered() *Relay {
	return NewRelay(prometheus.NewRegistry())
}
