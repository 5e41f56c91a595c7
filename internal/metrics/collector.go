package relaymetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "cadnav"
	subsystem = "relay"
)

// Label names for relay metrics.
const (
	labelDirection = "direction"
	labelReason    = "reason"
	labelRole      = "role"
	labelKind      = "kind"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Relay Metrics
// -------------------------------------------------------------------------

// Collector holds all relay Prometheus metrics.
//
// Metrics are designed for fleet monitoring of a relay deployment:
//   - Session and peer gauges track current load.
//   - Frame and byte counters track traffic volume per direction.
//   - Termination counters record why sessions end, for alerting on
//     host-timeout spikes.
//   - Throttle and error counters flag misbehaving clients.
type Collector struct {
	// SessionsActive tracks the number of currently live sessions.
	SessionsActive prometheus.Gauge

	// PeersActive tracks the number of currently bound peers by role.
	PeersActive *prometheus.GaugeVec

	// Frames counts processed frames per direction.
	Frames *prometheus.CounterVec

	// Bytes counts serialized frame bytes per direction.
	Bytes *prometheus.CounterVec

	// SessionsEnded counts terminated sessions by reason.
	SessionsEnded *prometheus.CounterVec

	// LocationsThrottled counts location fixes dropped by the cadence gate.
	LocationsThrottled prometheus.Counter

	// ProtocolErrors counts error frames surfaced to peers, by kind.
	ProtocolErrors *prometheus.CounterVec
}

// NewCollector creates a Collector with all relay metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics are created with the "cadnav_relay_" prefix
// (namespace_subsystem) to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.SessionsActive,
		c.PeersActive,
		c.Frames,
		c.Bytes,
		c.SessionsEnded,
		c.LocationsThrottled,
		c.ProtocolErrors,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_active",
			Help:      "Number of currently live sessions.",
		}),

		PeersActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peers_active",
			Help:      "Number of currently bound peers.",
		}, []string{labelRole}),

		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_total",
			Help:      "Total frames processed.",
		}, []string{labelDirection}),

		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_total",
			Help:      "Total serialized frame bytes.",
		}, []string{labelDirection}),

		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_ended_total",
			Help:      "Total terminated sessions by reason.",
		}, []string{labelReason}),

		LocationsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "locations_throttled_total",
			Help:      "Total location fixes dropped by the cadence gate.",
		}),

		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "protocol_errors_total",
			Help:      "Total error frames surfaced to peers.",
		}, []string{labelKind}),
	}
}

// -------------------------------------------------------------------------
// Session Lifecycle
// -------------------------------------------------------------------------

// SessionOpened increments the active sessions gauge.
// Called when the registry admits a new session.
func (c *Collector) SessionOpened() {
	c.SessionsActive.Inc()
}

// SessionClosed decrements the active sessions gauge and records the
// termination reason.
func (c *Collector) SessionClosed(reason string) {
	c.SessionsActive.Dec()
	c.SessionsEnded.WithLabelValues(reason).Inc()
}

// PeerBound increments the active peers gauge for the given role.
func (c *Collector) PeerBound(role string) {
	c.PeersActive.WithLabelValues(role).Inc()
}

// PeerUnbound decrements the active peers gauge for the given role.
func (c *Collector) PeerUnbound(role string) {
	c.PeersActive.WithLabelValues(role).Dec()
}

// -------------------------------------------------------------------------
// Traffic
// -------------------------------------------------------------------------

// FrameReceived records one inbound frame of n serialized bytes.
func (c *Collector) FrameReceived(n int) {
	c.Frames.WithLabelValues("in").Inc()
	c.Bytes.WithLabelValues("in").Add(float64(n))
}

// FrameSent records one outbound frame of n serialized bytes.
func (c *Collector) FrameSent(n int) {
	c.Frames.WithLabelValues("out").Inc()
	c.Bytes.WithLabelValues("out").Add(float64(n))
}

// -------------------------------------------------------------------------
// Protocol Outcomes
// -------------------------------------------------------------------------

// LocationThrottled records a location fix silently dropped by the
// per-peer cadence gate.
func (c *Collector) LocationThrottled() {
	c.LocationsThrottled.Inc()
}

// ProtocolError records an error frame surfaced to a peer. kind is the
// error taxonomy bucket (validation, state, payload).
func (c *Collector) ProtocolError(kind string) {
	c.ProtocolErrors.WithLabelValues(kind).Inc()
}
