package relay

// MetricsReporter receives relay events for monitoring. Implementations
// must be safe for concurrent use. The relay never holds a nil
// reporter; a no-op implementation is the default.
type MetricsReporter interface {
	// SessionOpened is called when the registry admits a new session.
	SessionOpened()

	// SessionClosed is called when a session is terminated, with the
	// termination reason.
	SessionClosed(reason string)

	// PeerBound is called when a transport binds to a peer slot.
	PeerBound(role string)

	// PeerUnbound is called when a peer loses its transport.
	PeerUnbound(role string)

	// FrameReceived is called for every inbound frame with its
	// serialized size.
	FrameReceived(n int)

	// FrameSent is called for every successfully enqueued outbound
	// frame with its serialized size.
	FrameSent(n int)

	// LocationThrottled is called when a location fix is dropped by
	// the per-peer cadence gate.
	LocationThrottled()

	// ProtocolError is called when an error frame is surfaced to a
	// peer. kind is the taxonomy bucket (validation, state, payload).
	ProtocolError(kind string)
}

// noopMetrics is the default MetricsReporter that discards all events.
type noopMetrics struct{}

func (noopMetrics) SessionOpened()       {}
func (noopMetrics) SessionClosed(string) {}
func (noopMetrics) PeerBound(string)     {}
func (noopMetrics) PeerUnbound(string)   {}
func (noopMetrics) FrameReceived(int)    {}
func (noopMetrics) FrameSent(int)        {}
func (noopMetrics) LocationThrottled()   {}
func (noopMetrics) ProtocolError(string) {}
