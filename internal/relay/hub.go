package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Lack-Of-Name/CadNav/internal/protocol"
	"github.com/Lack-Of-Name/CadNav/internal/traffic"
)

// -------------------------------------------------------------------------
// Hub Configuration
// -------------------------------------------------------------------------

// Config holds the hub's tunables. Zero values fall back to defaults;
// the cadence is clamped to its bounds.
type Config struct {
	// CodeLength is the session code length.
	CodeLength int

	// IntervalMs is the initial location cadence for new sessions.
	IntervalMs int

	// SessionTTL is the idle session time-to-live.
	SessionTTL time.Duration

	// HostResumeGrace is how long a host-detached session stays
	// resumable.
	HostResumeGrace time.Duration

	// Limits bounds route uploads.
	Limits Limits
}

// Hub defaults, used where Config carries zero values.
const (
	defaultCodeLength      = 6
	defaultIntervalMs      = 10_000
	defaultSessionTTL      = 6 * time.Hour
	defaultHostResumeGrace = 15 * time.Minute
)

// normalized returns the config with zero values replaced by defaults
// and the cadence clamped.
func (cfg Config) normalized() Config {
	if cfg.CodeLength < 1 {
		cfg.CodeLength = defaultCodeLength
	}
	if cfg.IntervalMs == 0 {
		cfg.IntervalMs = defaultIntervalMs
	}
	cfg.IntervalMs = ClampIntervalMs(cfg.IntervalMs)
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.HostResumeGrace <= 0 {
		cfg.HostResumeGrace = defaultHostResumeGrace
	}
	cfg.Limits = cfg.Limits.normalized()
	return cfg
}

// -------------------------------------------------------------------------
// Hub Options — functional options pattern
// -------------------------------------------------------------------------

// HubOption configures optional Hub parameters.
type HubOption func(*Hub)

// WithMetrics attaches a MetricsReporter to the hub. If mr is nil, the
// default no-op reporter is used.
func WithMetrics(mr MetricsReporter) HubOption {
	return func(h *Hub) {
		if mr != nil {
			h.metrics = mr
		}
	}
}

// WithClock overrides the hub's time source. Used by tests to drive
// throttling and expiry deterministically.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// -------------------------------------------------------------------------
// Hub
// -------------------------------------------------------------------------

// Hub owns the session registry and every live transport. All session
// mutations run under the hub lock, which serializes the dispatcher,
// the close pathway, and the supervisor loops against each other —
// the whole relay behaves as if single-threaded, while sends stay
// non-blocking through the per-connection queues.
type Hub struct {
	cfg      Config
	registry *Registry
	meter    *traffic.Meter
	metrics  MetricsReporter
	logger   *slog.Logger
	now      func() time.Time
	handlers map[string]handlerFunc

	// mu is the hub lock described above. conns holds every live
	// transport, bound or not, for the liveness probe.
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewHub creates a hub around a registry-backed session set, a
// process-global traffic meter, and a logger.
func NewHub(cfg Config, meter *traffic.Meter, logger *slog.Logger, opts ...HubOption) *Hub {
	if meter == nil {
		meter = traffic.NewMeter(0)
	}

	h := &Hub{
		cfg:      cfg.normalized(),
		registry: NewRegistry(),
		meter:    meter,
		metrics:  noopMetrics{},
		logger:   logger.With(slog.String("component", "relay.hub")),
		now:      time.Now,
		conns:    make(map[*Conn]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.handlers = map[string]handlerFunc{
		protocol.TypeHostInit:     (*Hub).handleHostInit,
		protocol.TypeHostResume:   (*Hub).handleHostResume,
		protocol.TypeHostState:    (*Hub).handleHostState,
		protocol.TypeHostInterval: (*Hub).handleHostInterval,
		protocol.TypeHostShutdown: (*Hub).handleHostShutdown,
		protocol.TypeClientJoin:   (*Hub).handleClientJoin,
		protocol.TypeClientRoutes: (*Hub).handleClientRoutes,
		protocol.TypeLocation:     (*Hub).handleLocation,
		protocol.TypeChatMessage:  (*Hub).handleChatMessage,
		protocol.TypeHeartbeat:    (*Hub).handleHeartbeat,
	}

	return h
}

// handlerFunc is one entry of the command table.
type handlerFunc func(h *Hub, c *Conn, m *protocol.Message)

// SessionCount returns the number of live sessions. Used by the health
// endpoint without touching the hub lock.
func (h *Hub) SessionCount() int {
	return h.registry.Len()
}

// -------------------------------------------------------------------------
// Connection Lifecycle
// -------------------------------------------------------------------------

// ServeConn owns a freshly upgraded websocket for its whole life: it
// registers the connection, starts the write loop, and pumps inbound
// frames into the dispatcher until the transport dies. Blocks until
// the connection closes.
func (h *Hub) ServeConn(ws *websocket.Conn) {
	c := newConn(ws, h.logger)

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()

	ws.SetReadLimit(maxFrameBytes)
	ws.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				h.logger.Debug("transport read failed",
					slog.String("error", err.Error()),
				)
			}
			break
		}
		c.alive.Store(true)
		if mt != websocket.TextMessage {
			continue
		}
		h.HandleFrame(c, data)
	}

	h.HandleClose(c)
}

// HandleFrame meters, decodes, and dispatches one inbound frame.
func (h *Hub) HandleFrame(c *Conn, data []byte) {
	h.meter.Record(traffic.In, len(data))
	h.metrics.FrameReceived(len(data))

	msg, err := protocol.Decode(data)
	if err != nil {
		h.sendError(c, errKindValidation, "Invalid JSON payload.")
		return
	}

	handler, ok := h.handlers[msg.Type]
	if !ok {
		h.sendError(c, errKindValidation, "Unknown message type: "+msg.Type)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	handler(h, c, msg)
}

// HandleClose runs the drop-participant pathway for a dead transport.
func (h *Hub) HandleClose(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, c)
	c.shutdown()

	if !c.bound {
		return
	}

	s, ok := h.registry.Get(c.sessionCode)
	if !ok {
		// Session already terminated; the transports were dismissed
		// with it.
		return
	}
	h.dropParticipantLocked(s, c)
}

// dropParticipantLocked detaches a host or removes a client after its
// transport closed. Callers must hold the hub lock.
func (h *Hub) dropParticipantLocked(s *Session, c *Conn) {
	now := h.now()

	if c.role == RoleHost {
		if s.host == nil || s.host.conn != c {
			return
		}
		// Host detach: the session stays resumable for the grace
		// period.
		s.host.conn = nil
		s.hostDetachedAt = now
		s.touch(now)
		h.metrics.PeerUnbound(RoleHost.String())

		h.logger.Info("host detached",
			slog.String("session", s.Code),
			slog.String("participant", c.participantID),
		)

		h.broadcastClients(s, nil, protocol.TypeSessionHostStatus, hostStatusPayload{
			Online:    false,
			Reason:    "host-disconnected",
			Timestamp: now.UnixMilli(),
		})
		return
	}

	p := s.clients[c.participantID]
	if p == nil || p.conn != c {
		return
	}
	s.removeClient(c.participantID)
	h.metrics.PeerUnbound(RoleClient.String())

	h.logger.Info("client left",
		slog.String("session", s.Code),
		slog.String("participant", c.participantID),
	)

	h.sendToHost(s, protocol.TypeSessionPeerLeft, peerLeftPayload{
		ParticipantID: c.participantID,
	})
}

// -------------------------------------------------------------------------
// Directed Sends
// -------------------------------------------------------------------------

// sendFrame serializes and enqueues one outbound frame. Byte counters
// are charged only for frames actually enqueued; a closed or congested
// transport makes the send a no-op.
func (h *Hub) sendFrame(c *Conn, typ string, payload any) bool {
	if c == nil {
		return false
	}
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		h.logger.Error("failed to encode frame",
			slog.String("type", typ),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !c.SafeSend(data) {
		return false
	}
	h.meter.Record(traffic.Out, len(data))
	h.metrics.FrameSent(len(data))
	return true
}

// sendToHost sends a frame to the session host, if bound.
func (h *Hub) sendToHost(s *Session, typ string, payload any) {
	if !s.hostBound() {
		return
	}
	h.sendFrame(s.host.conn, typ, payload)
}

// broadcastClients fans a frame out to every bound client except the
// excluded one (may be nil).
func (h *Hub) broadcastClients(s *Session, exclude *Conn, typ string, payload any) {
	for _, p := range s.clients {
		if p.conn == nil || p.conn == exclude {
			continue
		}
		h.sendFrame(p.conn, typ, payload)
	}
}

// broadcastAll fans a frame out to the host and every bound client
// except the excluded one (may be nil).
func (h *Hub) broadcastAll(s *Session, exclude *Conn, typ string, payload any) {
	if s.hostBound() && s.host.conn != exclude {
		h.sendFrame(s.host.conn, typ, payload)
	}
	h.broadcastClients(s, exclude, typ, payload)
}

// sendError surfaces a protocol error to the offending transport as a
// single session:error frame. No other peer learns about it.
func (h *Hub) sendError(c *Conn, kind, message string) {
	h.metrics.ProtocolError(kind)
	h.sendFrame(c, protocol.TypeSessionError, errorPayload{Message: message})
}

// -------------------------------------------------------------------------
// Termination
// -------------------------------------------------------------------------

// Host-initiated termination close codes: clients see a
// service-restart, the host's own transport a going-away.
const (
	clientCloseCode = websocket.CloseServiceRestart // 1012
	hostCloseCode   = websocket.CloseGoingAway      // 1001
)

// terminateLocked ends a session: every bound peer gets a
// session:ended frame, each transport is dismissed with its
// protocol-level close code, and the session leaves the registry.
// Callers must hold the hub lock.
func (h *Hub) terminateLocked(s *Session, reason string) {
	ended := endedPayload{Reason: reason}

	if s.hostBound() {
		h.sendFrame(s.host.conn, protocol.TypeSessionEnded, ended)
		s.host.conn.shutdownWith(hostCloseCode, reason)
		s.host.conn = nil
		h.metrics.PeerUnbound(RoleHost.String())
	}
	for _, p := range s.clients {
		if p.conn == nil {
			continue
		}
		h.sendFrame(p.conn, protocol.TypeSessionEnded, ended)
		p.conn.shutdownWith(clientCloseCode, reason)
		p.conn = nil
		h.metrics.PeerUnbound(RoleClient.String())
	}

	h.registry.Delete(s.Code)
	h.metrics.SessionClosed(reason)

	h.logger.Info("session terminated",
		slog.String("session", s.Code),
		slog.String("reason", reason),
	)
}

// Shutdown terminates every live session, used during daemon shutdown.
func (h *Hub) Shutdown(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.registry.Snapshot() {
		h.terminateLocked(s, reason)
	}
}
