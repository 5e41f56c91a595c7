package relay

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Lack-Of-Name/CadNav/internal/ident"
	"github.com/Lack-Of-Name/CadNav/internal/protocol"
)

// -------------------------------------------------------------------------
// Error Taxonomy
// -------------------------------------------------------------------------

// Error kinds, used as the metrics taxonomy bucket. Every protocol
// error is recovered locally and surfaced to the offending transport
// as a single session:error frame; no other peer learns about it.
const (
	errKindValidation = "validation"
	errKindState      = "state"
	errKindPayload    = "payload"
)

// Protocol error messages.
const (
	msgAlreadyBound     = "Already connected to a session."
	msgSessionRequired  = "Session ID is required."
	msgSessionNotFound  = "Session not found."
	msgHostConnected    = "Host is already connected."
	msgBadResumeToken   = "Invalid resume token."
	msgNotJoined        = "Not joined to a session."
	msgHostOnly         = "Only the host can do that."
	msgClientOnly       = "Only clients can upload routes."
	msgBadState         = "State payload must be a non-empty string."
	msgBadStateEncoding = "State payload is not valid compressed data."
	msgBadInterval      = "Interval must be a number."
	msgBadRoutes        = "Routes payload must be a list."
	msgCreateFailed     = "Could not create session."
)

// -------------------------------------------------------------------------
// Wire Payload Shapes
// -------------------------------------------------------------------------

// Inbound command payloads.
type (
	resumePayload struct {
		SessionID   string `json:"sessionId"`
		ResumeToken string `json:"resumeToken"`
	}

	joinPayload struct {
		SessionID string `json:"sessionId"`
		Label     string `json:"label"`
	}

	statePushPayload struct {
		Data string `json:"data"`
	}

	intervalPushPayload struct {
		IntervalMs any `json:"intervalMs"`
		Seconds    any `json:"seconds"`
	}

	routesPushPayload struct {
		Routes json.RawMessage `json:"routes"`
	}

	chatPushPayload struct {
		Text string `json:"text"`
	}
)

// Outbound frame payloads.
type (
	readyPayload struct {
		SessionID     string        `json:"sessionId"`
		Role          string        `json:"role"`
		ParticipantID string        `json:"participantId"`
		Peers         []PeerInfo    `json:"peers"`
		State         *statePayload `json:"state"`
		IntervalMs    int           `json:"intervalMs"`
		ResumeToken   string        `json:"resumeToken,omitempty"`
	}

	statePayload struct {
		Version    uint64 `json:"version"`
		Data       string `json:"data"`
		Compressed bool   `json:"compressed"`
		Hash       string `json:"hash"`
		Size       int    `json:"size"`
	}

	locationPayload struct {
		ParticipantID string    `json:"participantId"`
		Location      *Location `json:"location"`
	}

	peerRoutesPayload struct {
		ParticipantID string  `json:"participantId"`
		Routes        []Route `json:"routes"`
	}

	intervalPayload struct {
		IntervalMs int `json:"intervalMs"`
	}

	hostStatusPayload struct {
		Online    bool   `json:"online"`
		Reason    string `json:"reason"`
		Timestamp int64  `json:"timestamp"`
	}

	heartbeatPayload struct {
		Timestamp int64 `json:"timestamp"`
	}

	chatPayload struct {
		ParticipantID string `json:"participantId"`
		Text          string `json:"text"`
		Role          string `json:"role"`
		Timestamp     int64  `json:"timestamp"`
	}

	peerLeftPayload struct {
		ParticipantID string `json:"participantId"`
	}

	endedPayload struct {
		Reason string `json:"reason"`
	}

	errorPayload struct {
		Message string `json:"message"`
	}
)

// -------------------------------------------------------------------------
// Binding Helpers
// -------------------------------------------------------------------------

// bindLocked attaches the binding record to a transport. Callers must
// hold the hub lock.
func (h *Hub) bindLocked(c *Conn, code, participantID string, role Role) {
	c.bound = true
	c.sessionCode = code
	c.participantID = participantID
	c.role = role
	h.metrics.PeerBound(role.String())
}

// resolveLocked maps a bound transport to its session and peer. A
// transport whose session vanished underneath it resolves to nothing.
// Callers must hold the hub lock.
func (h *Hub) resolveLocked(c *Conn) (*Session, *Peer, bool) {
	if !c.bound {
		return nil, nil, false
	}
	s, ok := h.registry.Get(c.sessionCode)
	if !ok {
		return nil, nil, false
	}
	p := s.peerByID(c.participantID)
	if p == nil {
		return nil, nil, false
	}
	return s, p, true
}

// -------------------------------------------------------------------------
// Host Commands
// -------------------------------------------------------------------------

// handleHostInit creates a new session with a fresh code and resume
// token and attaches the transport as host.
func (h *Hub) handleHostInit(c *Conn, _ *protocol.Message) {
	if c.bound {
		h.sendError(c, errKindState, msgAlreadyBound)
		return
	}

	hostID, err := ident.HostID()
	if err != nil {
		h.failMint(c, "host id", err)
		return
	}
	token, err := ident.ResumeToken()
	if err != nil {
		h.failMint(c, "resume token", err)
		return
	}

	host := &Peer{
		ID:    hostID,
		Label: HostLabel,
		Color: hostColor,
		Role:  RoleHost,
		conn:  c,
	}

	s, err := h.createSessionLocked(host, token)
	if err != nil {
		h.failMint(c, "session code", err)
		return
	}

	h.bindLocked(c, s.Code, hostID, RoleHost)
	h.metrics.SessionOpened()

	h.logger.Info("session created",
		slog.String("session", s.Code),
		slog.String("host", hostID),
	)

	h.sendFrame(c, protocol.TypeSessionReady, readyPayload{
		SessionID:     s.Code,
		Role:          RoleHost.String(),
		ParticipantID: hostID,
		Peers:         []PeerInfo{},
		State:         nil,
		IntervalMs:    s.intervalMs,
		ResumeToken:   token,
	})
}

// createSessionLocked mints codes until the registry admits one.
// Callers must hold the hub lock.
func (h *Hub) createSessionLocked(host *Peer, token string) (*Session, error) {
	// The code space is vast compared to the live session count, so a
	// handful of attempts only ever loses to a broken random source.
	const maxAttempts = 16

	for range maxAttempts {
		code, err := ident.Code(h.cfg.CodeLength)
		if err != nil {
			return nil, err
		}
		s := newSession(code, host, token, h.cfg.IntervalMs, h.now())
		if err := h.registry.Create(s); err == nil {
			return s, nil
		}
	}
	return nil, fmt.Errorf("mint session code: %w", ErrCodeInUse)
}

// failMint logs an identifier mint failure and reports it to the peer.
func (h *Hub) failMint(c *Conn, what string, err error) {
	h.logger.Error("identifier mint failed",
		slog.String("what", what),
		slog.String("error", err.Error()),
	)
	h.sendError(c, errKindState, msgCreateFailed)
}

// handleHostResume rebinds a transport to the host slot of an existing
// session after verifying the resume token. The token rotates on every
// successful resume.
func (h *Hub) handleHostResume(c *Conn, m *protocol.Message) {
	if c.bound {
		h.sendError(c, errKindState, msgAlreadyBound)
		return
	}

	var p resumePayload
	if err := m.ParsePayload(&p); err != nil {
		h.sendError(c, errKindValidation, "Invalid resume payload.")
		return
	}

	code := ident.Normalize(p.SessionID)
	if code == "" {
		h.sendError(c, errKindValidation, msgSessionRequired)
		return
	}

	s, ok := h.registry.Get(code)
	if !ok {
		h.sendError(c, errKindState, msgSessionNotFound)
		return
	}
	if s.hostBound() {
		h.sendError(c, errKindState, msgHostConnected)
		return
	}
	if subtle.ConstantTimeCompare([]byte(p.ResumeToken), []byte(s.resumeToken)) != 1 {
		h.sendError(c, errKindState, msgBadResumeToken)
		return
	}

	token, err := ident.ResumeToken()
	if err != nil {
		h.failMint(c, "resume token", err)
		return
	}

	now := h.now()
	s.host.conn = c
	s.resumeToken = token
	s.hostDetachedAt = time.Time{}
	s.touch(now)
	h.bindLocked(c, s.Code, s.host.ID, RoleHost)

	h.logger.Info("host resumed",
		slog.String("session", s.Code),
		slog.String("host", s.host.ID),
	)

	h.sendFrame(c, protocol.TypeSessionReady, readyPayload{
		SessionID:     s.Code,
		Role:          RoleHost.String(),
		ParticipantID: s.host.ID,
		Peers:         s.clientInfos(),
		State:         s.snapshotPayload(),
		IntervalMs:    s.intervalMs,
		ResumeToken:   token,
	})

	h.broadcastClients(s, nil, protocol.TypeSessionHostStatus, hostStatusPayload{
		Online:    true,
		Reason:    "host-resumed",
		Timestamp: now.UnixMilli(),
	})
}

// handleHostState caches a new state snapshot. Identical blobs dedupe
// on the content hash; a replaced blob bumps the state version and is
// echoed to the host only.
func (h *Hub) handleHostState(c *Conn, m *protocol.Message) {
	s, p, ok := h.resolveLocked(c)
	if !ok {
		h.sendError(c, errKindState, msgNotJoined)
		return
	}
	if p.Role != RoleHost {
		h.sendError(c, errKindState, msgHostOnly)
		return
	}

	var push statePushPayload
	if err := m.ParsePayload(&push); err != nil || push.Data == "" {
		h.sendError(c, errKindPayload, msgBadState)
		return
	}

	size, err := DecodeSnapshot(push.Data)
	if err != nil {
		h.sendError(c, errKindPayload, msgBadStateEncoding)
		return
	}

	hash := SnapshotHash(push.Data)
	if hash == s.stateHash {
		// Byte-identical snapshot: nothing changes, nothing is emitted.
		return
	}

	s.stateBlob = push.Data
	s.stateHash = hash
	s.stateSize = size
	s.stateVersion++
	s.touch(h.now())

	h.sendToHost(s, protocol.TypeSessionState, statePayload{
		Version:    s.stateVersion,
		Data:       s.stateBlob,
		Compressed: true,
		Hash:       hash,
		Size:       size,
	})
}

// handleHostInterval changes the session's location cadence. The value
// is coerced from intervalMs or seconds, clamped, and broadcast to the
// host and every client when it actually changes.
func (h *Hub) handleHostInterval(c *Conn, m *protocol.Message) {
	s, p, ok := h.resolveLocked(c)
	if !ok {
		h.sendError(c, errKindState, msgNotJoined)
		return
	}
	if p.Role != RoleHost {
		h.sendError(c, errKindState, msgHostOnly)
		return
	}

	var push intervalPushPayload
	if err := m.ParsePayload(&push); err != nil {
		h.sendError(c, errKindValidation, msgBadInterval)
		return
	}

	ms, ok := coerceIntervalMs(push)
	if !ok {
		h.sendError(c, errKindValidation, msgBadInterval)
		return
	}

	ms = ClampIntervalMs(ms)
	if ms == s.intervalMs {
		return
	}

	s.intervalMs = ms
	s.touch(h.now())

	h.logger.Info("session interval changed",
		slog.String("session", s.Code),
		slog.Int("interval_ms", ms),
	)

	h.broadcastAll(s, nil, protocol.TypeSessionInterval, intervalPayload{IntervalMs: ms})
}

// coerceIntervalMs extracts a cadence in milliseconds from an interval
// push: intervalMs wins, seconds*1000 is the fallback.
func coerceIntervalMs(push intervalPushPayload) (int, bool) {
	if v, ok := toFinite(push.IntervalMs); ok {
		return int(v), true
	}
	if v, ok := toFinite(push.Seconds); ok {
		return int(v * 1000), true
	}
	return 0, false
}

// handleHostShutdown terminates the session on the host's request.
func (h *Hub) handleHostShutdown(c *Conn, _ *protocol.Message) {
	s, p, ok := h.resolveLocked(c)
	if !ok {
		h.sendError(c, errKindState, msgNotJoined)
		return
	}
	if p.Role != RoleHost {
		h.sendError(c, errKindState, msgHostOnly)
		return
	}
	h.terminateLocked(s, "host-ended")
}

// -------------------------------------------------------------------------
// Client Commands
// -------------------------------------------------------------------------

// handleClientJoin adds a new client peer to an existing session. The
// joiner gets session:ready; the host alone gets session:peer-joined.
func (h *Hub) handleClientJoin(c *Conn, m *protocol.Message) {
	if c.bound {
		h.sendError(c, errKindState, msgAlreadyBound)
		return
	}

	var p joinPayload
	if err := m.ParsePayload(&p); err != nil {
		h.sendError(c, errKindValidation, "Invalid join payload.")
		return
	}

	code := ident.Normalize(p.SessionID)
	if code == "" {
		h.sendError(c, errKindValidation, msgSessionRequired)
		return
	}

	s, ok := h.registry.Get(code)
	if !ok {
		h.sendError(c, errKindState, msgSessionNotFound)
		return
	}

	id, err := h.mintClientID(s)
	if err != nil {
		h.failMint(c, "client id", err)
		return
	}

	label := SanitizeLabel(p.Label)
	if label == "" {
		label = id
	}

	peer := &Peer{
		ID:    id,
		Label: label,
		Color: s.nextColor(),
		Role:  RoleClient,
		conn:  c,
	}
	s.addClient(peer)
	s.touch(h.now())
	h.bindLocked(c, s.Code, id, RoleClient)

	h.logger.Info("client joined",
		slog.String("session", s.Code),
		slog.String("participant", id),
	)

	h.sendFrame(c, protocol.TypeSessionReady, readyPayload{
		SessionID:     s.Code,
		Role:          RoleClient.String(),
		ParticipantID: id,
		Peers:         []PeerInfo{},
		State:         nil,
		IntervalMs:    s.intervalMs,
	})

	h.sendToHost(s, protocol.TypeSessionPeerJoined, peer.info())
}

// mintClientID mints a participant id free within the session.
func (h *Hub) mintClientID(s *Session) (string, error) {
	const maxAttempts = 16

	for range maxAttempts {
		id, err := ident.ClientID()
		if err != nil {
			return "", err
		}
		if !s.hasParticipant(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("mint client id: %w", ErrCodeInUse)
}

// handleClientRoutes stores a client's sanitized route list and relays
// it to the host. Identical uploads dedupe on the content hash; an
// empty sanitized list means "no routes".
func (h *Hub) handleClientRoutes(c *Conn, m *protocol.Message) {
	s, p, ok := h.resolveLocked(c)
	if !ok {
		h.sendError(c, errKindState, msgNotJoined)
		return
	}
	if p.Role != RoleClient {
		h.sendError(c, errKindState, msgClientOnly)
		return
	}

	var push routesPushPayload
	if err := m.ParsePayload(&push); err != nil {
		h.sendError(c, errKindValidation, msgBadRoutes)
		return
	}

	routes, ok := SanitizeRoutes(push.Routes, h.cfg.Limits)
	if !ok {
		h.sendError(c, errKindValidation, msgBadRoutes)
		return
	}

	hash := RouteHash(routes)
	if hash == p.routeHash {
		return
	}

	if len(routes) == 0 {
		p.routes = nil
	} else {
		p.routes = routes
	}
	p.routeHash = hash
	s.touch(h.now())

	h.sendToHost(s, protocol.TypeSessionPeerRoutes, peerRoutesPayload{
		ParticipantID: p.ID,
		Routes:        routes,
	})
}

// -------------------------------------------------------------------------
// Participant Commands
// -------------------------------------------------------------------------

// handleLocation ingests a position fix. The per-peer cadence gate
// runs first and silently discards early fixes; accepted fixes from
// clients are relayed to the host only.
func (h *Hub) handleLocation(c *Conn, m *protocol.Message) {
	s, p, ok := h.resolveLocked(c)
	if !ok {
		h.sendError(c, errKindState, msgNotJoined)
		return
	}

	now := h.now()

	// Cadence gate: reads the session's current interval at each call,
	// so a host:interval change takes effect on the next fix evaluated.
	if !p.lastLocationAt.IsZero() &&
		now.Sub(p.lastLocationAt) < time.Duration(s.intervalMs)*time.Millisecond {
		h.metrics.LocationThrottled()
		return
	}

	loc, ok := SanitizeLocation(m.Payload, now)
	if !ok {
		// Malformed fixes are dropped without ceremony; the uplink is
		// lossy by design and an error frame per bad fix would flood
		// the peer.
		h.logger.Debug("dropped invalid location fix",
			slog.String("session", s.Code),
			slog.String("participant", p.ID),
		)
		return
	}

	p.lastLocationAt = now
	p.lastLocation = loc
	s.touch(now)

	if p.Role == RoleClient {
		h.sendToHost(s, protocol.TypeSessionLocation, locationPayload{
			ParticipantID: p.ID,
			Location:      loc,
		})
	}
}

// handleChatMessage broadcasts a chat line, or answers the /data
// diagnostic inline when the text starts with it.
func (h *Hub) handleChatMessage(c *Conn, m *protocol.Message) {
	s, p, ok := h.resolveLocked(c)
	if !ok {
		h.sendError(c, errKindState, msgNotJoined)
		return
	}

	var push chatPushPayload
	if err := m.ParsePayload(&push); err != nil {
		return
	}

	text := strings.TrimSpace(push.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/data") {
		h.answerDataQuery(c, text)
		return
	}

	h.broadcastAll(s, nil, protocol.TypeSessionMessage, chatPayload{
		ParticipantID: p.ID,
		Text:          capString(text, maxChatLen),
		Role:          p.Role.String(),
		Timestamp:     h.now().UnixMilli(),
	})
}

// answerDataQuery replies to a /data diagnostic with a traffic summary,
// sent to the requester alone as a system message.
func (h *Hub) answerDataQuery(c *Conn, text string) {
	window := 0
	if fields := strings.Fields(text); len(fields) > 1 {
		if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
			window = n
		}
	}

	sum := h.meter.Summarize(window)

	var b strings.Builder
	fmt.Fprintf(&b, "Traffic since start: %.1f KB in / %.1f KB out.",
		float64(sum.TotalIn)/1024, float64(sum.TotalOut)/1024)
	if sum.WindowSeconds > 0 {
		windowKB := float64(sum.WindowIn+sum.WindowOut) / 1024
		fmt.Fprintf(&b, " Last %ds: %.1f KB (%.2f KB/s)",
			sum.WindowSeconds, windowKB, windowKB/float64(sum.WindowSeconds))
	}

	h.sendFrame(c, protocol.TypeSessionMessage, chatPayload{
		ParticipantID: "server",
		Text:          b.String(),
		Role:          "system",
		Timestamp:     h.now().UnixMilli(),
	})
}

// handleHeartbeat bumps the session's liveness stamp and echoes the
// server clock.
func (h *Hub) handleHeartbeat(c *Conn, _ *protocol.Message) {
	s, _, ok := h.resolveLocked(c)
	if !ok {
		h.sendError(c, errKindState, msgNotJoined)
		return
	}

	now := h.now()
	s.touch(now)
	h.sendFrame(c, protocol.TypeSessionHeartbeat, heartbeatPayload{
		Timestamp: now.UnixMilli(),
	})
}

// snapshotPayload renders the cached snapshot in wire form, or nil
// when the host has not published yet.
func (s *Session) snapshotPayload() *statePayload {
	if s.stateBlob == "" {
		return nil
	}
	return &statePayload{
		Version:    s.stateVersion,
		Data:       s.stateBlob,
		Compressed: true,
		Hash:       s.stateHash,
		Size:       s.stateSize,
	}
}
