package relay

import (
	"time"
)

// -------------------------------------------------------------------------
// Roles
// -------------------------------------------------------------------------

// Role distinguishes the session host from its clients.
type Role uint8

const (
	// RoleHost is the singular peer authorized to publish state, change
	// cadence, and terminate the session.
	RoleHost Role = iota + 1

	// RoleClient is a peer permitted to upload location fixes and
	// routes and to participate in chat.
	RoleClient
)

// String returns the wire name for the role.
func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

// -------------------------------------------------------------------------
// Colors & Labels
// -------------------------------------------------------------------------

// HostLabel is the fixed display label of every session host.
const HostLabel = "HQ"

// hostColor is the fixed display color of every session host.
const hostColor = "#f97316"

// clientPalette is the client color cycle. Clients draw colors via the
// session's color cursor, wrapping after ten peers.
var clientPalette = [...]string{
	"#3b82f6",
	"#22c55e",
	"#eab308",
	"#a855f7",
	"#ec4899",
	"#14b8a6",
	"#f43f5e",
	"#8b5cf6",
	"#84cc16",
	"#06b6d4",
}

// -------------------------------------------------------------------------
// Interval Bounds
// -------------------------------------------------------------------------

// Location cadence bounds. Every live session's interval stays inside
// this range, whatever the configuration or the host asks for.
const (
	MinIntervalMs = 5_000
	MaxIntervalMs = 120_000
)

// ClampIntervalMs clamps a location cadence to the supported range.
func ClampIntervalMs(ms int) int {
	if ms < MinIntervalMs {
		return MinIntervalMs
	}
	if ms > MaxIntervalMs {
		return MaxIntervalMs
	}
	return ms
}

// -------------------------------------------------------------------------
// Wire Data Shapes
// -------------------------------------------------------------------------

// Location is a sanitized position fix. Timestamp is unix milliseconds,
// defaulted to the server clock when the upload carried none.
type Location struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// RoutePosition is a route point coordinate pair.
type RoutePosition struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RoutePoint is a single sanitized route waypoint.
type RoutePoint struct {
	ID       string        `json:"id"`
	Name     string        `json:"name,omitempty"`
	Position RoutePosition `json:"position"`
}

// Route is a sanitized planned route uploaded by a client.
type Route struct {
	ID    string       `json:"id"`
	Name  string       `json:"name,omitempty"`
	Color string       `json:"color,omitempty"`
	Items []RoutePoint `json:"items"`
}

// PeerInfo is the wire form of a peer in session:ready and
// session:peer-joined payloads.
type PeerInfo struct {
	ParticipantID string    `json:"participantId"`
	Label         string    `json:"label"`
	Color         string    `json:"color"`
	LastLocation  *Location `json:"lastLocation,omitempty"`
}

// -------------------------------------------------------------------------
// Peer
// -------------------------------------------------------------------------

// Peer is one participant of a session: the host or a client. All
// mutable fields are guarded by the hub lock.
type Peer struct {
	// ID is the participant identifier, unique within the session.
	// Host identifiers are 3 characters, client identifiers carry a
	// suffix, so the two can never collide.
	ID string

	// Label is the display label: HostLabel for the host, a client's
	// chosen or minted label otherwise.
	Label string

	// Color is the assigned display color.
	Color string

	// Role is RoleHost or RoleClient.
	Role Role

	// conn is the bound transport; nil while the peer is detached.
	conn *Conn

	// lastLocationAt is the acceptance stamp of the most recent
	// location fix. The cadence gate measures against it.
	lastLocationAt time.Time

	// lastLocation is the most recent accepted fix, if any.
	lastLocation *Location

	// routes holds the client's current sanitized route list; nil
	// means no routes. routeHash is the content hash of routes and is
	// empty exactly when routes is nil.
	routes    []Route
	routeHash string
}

// info returns the wire form of the peer.
func (p *Peer) info() PeerInfo {
	return PeerInfo{
		ParticipantID: p.ID,
		Label:         p.Label,
		Color:         p.Color,
		LastLocation:  p.lastLocation,
	}
}

// -------------------------------------------------------------------------
// Session
// -------------------------------------------------------------------------

// Session is one hosted relay session: the host peer, the open client
// set, the cached state snapshot, and the lifecycle bookkeeping. All
// fields are guarded by the hub lock; the registry only hands out
// pointers.
type Session struct {
	// Code is the externally visible uppercase session code.
	Code string

	// host is the host peer. host.conn is nil while the host is
	// detached; hostDetachedAt is nonzero exactly then.
	host *Peer

	// clients maps participant id to client peer.
	clients map[string]*Peer

	// stateVersion counts replacements of the cached snapshot. It
	// increases strictly monotonically.
	stateVersion uint64

	// stateBlob is the cached opaque compressed snapshot; stateHash is
	// its content hash and stateSize the inflated size. All empty until
	// the host publishes.
	stateBlob string
	stateHash string
	stateSize int

	// intervalMs is the current location cadence, always within
	// [MinIntervalMs, MaxIntervalMs].
	intervalMs int

	// colorCursor indexes the client palette for the next joiner.
	colorCursor int

	// resumeToken is the current host resume secret, rotated on every
	// successful resume.
	resumeToken string

	// hostDetachedAt is when the host lost its transport; zero while
	// the host is bound.
	hostDetachedAt time.Time

	// lastActivity is the liveness stamp for the idle TTL. It never
	// decreases while the session lives.
	lastActivity time.Time
}

// newSession builds a session with a freshly bound host.
func newSession(code string, host *Peer, resumeToken string, intervalMs int, now time.Time) *Session {
	return &Session{
		Code:         code,
		host:         host,
		clients:      make(map[string]*Peer),
		intervalMs:   ClampIntervalMs(intervalMs),
		resumeToken:  resumeToken,
		lastActivity: now,
	}
}

// touch advances the last-activity stamp. The stamp never moves
// backward, so out-of-order callers cannot shorten the session's life.
func (s *Session) touch(now time.Time) {
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

// hostBound reports whether the host slot has a live transport.
func (s *Session) hostBound() bool {
	return s.host != nil && s.host.conn != nil
}

// nextColor draws the next client color from the palette, advancing the
// cursor.
func (s *Session) nextColor() string {
	c := clientPalette[s.colorCursor%len(clientPalette)]
	s.colorCursor++
	return c
}

// addClient registers a client peer in the session.
func (s *Session) addClient(p *Peer) {
	s.clients[p.ID] = p
}

// removeClient drops a client peer by participant id. Reports whether
// the peer was present.
func (s *Session) removeClient(id string) bool {
	if _, ok := s.clients[id]; !ok {
		return false
	}
	delete(s.clients, id)
	return true
}

// hasParticipant reports whether id is taken by the host or a client.
func (s *Session) hasParticipant(id string) bool {
	if s.host != nil && s.host.ID == id {
		return true
	}
	_, ok := s.clients[id]
	return ok
}

// clientInfos returns the wire form of the current client set. Always
// non-nil so it marshals as a JSON array.
func (s *Session) clientInfos() []PeerInfo {
	infos := make([]PeerInfo, 0, len(s.clients))
	for _, p := range s.clients {
		infos = append(infos, p.info())
	}
	return infos
}

// peerByID resolves a participant id to its peer, host included.
func (s *Session) peerByID(id string) *Peer {
	if s.host != nil && s.host.ID == id {
		return s.host
	}
	return s.clients[id]
}
