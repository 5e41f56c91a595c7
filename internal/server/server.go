// Package server exposes the relay over HTTP: the WebSocket endpoint
// the peers speak the session protocol on, and the health probe.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Lack-Of-Name/CadNav/internal/relay"
)

// Endpoint paths.
const (
	// PathWS is the WebSocket endpoint peers connect to.
	PathWS = "/ws"

	// PathHealth is the health probe endpoint.
	PathHealth = "/health"
)

// upgradeBufferSize sizes the websocket read/write buffers.
const upgradeBufferSize = 1024

// Server bridges HTTP to the relay hub.
type Server struct {
	hub      *relay.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a Server around a hub.
func New(hub *relay.Hub, logger *slog.Logger) *Server {
	return &Server{
		hub:    hub,
		logger: logger.With(slog.String("component", "server")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  upgradeBufferSize,
			WriteBufferSize: upgradeBufferSize,
			// Sessions are gated by code knowledge, not by origin;
			// the clients are installable apps with arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler serving the WebSocket endpoint and
// the health probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathHealth, s.handleHealth)
	mux.HandleFunc("GET "+PathWS, s.handleWS)
	return mux
}

// healthResponse is the health probe body.
type healthResponse struct {
	OK        bool  `json:"ok"`
	Sessions  int   `json:"sessions"`
	Timestamp int64 `json:"timestamp"`
}

// handleHealth reports liveness and the current session count.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthResponse{
		OK:        true,
		Sessions:  s.hub.SessionCount(),
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		s.logger.Warn("failed to write health response",
			slog.String("error", err.Error()),
		)
	}
}

// handleWS upgrades the request and hands the connection to the hub
// for its whole life.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Debug("websocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Debug("transport connected",
		slog.String("remote", r.RemoteAddr),
	)

	s.hub.ServeConn(ws)
}
