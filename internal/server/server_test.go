package server_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Lack-Of-Name/CadNav/internal/relay"
	"github.com/Lack-Of-Name/CadNav/internal/server"
	"github.com/Lack-Of-Name/CadNav/internal/traffic"
)

// newTestServer spins up the relay behind an httptest server and
// returns it with its ws:// base URL.
func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := relay.NewHub(relay.Config{}, traffic.NewMeter(60), logger)
	ts := httptest.NewServer(server.New(hub, logger).Handler())
	t.Cleanup(ts.Close)

	return ts, "ws" + strings.TrimPrefix(ts.URL, "http")
}

// wsDial opens a websocket against the test server.
func wsDial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL+server.PathWS, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	if err := ws.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	return ws
}

// readFrame reads and decodes one frame.
func readFrame(t *testing.T, ws *websocket.Conn) (string, json.RawMessage) {
	t.Helper()

	var m struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := ws.ReadJSON(&m); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return m.Type, m.Payload
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + server.PathHealth)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body struct {
		OK        bool  `json:"ok"`
		Sessions  int   `json:"sessions"`
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.OK {
		t.Error("ok = false, want true")
	}
	if body.Sessions != 0 {
		t.Errorf("sessions = %d, want 0", body.Sessions)
	}
	if body.Timestamp == 0 {
		t.Error("timestamp missing")
	}
}

func TestHostInitOverWebSocket(t *testing.T) {
	t.Parallel()

	ts, wsURL := newTestServer(t)

	host := wsDial(t, wsURL)
	if err := host.WriteJSON(map[string]any{"type": "host:init"}); err != nil {
		t.Fatalf("send host:init: %v", err)
	}

	typ, payload := readFrame(t, host)
	if typ != "session:ready" {
		t.Fatalf("frame type = %q, want session:ready (payload %s)", typ, payload)
	}

	var ready struct {
		SessionID   string `json:"sessionId"`
		Role        string `json:"role"`
		IntervalMs  int    `json:"intervalMs"`
		ResumeToken string `json:"resumeToken"`
	}
	if err := json.Unmarshal(payload, &ready); err != nil {
		t.Fatalf("parse ready payload: %v", err)
	}
	if len(ready.SessionID) != 6 || ready.Role != "host" {
		t.Errorf("ready = %+v, want a 6-char code and host role", ready)
	}
	if ready.IntervalMs != 10_000 {
		t.Errorf("intervalMs = %d, want 10000", ready.IntervalMs)
	}
	if ready.ResumeToken == "" {
		t.Error("resume token missing")
	}

	// The session shows up on the health probe.
	resp, err := http.Get(ts.URL + server.PathHealth)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var health struct {
		Sessions int `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Sessions != 1 {
		t.Errorf("sessions = %d, want 1", health.Sessions)
	}
}

func TestClientJoinOverWebSocket(t *testing.T) {
	t.Parallel()

	_, wsURL := newTestServer(t)

	host := wsDial(t, wsURL)
	if err := host.WriteJSON(map[string]any{"type": "host:init"}); err != nil {
		t.Fatalf("send host:init: %v", err)
	}
	_, payload := readFrame(t, host)

	var ready struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(payload, &ready); err != nil {
		t.Fatalf("parse ready payload: %v", err)
	}

	client := wsDial(t, wsURL)
	if err := client.WriteJSON(map[string]any{
		"type":    "client:join",
		"payload": map[string]any{"sessionId": strings.ToLower(ready.SessionID)},
	}); err != nil {
		t.Fatalf("send client:join: %v", err)
	}

	typ, payload := readFrame(t, client)
	if typ != "session:ready" {
		t.Fatalf("client frame = %q, want session:ready (payload %s)", typ, payload)
	}

	typ, payload = readFrame(t, host)
	if typ != "session:peer-joined" {
		t.Fatalf("host frame = %q, want session:peer-joined (payload %s)", typ, payload)
	}
}

func TestInvalidJSONOverWebSocket(t *testing.T) {
	t.Parallel()

	_, wsURL := newTestServer(t)

	ws := wsDial(t, wsURL)
	if err := ws.WriteMessage(websocket.TextMessage, []byte("{broken")); err != nil {
		t.Fatalf("send broken frame: %v", err)
	}

	typ, payload := readFrame(t, ws)
	if typ != "session:error" {
		t.Fatalf("frame = %q, want session:error", typ)
	}

	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &e); err != nil {
		t.Fatalf("parse error payload: %v", err)
	}
	if e.Message != "Invalid JSON payload." {
		t.Errorf("message = %q, want invalid-JSON wording", e.Message)
	}
}

func TestHealthMethodNotAllowed(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+server.PathHealth, "application/json", nil)
	if err != nil {
		t.Fatalf("POST /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
