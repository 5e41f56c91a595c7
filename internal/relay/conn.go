package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// maxFrameBytes bounds inbound frame size. Snapshots dominate; a
	// megabyte leaves ample headroom over the inflated snapshot cap's
	// compressed form.
	maxFrameBytes = 1 << 20

	// sendQueueSize is the per-connection outbound buffer. Sends are
	// best-effort: a full queue drops the frame, never blocks the hub.
	sendQueueSize = 64
)

// frameWriter is the write-side surface of a websocket connection.
// *websocket.Conn satisfies it; tests substitute a capturing fake.
type frameWriter interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn owns one transport. It carries the binding record (session
// code, participant id, role) and the liveness flag the supervisor
// checks. Binding fields are guarded by the hub lock; everything else
// is safe for concurrent use.
type Conn struct {
	ws     frameWriter
	logger *slog.Logger

	send chan []byte

	closeOnce sync.Once
	closed    atomic.Bool

	// alive is set on every inbound frame and pong, cleared by the
	// liveness probe. A probe that finds it cleared force-closes the
	// transport.
	alive atomic.Bool

	// closeCode and closeReason are the close frame the write loop
	// emits after draining. Written once inside closeOnce, read after
	// the send channel closes; the channel close orders the accesses.
	closeCode   int
	closeReason string

	// Binding record — guarded by the hub lock.
	bound         bool
	sessionCode   string
	participantID string
	role          Role
}

// newConn wraps a transport. The connection starts alive and unbound.
func newConn(ws frameWriter, logger *slog.Logger) *Conn {
	c := &Conn{
		ws:        ws,
		logger:    logger,
		send:      make(chan []byte, sendQueueSize),
		closeCode: websocket.CloseNormalClosure,
	}
	c.alive.Store(true)
	return c
}

// SafeSend enqueues a frame without panicking on a closed connection.
// Returns false when the connection is closed or its buffer is full;
// the frame is dropped either way — there is no queueing beyond the
// buffer and no retry.
func (c *Conn) SafeSend(data []byte) (sent bool) {
	// Close can race between the closed check and the channel send;
	// recover turns the send-on-closed-channel panic into a false.
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once with a normal close
// frame.
func (c *Conn) shutdown() {
	c.shutdownWith(websocket.CloseNormalClosure, "")
}

// shutdownWith closes the send channel exactly once, recording the
// close frame the write loop emits after draining.
func (c *Conn) shutdownWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.closed.Store(true)
		close(c.send)
	})
}

// forceClose tears down the underlying transport without draining.
// The read loop unblocks with an error and runs the close pathway.
func (c *Conn) forceClose() {
	_ = c.ws.Close()
}

// ping sends a low-level ping control frame.
func (c *Conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// writeLoop drains the send queue onto the transport. When the hub
// closes the queue, the recorded close frame is written and the
// transport is closed.
func (c *Conn) writeLoop() {
	defer func() {
		_ = c.ws.Close()
	}()

	for data := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	// Queue closed: say goodbye with the recorded close frame.
	msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
