package relay

import (
	"context"
	"log/slog"
	"time"
)

const (
	// livenessInterval is how often every transport is probed.
	livenessInterval = 30 * time.Second

	// minSweepInterval is the floor for the expiry sweep cadence.
	minSweepInterval = time.Minute
)

// RunLivenessProbe pings every transport on a fixed cadence and
// force-terminates the ones whose alive flag was never re-set since
// the previous round. Inbound frames and pongs re-set the flag.
// Blocks until ctx is cancelled.
func (h *Hub) RunLivenessProbe(ctx context.Context) error {
	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.probeConns()
		}
	}
}

// probeConns runs one liveness round.
func (h *Hub) probeConns() {
	type probeTarget struct {
		conn        *Conn
		participant string
	}

	h.mu.Lock()
	targets := make([]probeTarget, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, probeTarget{conn: c, participant: c.participantID})
	}
	h.mu.Unlock()

	for _, t := range targets {
		c := t.conn
		if !c.alive.Load() {
			// Dead flag: no traffic and no pong since the last round.
			// Tear the transport down without sending; the close
			// pathway drops the participant.
			h.logger.Info("terminating unresponsive transport",
				slog.String("participant", t.participant),
			)
			c.forceClose()
			continue
		}
		c.alive.Store(false)
		if err := c.ping(); err != nil {
			h.logger.Debug("ping failed",
				slog.String("error", err.Error()),
			)
			c.forceClose()
		}
	}
}

// RunExpirySweep walks the session set on half the idle TTL (floored)
// and terminates sessions whose host-resume grace or idle TTL ran out.
// Blocks until ctx is cancelled.
func (h *Hub) RunExpirySweep(ctx context.Context) error {
	interval := h.cfg.SessionTTL / 2
	if interval < minSweepInterval {
		interval = minSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.sweepSessions()
		}
	}
}

// sweepSessions runs one expiry round.
func (h *Hub) sweepSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for _, s := range h.registry.Snapshot() {
		switch {
		case !s.hostDetachedAt.IsZero() &&
			now.Sub(s.hostDetachedAt) > h.cfg.HostResumeGrace:
			h.terminateLocked(s, "host-timeout")

		case s.lastActivity.Before(now.Add(-h.cfg.SessionTTL)):
			h.terminateLocked(s, "session-expired")
		}
	}
}
