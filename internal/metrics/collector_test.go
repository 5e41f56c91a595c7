package relaymetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	relaymetrics "github.com/Lack-Of-Name/CadNav/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := relaymetrics.NewCollector(reg)

	if c.SessionsActive == nil {
		t.Error("SessionsActive is nil")
	}
	if c.PeersActive == nil {
		t.Error("PeersActive is nil")
	}
	if c.Frames == nil {
		t.Error("Frames is nil")
	}
	if c.Bytes == nil {
		t.Error("Bytes is nil")
	}
	if c.SessionsEnded == nil {
		t.Error("SessionsEnded is nil")
	}
	if c.LocationsThrottled == nil {
		t.Error("LocationsThrottled is nil")
	}
	if c.ProtocolErrors == nil {
		t.Error("ProtocolErrors is nil")
	}

	// Registration must not panic and must be gatherable.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSessionLifecycleGauges(t *testing.T) {
	t.Parallel()

	c := relaymetrics.NewCollector(prometheus.NewRegistry())

	c.SessionOpened()
	c.SessionOpened()
	if got := testutil.ToFloat64(c.SessionsActive); got != 2 {
		t.Errorf("sessions_active = %v, want 2", got)
	}

	c.SessionClosed("host-ended")
	if got := testutil.ToFloat64(c.SessionsActive); got != 1 {
		t.Errorf("sessions_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.SessionsEnded.WithLabelValues("host-ended")); got != 1 {
		t.Errorf("sessions_ended_total{host-ended} = %v, want 1", got)
	}
}

func TestPeerGauges(t *testing.T) {
	t.Parallel()

	c := relaymetrics.NewCollector(prometheus.NewRegistry())

	c.PeerBound("host")
	c.PeerBound("client")
	c.PeerBound("client")
	c.PeerUnbound("client")

	if got := testutil.ToFloat64(c.PeersActive.WithLabelValues("host")); got != 1 {
		t.Errorf("peers_active{host} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.PeersActive.WithLabelValues("client")); got != 1 {
		t.Errorf("peers_active{client} = %v, want 1", got)
	}
}

func TestTrafficCounters(t *testing.T) {
	t.Parallel()

	c := relaymetrics.NewCollector(prometheus.NewRegistry())

	c.FrameReceived(100)
	c.FrameReceived(50)
	c.FrameSent(30)

	if got := testutil.ToFloat64(c.Frames.WithLabelValues("in")); got != 2 {
		t.Errorf("frames_total{in} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Bytes.WithLabelValues("in")); got != 150 {
		t.Errorf("bytes_total{in} = %v, want 150", got)
	}
	if got := testutil.ToFloat64(c.Frames.WithLabelValues("out")); got != 1 {
		t.Errorf("frames_total{out} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Bytes.WithLabelValues("out")); got != 30 {
		t.Errorf("bytes_total{out} = %v, want 30", got)
	}
}

func TestOutcomeCounters(t *testing.T) {
	t.Parallel()

	c := relaymetrics.NewCollector(prometheus.NewRegistry())

	c.LocationThrottled()
	c.LocationThrottled()
	c.ProtocolError("validation")

	if got := testutil.ToFloat64(c.LocationsThrottled); got != 2 {
		t.Errorf("locations_throttled_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.ProtocolErrors.WithLabelValues("validation")); got != 1 {
		t.Errorf("protocol_errors_total{validation} = %v, want 1", got)
	}
}
