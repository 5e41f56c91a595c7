package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Lack-Of-Name/CadNav/internal/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	data, err := protocol.Encode(protocol.TypeSessionReady, map[string]any{
		"sessionId": "ABC234",
		"role":      "host",
	})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	m, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if m.Type != protocol.TypeSessionReady {
		t.Errorf("Type = %q, want %q", m.Type, protocol.TypeSessionReady)
	}

	var payload struct {
		SessionID string `json:"sessionId"`
		Role      string `json:"role"`
	}
	if err := m.ParsePayload(&payload); err != nil {
		t.Fatalf("ParsePayload() error: %v", err)
	}
	if payload.SessionID != "ABC234" || payload.Role != "host" {
		t.Errorf("payload = %+v, want sessionId ABC234, role host", payload)
	}
}

func TestEncodeNilPayload(t *testing.T) {
	t.Parallel()

	data, err := protocol.Encode(protocol.TypeHeartbeat, nil)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	m, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(m.Payload) != 0 {
		t.Errorf("Payload = %s, want absent", m.Payload)
	}

	// Parsing an absent payload leaves the target untouched.
	var payload struct {
		X int `json:"x"`
	}
	payload.X = 7
	if err := m.ParsePayload(&payload); err != nil {
		t.Fatalf("ParsePayload() error: %v", err)
	}
	if payload.X != 7 {
		t.Errorf("payload.X = %d, want 7 (untouched)", payload.X)
	}
}

func TestEncodeEmptyType(t *testing.T) {
	t.Parallel()

	if _, err := protocol.Encode("", nil); !errors.Is(err, protocol.ErrEmptyType) {
		t.Errorf("Encode(\"\") error = %v, want ErrEmptyType", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"not json", "not json"},
		{"empty", ""},
		{"array", "[1,2,3]"},
		{"missing type", `{"payload":{}}`},
		{"empty type", `{"type":"","payload":{}}`},
		{"numeric type", `{"type":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := protocol.Decode([]byte(tt.in)); !errors.Is(err, protocol.ErrInvalidEnvelope) {
				t.Errorf("Decode(%q) error = %v, want ErrInvalidEnvelope", tt.in, err)
			}
		})
	}
}

func TestDecodeKeepsPayloadRaw(t *testing.T) {
	t.Parallel()

	m, err := protocol.Decode([]byte(`{"type":"host:state","payload":{"data":"abc"}}`))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Payload, &raw); err != nil {
		t.Fatalf("payload is not raw JSON: %v", err)
	}
	if string(raw["data"]) != `"abc"` {
		t.Errorf("payload.data = %s, want \"abc\"", raw["data"])
	}
}

func TestParsePayloadMismatch(t *testing.T) {
	t.Parallel()

	m, err := protocol.Decode([]byte(`{"type":"host:interval","payload":{"intervalMs":"x"}}`))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	var payload struct {
		IntervalMs int `json:"intervalMs"`
	}
	if err := m.ParsePayload(&payload); err == nil {
		t.Error("ParsePayload() into mismatched shape succeeded, want error")
	}
}
