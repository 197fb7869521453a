package tcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Known opcodes. Anything else classifies as UnknownEvent.
const (
	OpcodeHello     uint8 = 0
	OpcodeHeartbeat uint8 = 1
)

// Event is the unit exchanged over the wire: an opcode selecting the payload
// schema and the opaque encoded payload. Treat it as immutable; one Event may
// be fanned out to many connections.
type Event struct {
	Opcode  uint8
	Payload []byte
}

// NewEvent copies payload so later changes to the caller's slice do not leak
// into an event that may already be queued or broadcast.
func NewEvent(opcode uint8, payload []byte) Event {
	p := make([]byte, len(payload))
	copy(p, payload)
	return Event{Opcode: opcode, Payload: p}
}

// NewTextEvent is a shorthand for string payloads.
func NewTextEvent(opcode uint8, text string) Event {
	return Event{Opcode: opcode, Payload: []byte(text)}
}

func (e Event) String() string {
	return fmt.Sprintf("Event{opcode=%d, payload=%q}", e.Opcode, e.Payload)
}

// EventVariant is the opcode-tagged structured form of an Event.
// The set of implementations is closed: HelloEvent, HeartbeatEvent, UnknownEvent.
type EventVariant interface {
	Opcode() uint8
	isVariant()
}

// HelloEvent is sent by a peer when it joins.
type HelloEvent struct {
	Name string `json:"name,omitempty"`
}

// HeartbeatEvent keeps an otherwise idle connection alive.
type HeartbeatEvent struct {
	SentAt int64 `json:"sent_at,omitempty"` // unix millis
}

// UnknownEvent carries an unrecognised opcode, or a known opcode whose payload
// failed to decode, so malformed traffic stays observable.
type UnknownEvent struct {
	Code uint8
	Raw  []byte
}

func (HelloEvent) Opcode() uint8     { return OpcodeHello }
func (HeartbeatEvent) Opcode() uint8 { return OpcodeHeartbeat }
func (u UnknownEvent) Opcode() uint8 { return u.Code }

func (HelloEvent) isVariant()     {}
func (HeartbeatEvent) isVariant() {}
func (UnknownEvent) isVariant()   {}

// Classify resolves an event into its variant by opcode. It never fails.
func Classify(ev Event) EventVariant {
	switch ev.Opcode {
	case OpcodeHello:
		var hello HelloEvent
		if decodeObject(ev.Payload, &hello) {
			return hello
		}
	case OpcodeHeartbeat:
		var hb HeartbeatEvent
		if decodeObject(ev.Payload, &hb) {
			return hb
		}
	}
	return UnknownEvent{Code: ev.Opcode, Raw: ev.Payload}
}

// decodeObject unmarshals a JSON object payload into v. A bare null is not an
// object, although json.Unmarshal accepts it as a no-op.
func decodeObject(payload []byte, v any) bool {
	if bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		return false
	}
	return json.Unmarshal(payload, v) == nil
}

// NewHelloEvent builds an opcode 0 event announcing name.
func NewHelloEvent(name string) (Event, error) {
	payload, err := json.Marshal(HelloEvent{Name: name})
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal hello payload: %w", err)
	}
	return Event{Opcode: OpcodeHello, Payload: payload}, nil
}

// NewHeartbeatEvent builds an opcode 1 event stamped with t.
func NewHeartbeatEvent(t time.Time) (Event, error) {
	payload, err := json.Marshal(HeartbeatEvent{SentAt: t.UnixMilli()})
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal heartbeat payload: %w", err)
	}
	return Event{Opcode: OpcodeHeartbeat, Payload: payload}, nil
}

// VariantName is a short label for logs and CLI output.
func VariantName(v EventVariant) string {
	switch v.(type) {
	case HelloEvent:
		return "hello"
	case HeartbeatEvent:
		return "heartbeat"
	default:
		return "unknown"
	}
}
