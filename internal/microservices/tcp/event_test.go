package tcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("HelloWithValidPayload", func(t *testing.T) {
		v := Classify(NewTextEvent(OpcodeHello, `{"name":"peer-1"}`))
		hello, ok := v.(HelloEvent)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, "peer-1", hello.Name)
		assert.Equal(t, OpcodeHello, v.Opcode())
	})

	t.Run("HelloWithEmptyObject", func(t *testing.T) {
		assert.IsType(t, HelloEvent{}, Classify(NewTextEvent(OpcodeHello, `{}`)))
	})

	t.Run("HelloWithInvalidPayload", func(t *testing.T) {
		v := Classify(NewTextEvent(OpcodeHello, "pong"))
		unknown, ok := v.(UnknownEvent)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, uint8(0), unknown.Code)
		assert.Equal(t, []byte("pong"), unknown.Raw)
	})

	t.Run("HeartbeatWithValidPayload", func(t *testing.T) {
		v := Classify(NewTextEvent(OpcodeHeartbeat, `{"sent_at":42}`))
		hb, ok := v.(HeartbeatEvent)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, int64(42), hb.SentAt)
	})

	t.Run("HeartbeatWithWrongFieldType", func(t *testing.T) {
		assert.IsType(t, UnknownEvent{}, Classify(NewTextEvent(OpcodeHeartbeat, `{"sent_at":"soon"}`)))
	})

	t.Run("NullPayloadIsUnknown", func(t *testing.T) {
		for _, op := range []uint8{OpcodeHello, OpcodeHeartbeat} {
			for _, payload := range []string{"null", " null\n"} {
				v := Classify(NewTextEvent(op, payload))
				unknown, ok := v.(UnknownEvent)
				require.True(t, ok, "opcode %d payload %q got %T", op, payload, v)
				assert.Equal(t, []byte(payload), unknown.Raw)
			}
		}
	})

	t.Run("EmptyPayloadIsUnknown", func(t *testing.T) {
		assert.IsType(t, UnknownEvent{}, Classify(Event{Opcode: OpcodeHello}))
	})

	t.Run("UnrecognisedOpcode", func(t *testing.T) {
		for _, op := range []uint8{2, 17, 255} {
			v := Classify(NewTextEvent(op, `{}`))
			unknown, ok := v.(UnknownEvent)
			require.True(t, ok, "opcode %d got %T", op, v)
			assert.Equal(t, op, unknown.Opcode())
		}
	})
}

func TestEventBuilders(t *testing.T) {
	hello, err := NewHelloEvent("alice")
	require.NoError(t, err)
	assert.Equal(t, OpcodeHello, hello.Opcode)
	assert.Equal(t, HelloEvent{Name: "alice"}, Classify(hello))
	assert.Equal(t, "hello", VariantName(Classify(hello)))

	now := time.UnixMilli(1700000000000)
	hb, err := NewHeartbeatEvent(now)
	require.NoError(t, err)
	assert.Equal(t, HeartbeatEvent{SentAt: now.UnixMilli()}, Classify(hb))
	assert.Equal(t, "heartbeat", VariantName(Classify(hb)))

	assert.Equal(t, "unknown", VariantName(Classify(NewTextEvent(9, "x"))))
}

func TestNewEvent_CopiesPayload(t *testing.T) {
	payload := []byte("first")
	ev := NewEvent(4, payload)
	payload[0] = 'X'

	assert.Equal(t, "first", string(ev.Payload))
}
