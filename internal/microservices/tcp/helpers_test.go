package tcp

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.DiscardHandler)

// readFrame reads exactly one frame from r. Safe to call off the test goroutine.
func readFrame(r io.Reader) (Event, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Event{}, err
	}
	body := make([]byte, binary.BigEndian.Uint32(header))
	if _, err := io.ReadFull(r, body); err != nil {
		return Event{}, err
	}
	ev, n, err := Decode(append(header, body...), 0)
	if err != nil {
		return Event{}, err
	}
	if n != HeaderSize+len(body) {
		return Event{}, fmt.Errorf("consumed %d of %d bytes", n, HeaderSize+len(body))
	}
	return ev, nil
}

func mustReadFrame(t *testing.T, r io.Reader) Event {
	t.Helper()
	ev, err := readFrame(r)
	require.NoError(t, err)
	return ev
}

// eventually waits for cond with a short poll, failing the test after timeout.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond, msg)
}
