package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPClient_SendAndListen(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	client := NewClient(local, WithLogger(quietLogger))
	assert.True(t, client.IsConnected())
	assert.NotEmpty(t, client.ID())

	events := make(chan Event, 4)
	done := make(chan error, 1)
	go func() { done <- client.Listen(func(ev Event) { events <- ev }) }()

	sendErr := make(chan error, 1)
	go func() { sendErr <- client.SendEvent(NewTextEvent(1, "ping")) }()
	got := mustReadFrame(t, remote)
	assert.Equal(t, "ping", string(got.Payload))
	require.NoError(t, <-sendErr)

	_, err := remote.Write(Encode(NewTextEvent(0, "pong")))
	require.NoError(t, err)
	select {
	case ev := <-events:
		assert.Equal(t, "pong", string(ev.Payload))
	case <-time.After(time.Second):
		t.Fatal("client did not receive event")
	}

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.MessagesSent)
	assert.Equal(t, uint64(1), stats.MessagesReceived)
	assert.False(t, stats.ConnectedAt.IsZero())

	client.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Listen did not return after Close")
	}
	assert.False(t, client.IsConnected())
}

func TestTCPClient_ListenReturnsOnServerClose(t *testing.T) {
	local, remote := net.Pipe()
	client := NewClient(local, WithLogger(quietLogger))

	done := make(chan error, 1)
	go func() { done <- client.Listen(func(Event) {}) }()

	remote.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Listen did not return")
	}
}

func TestTCPClient_HeartbeatStopsWithContext(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	client := NewClient(local, WithLogger(quietLogger))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		client.StartHeartbeat(ctx, 10*time.Millisecond)
		close(stopped)
	}()

	ev := mustReadFrame(t, remote)
	assert.IsType(t, HeartbeatEvent{}, Classify(ev))

	cancel()
	// drain any heartbeat already in flight so the sender is not stuck on the pipe
	go func() {
		for {
			if _, err := readFrame(remote); err != nil {
				return
			}
		}
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("heartbeat loop ignored cancellation")
	}
}

func TestTCPClient_HeartbeatStopsOnSendFailure(t *testing.T) {
	local, remote := net.Pipe()
	remote.Close()
	client := NewClient(local, WithLogger(quietLogger))

	stopped := make(chan struct{})
	go func() {
		client.StartHeartbeat(context.Background(), 10*time.Millisecond)
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("heartbeat loop kept running on a dead connection")
	}
	assert.True(t, client.Stats().LastHeartbeat.IsZero())
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = Dial(ctx, addr)
	assert.Error(t, err)
}
