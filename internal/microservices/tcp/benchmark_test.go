package tcp

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// LOAD: CONCURRENT CONNECTIONS
// ============================================================================

func TestConcurrentConnections(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}
	const target = 30

	server, err := NewServer("127.0.0.1:0", WithLogger(quietLogger))
	require.NoError(t, err)
	go server.Start()
	defer server.Stop()

	var (
		connected atomic.Int64
		delivered atomic.Int64
		clients   []*TCPClient
		mu        sync.Mutex
		wg        sync.WaitGroup
	)

	for i := 0; i < target; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			client, err := Dial(ctx, server.Addr, WithLogger(quietLogger))
			if err != nil {
				t.Logf("dial failed: %v", err)
				return
			}
			connected.Add(1)
			go client.Listen(func(Event) { delivered.Add(1) })

			mu.Lock()
			clients = append(clients, client)
			mu.Unlock()
		}()
	}
	wg.Wait()
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	require.Eventually(t, func() bool { return server.Manager.Count() == target },
		5*time.Second, 10*time.Millisecond)

	const rounds = 20
	for i := 0; i < rounds; i++ {
		attempted, err := server.BroadcastEvent(NewTextEvent(0, "load"))
		require.NoError(t, err)
		assert.Equal(t, target, attempted)
	}
	assert.Eventually(t, func() bool { return delivered.Load() == target*rounds },
		5*time.Second, 10*time.Millisecond)

	t.Logf("connected=%d registered=%d delivered=%d",
		connected.Load(), server.Manager.Count(), delivered.Load())
}

// ============================================================================
// BENCHMARKS
// ============================================================================

func BenchmarkEncode(b *testing.B) {
	ev := NewTextEvent(1, `{"sent_at":1700000000000}`)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Encode(ev)
	}
}

func BenchmarkDecode(b *testing.B) {
	frame := Encode(NewTextEvent(1, `{"sent_at":1700000000000}`))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := Decode(frame, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBroadcast(b *testing.B) {
	for _, peers := range []int{1, 10, 50} {
		b.Run(strconv.Itoa(peers)+"_peers", func(b *testing.B) {
			m := NewConnectionManager(WithLogger(quietLogger))
			for i := 0; i < peers; i++ {
				local, remote := net.Pipe()
				go io.Copy(io.Discard, remote)
				m.AddConnection(NewClientConnection(local, WithLogger(quietLogger)))
				defer remote.Close()
			}
			defer m.CloseAllConnections()

			ev := NewTextEvent(0, "benchmark payload")
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := m.Broadcast(ev); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
