package coordinator

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peersync/internal/credentials"
	"peersync/internal/lib/logger/handlers/slogdiscard"
	"peersync/internal/protocol"
	"peersync/internal/registry"
	"peersync/internal/session"
)

func startServer(t *testing.T, cfg Config) string {
	t.Helper()

	e := newRealtimeEngine()
	srv := NewServer(e, cfg, slogdiscard.NewDiscardLogger())

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, conn)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})

	return conn.LocalAddr().String()
}

func newRealtimeEngine() *Engine {
	store := credentials.NewStore(map[string]string{
		"alice": "password123",
		"bob":   "secretpass",
	})
	return NewEngine(session.NewDirectory(), registry.New(), store, nil, slogdiscard.NewDiscardLogger())
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, msg string) string {
	t.Helper()

	_, err := conn.Write([]byte(msg))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, protocol.MaxDatagramSize)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func expectSilence(t *testing.T, conn net.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	buf := make([]byte, protocol.MaxDatagramSize)
	_, err := conn.Read(buf)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func TestServer_Session(t *testing.T) {
	addr := startServer(t, Config{HeartbeatTimeout: 3 * time.Second, SweepInterval: time.Second})

	a := dial(t, addr)
	b := dial(t, addr)

	assert.Equal(t, "OK", roundTrip(t, a, "auth alice password123"))
	assert.Equal(t, "ERR", roundTrip(t, b, "auth alice password123"))
	assert.Equal(t, "OK", roundTrip(t, b, "auth bob secretpass"))

	_, err := a.Write([]byte("TCP 127.0.0.1 9001"))
	require.NoError(t, err)
	_, err = a.Write([]byte("HBT"))
	require.NoError(t, err)
	expectSilence(t, a)

	assert.Equal(t, protocol.ReplyPublished, roundTrip(t, a, "pub report.pdf"))
	assert.Equal(t, "alice", roundTrip(t, b, "lap"))
	assert.Equal(t, "report.pdf", roundTrip(t, b, "sch rep"))
	assert.Equal(t, "alice 127.0.0.1 9001", roundTrip(t, b, "get report.pdf"))
	assert.Equal(t, "ERR", roundTrip(t, b, "nonsense"))
}

func TestServer_ExpiresSilentPeers(t *testing.T) {
	addr := startServer(t, Config{HeartbeatTimeout: 100 * time.Millisecond, SweepInterval: 20 * time.Millisecond})

	a := dial(t, addr)
	b := dial(t, addr)

	assert.Equal(t, "OK", roundTrip(t, a, "auth alice password123"))
	assert.Equal(t, "OK", roundTrip(t, b, "auth bob secretpass"))

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		_, err := b.Write([]byte("HBT"))
		require.NoError(t, err)
		time.Sleep(30 * time.Millisecond)
	}

	assert.Equal(t, protocol.ReplyNoActivePeers, roundTrip(t, b, "lap"))
	assert.Equal(t, "ERR", roundTrip(t, a, "lap"))
}

func TestServer_RateLimit(t *testing.T) {
	addr := startServer(t, Config{
		HeartbeatTimeout: 3 * time.Second,
		SweepInterval:    time.Second,
		RateLimit:        0.001,
		RateBurst:        2,
	})

	a := dial(t, addr)
	assert.Equal(t, "ERR", roundTrip(t, a, "lap"))
	assert.Equal(t, "ERR", roundTrip(t, a, "lap"))

	_, err := a.Write([]byte("lap"))
	require.NoError(t, err)
	expectSilence(t, a)
}

func TestServer_ListenAndServeBindError(t *testing.T) {
	srv := NewServer(newRealtimeEngine(), Config{Listen: "256.0.0.1:5000"}, slogdiscard.NewDiscardLogger())

	err := srv.ListenAndServe(context.Background())
	assert.Error(t, err)
}
