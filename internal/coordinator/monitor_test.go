package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"peersync/internal/lib/logger/handlers/slogdiscard"
)

func TestMonitor_Sweep(t *testing.T) {
	e, clock := newTestEngine(t)
	login(t, e, addrA, "alice", "password123")
	login(t, e, addrB, "bob", "secretpass")

	m := NewMonitor(e, 3*time.Second, time.Second, slogdiscard.NewDiscardLogger())

	clock.Advance(2 * time.Second)
	send(e, addrB, "HBT")
	assert.Zero(t, m.Sweep())

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1, m.Sweep())

	sessions, _ := e.Stats()
	assert.Equal(t, 1, sessions)
	assert.Equal(t, reply("No active peers"), send(e, addrB, "lap"))
}

func TestMonitor_Run(t *testing.T) {
	e, clock := newTestEngine(t)
	login(t, e, addrA, "alice", "password123")
	clock.Advance(time.Minute)

	m := NewMonitor(e, 3*time.Second, 10*time.Millisecond, slogdiscard.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		n, _ := e.Stats()
		return n == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
