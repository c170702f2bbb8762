package coordinator

import (
	"context"
	"log/slog"
	"time"

	"peersync/internal/session"
)

// Expirer removes sessions whose heartbeat is older than a timeout.
type Expirer interface {
	Expire(timeout time.Duration) []session.Session
}

// Monitor evicts peers that stopped sending heartbeats. It never touches
// the publication registry: stale publishers are skipped at resolution time.
type Monitor struct {
	log      *slog.Logger
	expirer  Expirer
	timeout  time.Duration
	interval time.Duration
}

func NewMonitor(expirer Expirer, timeout, interval time.Duration, log *slog.Logger) *Monitor {
	return &Monitor{
		log:      log.With(slog.String("component", "monitor")),
		expirer:  expirer,
		timeout:  timeout,
		interval: interval,
	}
}

// Sweep runs one eviction pass and returns the number of evicted sessions.
func (m *Monitor) Sweep() int {
	removed := m.expirer.Expire(m.timeout)
	for _, s := range removed {
		m.log.Info("Removed inactive client",
			slog.String("user", s.Username),
			slog.String("addr", s.Addr),
			slog.Time("last_heartbeat", s.LastHeartbeat),
		)
	}
	return len(removed)
}

// Run sweeps every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
