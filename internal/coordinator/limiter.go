package coordinator

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// addrLimiter keeps one token bucket per control-channel address so a single
// noisy sender cannot starve the loop.
type addrLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
}

// newAddrLimiter returns nil when perSecond is not positive; a nil limiter
// allows everything.
func newAddrLimiter(perSecond float64, burst int) *addrLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &addrLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
}

func (l *addrLimiter) Allow(addr string, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[addr]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[addr] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Prune forgets addresses idle for longer than idle.
func (l *addrLimiter) Prune(now time.Time, idle time.Duration) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for addr, e := range l.entries {
		if now.Sub(e.lastSeen) > idle {
			delete(l.entries, addr)
		}
	}
}

func (l *addrLimiter) Len() int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}
