package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddrLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newAddrLimiter(1, 2)

	assert.True(t, l.Allow(addrA, now))
	assert.True(t, l.Allow(addrA, now))
	assert.False(t, l.Allow(addrA, now))

	// other addresses have their own bucket
	assert.True(t, l.Allow(addrB, now))

	assert.True(t, l.Allow(addrA, now.Add(time.Second)))
	assert.Equal(t, 2, l.Len())

	l.Prune(now.Add(90*time.Second), time.Minute)
	assert.Zero(t, l.Len())
}

func TestAddrLimiter_Disabled(t *testing.T) {
	l := newAddrLimiter(0, 0)
	assert.Nil(t, l)

	now := time.Now()
	for range 1000 {
		assert.True(t, l.Allow(addrA, now))
	}
	l.Prune(now, time.Minute)
	assert.Zero(t, l.Len())
}
