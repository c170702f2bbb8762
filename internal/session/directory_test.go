package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestUpsert(t *testing.T) {
	d := NewDirectory()

	s, err := d.Upsert("127.0.0.1:1000", "alice", t0)
	require.NoError(t, err)
	assert.Equal(t, "alice", s.Username)
	assert.Equal(t, t0, s.LastHeartbeat)
	assert.True(t, s.DataEndpoint.IsZero())

	_, err = d.Upsert("127.0.0.1:2000", "alice", t0)
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	_, ok := d.Get("127.0.0.1:2000")
	assert.False(t, ok)

	_, err = d.Upsert("127.0.0.1:2000", "bob", t0)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
}

func TestUpsert_SameAddressRefreshes(t *testing.T) {
	d := NewDirectory()
	addr := "127.0.0.1:1000"

	_, err := d.Upsert(addr, "alice", t0)
	require.NoError(t, err)
	require.True(t, d.SetEndpoint(addr, Endpoint{Host: "127.0.0.1", Port: 9001}))

	s, err := d.Upsert(addr, "alice", t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Second), s.LastHeartbeat)
	assert.Equal(t, Endpoint{Host: "127.0.0.1", Port: 9001}, s.DataEndpoint)

	// a different user from the same address replaces the session
	s, err = d.Upsert(addr, "bob", t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "bob", s.Username)
	assert.True(t, s.DataEndpoint.IsZero())
	_, ok := d.FindByUsername("alice")
	assert.False(t, ok)
}

func TestTouchAndEndpoint(t *testing.T) {
	d := NewDirectory()

	assert.False(t, d.Touch("nobody:1", t0))
	assert.False(t, d.SetEndpoint("nobody:1", Endpoint{Host: "h", Port: 1}))

	_, err := d.Upsert("a:1", "alice", t0)
	require.NoError(t, err)

	assert.True(t, d.Touch("a:1", t0.Add(5*time.Second)))
	s, ok := d.Get("a:1")
	require.True(t, ok)
	assert.Equal(t, t0.Add(5*time.Second), s.LastHeartbeat)
}

func TestFindByUsernameAndAll(t *testing.T) {
	d := NewDirectory()
	for addr, user := range map[string]string{"c:1": "charlie", "a:1": "alice", "b:1": "bob"} {
		_, err := d.Upsert(addr, user, t0)
		require.NoError(t, err)
	}

	s, ok := d.FindByUsername("bob")
	require.True(t, ok)
	assert.Equal(t, "b:1", s.Addr)

	_, ok = d.FindByUsername("dave")
	assert.False(t, ok)

	var names []string
	for _, s := range d.All() {
		names = append(names, s.Username)
	}
	assert.Equal(t, []string{"alice", "bob", "charlie"}, names)

	d.Remove("b:1")
	_, ok = d.FindByUsername("bob")
	assert.False(t, ok)
}

func TestRemoveExpired(t *testing.T) {
	d := NewDirectory()
	timeout := 3 * time.Second

	_, err := d.Upsert("old:1", "old", t0)
	require.NoError(t, err)
	_, err = d.Upsert("new:1", "new", t0.Add(2*time.Second))
	require.NoError(t, err)

	// exactly at the timeout is still alive
	removed := d.RemoveExpired(t0.Add(timeout), timeout)
	assert.Empty(t, removed)

	removed = d.RemoveExpired(t0.Add(timeout+time.Millisecond), timeout)
	require.Len(t, removed, 1)
	assert.Equal(t, "old", removed[0].Username)

	_, ok := d.Get("new:1")
	assert.True(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	d := NewDirectory()
	_, err := d.Upsert("a:1", "alice", t0)
	require.NoError(t, err)

	s, _ := d.Get("a:1")
	s.Username = "mallory"

	s, _ = d.Get("a:1")
	assert.Equal(t, "alice", s.Username)
}
