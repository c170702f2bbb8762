package session

import (
	"sort"
	"sync"
	"time"
)

// Directory is the table of currently authenticated peers.
// Every method returns copies; callers never hold references into the table.
type Directory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewDirectory() *Directory {
	return &Directory{
		sessions: make(map[string]*Session),
	}
}

// Upsert creates or refreshes the session at addr for username.
// It fails with ErrDuplicateUsername when another address holds username.
// Re-authenticating from the same address keeps the reported data endpoint
// only if the username is unchanged.
func (d *Directory) Upsert(addr, username string, now time.Time) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for a, s := range d.sessions {
		if s.Username == username && a != addr {
			return Session{}, ErrDuplicateUsername
		}
	}

	s, ok := d.sessions[addr]
	if !ok || s.Username != username {
		s = &Session{Addr: addr, Username: username}
		d.sessions[addr] = s
	}
	s.LastHeartbeat = now

	return *s, nil
}

// Touch refreshes the heartbeat of the session at addr.
func (d *Directory) Touch(addr string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[addr]
	if !ok {
		return false
	}
	s.LastHeartbeat = now
	return true
}

// SetEndpoint records the data endpoint of the session at addr.
func (d *Directory) SetEndpoint(addr string, ep Endpoint) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[addr]
	if !ok {
		return false
	}
	s.DataEndpoint = ep
	return true
}

func (d *Directory) Get(addr string) (Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[addr]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (d *Directory) Remove(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.sessions, addr)
}

// All returns every active session ordered by username.
func (d *Directory) All() []Session {
	d.mu.RLock()
	defer d.mu.RUnlock()

	all := make([]Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		all = append(all, *s)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Username < all[j].Username
	})
	return all
}

func (d *Directory) FindByUsername(username string) (Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, s := range d.sessions {
		if s.Username == username {
			return *s, true
		}
	}
	return Session{}, false
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.sessions)
}

// RemoveExpired deletes every session whose heartbeat is older than timeout
// and returns the removed sessions.
func (d *Directory) RemoveExpired(now time.Time, timeout time.Duration) []Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	var removed []Session
	for addr, s := range d.sessions {
		if s.Expired(now, timeout) {
			removed = append(removed, *s)
			delete(d.sessions, addr)
		}
	}
	return removed
}
