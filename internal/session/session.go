// Package session holds the coordinator's table of authenticated peers.
package session

import (
	"net"
	"strconv"
	"time"
)

// Endpoint is the host and port of a peer's data-channel listener.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) IsZero() bool {
	return e.Host == "" || e.Port == 0
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Session is one authenticated peer, keyed by its control-channel address.
type Session struct {
	Addr          string
	Username      string
	LastHeartbeat time.Time
	DataEndpoint  Endpoint
}

// Expired reports whether the last heartbeat is older than timeout at now.
func (s Session) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastHeartbeat) > timeout
}
