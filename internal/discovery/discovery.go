// Package discovery announces the coordinator on the local network over
// mDNS and lets peers find it without a configured address.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType = "_peersync._udp"
	Domain      = "local."

	DefaultBrowseTimeout = 3 * time.Second
)

var ErrCoordinatorNotFound = errors.New("no coordinator found on the local network")

// Advertiser keeps an mDNS registration alive until Shutdown.
type Advertiser struct {
	log    *slog.Logger
	server *zeroconf.Server
}

// Advertise registers the coordinator's control port under instance.
func Advertise(instance string, port int, log *slog.Logger) (*Advertiser, error) {
	server, err := zeroconf.Register(
		instance,
		ServiceType,
		Domain,
		port,
		[]string{"txtv=1", "proto=udp"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("register mdns service: %w", err)
	}

	log = log.With(slog.String("component", "mdns"))
	log.Info("Advertising coordinator", slog.String("instance", instance), slog.Int("port", port))

	return &Advertiser{log: log, server: server}, nil
}

func (a *Advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.log.Info("Stopped advertising coordinator")
}

// Browse returns the control address of the first coordinator that answers
// within timeout.
func Browse(ctx context.Context, timeout time.Duration, log *slog.Logger) (string, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("create mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return "", fmt.Errorf("browse mdns: %w", err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrCoordinatorNotFound
			}
			addr, ok := entryAddr(entry)
			if !ok {
				continue
			}
			log.Info("Found coordinator", slog.String("instance", entry.Instance), slog.String("addr", addr))
			return addr, nil
		case <-ctx.Done():
			return "", ErrCoordinatorNotFound
		}
	}
}

// entryAddr picks an IPv4 address when there is one.
func entryAddr(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port <= 0 {
		return "", false
	}

	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return "", false
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)), true
}
