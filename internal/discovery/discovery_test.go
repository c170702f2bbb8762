package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"

	"peersync/internal/lib/logger/handlers/slogdiscard"
)

func TestEntryAddr(t *testing.T) {
	tests := []struct {
		name  string
		entry *zeroconf.ServiceEntry
		want  string
		ok    bool
	}{
		{name: "nil", entry: nil},
		{
			name: "ipv4 preferred",
			entry: &zeroconf.ServiceEntry{
				Port:     5000,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.10")},
				AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
			},
			want: "192.168.1.10:5000",
			ok:   true,
		},
		{
			name:  "ipv6 only",
			entry: &zeroconf.ServiceEntry{Port: 5000, AddrIPv6: []net.IP{net.ParseIP("fe80::1")}},
			want:  "[fe80::1]:5000",
			ok:    true,
		},
		{
			name:  "no address",
			entry: &zeroconf.ServiceEntry{Port: 5000},
		},
		{
			name:  "no port",
			entry: &zeroconf.ServiceEntry{AddrIPv4: []net.IP{net.ParseIP("10.0.0.1")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := entryAddr(tt.entry)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBrowse_NothingAdvertised(t *testing.T) {
	if testing.Short() {
		t.Skip("multicast browsing")
	}

	_, err := Browse(context.Background(), 200*time.Millisecond, slogdiscard.NewDiscardLogger())
	assert.Error(t, err)
}

func TestAdvertiser_ShutdownNil(t *testing.T) {
	var a *Advertiser
	assert.NotPanics(t, a.Shutdown)
}
