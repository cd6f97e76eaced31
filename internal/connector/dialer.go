package connector

import (
	"context"
	"net"

	"github.com/Shugur-Network/relaymap/internal/domain"
	nostr "github.com/nbd-wtf/go-nostr"
)

// NostrDialer opens relay sessions with go-nostr.
type NostrDialer struct{}

// Dial connects once to url.
func (NostrDialer) Dial(ctx context.Context, url string) (domain.Connection, error) {
	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return &RelayConnection{Relay: relay}, nil
}

// RelayConnection exposes the go-nostr relay behind a domain.Connection so
// callers can subscribe on it.
type RelayConnection struct {
	Relay *nostr.Relay
}

// URL returns the relay URL.
func (c *RelayConnection) URL() string {
	return c.Relay.URL
}

// Close closes the relay session.
func (c *RelayConnection) Close() error {
	return c.Relay.Close()
}

// InterfaceChecker treats the host as online when at least one non-loopback
// interface is up and has an address.
type InterfaceChecker struct{}

// IsOnline inspects the local network interfaces. When they cannot be listed
// the host is assumed online.
func (InterfaceChecker) IsOnline() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return true
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if addrs, err := iface.Addrs(); err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}
