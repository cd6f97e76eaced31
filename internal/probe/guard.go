package probe

import (
	"context"
	stderrors "errors"
	"net"
	"net/url"
	"strings"

	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/errors"
)

// ErrBlockedAddress is returned for relay hosts that resolve to addresses
// not reachable from the public internet.
var ErrBlockedAddress = stderrors.New("relay address is not publicly routable")

var metadataIP = net.ParseIP("169.254.169.254")

// GuardedProber refuses to probe hosts on private networks before handing
// the URL to the wrapped prober. Loopback stays allowed for local relays.
type GuardedProber struct {
	next     domain.Prober
	resolver *net.Resolver
}

// NewGuardedProber wraps next.
func NewGuardedProber(next domain.Prober) *GuardedProber {
	return &GuardedProber{next: next, resolver: net.DefaultResolver}
}

// Probe checks the host of rawURL and probes it when allowed.
func (g *GuardedProber) Probe(ctx context.Context, rawURL string) error {
	if err := g.check(ctx, rawURL); err != nil {
		return errors.ProbeFailure(rawURL, err)
	}
	return g.next.Probe(ctx, rawURL)
}

func (g *GuardedProber) check(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	host := parsed.Hostname()
	if host == "" {
		return ErrBlockedAddress
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil {
		if !isPublicOrLoopback(ip) {
			return ErrBlockedAddress
		}
		return nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		// unresolvable names fail at dial time; internal suffixes never resolve publicly
		if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
			return ErrBlockedAddress
		}
		return nil
	}
	for _, addr := range addrs {
		if !isPublicOrLoopback(addr.IP) {
			return ErrBlockedAddress
		}
	}
	return nil
}

func isPublicOrLoopback(ip net.IP) bool {
	switch {
	case ip == nil:
		return false
	case ip.IsLoopback():
		return true
	case ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsUnspecified(),
		ip.IsMulticast(),
		ip.Equal(metadataIP):
		return false
	}
	return true
}
