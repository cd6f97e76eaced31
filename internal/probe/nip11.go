package probe

import (
	"context"

	"github.com/Shugur-Network/relaymap/internal/errors"
	"github.com/nbd-wtf/go-nostr/nip11"
)

// InfoDocProber treats a served NIP-11 relay information document as
// reachable. It costs one HTTP request and no WebSocket session.
type InfoDocProber struct{}

// NewInfoDocProber creates a NIP-11 prober.
func NewInfoDocProber() *InfoDocProber {
	return &InfoDocProber{}
}

// Probe fetches the information document of url.
func (p *InfoDocProber) Probe(ctx context.Context, url string) error {
	if _, err := nip11.Fetch(ctx, url); err != nil {
		return errors.ProbeFailure(url, err)
	}
	return nil
}
