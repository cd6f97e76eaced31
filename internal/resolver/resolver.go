// Package resolver decides which of the user's configured relays are usable.
package resolver

import (
	"context"
	"time"

	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/relayurl"
	"go.uber.org/zap"
)

// Resolver probes the configured relay list and splits the reachable relays
// by capability.
type Resolver struct {
	probes  domain.BatchProber
	timeout time.Duration
}

// New creates a resolver probing with the given per-batch timeout.
func New(probes domain.BatchProber, timeout time.Duration) *Resolver {
	return &Resolver{probes: probes, timeout: timeout}
}

// Resolve probes every configured relay once. Reachable relays land in Read;
// reachable write relays also land in Write. Invalid URLs are skipped, and a
// relay listed as both read and write counts as write.
func (r *Resolver) Resolve(ctx context.Context, configured []domain.TypedRelay) domain.UserRelays {
	result := domain.UserRelays{Read: domain.NewRelaySet(), Write: domain.NewRelaySet()}
	if len(configured) == 0 {
		return result
	}
	log := logger.FromContext(ctx, "resolver")

	types := make(map[string]domain.RelayType, len(configured))
	urls := make([]string, 0, len(configured))
	for _, relay := range configured {
		url, err := relayurl.Normalize(relay.URL)
		if err != nil {
			log.Warn("skipping invalid relay URL",
				zap.String("url", relay.URL),
				zap.Error(err),
			)
			continue
		}
		prev, seen := types[url]
		if !seen {
			urls = append(urls, url)
		}
		if !seen || prev != domain.RelayWrite {
			types[url] = relay.Type
		}
	}
	if len(urls) == 0 {
		return result
	}

	reachable := r.probes.ProbeAll(ctx, urls, r.timeout)
	for _, url := range urls {
		if !reachable[url] {
			continue
		}
		result.Read[url] = struct{}{}
		if types[url] == domain.RelayWrite {
			result.Write[url] = struct{}{}
		}
	}

	log.Info("user relays resolved",
		zap.Int("configured", len(urls)),
		zap.Int("read", result.Read.Len()),
		zap.Int("write", result.Write.Len()),
	)
	return result
}
