package follows

import (
	"context"
	"time"

	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/nips"
	"github.com/Shugur-Network/relaymap/internal/relayurl"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

// Builder turns followed authors' relay lists into a FollowsRelayMap.
type Builder struct {
	probes  domain.BatchProber
	timeout time.Duration
}

// NewBuilder creates a builder probing candidate relays with timeout.
func NewBuilder(probes domain.BatchProber, timeout time.Duration) *Builder {
	return &Builder{probes: probes, timeout: timeout}
}

type authorRelays struct {
	pubkey string
	urls   []string
}

// Build assigns each author the declared relays that are reachable, keeping
// declaration order. Relays in connected count as reachable and are never
// probed; every other declared relay is probed once, all in one batch.
// Authors whose relays are all unreachable get an empty entry.
func (b *Builder) Build(ctx context.Context, followsMeta []nostr.Event, connected domain.RelaySet) domain.FollowsRelayMap {
	log := logger.FromContext(ctx, "follows")
	authors := declaredRelays(latestPerAuthor(followsMeta))

	var candidates []string
	seen := make(map[string]struct{})
	for _, a := range authors {
		for _, url := range a.urls {
			if connected.Has(url) {
				continue
			}
			if _, dup := seen[url]; dup {
				continue
			}
			seen[url] = struct{}{}
			candidates = append(candidates, url)
		}
	}

	usable := connected
	if len(candidates) > 0 {
		reachable := b.probes.ProbeAll(ctx, candidates, b.timeout)
		found := domain.NewRelaySet()
		for _, url := range candidates {
			if reachable[url] {
				found[url] = struct{}{}
			}
		}
		usable = found.Union(connected)
		log.Debug("probed follows relays",
			zap.Int("candidates", len(candidates)),
			zap.Int("reachable", found.Len()),
		)
	}

	out := make(domain.FollowsRelayMap, len(authors))
	for _, a := range authors {
		relays := make([]string, 0, len(a.urls))
		for _, url := range a.urls {
			if usable.Has(url) {
				relays = append(relays, url)
			}
		}
		out[a.pubkey] = relays
	}

	log.Info("follows relay map built",
		zap.Int("authors", len(out)),
		zap.Int("without_relays", out.WithoutRelays()),
	)
	return out
}

// latestPerAuthor keeps the newest relay list of each author, in the order
// authors first appear.
func latestPerAuthor(events []nostr.Event) []*nostr.Event {
	index := make(map[string]int, len(events))
	var out []*nostr.Event
	for i := range events {
		evt := &events[i]
		if !nips.IsRelayListEvent(evt) {
			continue
		}
		at, ok := index[evt.PubKey]
		if !ok {
			index[evt.PubKey] = len(out)
			out = append(out, evt)
			continue
		}
		if nips.Newer(evt, out[at]) {
			out[at] = evt
		}
	}
	return out
}

// declaredRelays normalizes every "r" tag, dropping invalid and repeated URLs.
func declaredRelays(events []*nostr.Event) []authorRelays {
	out := make([]authorRelays, 0, len(events))
	for _, evt := range events {
		seen := make(map[string]struct{})
		urls := make([]string, 0, len(evt.Tags))
		for _, raw := range nips.RelayURLs(evt) {
			url, err := relayurl.Normalize(raw)
			if err != nil {
				continue
			}
			if _, dup := seen[url]; dup {
				continue
			}
			seen[url] = struct{}{}
			urls = append(urls, url)
		}
		out = append(out, authorRelays{pubkey: evt.PubKey, urls: urls})
	}
	return out
}
