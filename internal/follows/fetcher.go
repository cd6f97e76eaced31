// Package follows builds the routing table from followed authors to the
// relays their content can be loaded from.
package follows

import (
	"context"

	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/nips"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

// FollowedPubkeys returns the pubkeys of the "p" tags of a follow list,
// deduplicated in tag order.
func FollowedPubkeys(follows *nostr.Event) []string {
	return nips.FollowedPubkeys(follows)
}

// Fetcher retrieves relay lists of followed authors from the user's
// connected relays.
type Fetcher struct {
	querier domain.Querier
}

// NewFetcher creates a fetcher querying through q.
func NewFetcher(q domain.Querier) *Fetcher {
	return &Fetcher{querier: q}
}

// FetchFollowsRelayLists issues one batched query for the relay lists of
// every author followed in follows. Relays that do not answer are tolerated.
// No query is made when nobody is followed or nothing is connected.
func (f *Fetcher) FetchFollowsRelayLists(ctx context.Context, follows *nostr.Event, connected domain.RelaySet) ([]nostr.Event, error) {
	pubkeys := FollowedPubkeys(follows)
	if len(pubkeys) == 0 || connected.Len() == 0 {
		return []nostr.Event{}, nil
	}
	log := logger.FromContext(ctx, "follows")

	events, err := f.querier.QuerySync(ctx, connected.Sorted(), nostr.Filter{
		Kinds:   []int{nips.KindRelayList},
		Authors: pubkeys,
	})
	if err != nil {
		return nil, err
	}

	followed := make(map[string]struct{}, len(pubkeys))
	for _, pk := range pubkeys {
		followed[pk] = struct{}{}
	}
	out := make([]nostr.Event, 0, len(events))
	for _, evt := range events {
		if evt.Kind != nips.KindRelayList {
			continue
		}
		if _, ok := followed[evt.PubKey]; !ok {
			continue
		}
		out = append(out, evt)
	}

	log.Debug("fetched follows relay lists",
		zap.Int("follows", len(pubkeys)),
		zap.Int("relays", connected.Len()),
		zap.Int("events", len(out)),
	)
	return out, nil
}

// FetchFollowList returns the newest follow list of pubkey, or nil when
// none of relays has one.
func (f *Fetcher) FetchFollowList(ctx context.Context, pubkey string, relays domain.RelaySet) (*nostr.Event, error) {
	if relays.Len() == 0 {
		return nil, nil
	}
	events, err := f.querier.QuerySync(ctx, relays.Sorted(), nostr.Filter{
		Kinds:   []int{nips.KindFollowList},
		Authors: []string{pubkey},
	})
	if err != nil {
		return nil, err
	}

	var newest *nostr.Event
	for i := range events {
		evt := &events[i]
		if evt.Kind != nips.KindFollowList || evt.PubKey != pubkey {
			continue
		}
		if newest == nil || nips.Newer(evt, newest) {
			newest = evt
		}
	}
	return newest, nil
}
