package nips

import (
	nostr "github.com/nbd-wtf/go-nostr"
)

// NIP-65: Relay List Metadata
// https://github.com/nostr-protocol/nips/blob/master/65.md

const (
	// KindRelayList is the event kind for relay lists
	KindRelayList = 10002
)

// IsRelayListEvent checks if an event is a relay list
func IsRelayListEvent(evt *nostr.Event) bool {
	return evt != nil && evt.Kind == KindRelayList
}

// RelayURLs returns the URL of every "r" tag of evt in declaration order.
// Read/write markers are ignored: any declared relay may carry the author's
// notes. URLs are returned raw; callers normalize them.
func RelayURLs(evt *nostr.Event) []string {
	if evt == nil {
		return nil
	}
	out := make([]string, 0, len(evt.Tags))
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		out = append(out, tag[1])
	}
	return out
}

// Newer reports whether a supersedes b as the replaceable event of the same
// author. Ties on created_at go to the lower event id.
func Newer(a, b *nostr.Event) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID < b.ID
}
