package nips

import (
	"regexp"

	nostr "github.com/nbd-wtf/go-nostr"
)

// NIP-02: Follow List
// https://github.com/nostr-protocol/nips/blob/master/02.md

const (
	// KindFollowList is the event kind for follow lists
	KindFollowList = 3
)

var hexKey = regexp.MustCompile(`^[a-f0-9]{64}$`)

// IsFollowListEvent checks if an event is a follow list
func IsFollowListEvent(evt *nostr.Event) bool {
	return evt != nil && evt.Kind == KindFollowList
}

// IsValidPubkey reports whether key is a lower-case 64-character hex public key.
func IsValidPubkey(key string) bool {
	return hexKey.MatchString(key)
}

// FollowedPubkeys returns the pubkeys referenced by "p" tags in tag order,
// without duplicates. Tags whose second element is not a valid pubkey are skipped.
func FollowedPubkeys(evt *nostr.Event) []string {
	if evt == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(evt.Tags))
	pubkeys := make([]string, 0, len(evt.Tags))
	for _, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		pk := tag[1]
		if !IsValidPubkey(pk) {
			continue
		}
		if _, dup := seen[pk]; dup {
			continue
		}
		seen[pk] = struct{}{}
		pubkeys = append(pubkeys, pk)
	}
	return pubkeys
}
