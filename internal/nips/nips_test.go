package nips

import (
	"strings"
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
)

func pk(c string) string { return strings.Repeat(c, 64) }

func TestFollowedPubkeys(t *testing.T) {
	evt := &nostr.Event{
		Kind: KindFollowList,
		Tags: nostr.Tags{
			{"p", pk("a")},
			{"e", pk("b")},
			{"p", pk("c"), "wss://relay.example.com", "carol"},
			{"p", pk("a")},
			{"p", "not-a-key"},
			{"p"},
		},
	}

	assert.True(t, IsFollowListEvent(evt))
	assert.Equal(t, []string{pk("a"), pk("c")}, FollowedPubkeys(evt))
	assert.Nil(t, FollowedPubkeys(nil))
	assert.Empty(t, FollowedPubkeys(&nostr.Event{Kind: KindFollowList}))
}

func TestRelayURLs(t *testing.T) {
	evt := &nostr.Event{
		Kind: KindRelayList,
		Tags: nostr.Tags{
			{"r", "wss://both.example.com"},
			{"r", "wss://read.example.com", "read"},
			{"p", pk("a")},
			{"r", "wss://write.example.com", "write"},
			{"r"},
		},
	}

	assert.Equal(t, []string{
		"wss://both.example.com",
		"wss://read.example.com",
		"wss://write.example.com",
	}, RelayURLs(evt))
	assert.Nil(t, RelayURLs(nil))
}

func TestNewer(t *testing.T) {
	older := &nostr.Event{ID: pk("1"), CreatedAt: 100}
	newer := &nostr.Event{ID: pk("2"), CreatedAt: 200}
	sameTimeLowID := &nostr.Event{ID: pk("0"), CreatedAt: 200}

	assert.True(t, Newer(newer, older))
	assert.False(t, Newer(older, newer))
	assert.True(t, Newer(sameTimeLowID, newer))
	assert.False(t, Newer(newer, sameTimeLowID))
}
