package domain

import (
	"sort"
	"time"
)

// RelayType is the capability a user relay is configured for.
type RelayType string

const (
	RelayRead  RelayType = "read"
	RelayWrite RelayType = "write"
)

// TypedRelay is one entry of the local user's configured relay list.
type TypedRelay struct {
	URL  string    `json:"url"`
	Type RelayType `json:"type"`
}

// ConnectivityResult is the outcome of probing one URL.
type ConnectivityResult struct {
	URL       string `json:"url"`
	Reachable bool   `json:"reachable"`
}

// RelaySet is a set of normalized relay URLs. Sets handed between
// components are never mutated after construction; build a new one instead.
type RelaySet map[string]struct{}

// NewRelaySet builds a set from already normalized URLs.
func NewRelaySet(urls ...string) RelaySet {
	s := make(RelaySet, len(urls))
	for _, u := range urls {
		s[u] = struct{}{}
	}
	return s
}

// Has reports whether url is in the set.
func (s RelaySet) Has(url string) bool {
	_, ok := s[url]
	return ok
}

// Len returns the number of relays in the set.
func (s RelaySet) Len() int {
	return len(s)
}

// Sorted returns the members in lexical order.
func (s RelaySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Union returns a new set holding the members of s and other.
func (s RelaySet) Union(other RelaySet) RelaySet {
	out := make(RelaySet, len(s)+len(other))
	for u := range s {
		out[u] = struct{}{}
	}
	for u := range other {
		out[u] = struct{}{}
	}
	return out
}

// Clone returns an independent copy of s.
func (s RelaySet) Clone() RelaySet {
	return s.Union(nil)
}

// UserRelays is the reachable part of the user's relay list, split by
// capability. Write is always a subset of Read.
type UserRelays struct {
	Read  RelaySet
	Write RelaySet
}

// FollowsRelayMap routes each followed author to the relays worth querying
// for their content, most preferred first. An author with an empty slice
// declared relays but none are reachable; a missing author is unknown.
type FollowsRelayMap map[string][]string

// Clone returns a deep copy of m.
func (m FollowsRelayMap) Clone() FollowsRelayMap {
	out := make(FollowsRelayMap, len(m))
	for pk, relays := range m {
		cp := make([]string, len(relays))
		copy(cp, relays)
		out[pk] = cp
	}
	return out
}

// WithoutRelays counts authors whose entry is empty.
func (m FollowsRelayMap) WithoutRelays() int {
	n := 0
	for _, relays := range m {
		if len(relays) == 0 {
			n++
		}
	}
	return n
}

// Snapshot is the published result of one resolution cycle.
type Snapshot struct {
	CycleID      string
	BuiltAt      time.Time
	UserRelays   UserRelays
	Follows      FollowsRelayMap
	FollowsCount int
}

// Copy returns a deep copy so callers can never reach into a published
// snapshot.
func (s *Snapshot) Copy() *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		CycleID: s.CycleID,
		BuiltAt: s.BuiltAt,
		UserRelays: UserRelays{
			Read:  s.UserRelays.Read.Clone(),
			Write: s.UserRelays.Write.Clone(),
		},
		Follows:      s.Follows.Clone(),
		FollowsCount: s.FollowsCount,
	}
}

// SnapshotView is the JSON shape of a snapshot.
type SnapshotView struct {
	CycleID      string              `json:"cycle_id"`
	BuiltAt      time.Time           `json:"built_at"`
	ReadRelays   []string            `json:"read_relays"`
	WriteRelays  []string            `json:"write_relays"`
	FollowsCount int                 `json:"follows_count"`
	Follows      map[string][]string `json:"follows"`
}

// View renders s for JSON output.
func (s *Snapshot) View() SnapshotView {
	return SnapshotView{
		CycleID:      s.CycleID,
		BuiltAt:      s.BuiltAt,
		ReadRelays:   s.UserRelays.Read.Sorted(),
		WriteRelays:  s.UserRelays.Write.Sorted(),
		FollowsCount: s.FollowsCount,
		Follows:      s.Follows.Clone(),
	}
}
