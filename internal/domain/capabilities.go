package domain

import (
	"context"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
)

// Prober checks whether a relay endpoint accepts connections.
// A nil error means reachable.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, url string) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, url string) error {
	return f(ctx, url)
}

// Querier runs one filter against many relays and returns what they answer.
type Querier interface {
	QuerySync(ctx context.Context, relays []string, filter nostr.Filter) ([]nostr.Event, error)
}

// Connection is a live relay session. The owner must Close it.
type Connection interface {
	URL() string
	Close() error
}

// Dialer opens a single raw connection, without retry.
type Dialer interface {
	Dial(ctx context.Context, url string) (Connection, error)
}

// OnlineChecker reports whether the local network looks online.
type OnlineChecker interface {
	IsOnline() bool
}

// BatchProber probes a set of URLs under one deadline.
type BatchProber interface {
	ProbeAll(ctx context.Context, urls []string, timeout time.Duration) map[string]bool
}

// SnapshotStore persists published snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LoadLatestSnapshot(ctx context.Context) (*Snapshot, error)
	Ping(ctx context.Context) error
	CloseDB() error
}

// Connector opens a live relay session with retry.
type Connector interface {
	Connect(ctx context.Context, url string) (Connection, error)
}
