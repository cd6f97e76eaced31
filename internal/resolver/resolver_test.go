package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProbes answers from a fixed table and records each batch.
type stubProbes struct {
	mu        sync.Mutex
	reachable map[string]bool
	batches   [][]string
	timeouts  []time.Duration
}

func (s *stubProbes) ProbeAll(ctx context.Context, urls []string, timeout time.Duration) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]string(nil), urls...))
	s.timeouts = append(s.timeouts, timeout)
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		out[u] = s.reachable[u]
	}
	return out
}

func TestResolveEmptyMakesNoProbes(t *testing.T) {
	probes := &stubProbes{}
	got := New(probes, time.Second).Resolve(context.Background(), nil)

	assert.NotNil(t, got.Read)
	assert.NotNil(t, got.Write)
	assert.Zero(t, got.Read.Len())
	assert.Zero(t, got.Write.Len())
	assert.Empty(t, probes.batches)
}

func TestResolveSplitsByCapability(t *testing.T) {
	probes := &stubProbes{reachable: map[string]bool{
		"wss://a.example.com": true,
		"wss://b.example.com": true,
	}}
	got := New(probes, 3*time.Second).Resolve(context.Background(), []domain.TypedRelay{
		{URL: "wss://a.example.com", Type: domain.RelayRead},
		{URL: "wss://b.example.com", Type: domain.RelayWrite},
	})

	assert.Equal(t, domain.NewRelaySet("wss://a.example.com", "wss://b.example.com"), got.Read)
	assert.Equal(t, domain.NewRelaySet("wss://b.example.com"), got.Write)
	require.Len(t, probes.batches, 1)
	assert.Equal(t, 3*time.Second, probes.timeouts[0])
}

func TestResolveDropsUnreachable(t *testing.T) {
	probes := &stubProbes{reachable: map[string]bool{"wss://up.example.com": true}}
	got := New(probes, time.Second).Resolve(context.Background(), []domain.TypedRelay{
		{URL: "wss://up.example.com", Type: domain.RelayRead},
		{URL: "wss://down.example.com", Type: domain.RelayWrite},
	})

	assert.Equal(t, domain.NewRelaySet("wss://up.example.com"), got.Read)
	assert.Zero(t, got.Write.Len())
}

func TestResolveWriteIsSubsetOfRead(t *testing.T) {
	probes := &stubProbes{reachable: map[string]bool{
		"wss://a.example.com": true,
		"wss://b.example.com": false,
		"wss://c.example.com": true,
	}}
	got := New(probes, time.Second).Resolve(context.Background(), []domain.TypedRelay{
		{URL: "wss://a.example.com", Type: domain.RelayWrite},
		{URL: "wss://b.example.com", Type: domain.RelayWrite},
		{URL: "wss://c.example.com", Type: domain.RelayRead},
	})
	for url := range got.Write {
		assert.True(t, got.Read.Has(url), url)
	}
	assert.False(t, got.Write.Has("wss://c.example.com"))
}

func TestResolveNormalizesAndSkipsInvalid(t *testing.T) {
	probes := &stubProbes{reachable: map[string]bool{"wss://relay.example.com": true}}
	got := New(probes, time.Second).Resolve(context.Background(), []domain.TypedRelay{
		{URL: "https://relay.example.com", Type: domain.RelayRead},
		{URL: "WSS://Relay.Example.com:443/", Type: domain.RelayRead},
		{URL: "wss://relay.example.com", Type: domain.RelayWrite},
		{URL: "wss://relay.example.com/", Type: domain.RelayRead},
	})

	require.Len(t, probes.batches, 1)
	assert.Equal(t, []string{"wss://relay.example.com"}, probes.batches[0])
	assert.Equal(t, domain.NewRelaySet("wss://relay.example.com"), got.Read)
	assert.Equal(t, domain.NewRelaySet("wss://relay.example.com"), got.Write)
}

func TestResolveAllInvalidMakesNoProbes(t *testing.T) {
	probes := &stubProbes{}
	got := New(probes, time.Second).Resolve(context.Background(), []domain.TypedRelay{
		{URL: "http://relay.example.com", Type: domain.RelayRead},
	})
	assert.Zero(t, got.Read.Len())
	assert.Empty(t, probes.batches)
}
