package probe

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/workers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRefused = stderrors.New("connection refused")

// scriptedProber answers per URL after an optional delay.
type scriptedProber struct {
	mu      sync.Mutex
	calls   map[string]int
	delay   map[string]time.Duration
	refuse  map[string]bool
	panicOn map[string]bool
}

func newScriptedProber() *scriptedProber {
	return &scriptedProber{
		calls:   map[string]int{},
		delay:   map[string]time.Duration{},
		refuse:  map[string]bool{},
		panicOn: map[string]bool{},
	}
}

func (p *scriptedProber) Probe(ctx context.Context, url string) error {
	p.mu.Lock()
	p.calls[url]++
	delay, refuse, boom := p.delay[url], p.refuse[url], p.panicOn[url]
	p.mu.Unlock()

	if boom {
		panic("prober exploded")
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if refuse {
		return errRefused
	}
	return nil
}

func (p *scriptedProber) callCount(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[url]
}

func TestProbeAllEmpty(t *testing.T) {
	prober := newScriptedProber()
	r := NewRunner(prober)

	results := r.ProbeAll(context.Background(), nil, time.Second)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Empty(t, prober.calls)
}

func TestProbeAllOneEntryPerDistinctURL(t *testing.T) {
	prober := newScriptedProber()
	prober.refuse["wss://down.example.com"] = true
	r := NewRunner(prober)

	results := r.ProbeAll(context.Background(), []string{
		"wss://up.example.com",
		"wss://down.example.com",
		"wss://up.example.com",
	}, time.Second)

	assert.Equal(t, map[string]bool{
		"wss://up.example.com":   true,
		"wss://down.example.com": false,
	}, results)
	assert.Equal(t, 1, prober.callCount("wss://up.example.com"))
}

func TestProbeAllPanicIsUnreachable(t *testing.T) {
	prober := newScriptedProber()
	prober.panicOn["wss://boom.example.com"] = true
	r := NewRunner(prober)

	results := r.ProbeAll(context.Background(), []string{"wss://boom.example.com", "wss://ok.example.com"}, time.Second)
	assert.False(t, results["wss://boom.example.com"])
	assert.True(t, results["wss://ok.example.com"])
}

func TestProbeAllBoundedByTimeout(t *testing.T) {
	prober := newScriptedProber()
	prober.delay["wss://slow.example.com"] = 5 * time.Second
	r := NewRunner(prober)

	start := time.Now()
	results := r.ProbeAll(context.Background(), []string{"wss://slow.example.com", "wss://fast.example.com"}, 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second)
	assert.False(t, results["wss://slow.example.com"])
	assert.True(t, results["wss://fast.example.com"])
}

func TestProbeAllRunsConcurrently(t *testing.T) {
	prober := newScriptedProber()
	urls := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		u := "wss://relay" + string(rune('a'+i%26)) + string(rune('a'+i/26)) + ".example.com"
		prober.delay[u] = 50 * time.Millisecond
		urls = append(urls, u)
	}
	r := NewRunner(prober)

	start := time.Now()
	results := r.ProbeAll(context.Background(), urls, 2*time.Second)

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, results, 50)
	for _, ok := range results {
		assert.True(t, ok)
	}
}

func TestProbeAllPoolCapStillBoundedByTimeout(t *testing.T) {
	var running, peak int32
	prober := domain.ProberFunc(func(ctx context.Context, url string) error {
		n := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		select {
		case <-time.After(60 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	r := NewRunner(prober, WithPool(workers.NewWorkerPool(2)))

	urls := []string{"wss://a.example.com", "wss://b.example.com", "wss://c.example.com", "wss://d.example.com", "wss://e.example.com", "wss://f.example.com"}
	start := time.Now()
	results := r.ProbeAll(context.Background(), urls, 100*time.Millisecond)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	require.Len(t, results, len(urls))

	reachable := 0
	for _, ok := range results {
		if ok {
			reachable++
		}
	}
	assert.Less(t, reachable, len(urls), "queued probes past the deadline are unreachable")
}

func TestProbeAllCancelledContext(t *testing.T) {
	prober := newScriptedProber()
	prober.delay["wss://slow.example.com"] = time.Second
	r := NewRunner(prober)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := r.ProbeAll(ctx, []string{"wss://slow.example.com"}, time.Second)
	assert.Equal(t, map[string]bool{"wss://slow.example.com": false}, results)
}

func TestProbeEachKeepsInputOrder(t *testing.T) {
	prober := newScriptedProber()
	prober.refuse["wss://b.example.com"] = true
	r := NewRunner(prober)

	got := r.ProbeEach(context.Background(), []string{"wss://c.example.com", "wss://b.example.com", "wss://c.example.com", "wss://a.example.com"}, time.Second)
	assert.Equal(t, []domain.ConnectivityResult{
		{URL: "wss://c.example.com", Reachable: true},
		{URL: "wss://b.example.com", Reachable: false},
		{URL: "wss://a.example.com", Reachable: true},
	}, got)
}
