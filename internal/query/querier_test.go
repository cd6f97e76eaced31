package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shugur-Network/relaymap/internal/config"
	"github.com/Shugur-Network/relaymap/internal/errors"
	"github.com/gorilla/websocket"
	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelay answers REQ with the stored events matching the filter, then EOSE.
type fakeRelay struct {
	events  []nostr.Event
	strays  []nostr.Event // sent under another subscription id
	silent  bool          // never sends EOSE
	closes  bool // answers with CLOSED
	reqs    atomic.Int32
	closeID atomic.Value
}

func (f *fakeRelay) serve(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg []json.RawMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			var label, subID string
			_ = json.Unmarshal(msg[0], &label)
			_ = json.Unmarshal(msg[1], &subID)

			switch label {
			case "REQ":
				f.reqs.Add(1)
				var filter nostr.Filter
				_ = json.Unmarshal(msg[2], &filter)
				if f.closes {
					_ = conn.WriteJSON([]any{"CLOSED", subID, "restricted: not allowed"})
					continue
				}
				_ = conn.WriteJSON([]any{"NOTICE", "hello"})
				_ = conn.WriteJSON([]any{"EOSE", "other-" + subID})
				for _, evt := range f.strays {
					_ = conn.WriteJSON([]any{"EVENT", "other-" + subID, evt})
				}
				for _, evt := range f.events {
					if filter.Matches(&evt) {
						_ = conn.WriteJSON([]any{"EVENT", subID, evt})
					}
				}
				if !f.silent {
					_ = conn.WriteJSON([]any{"EOSE", subID})
				}
			case "CLOSE":
				f.closeID.Store(subID)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func signedEvent(t *testing.T, kind int, createdAt nostr.Timestamp, tags nostr.Tags) (nostr.Event, string) {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	evt := nostr.Event{PubKey: pk, Kind: kind, CreatedAt: createdAt, Tags: tags}
	require.NoError(t, evt.Sign(sk))
	return evt, pk
}

var testConfig = config.QueryConfig{Timeout: 2 * time.Second, MaxConcurrency: 4}

func TestQuerySyncCollectsAndDeduplicates(t *testing.T) {
	evtA, pkA := signedEvent(t, 10002, 100, nostr.Tags{{"r", "wss://a.example.com"}})
	evtB, pkB := signedEvent(t, 10002, 100, nostr.Tags{{"r", "wss://b.example.com"}})
	other, _ := signedEvent(t, 1, 100, nil)

	relay1 := &fakeRelay{events: []nostr.Event{evtA, other}}
	relay2 := &fakeRelay{events: []nostr.Event{evtA, evtB}}
	srv1, srv2 := relay1.serve(t), relay2.serve(t)

	q := New(testConfig)
	events, err := q.QuerySync(context.Background(), []string{wsURL(srv1), wsURL(srv2)}, nostr.Filter{
		Kinds:   []int{10002},
		Authors: []string{pkA, pkB},
	})
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, evt := range events {
		ids[evt.ID] = true
	}
	assert.Len(t, events, 2)
	assert.True(t, ids[evtA.ID])
	assert.True(t, ids[evtB.ID])
	assert.EqualValues(t, 1, relay1.reqs.Load())

	require.Eventually(t, func() bool { return relay1.closeID.Load() != nil }, time.Second, 10*time.Millisecond)
}

func TestQuerySyncPartialFailure(t *testing.T) {
	evt, pk := signedEvent(t, 10002, 100, nostr.Tags{{"r", "wss://a.example.com"}})
	good := (&fakeRelay{events: []nostr.Event{evt}}).serve(t)
	refused := (&fakeRelay{closes: true}).serve(t)

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := wsURL(dead)
	dead.Close()

	q := New(testConfig)
	events, err := q.QuerySync(context.Background(), []string{wsURL(good), wsURL(refused), deadURL}, nostr.Filter{
		Kinds:   []int{10002},
		Authors: []string{pk},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, evt.ID, events[0].ID)
}

func TestQuerySyncAllRelaysFail(t *testing.T) {
	refused := (&fakeRelay{closes: true}).serve(t)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := wsURL(dead)
	dead.Close()

	q := New(testConfig)
	events, err := q.QuerySync(context.Background(), []string{wsURL(refused), deadURL}, nostr.Filter{Kinds: []int{10002}})
	require.Error(t, err)
	assert.Nil(t, events)
	assert.True(t, errors.IsCode(err, errors.CodeQueryFailed))
}

func TestQuerySyncRelayWithoutEOSE(t *testing.T) {
	evt, pk := signedEvent(t, 10002, 100, nil)
	silent := (&fakeRelay{events: []nostr.Event{evt}, silent: true}).serve(t)

	q := New(config.QueryConfig{Timeout: 300 * time.Millisecond})
	start := time.Now()
	events, err := q.QuerySync(context.Background(), []string{wsURL(silent)}, nostr.Filter{Authors: []string{pk}})

	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestQuerySyncDropsForgedEvents(t *testing.T) {
	evt, pk := signedEvent(t, 10002, 100, nil)
	forged := evt
	forged.Tags = nostr.Tags{{"r", "wss://evil.example.com"}}

	relay := (&fakeRelay{events: []nostr.Event{forged}}).serve(t)
	q := New(testConfig)
	events, err := q.QuerySync(context.Background(), []string{wsURL(relay)}, nostr.Filter{Authors: []string{pk}})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestQuerySyncIgnoresOtherSubscriptions(t *testing.T) {
	mine, pk := signedEvent(t, 10002, 100, nostr.Tags{{"r", "wss://a.example.com"}})
	stray, strayPK := signedEvent(t, 10002, 100, nostr.Tags{{"r", "wss://b.example.com"}})
	relay := &fakeRelay{events: []nostr.Event{mine}, strays: []nostr.Event{stray}}
	srv := relay.serve(t)

	events, err := New(testConfig).QuerySync(context.Background(), []string{wsURL(srv)}, nostr.Filter{
		Kinds:   []int{10002},
		Authors: []string{pk, strayPK},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, mine.ID, events[0].ID)
}

func TestQuerySyncNoRelays(t *testing.T) {
	events, err := New(testConfig).QuerySync(context.Background(), nil, nostr.Filter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}
