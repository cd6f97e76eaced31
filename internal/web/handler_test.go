package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	alice = strings.Repeat("a", 64)
	bob   = strings.Repeat("b", 64)
)

type fakeRouter struct{ snap *domain.Snapshot }

func (f fakeRouter) Snapshot() *domain.Snapshot { return f.snap }

func (f fakeRouter) RelaysFor(pubkey string) ([]string, bool) {
	if relays, ok := f.snap.Follows[pubkey]; ok {
		return relays, true
	}
	return f.snap.UserRelays.Read.Sorted(), false
}

func newTestHandler(snap *domain.Snapshot) http.Handler {
	health := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	return NewHandler(fakeRouter{snap: snap}, health, zap.NewNop()).Routes()
}

func testSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		CycleID: "cycle-1",
		BuiltAt: time.Unix(1700000000, 0).UTC(),
		UserRelays: domain.UserRelays{
			Read:  domain.NewRelaySet("wss://r1.example.com", "wss://r2.example.com"),
			Write: domain.NewRelaySet("wss://r1.example.com"),
		},
		Follows:      domain.FollowsRelayMap{alice: {"wss://x.example.com"}},
		FollowsCount: 1,
	}
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestSnapshotEndpoint(t *testing.T) {
	rec := serve(newTestHandler(testSnapshot()), http.MethodGet, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var view domain.SnapshotView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, "cycle-1", view.CycleID)
	assert.Equal(t, []string{"wss://r1.example.com", "wss://r2.example.com"}, view.ReadRelays)
	assert.Equal(t, []string{"wss://x.example.com"}, view.Follows[alice])
}

func TestSnapshotEndpointBeforeFirstCycle(t *testing.T) {
	rec := serve(newTestHandler(nil), http.MethodGet, "/api/snapshot")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errors.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, errors.CodeSnapshotNotFound, body.Error.Code)
}

func TestRelaysEndpoint(t *testing.T) {
	h := newTestHandler(testSnapshot())

	tests := []struct {
		name   string
		path   string
		status int
		want   RelaysResponse
	}{
		{
			name:   "known author",
			path:   "/api/relays/" + alice,
			status: http.StatusOK,
			want:   RelaysResponse{Pubkey: alice, Relays: []string{"wss://x.example.com"}, Known: true},
		},
		{
			name:   "unknown author falls back to read relays",
			path:   "/api/relays/" + bob,
			status: http.StatusOK,
			want:   RelaysResponse{Pubkey: bob, Relays: []string{"wss://r1.example.com", "wss://r2.example.com"}, Known: false},
		},
		{
			name:   "invalid pubkey",
			path:   "/api/relays/npub1xyz",
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodGet, tt.path)
			require.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusOK {
				return
			}
			var got RelaysResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetricsAndHealthRoutes(t *testing.T) {
	h := newTestHandler(testSnapshot())

	rec := serve(h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodPost, "/api/snapshot")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestIDIsPreserved(t *testing.T) {
	h := newTestHandler(testSnapshot())
	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddlewareInChain(t *testing.T) {
	panicky := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), RequestIDMiddleware)
	h := Chain(panicky, errors.RecoveryMiddleware)

	rec := serve(h, http.MethodGet, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
