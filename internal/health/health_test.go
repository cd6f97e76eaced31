package health

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shugur-Network/relaymap/internal/config"
	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticSnapshot struct{ snap *domain.Snapshot }

func (s staticSnapshot) Snapshot() *domain.Snapshot { return s.snap }

type fakeDB struct{ err error }

func (f fakeDB) Ping(ctx context.Context) error { return f.err }
func (f fakeDB) Stats() storage.DatabaseStats {
	return storage.DatabaseStats{OpenConnections: 2, MaxOpenConnections: 8}
}

func testConfig() *config.Config {
	return &config.Config{
		General: config.GeneralConfig{RefreshInterval: 10 * time.Minute},
		Relays:  []config.RelayEntry{{URL: "wss://a.example.com", Type: "read"}},
	}
}

func snapshot(read, write []string, builtAt time.Time) *domain.Snapshot {
	return &domain.Snapshot{
		CycleID:    "cycle",
		BuiltAt:    builtAt,
		UserRelays: domain.UserRelays{Read: domain.NewRelaySet(read...), Write: domain.NewRelaySet(write...)},
		Follows:    domain.FollowsRelayMap{"alice": {"wss://a.example.com"}, "bob": {}},
	}
}

func component(resp *HealthResponse, name string) *ComponentStatus {
	for _, c := range resp.Components {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCheckHealth(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		snap    *domain.Snapshot
		db      DatabaseInterface
		overall HealthStatus
		checks  map[string]HealthStatus
	}{
		{
			name:    "no snapshot",
			overall: StatusUnhealthy,
			checks:  map[string]HealthStatus{"user_relays": StatusUnhealthy, "snapshot": StatusUnhealthy},
		},
		{
			name:    "healthy",
			snap:    snapshot([]string{"wss://a", "wss://b"}, []string{"wss://b"}, now),
			overall: StatusHealthy,
			checks:  map[string]HealthStatus{"user_relays": StatusHealthy, "snapshot": StatusHealthy},
		},
		{
			name:    "no write relay",
			snap:    snapshot([]string{"wss://a"}, nil, now),
			overall: StatusDegraded,
			checks:  map[string]HealthStatus{"user_relays": StatusDegraded},
		},
		{
			name:    "no read relay",
			snap:    snapshot(nil, nil, now),
			overall: StatusUnhealthy,
			checks:  map[string]HealthStatus{"user_relays": StatusUnhealthy},
		},
		{
			name:    "stale snapshot",
			snap:    snapshot([]string{"wss://a"}, []string{"wss://a"}, now.Add(-25*time.Minute)),
			overall: StatusDegraded,
			checks:  map[string]HealthStatus{"snapshot": StatusDegraded},
		},
		{
			name:    "database down",
			snap:    snapshot([]string{"wss://a"}, []string{"wss://a"}, now),
			db:      fakeDB{err: stderrors.New("connection refused")},
			overall: StatusUnhealthy,
			checks:  map[string]HealthStatus{"database": StatusUnhealthy},
		},
		{
			name:    "database up",
			snap:    snapshot([]string{"wss://a"}, []string{"wss://a"}, now),
			db:      fakeDB{},
			overall: StatusHealthy,
			checks:  map[string]HealthStatus{"database": StatusHealthy},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker(tt.db, staticSnapshot{tt.snap}, testConfig(), zap.NewNop(), "test")
			resp := h.CheckHealth(context.Background())

			assert.Equal(t, tt.overall, resp.Status)
			for name, want := range tt.checks {
				c := component(resp, name)
				require.NotNil(t, c, name)
				assert.Equal(t, want, c.Status, name)
			}
			if tt.db == nil {
				assert.Nil(t, component(resp, "database"))
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	h := NewHealthChecker(nil, staticSnapshot{}, testConfig(), zap.NewNop(), "test")

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, "test", resp.Version)

	h = NewHealthChecker(nil, staticSnapshot{snapshot([]string{"wss://a"}, nil, time.Now())}, testConfig(), zap.NewNop(), "test")
	rec = httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5s", formatUptime(5*time.Second))
	assert.Equal(t, "2m 3s", formatUptime(2*time.Minute+3*time.Second))
	assert.Equal(t, "1d 1h 0m 0s", formatUptime(25*time.Hour))
}
