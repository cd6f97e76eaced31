package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.General.RefreshInterval)
	assert.Equal(t, 3*time.Second, cfg.Probe.UserTimeout)
	assert.Equal(t, time.Second, cfg.Probe.FollowsTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Connector.RetryDelay)
	assert.Equal(t, ProbeModeWebSocket, cfg.Probe.Mode)
	assert.False(t, cfg.Database.Enabled())
	assert.Len(t, cfg.Relays, 4)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RELAYMAP_PROBE_USER_TIMEOUT", "5s")
	t.Setenv("RELAYMAP_LOGGING_LEVEL", "debug")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Probe.UserTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFileOverridesRelays(t *testing.T) {
	path := writeConfig(t, `
relays:
  - url: wss://relay.example.com
    type: read
  - url: ws://localhost:7777
    type: write
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	relays := cfg.TypedRelays()
	require.Len(t, relays, 2)
	assert.Equal(t, domain.TypedRelay{URL: "wss://relay.example.com", Type: domain.RelayRead}, relays[0])
	assert.Equal(t, domain.RelayWrite, relays[1].Type)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "http relay",
			body: "relays:\n  - url: https://relay.example.com\n    type: read\n",
			want: "WebSocket URL",
		},
		{
			name: "unknown relay type",
			body: "relays:\n  - url: wss://relay.example.com\n    type: both\n",
			want: "must be one of",
		},
		{
			name: "bad pubkey",
			body: "identity:\n  pubkey: npub1xyz\n",
			want: "hex public key",
		},
		{
			name: "probe timeout too small",
			body: "probe:\n  user_timeout: 10ms\n",
			want: "between 100ms and 1 minute",
		},
		{
			name: "duplicate relays",
			body: "relays:\n  - url: wss://relay.example.com/\n    type: read\n  - url: WSS://Relay.Example.com\n    type: write\n",
			want: "same relay twice",
		},
		{
			name: "retry delay longer than dial timeout",
			body: "connector:\n  dial_timeout: 1s\n  retry_delay: 2s\n",
			want: "connector dial timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "probe:\n  unknown_knob: 1\n"), nil)
	require.Error(t, err)
}

func TestValidatePubkey(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	cfg.Identity.PubKey = strings.Repeat("ab", 32)
	assert.NoError(t, cfg.Validate())

	cfg.Identity.PubKey = strings.Repeat("AB", 32)
	assert.Error(t, cfg.Validate())

	cfg.Identity.PubKey = ""
	assert.NoError(t, cfg.Validate())
}
