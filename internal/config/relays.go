package config

import (
	"time"

	"github.com/Shugur-Network/relaymap/internal/domain"
)

// GeneralConfig holds settings of the resolution loop.
type GeneralConfig struct {
	RefreshInterval time.Duration `mapstructure:"REFRESH_INTERVAL" json:"refresh_interval" validate:"required,reasonable_duration"`
}

// IdentityConfig names the local user whose follows are routed.
type IdentityConfig struct {
	PubKey string `mapstructure:"PUBKEY" json:"pubkey" validate:"omitempty,pubkey"`
}

// RelayEntry is one configured user relay.
type RelayEntry struct {
	URL  string `mapstructure:"URL"  json:"url"  validate:"required,relay_url"`
	Type string `mapstructure:"TYPE" json:"type" validate:"required,oneof=read write"`
}

// TypedRelays converts the configured relay list for the resolver.
func (c *Config) TypedRelays() []domain.TypedRelay {
	out := make([]domain.TypedRelay, 0, len(c.Relays))
	for _, r := range c.Relays {
		out = append(out, domain.TypedRelay{URL: r.URL, Type: domain.RelayType(r.Type)})
	}
	return out
}
