package config

import "time"

// Probe modes
const (
	ProbeModeWebSocket = "websocket"
	ProbeModeNIP11     = "nip11"
)

// ProbeConfig holds reachability probe settings.
type ProbeConfig struct {
	UserTimeout    time.Duration `mapstructure:"USER_TIMEOUT"    json:"user_timeout"    validate:"required,probe_timeout"`
	FollowsTimeout time.Duration `mapstructure:"FOLLOWS_TIMEOUT" json:"follows_timeout" validate:"required,probe_timeout"`
	MaxConcurrency int           `mapstructure:"MAX_CONCURRENCY" json:"max_concurrency" validate:"min=0,max=10000"`
	DialRate       float64       `mapstructure:"DIAL_RATE"       json:"dial_rate"       validate:"min=0"`
	DialBurst      int           `mapstructure:"DIAL_BURST"      json:"dial_burst"      validate:"min=0,max=10000"`
	Mode           string        `mapstructure:"MODE"            json:"mode"            validate:"required,oneof=websocket nip11"`
	BlockPrivate   bool          `mapstructure:"BLOCK_PRIVATE"   json:"block_private"`
}

// ConnectorConfig holds settings of the two-attempt relay connector.
type ConnectorConfig struct {
	DialTimeout time.Duration `mapstructure:"DIAL_TIMEOUT" json:"dial_timeout" validate:"required,timeout_duration"`
	RetryDelay  time.Duration `mapstructure:"RETRY_DELAY"  json:"retry_delay"  validate:"min=0"`
}

// QueryConfig holds settings of batched relay queries.
type QueryConfig struct {
	Timeout        time.Duration `mapstructure:"TIMEOUT"         json:"timeout"         validate:"required,timeout_duration"`
	MaxConcurrency int           `mapstructure:"MAX_CONCURRENCY" json:"max_concurrency" validate:"min=0,max=10000"`
}
