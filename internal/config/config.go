package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/nips"
	"github.com/Shugur-Network/relaymap/internal/relayurl"
	validator "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Version is set at runtime from build information
var Version = "dev"

var validate = validator.New()

// Config holds every sub‑config.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"   validate:"required"`
	Logging   LoggingConfig   `mapstructure:"logging"   validate:"required"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   validate:"required"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Relays    []RelayEntry    `mapstructure:"relays"    validate:"dive"`
	Probe     ProbeConfig     `mapstructure:"probe"     validate:"required"`
	Connector ConnectorConfig `mapstructure:"connector" validate:"required"`
	Query     QueryConfig     `mapstructure:"query"     validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

func init() {
	registerCustomValidators()
	validate.RegisterStructValidation(performCrossFieldValidation, Config{})
}

// registerCustomValidators registers custom validation functions
func registerCustomValidators() {
	// Relay URLs must survive normalization
	if err := validate.RegisterValidation("relay_url", func(fl validator.FieldLevel) bool {
		_, err := relayurl.Normalize(fl.Field().String())
		return err == nil
	}); err != nil {
		logger.Error("Failed to register relay_url validator", zap.Error(err))
	}

	// Public keys are lower-case 64-character hex, as they appear in p tags
	if err := validate.RegisterValidation("pubkey", func(fl validator.FieldLevel) bool {
		key := fl.Field().String()
		if key == "" {
			return true
		}
		return nips.IsValidPubkey(key)
	}); err != nil {
		logger.Error("Failed to register pubkey validator", zap.Error(err))
	}

	// Refresh intervals between 1 second and 24 hours
	if err := validate.RegisterValidation("reasonable_duration", func(fl validator.FieldLevel) bool {
		duration := fl.Field().Interface().(time.Duration)
		return duration >= time.Second && duration <= 24*time.Hour
	}); err != nil {
		logger.Error("Failed to register reasonable_duration validator", zap.Error(err))
	}

	// Network timeouts between 1 second and 1 hour
	if err := validate.RegisterValidation("timeout_duration", func(fl validator.FieldLevel) bool {
		duration := fl.Field().Interface().(time.Duration)
		return duration >= time.Second && duration <= time.Hour
	}); err != nil {
		logger.Error("Failed to register timeout_duration validator", zap.Error(err))
	}

	// Probe timeouts between 100ms and 1 minute
	if err := validate.RegisterValidation("probe_timeout", func(fl validator.FieldLevel) bool {
		duration := fl.Field().Interface().(time.Duration)
		return duration >= 100*time.Millisecond && duration <= time.Minute
	}); err != nil {
		logger.Error("Failed to register probe_timeout validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("log_level", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "debug", "info", "warn", "error", "fatal":
			return true
		}
		return false
	}); err != nil {
		logger.Error("Failed to register log_level validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("log_format", func(fl validator.FieldLevel) bool {
		format := fl.Field().String()
		return format == "console" || format == "json"
	}); err != nil {
		logger.Error("Failed to register log_format validator", zap.Error(err))
	}
}

// performCrossFieldValidation performs validation across multiple fields
func performCrossFieldValidation(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)

	// A retry delay longer than the dial timeout makes the second attempt pointless
	if cfg.Connector.RetryDelay > cfg.Connector.DialTimeout {
		sl.ReportError(cfg.Connector.RetryDelay, "RetryDelay", "RetryDelay", "retry_delay_too_long", "")
	}

	// The refresh loop must not start a new cycle before the probes of the last one end
	if cfg.General.RefreshInterval < cfg.Probe.UserTimeout+cfg.Probe.FollowsTimeout+cfg.Query.Timeout {
		sl.ReportError(cfg.General.RefreshInterval, "RefreshInterval", "RefreshInterval", "refresh_interval_too_short", "")
	}

	seen := make(map[string]struct{}, len(cfg.Relays))
	for _, r := range cfg.Relays {
		normalized, err := relayurl.Normalize(r.URL)
		if err != nil {
			continue // reported by the field validator
		}
		if _, dup := seen[normalized]; dup {
			sl.ReportError(r.URL, "Relays", "Relays", "duplicate_relay", "")
			return
		}
		seen[normalized] = struct{}{}
	}
}

/* ------------------------------------------------------------------ *
|  Public API                                                         |
* -------------------------------------------------------------------*/

// SetVersion sets the version from build information
func SetVersion(v string) {
	Version = v
}

// Load merges defaults → file (optional) → env vars, validates, and returns cfg.
func Load(path string, log *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RELAYMAP") // RELAYMAP_PROBE_USER_TIMEOUT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 1. defaults.yaml (embedded)
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	// 2. optional user file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.MergeInConfig(); err != nil {
			if log != nil {
				log.Info("No config.yaml found, using defaults")
			}
		} else if log != nil {
			log.Info("Loaded config.yaml from current directory")
		}
	}

	// 3. env already merged by AutomaticEnv()

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log != nil {
		log.Info("configuration loaded",
			zap.String("version", Version),
			zap.Int("relays", len(cfg.Relays)),
		)
	}
	if err := InitializeLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return &cfg, nil
}

// Validate checks cfg against the field and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(*c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// InitializeLogger (re)initializes the global logger from loggingConfig.
func InitializeLogger(loggingConfig LoggingConfig) error {
	return logger.Init(
		logger.WithLevel(loggingConfig.Level),
		logger.WithFormat(loggingConfig.Format),
		logger.WithFile(loggingConfig.FilePath),
		logger.WithVersion(Version),
		logger.WithComponent("relaymap"),
		logger.WithRotation(loggingConfig.MaxSize, loggingConfig.MaxBackups, loggingConfig.MaxAge),
	)
}

// formatValidationError converts validator errors into user-friendly messages
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, fieldError := range validationErrors {
			messages = append(messages, getFieldErrorMessage(fieldError))
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}

	return fmt.Errorf("configuration validation failed: %w", err)
}

// getFieldErrorMessage returns a user-friendly error message for a field validation error
func getFieldErrorMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	value := fe.Value()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required but not provided", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", field, param, value)
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", field, param, value)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s (got: %v)", field, param, value)
	case "relay_url":
		return fmt.Sprintf("%s must be a WebSocket URL using ws:// or wss:// (got: %v)", field, value)
	case "pubkey":
		return fmt.Sprintf("%s must be a 64-character lower-case hex public key (got: %v)", field, value)
	case "reasonable_duration":
		return fmt.Sprintf("%s must be between 1 second and 24 hours (got: %v)", field, value)
	case "timeout_duration":
		return fmt.Sprintf("%s must be between 1 second and 1 hour (got: %v)", field, value)
	case "probe_timeout":
		return fmt.Sprintf("%s must be between 100ms and 1 minute (got: %v)", field, value)
	case "log_level":
		return fmt.Sprintf("%s must be one of: debug, info, warn, error, fatal (got: %v)", field, value)
	case "log_format":
		return fmt.Sprintf("%s must be either 'console' or 'json' (got: %v)", field, value)
	case "retry_delay_too_long":
		return fmt.Sprintf("%s must not exceed the connector dial timeout", field)
	case "refresh_interval_too_short":
		return fmt.Sprintf("%s must be longer than the user probe, follows probe and query timeouts combined", field)
	case "duplicate_relay":
		return fmt.Sprintf("%s lists the same relay twice (%v)", field, value)
	default:
		return fmt.Sprintf("%s validation failed: %s (got: %v)", field, fe.Tag(), value)
	}
}
