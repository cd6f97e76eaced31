// Package connector opens live relay sessions with a fixed two-attempt policy.
package connector

import (
	"context"
	"time"

	"github.com/Shugur-Network/relaymap/internal/config"
	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/errors"
	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/metrics"
	"github.com/Shugur-Network/relaymap/internal/relayurl"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// MaxAttempts is the number of dials made before a relay is reported unreachable.
const MaxAttempts = 2

// Connector dials a relay, waits a fixed delay after a failure and dials
// exactly once more.
type Connector struct {
	dialer      domain.Dialer
	online      domain.OnlineChecker
	clock       clock.Clock
	dialTimeout time.Duration
	retryDelay  time.Duration
}

// Option configures a Connector.
type Option func(*Connector)

// WithDialer replaces the go-nostr dialer.
func WithDialer(d domain.Dialer) Option {
	return func(c *Connector) { c.dialer = d }
}

// WithOnlineChecker replaces the network interface check.
func WithOnlineChecker(o domain.OnlineChecker) Option {
	return func(c *Connector) { c.online = o }
}

// WithClock sets the clock used for the retry delay.
func WithClock(clk clock.Clock) Option {
	return func(c *Connector) { c.clock = clk }
}

// New creates a connector from cfg.
func New(cfg config.ConnectorConfig, opts ...Option) *Connector {
	c := &Connector{
		dialer:      NostrDialer{},
		online:      InterfaceChecker{},
		clock:       clock.New(),
		dialTimeout: cfg.DialTimeout,
		retryDelay:  cfg.RetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect returns a live connection to rawURL. An invalid URL fails with an
// InvalidURL error without dialing. When both attempts fail the error is a
// RelayUnreachable whose user message depends on whether the host is online.
func (c *Connector) Connect(ctx context.Context, rawURL string) (domain.Connection, error) {
	url, err := relayurl.Normalize(rawURL)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx, "connector").With(zap.String("url", url))

	var (
		lastErr  error
		attempts int
	)
	for attempts < MaxAttempts {
		if attempts > 0 {
			if err := c.wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		conn, err := c.dial(ctx, url)
		if err == nil {
			metrics.ConnectAttempts.WithLabelValues("success").Inc()
			log.Debug("connected to relay", zap.Int("attempt", attempts))
			return conn, nil
		}

		metrics.ConnectAttempts.WithLabelValues("failure").Inc()
		lastErr = errors.DialError(err)
		log.Warn("relay connection attempt failed",
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
	}

	offline := !c.online.IsOnline()
	metrics.RelayUnreachable.Inc()
	log.Error("relay unreachable",
		zap.Int("attempts", attempts),
		zap.Bool("offline", offline),
		zap.Error(lastErr),
	)
	return nil, errors.RelayUnreachable(url, attempts, offline, lastErr)
}

func (c *Connector) dial(ctx context.Context, url string) (domain.Connection, error) {
	if c.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
	}
	return c.dialer.Dial(ctx, url)
}

func (c *Connector) wait(ctx context.Context) error {
	if c.retryDelay <= 0 {
		return ctx.Err()
	}
	timer := c.clock.Timer(c.retryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
