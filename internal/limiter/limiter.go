package limiter

import (
	"context"

	"github.com/Shugur-Network/relaymap/internal/config"
	"golang.org/x/time/rate"
)

// DialLimiter paces outgoing connection attempts so a large probe batch does
// not open hundreds of sockets in the same instant.
type DialLimiter struct {
	limiter *rate.Limiter
}

// NewDialLimiter builds a limiter from the probe settings. A dial rate of
// zero disables pacing.
func NewDialLimiter(cfg config.ProbeConfig) *DialLimiter {
	if cfg.DialRate <= 0 {
		return &DialLimiter{}
	}
	burst := cfg.DialBurst
	if burst < 1 {
		burst = 1
	}
	return &DialLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.DialRate), burst)}
}

// Wait blocks until a dial may start or ctx ends.
func (l *DialLimiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}

// Enabled reports whether pacing is active.
func (l *DialLimiter) Enabled() bool {
	return l != nil && l.limiter != nil
}
