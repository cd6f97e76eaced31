package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/Shugur-Network/relaymap/internal/config"
	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/limiter"
	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/metrics"
	"github.com/Shugur-Network/relaymap/internal/workers"
	"go.uber.org/zap"
)

// Runner probes many relay URLs concurrently and collects a reachability
// verdict for each one within a single batch deadline.
type Runner struct {
	prober  domain.Prober
	pool    *workers.WorkerPool
	limiter *limiter.DialLimiter
}

// Option configures a Runner.
type Option func(*Runner)

// WithPool caps how many probes run at once.
func WithPool(pool *workers.WorkerPool) Option {
	return func(r *Runner) { r.pool = pool }
}

// WithLimiter paces probe dials.
func WithLimiter(l *limiter.DialLimiter) Option {
	return func(r *Runner) { r.limiter = l }
}

// NewRunner creates a runner around prober. Without options the fan-out is
// unbounded and dials are not paced.
func NewRunner(prober domain.Prober, opts ...Option) *Runner {
	r := &Runner{prober: prober, pool: workers.NewWorkerPool(0)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRunnerFromConfig builds the prober selected by cfg.Mode, guarded when
// cfg.BlockPrivate is set, and a runner with the configured pool and pacing.
func NewRunnerFromConfig(cfg config.ProbeConfig) *Runner {
	var prober domain.Prober
	switch cfg.Mode {
	case config.ProbeModeNIP11:
		prober = NewInfoDocProber()
	default:
		prober = NewWebSocketProber()
	}
	if cfg.BlockPrivate {
		prober = NewGuardedProber(prober)
	}
	return NewRunner(prober,
		WithPool(workers.NewWorkerPool(cfg.MaxConcurrency)),
		WithLimiter(limiter.NewDialLimiter(cfg)),
	)
}

type answer struct {
	url       string
	reachable bool
}

// ProbeAll probes every distinct URL in urls and returns exactly one entry
// per distinct URL. All probes are started before any answer is awaited.
// URLs that have not answered when timeout elapses are reported unreachable
// and the call returns without waiting for them.
func (r *Runner) ProbeAll(ctx context.Context, urls []string, timeout time.Duration) map[string]bool {
	distinct := dedupe(urls)
	results := make(map[string]bool, len(distinct))
	if len(distinct) == 0 {
		return results
	}
	for _, u := range distinct {
		results[u] = false
	}

	log := logger.FromContext(ctx, "probe")
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	metrics.ProbeBatchSize.Observe(float64(len(distinct)))
	metrics.IncrementProbesIssued(len(distinct))

	answers := make(chan answer, len(distinct))
	for _, u := range distinct {
		go r.probeOne(ctx, u, answers)
	}

	pending := len(distinct)
	for pending > 0 {
		select {
		case a := <-answers:
			results[a.url] = a.reachable
			pending--
		case <-ctx.Done():
			// take whatever already arrived, abandon the rest
			for drained := false; !drained; {
				select {
				case a := <-answers:
					results[a.url] = a.reachable
					pending--
				default:
					drained = true
				}
			}
			if pending > 0 {
				log.Debug("probe batch deadline reached",
					zap.Int("unanswered", pending),
					zap.Int("batch", len(distinct)),
					zap.Duration("timeout", timeout),
				)
			}
			return results
		}
	}

	return results
}

// ProbeEach is ProbeAll with results in first-seen input order.
func (r *Runner) ProbeEach(ctx context.Context, urls []string, timeout time.Duration) []domain.ConnectivityResult {
	results := r.ProbeAll(ctx, urls, timeout)
	out := make([]domain.ConnectivityResult, 0, len(results))
	for _, u := range dedupe(urls) {
		out = append(out, domain.ConnectivityResult{URL: u, Reachable: results[u]})
	}
	return out
}

// probeOne always sends exactly one answer, including when the prober panics.
func (r *Runner) probeOne(ctx context.Context, url string, out chan<- answer) {
	reachable := false
	defer func() {
		out <- answer{url: url, reachable: reachable}
	}()

	var probeErr error
	start := time.Now()
	err := r.pool.Do(ctx, func(ctx context.Context) {
		if err := r.limiter.Wait(ctx); err != nil {
			probeErr = err
			return
		}
		start = time.Now()
		probeErr = r.safeProbe(ctx, url)
	})
	if err == nil {
		err = probeErr
	}

	elapsed := time.Since(start)
	switch {
	case err == nil:
		reachable = true
		metrics.RecordProbe(metrics.ProbeReachable, elapsed)
	case ctx.Err() != nil:
		metrics.RecordProbe(metrics.ProbeTimeout, elapsed)
	default:
		metrics.RecordProbe(metrics.ProbeUnreachable, elapsed)
		logger.FromContext(ctx, "probe").Debug("relay unreachable",
			zap.String("url", url),
			zap.Error(err),
		)
	}
}

func (r *Runner) safeProbe(ctx context.Context, url string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("prober panic: %v", rec)
		}
	}()
	return r.prober.Probe(ctx, url)
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
