// Package query runs one NIP-01 subscription against many relays and
// gathers the stored events they answer with.
package query

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Shugur-Network/relaymap/internal/config"
	"github.com/Shugur-Network/relaymap/internal/errors"
	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const writeWait = 2 * time.Second

// Querier sends REQ to every relay over its own WebSocket and collects events
// until each relay signals end of stored events or the deadline passes.
// Events that do not match the filter or carry a bad signature are dropped.
type Querier struct {
	dialer         *websocket.Dialer
	timeout        time.Duration
	maxConcurrency int
}

// New creates a querier from cfg.
func New(cfg config.QueryConfig) *Querier {
	return &Querier{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.Timeout,
		},
		timeout:        cfg.Timeout,
		maxConcurrency: cfg.MaxConcurrency,
	}
}

// collector deduplicates events by id across relays.
type collector struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	events []nostr.Event
}

func (c *collector) add(evt nostr.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[evt.ID]; dup {
		return
	}
	c.seen[evt.ID] = struct{}{}
	c.events = append(c.events, evt)
}

// QuerySync runs filter on every relay in relays. Failing relays are logged
// and skipped; an error is returned only when all of them failed and nothing
// was received.
func (q *Querier) QuerySync(ctx context.Context, relays []string, filter nostr.Filter) ([]nostr.Event, error) {
	if len(relays) == 0 {
		return []nostr.Event{}, nil
	}
	log := logger.FromContext(ctx, "query")

	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	col := &collector{seen: make(map[string]struct{})}
	var (
		errMu    sync.Mutex
		combined error
		failed   int
	)

	g := new(errgroup.Group)
	if q.maxConcurrency > 0 {
		g.SetLimit(q.maxConcurrency)
	}
	for _, url := range relays {
		g.Go(func() error {
			if err := q.queryRelay(ctx, url, filter, col); err != nil {
				metrics.QueryRelayErrors.Inc()
				errMu.Lock()
				combined = multierr.Append(combined, fmt.Errorf("%s: %w", url, err))
				failed++
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.QueryEvents.Add(float64(len(col.events)))
	if combined != nil {
		if failed == len(relays) && len(col.events) == 0 {
			return nil, errors.QueryFailed(len(relays), combined)
		}
		log.Debug("some relays failed to answer",
			zap.Int("failed", failed),
			zap.Int("relays", len(relays)),
			zap.Error(combined),
		)
	}
	return col.events, nil
}

func (q *Querier) queryRelay(ctx context.Context, url string, filter nostr.Filter, col *collector) error {
	conn, resp, err := q.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errors.DialError(err)
	}
	defer conn.Close()

	// unblock ReadJSON when the deadline passes
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	subID := uuid.NewString()
	req := []any{"REQ", subID, filter}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send REQ: %w", err)
	}
	defer func() {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON([]any{"CLOSE", subID})
	}()

	received := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if received > 0 {
				// stored events already arrived; a relay that never sends EOSE is not a failure
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read: %w", err)
		}

		switch env := nostr.ParseMessage(data).(type) {
		case *nostr.EventEnvelope:
			if env.SubscriptionID == nil || *env.SubscriptionID != subID {
				continue
			}
			evt := env.Event
			if !filter.Matches(&evt) {
				continue
			}
			if ok, err := evt.CheckSignature(); err != nil || !ok {
				continue
			}
			received++
			col.add(evt)
		case *nostr.EOSEEnvelope:
			if string(*env) == subID {
				return nil
			}
		case *nostr.ClosedEnvelope:
			if env.SubscriptionID != subID {
				continue
			}
			if received > 0 {
				return nil
			}
			return fmt.Errorf("subscription closed by relay: %s", env.Reason)
		case *nostr.NoticeEnvelope:
			logger.FromContext(ctx, "query").Debug("relay notice",
				zap.String("url", url),
				zap.String("notice", string(*env)),
			)
		}
	}
}
