package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shugur-Network/relaymap/internal/config"
	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/follows"
	"github.com/Shugur-Network/relaymap/internal/health"
	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/metrics"
	"github.com/Shugur-Network/relaymap/internal/resolver"
	"github.com/Shugur-Network/relaymap/internal/storage"
	"github.com/Shugur-Network/relaymap/internal/web"
	"github.com/google/uuid"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// Node ties together relay resolution, the refresh loop, storage and the
// operational HTTP surface.
type Node struct {
	ctx    context.Context
	cancel context.CancelFunc

	config    *config.Config
	db        *storage.DB
	store     domain.SnapshotStore
	resolver  *resolver.Resolver
	fetcher   *follows.Fetcher
	builder   *follows.Builder
	connector domain.Connector
	health    *health.HealthChecker
	server    *http.Server

	snapshot atomic.Pointer[domain.Snapshot]
	cycleMu  sync.Mutex
	loopWG   sync.WaitGroup
	stopOnce sync.Once

	startTime time.Time
}

// New creates and configures a Node using the NodeBuilder pattern.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	builder := NewNodeBuilder(ctx, cfg)

	if err := builder.BuildDB(); err != nil {
		return nil, fmt.Errorf("failed building db: %w", err)
	}
	builder.BuildProbes()
	builder.BuildQuerier()
	builder.BuildConnector()

	node, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build node: %w", err)
	}
	return node, nil
}

// Resolve runs a full resolution cycle from scratch and publishes the
// resulting snapshot. The follow list of identity.pubkey is fetched from the
// user's read relays when a pubkey is configured. A failed follow list or
// relay list query aborts the cycle and the previous snapshot stays published.
func (n *Node) Resolve(ctx context.Context) (*domain.Snapshot, error) {
	return n.resolve(ctx, nil, false)
}

// ResolveWith is Resolve with a caller-supplied follow list.
func (n *Node) ResolveWith(ctx context.Context, followList *nostr.Event) (*domain.Snapshot, error) {
	return n.resolve(ctx, followList, true)
}

func (n *Node) resolve(ctx context.Context, followList *nostr.Event, supplied bool) (*domain.Snapshot, error) {
	n.cycleMu.Lock()
	defer n.cycleMu.Unlock()

	cycleID := uuid.NewString()
	ctx = logger.WithCycle(ctx, cycleID)
	log := logger.FromContext(ctx, "node")
	start := time.Now()

	users := n.resolver.Resolve(ctx, n.config.TypedRelays())

	if !supplied {
		evt, err := n.fetchFollowList(ctx, users.Read)
		if err != nil {
			return nil, n.abortCycle(cycleID, start, fmt.Errorf("fetch follow list: %w", err))
		}
		followList = evt
	}

	followsMeta, err := n.fetcher.FetchFollowsRelayLists(ctx, followList, users.Read)
	if err != nil {
		return nil, n.abortCycle(cycleID, start, fmt.Errorf("fetch follows relay lists: %w", err))
	}
	routes := n.builder.Build(ctx, followsMeta, users.Read)

	if err := ctx.Err(); err != nil {
		return nil, n.abortCycle(cycleID, start, err)
	}

	snap := &domain.Snapshot{
		CycleID:      cycleID,
		BuiltAt:      time.Now().UTC(),
		UserRelays:   users,
		Follows:      routes,
		FollowsCount: len(follows.FollowedPubkeys(followList)),
	}
	n.publish(snap)

	elapsed := time.Since(start)
	metrics.RecordCycle(true, elapsed)
	log.Info("resolution cycle completed",
		zap.Duration("duration", elapsed),
		zap.Int("read_relays", users.Read.Len()),
		zap.Int("write_relays", users.Write.Len()),
		zap.Int("follows", snap.FollowsCount),
		zap.Int("mapped", len(routes)),
	)

	if n.store != nil {
		if err := n.store.SaveSnapshot(ctx, snap); err != nil {
			log.Error("failed to save snapshot", zap.Error(err))
		}
	}
	return snap.Copy(), nil
}

func (n *Node) fetchFollowList(ctx context.Context, relays domain.RelaySet) (*nostr.Event, error) {
	pubkey := n.config.Identity.PubKey
	if pubkey == "" {
		return nil, nil
	}
	return n.fetcher.FetchFollowList(ctx, pubkey, relays)
}

// abortCycle ends a cycle without publishing or saving anything, so the
// previous snapshot stays in place.
func (n *Node) abortCycle(cycleID string, start time.Time, cause error) error {
	metrics.RecordCycle(false, time.Since(start))
	return fmt.Errorf("resolution cycle %s aborted: %w", cycleID, cause)
}

// publish swaps in snap. Published snapshots are never modified afterwards.
func (n *Node) publish(snap *domain.Snapshot) {
	n.snapshot.Store(snap)
	metrics.RecordSnapshot(
		snap.UserRelays.Read.Len(),
		snap.UserRelays.Write.Len(),
		len(snap.Follows),
		snap.Follows.WithoutRelays(),
	)
}

// Snapshot returns a copy of the current snapshot, nil before the first
// cycle has finished.
func (n *Node) Snapshot() *domain.Snapshot {
	return n.snapshot.Load().Copy()
}

// RelaysFor returns the relays to query for pubkey's content. Known authors
// get their own entry, possibly empty. Unknown authors get the user's read
// relays and known is false.
func (n *Node) RelaysFor(pubkey string) (relays []string, known bool) {
	snap := n.snapshot.Load()
	if snap == nil {
		return nil, false
	}
	if entry, ok := snap.Follows[pubkey]; ok {
		return append([]string{}, entry...), true
	}
	return snap.UserRelays.Read.Sorted(), false
}

// Connect opens a live session to url with the two-attempt policy.
func (n *Node) Connect(ctx context.Context, url string) (domain.Connection, error) {
	return n.connector.Connect(ctx, url)
}

// Start loads the last stored snapshot, serves the HTTP surface and runs the
// refresh loop in the background. The first cycle starts immediately.
func (n *Node) Start(ctx context.Context) error {
	n.loadStoredSnapshot(ctx)

	if n.config.Metrics.Enabled {
		addr := ":" + strconv.Itoa(n.config.Metrics.Port)
		handler := web.NewHandler(n, n.health.HandleHealth, logger.New("web")).Routes()
		n.server = web.NewServer(addr, handler)
		go func() {
			if err := n.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", zap.Error(err))
			}
		}()
		logger.Info("HTTP server listening", zap.String("addr", addr))
	}

	n.loopWG.Add(1)
	go n.refreshLoop()
	return nil
}

func (n *Node) refreshLoop() {
	defer n.loopWG.Done()
	ticker := time.NewTicker(n.config.General.RefreshInterval)
	defer ticker.Stop()

	for {
		if _, err := n.Resolve(n.ctx); err != nil {
			if n.ctx.Err() != nil {
				return
			}
			logger.Warn("resolution cycle failed", zap.Error(err))
		}
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// loadStoredSnapshot publishes the last stored snapshot for warm reads
// until the first cycle ends.
func (n *Node) loadStoredSnapshot(ctx context.Context) {
	if n.store == nil || n.snapshot.Load() != nil {
		return
	}
	snap, err := n.store.LoadLatestSnapshot(ctx)
	if err != nil {
		logger.Info("no stored snapshot loaded", zap.Error(err))
		return
	}
	n.snapshot.CompareAndSwap(nil, snap)
	logger.Info("stored snapshot loaded",
		zap.String("cycle_id", snap.CycleID),
		zap.Time("built_at", snap.BuiltAt),
	)
}

// Shutdown stops the refresh loop, the HTTP server and the database pool.
func (n *Node) Shutdown() error {
	var err error
	n.stopOnce.Do(func() {
		logger.Info("Initiating graceful shutdown...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		n.cancel()

		done := make(chan struct{})
		go func() {
			n.loopWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = multierr.Append(err, fmt.Errorf("refresh loop did not stop within %v", shutdownTimeout))
		}

		if n.server != nil {
			if shutdownErr := n.server.Shutdown(ctx); shutdownErr != nil {
				err = multierr.Append(err, fmt.Errorf("http server shutdown: %w", shutdownErr))
			}
		}

		if n.store != nil {
			if closeErr := n.store.CloseDB(); closeErr != nil {
				err = multierr.Append(err, fmt.Errorf("database close: %w", closeErr))
			}
		}

		if err != nil {
			logger.Warn("Node shutdown completed with errors", zap.Error(err))
			return
		}
		logger.Info("Node shutdown completed")
	})
	return err
}

// GetStartTime returns when the node was built.
func (n *Node) GetStartTime() time.Time {
	return n.startTime
}
