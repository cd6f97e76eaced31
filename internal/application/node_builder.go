package application

import (
	"context"
	"fmt"
	"time"

	"github.com/Shugur-Network/relaymap/internal/config"
	"github.com/Shugur-Network/relaymap/internal/connector"
	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/errors"
	"github.com/Shugur-Network/relaymap/internal/follows"
	"github.com/Shugur-Network/relaymap/internal/health"
	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/probe"
	"github.com/Shugur-Network/relaymap/internal/query"
	"github.com/Shugur-Network/relaymap/internal/resolver"
	"github.com/Shugur-Network/relaymap/internal/storage"

	"go.uber.org/zap"
)

// NodeBuilder is used to incrementally construct a Node instance.
type NodeBuilder struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	database  *storage.DB
	store     domain.SnapshotStore
	probes    domain.BatchProber
	querier   domain.Querier
	connector domain.Connector
}

// NewNodeBuilder creates a new NodeBuilder with its own cancelable context.
func NewNodeBuilder(ctx context.Context, cfg *config.Config) *NodeBuilder {
	c, cancel := context.WithCancel(ctx)
	return &NodeBuilder{
		ctx:    c,
		cancel: cancel,
		config: cfg,
	}
}

// BuildDB connects to the snapshot database and prepares its schema.
// It does nothing when no database URL is configured.
func (b *NodeBuilder) BuildDB() error {
	if !b.config.Database.Enabled() {
		logger.Info("Snapshot storage disabled")
		return nil
	}

	logger.Info("Building database connection")
	dbConn, err := storage.InitDB(b.ctx, b.config.Database.URL)
	if err != nil {
		b.cancel()
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}

	if err := dbConn.InitializeSchema(b.ctx); err != nil {
		logger.Error("Failed to initialize database schema", zap.Error(err))
		_ = dbConn.CloseDB()
		b.cancel()
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	if err := dbConn.VerifySchema(b.ctx); err != nil {
		logger.Error("Database schema verification failed", zap.Error(err))
		_ = dbConn.CloseDB()
		b.cancel()
		return fmt.Errorf("database schema verification failed: %w", err)
	}

	b.database = dbConn
	b.store = dbConn
	return nil
}

// BuildProbes sets up the probe runner shared by user and follows probing.
func (b *NodeBuilder) BuildProbes() {
	if b.probes != nil {
		return
	}
	b.probes = probe.NewRunnerFromConfig(b.config.Probe)
	logger.Debug("Probe runner initialized",
		zap.String("mode", b.config.Probe.Mode),
		zap.Int("max_concurrency", b.config.Probe.MaxConcurrency),
		zap.Bool("block_private", b.config.Probe.BlockPrivate),
	)
}

// BuildQuerier sets up the batched relay querier.
func (b *NodeBuilder) BuildQuerier() {
	if b.querier != nil {
		return
	}
	b.querier = query.New(b.config.Query)
}

// BuildConnector sets up the two-attempt connector.
func (b *NodeBuilder) BuildConnector() {
	if b.connector != nil {
		return
	}
	b.connector = connector.New(b.config.Connector)
}

// WithProbes replaces the probe runner.
func (b *NodeBuilder) WithProbes(p domain.BatchProber) *NodeBuilder {
	b.probes = p
	return b
}

// WithQuerier replaces the relay querier.
func (b *NodeBuilder) WithQuerier(q domain.Querier) *NodeBuilder {
	b.querier = q
	return b
}

// WithConnector replaces the relay connector.
func (b *NodeBuilder) WithConnector(c domain.Connector) *NodeBuilder {
	b.connector = c
	return b
}

// WithStore replaces the snapshot store.
func (b *NodeBuilder) WithStore(s domain.SnapshotStore) *NodeBuilder {
	b.store = s
	return b
}

// Build finalizes and returns the Node.
func (b *NodeBuilder) Build() (*Node, error) {
	if b.probes == nil || b.querier == nil || b.connector == nil {
		b.cancel()
		return nil, errors.ConfigurationError("node", "probes, querier and connector are required")
	}

	probeCfg := b.config.Probe
	node := &Node{
		ctx:       b.ctx,
		cancel:    b.cancel,
		config:    b.config,
		db:        b.database,
		store:     b.store,
		resolver:  resolver.New(b.probes, probeCfg.UserTimeout),
		fetcher:   follows.NewFetcher(b.querier),
		builder:   follows.NewBuilder(b.probes, probeCfg.FollowsTimeout),
		connector: b.connector,
		startTime: time.Now(),
	}

	var db health.DatabaseInterface
	if b.database != nil {
		db = b.database
	}
	node.health = health.NewHealthChecker(db, node, b.config, logger.New("health"), config.Version)

	logger.Info("Node built successfully",
		zap.Int("configured_relays", len(b.config.Relays)),
		zap.Duration("refresh_interval", b.config.General.RefreshInterval),
		zap.Bool("storage", b.store != nil),
	)
	return node, nil
}
