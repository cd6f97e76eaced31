package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pool sizing and connection retry settings
const (
	poolMaxConns        = 8
	poolMinConns        = 1
	connMaxLifetime     = 30 * time.Minute
	connMaxIdleTime     = 5 * time.Minute
	connectTimeout      = 10 * time.Second
	maxConnectAttempts  = 5
	initialRetryBackoff = 2 * time.Second
)

// DBState represents the current state of the database connection
type DBState int

const (
	DBStateInitial DBState = iota
	DBStateConnecting
	DBStateConnected
	DBStateDisconnecting
	DBStateClosed
)

// DB holds the snapshot database pool.
type DB struct {
	Pool    *pgxpool.Pool
	state   DBState
	stateMu sync.RWMutex
}

func newPool(ctx context.Context, dbURI string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URI: %w", err)
	}

	// Snapshot writes happen once per cycle; a small pool is plenty
	config.MaxConns = poolMaxConns
	config.MinConns = poolMinConns
	config.MaxConnLifetime = connMaxLifetime
	config.MaxConnIdleTime = connMaxIdleTime
	config.ConnConfig.ConnectTimeout = connectTimeout
	config.HealthCheckPeriod = 30 * time.Second

	return pgxpool.NewWithConfig(ctx, config)
}

// InitDB connects to the database, retrying with exponential backoff.
func InitDB(ctx context.Context, dbURI string) (*DB, error) {
	log := logger.New("storage")
	db := &DB{state: DBStateConnecting}
	backoff := initialRetryBackoff

	var err error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		var pool *pgxpool.Pool
		pool, err = newPool(ctx, dbURI)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				db.Pool = pool
				db.setState(DBStateConnected)
				stat := pool.Stat()
				log.Info("DB connected",
					zap.Int("attempts", attempt),
					zap.Int32("db_max_connections", stat.MaxConns()),
				)
				metrics.DBConnections.WithLabelValues("success").Inc()
				return db, nil
			}
			pool.Close()
		}

		metrics.DBConnections.WithLabelValues("failure").Inc()
		if attempt == maxConnectAttempts {
			break
		}
		log.Warn("Failed to connect to DB, retrying...",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			db.setState(DBStateClosed)
			return nil, fmt.Errorf("database connection cancelled: %w", ctx.Err())
		}
		backoff *= 2
	}

	db.setState(DBStateClosed)
	metrics.DBErrors.WithLabelValues("connection_failed").Inc()
	return nil, fmt.Errorf("failed to connect to DB after %d attempts: %w", maxConnectAttempts, err)
}

// CloseDB closes the pool. Closing twice is a no-op.
func (db *DB) CloseDB() error {
	db.stateMu.Lock()
	defer db.stateMu.Unlock()
	if db.state == DBStateDisconnecting || db.state == DBStateClosed {
		return nil
	}
	if db.Pool == nil {
		db.state = DBStateClosed
		return fmt.Errorf("database pool is nil")
	}

	db.state = DBStateDisconnecting
	db.Pool.Close()
	db.state = DBStateClosed
	metrics.DBConnections.WithLabelValues("closed").Inc()
	logger.New("storage").Debug("Database connection closed")
	return nil
}

// Ping checks database connectivity
func (db *DB) Ping(ctx context.Context) error {
	if !db.isConnected() {
		return fmt.Errorf("database is not connected")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

// DatabaseStats represents database connection pool statistics
type DatabaseStats struct {
	OpenConnections    int `json:"open_connections"`
	InUse              int `json:"in_use"`
	Idle               int `json:"idle"`
	MaxOpenConnections int `json:"max_open_connections"`
}

// Stats returns database connection pool statistics
func (db *DB) Stats() DatabaseStats {
	if !db.isConnected() {
		return DatabaseStats{}
	}
	stat := db.Pool.Stat()
	return DatabaseStats{
		OpenConnections:    int(stat.TotalConns()),
		InUse:              int(stat.AcquiredConns()),
		Idle:               int(stat.IdleConns()),
		MaxOpenConnections: int(stat.MaxConns()),
	}
}

func (db *DB) setState(s DBState) {
	db.stateMu.Lock()
	db.state = s
	db.stateMu.Unlock()
}

// isConnected checks if the database is in a connected state
func (db *DB) isConnected() bool {
	db.stateMu.RLock()
	defer db.stateMu.RUnlock()
	return db.state == DBStateConnected && db.Pool != nil
}
