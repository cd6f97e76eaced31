package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/errors"
	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/metrics"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// KeepSnapshots is how many snapshots survive pruning after a save.
const KeepSnapshots = 10

const (
	insertSnapshotSQL = `INSERT INTO snapshots (cycle_id, built_at, read_relays, write_relays, follows_count)
		VALUES ($1, $2, $3, $4, $5)`
	insertFollowSQL = `INSERT INTO follow_relays (cycle_id, pubkey, relays) VALUES ($1, $2, $3)`
	pruneSQL        = `DELETE FROM snapshots WHERE cycle_id NOT IN (
		SELECT cycle_id FROM snapshots ORDER BY built_at DESC LIMIT $1)`
	latestSnapshotSQL = `SELECT cycle_id::TEXT, built_at, read_relays, write_relays, follows_count
		FROM snapshots ORDER BY built_at DESC LIMIT 1`
	followsForCycleSQL = `SELECT pubkey, relays FROM follow_relays WHERE cycle_id = $1`
)

// SaveSnapshot stores snap and its per-author rows in one transaction, then
// prunes old snapshots.
func (db *DB) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) (err error) {
	if !db.isConnected() {
		return errors.StorageError("save_snapshot", fmt.Errorf("database is not connected"))
	}
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.DBOperations.WithLabelValues("save_snapshot", status).Inc()
	}()

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		metrics.DBErrors.WithLabelValues("transaction_start_failed").Inc()
		return errors.StorageError("save_snapshot", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !stderrors.Is(rbErr, pgx.ErrTxClosed) {
			logger.New("storage").Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if _, err := tx.Exec(ctx, insertSnapshotSQL,
		snap.CycleID,
		snap.BuiltAt.UTC(),
		snap.UserRelays.Read.Sorted(),
		snap.UserRelays.Write.Sorted(),
		snap.FollowsCount,
	); err != nil {
		return errors.StorageError("save_snapshot", err)
	}

	batch := &pgx.Batch{}
	for pubkey, relays := range snap.Follows {
		batch.Queue(insertFollowSQL, snap.CycleID, pubkey, relays)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			metrics.DBErrors.WithLabelValues("batch_execution_failed").Inc()
			return errors.StorageError("save_snapshot", err)
		}
	}

	if _, err := tx.Exec(ctx, pruneSQL, KeepSnapshots); err != nil {
		return errors.StorageError("save_snapshot", err)
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.DBErrors.WithLabelValues("transaction_commit_failed").Inc()
		return errors.StorageError("save_snapshot", err)
	}

	logger.New("storage").Debug("snapshot saved",
		zap.String("cycle_id", snap.CycleID),
		zap.Int("authors", len(snap.Follows)),
	)
	return nil
}

// LoadLatestSnapshot returns the most recently built snapshot, or a
// SnapshotNotFound error when none is stored.
func (db *DB) LoadLatestSnapshot(ctx context.Context) (snap *domain.Snapshot, err error) {
	if !db.isConnected() {
		return nil, errors.StorageError("load_snapshot", fmt.Errorf("database is not connected"))
	}
	defer func() {
		status := "success"
		if err != nil && !errors.IsCode(err, errors.CodeSnapshotNotFound) {
			status = "failure"
		}
		metrics.DBOperations.WithLabelValues("load_snapshot", status).Inc()
	}()

	var (
		cycleID     string
		builtAt     time.Time
		read, write []string
		count       int
	)
	err = db.Pool.QueryRow(ctx, latestSnapshotSQL).Scan(&cycleID, &builtAt, &read, &write, &count)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.SnapshotNotFound()
	}
	if err != nil {
		return nil, errors.StorageError("load_snapshot", err)
	}

	rows, err := db.Pool.Query(ctx, followsForCycleSQL, cycleID)
	if err != nil {
		return nil, errors.StorageError("load_snapshot", err)
	}
	defer rows.Close()

	follows := make(domain.FollowsRelayMap)
	for rows.Next() {
		var (
			pubkey string
			relays []string
		)
		if err := rows.Scan(&pubkey, &relays); err != nil {
			return nil, errors.StorageError("load_snapshot", err)
		}
		if relays == nil {
			relays = []string{}
		}
		follows[pubkey] = relays
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("load_snapshot", err)
	}

	return &domain.Snapshot{
		CycleID: cycleID,
		BuiltAt: builtAt,
		UserRelays: domain.UserRelays{
			Read:  domain.NewRelaySet(read...),
			Write: domain.NewRelaySet(write...),
		},
		Follows:      follows,
		FollowsCount: count,
	}, nil
}
