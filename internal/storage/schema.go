package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/Shugur-Network/relaymap/internal/logger"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaDDL string

var requiredTables = []string{"snapshots", "follow_relays"}

// InitializeSchema creates the snapshot tables if they don't exist
func (db *DB) InitializeSchema(ctx context.Context) error {
	if !db.isConnected() {
		return fmt.Errorf("database is not connected")
	}
	log := logger.New("storage")
	log.Info("Initializing database schema...")

	if _, err := db.Pool.Exec(ctx, schemaDDL); err != nil {
		log.Error("Failed to initialize database schema", zap.Error(err))
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	log.Info("Database schema initialized")
	return nil
}

// VerifySchema checks if all required tables exist
func (db *DB) VerifySchema(ctx context.Context) error {
	if !db.isConnected() {
		return fmt.Errorf("database is not connected")
	}

	for _, table := range requiredTables {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public'
				AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}
