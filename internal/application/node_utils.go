package application

import (
	"github.com/Shugur-Network/relaymap/internal/config"
	"github.com/Shugur-Network/relaymap/internal/health"
	"github.com/Shugur-Network/relaymap/internal/storage"
)

// DB returns the node's database instance, nil when storage is disabled.
func (n *Node) DB() *storage.DB {
	return n.db
}

// Config returns the node's configuration.
func (n *Node) Config() *config.Config {
	return n.config
}

// Health returns the node's health checker.
func (n *Node) Health() *health.HealthChecker {
	return n.health
}
