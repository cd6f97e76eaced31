package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/Shugur-Network/relaymap/internal/config"
	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/storage"
)

const checkTimeout = 5 * time.Second

// HealthStatus represents the overall health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

var severity = map[HealthStatus]int{
	StatusHealthy:   0,
	StatusDegraded:  1,
	StatusUnhealthy: 2,
}

// ComponentStatus represents the status of a specific component
type ComponentStatus struct {
	Name    string                 `json:"name"`
	Status  HealthStatus           `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status     HealthStatus           `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Version    string                 `json:"version"`
	Uptime     string                 `json:"uptime"`
	Components []*ComponentStatus     `json:"components"`
	Summary    map[string]interface{} `json:"summary"`
}

// DatabaseInterface defines the database operations needed for health checks
type DatabaseInterface interface {
	Ping(ctx context.Context) error
	Stats() storage.DatabaseStats
}

// SnapshotSource exposes the currently published snapshot.
type SnapshotSource interface {
	Snapshot() *domain.Snapshot
}

// HealthChecker reports on relay resolution and its supporting components.
type HealthChecker struct {
	db        DatabaseInterface
	snapshots SnapshotSource
	cfg       *config.Config
	logger    *zap.Logger
	startTime time.Time
	version   string
	now       func() time.Time
}

// NewHealthChecker creates a new health checker. db may be nil when
// storage is disabled.
func NewHealthChecker(db DatabaseInterface, snapshots SnapshotSource, cfg *config.Config, logger *zap.Logger, version string) *HealthChecker {
	return &HealthChecker{
		db:        db,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    logger.Named("health"),
		startTime: time.Now(),
		version:   version,
		now:       time.Now,
	}
}

// CheckHealth performs a comprehensive health check
func (h *HealthChecker) CheckHealth(ctx context.Context) *HealthResponse {
	startTime := h.now()
	snap := h.snapshots.Snapshot()

	components := []*ComponentStatus{
		h.checkUserRelays(snap),
		h.checkSnapshot(snap),
	}
	if h.db != nil {
		components = append(components, h.checkDatabase(ctx))
	}
	components = append(components, h.checkMemory())

	return &HealthResponse{
		Status:     worst(components),
		Timestamp:  h.now(),
		Version:    h.version,
		Uptime:     formatUptime(time.Since(h.startTime)),
		Components: components,
		Summary: map[string]interface{}{
			"total_components":     len(components),
			"healthy_components":   countByStatus(components, StatusHealthy),
			"degraded_components":  countByStatus(components, StatusDegraded),
			"unhealthy_components": countByStatus(components, StatusUnhealthy),
			"check_duration_ms":    h.now().Sub(startTime).Milliseconds(),
		},
	}
}

// checkUserRelays needs at least one readable relay; losing every write
// relay only degrades.
func (h *HealthChecker) checkUserRelays(snap *domain.Snapshot) *ComponentStatus {
	status := &ComponentStatus{Name: "user_relays", Details: make(map[string]interface{})}
	if snap == nil {
		status.Status = StatusUnhealthy
		status.Message = "User relays not resolved yet"
		return status
	}

	read, write := snap.UserRelays.Read.Len(), snap.UserRelays.Write.Len()
	status.Details["configured"] = len(h.cfg.Relays)
	status.Details["read"] = read
	status.Details["write"] = write

	switch {
	case read == 0:
		status.Status = StatusUnhealthy
		status.Message = "No reachable read relay"
	case write == 0:
		status.Status = StatusDegraded
		status.Message = "No reachable write relay"
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("%d read, %d write relays reachable", read, write)
	}
	return status
}

// checkSnapshot flags a routing table that stopped refreshing.
func (h *HealthChecker) checkSnapshot(snap *domain.Snapshot) *ComponentStatus {
	status := &ComponentStatus{Name: "snapshot", Details: make(map[string]interface{})}
	if snap == nil {
		status.Status = StatusUnhealthy
		status.Message = "No snapshot published yet"
		return status
	}

	age := h.now().Sub(snap.BuiltAt)
	status.Details["cycle_id"] = snap.CycleID
	status.Details["age_seconds"] = int64(age.Seconds())
	status.Details["follows"] = len(snap.Follows)
	status.Details["follows_without_relays"] = snap.Follows.WithoutRelays()

	if limit := 2 * h.cfg.General.RefreshInterval; age > limit {
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Snapshot is stale: %s old", age.Truncate(time.Second))
		return status
	}
	status.Status = StatusHealthy
	status.Message = "Snapshot is fresh"
	return status
}

// checkDatabase checks database connectivity and performance
func (h *HealthChecker) checkDatabase(ctx context.Context) *ComponentStatus {
	status := &ComponentStatus{Name: "database", Details: make(map[string]interface{})}

	if err := h.db.Ping(ctx); err != nil {
		status.Status = StatusUnhealthy
		status.Message = "Database connection failed"
		status.Details["error"] = err.Error()
		return status
	}

	stats := h.db.Stats()
	status.Details["open_connections"] = stats.OpenConnections
	status.Details["in_use"] = stats.InUse
	status.Details["idle"] = stats.Idle
	status.Details["max_open_connections"] = stats.MaxOpenConnections

	status.Status = StatusHealthy
	status.Message = "Database is healthy"
	return status
}

// checkMemory checks memory usage
func (h *HealthChecker) checkMemory() *ComponentStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := &ComponentStatus{Name: "memory", Details: make(map[string]interface{})}

	allocMB := float64(m.Alloc) / 1024 / 1024
	status.Details["alloc_mb"] = allocMB
	status.Details["sys_mb"] = float64(m.Sys) / 1024 / 1024
	status.Details["num_gc"] = m.NumGC
	status.Details["goroutines"] = runtime.NumGoroutine()

	const (
		memoryWarningMB  = 500
		memoryCriticalMB = 1000
	)

	switch {
	case allocMB > memoryCriticalMB:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("High memory usage: %.1f MB", allocMB)
	case allocMB > memoryWarningMB:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Elevated memory usage: %.1f MB", allocMB)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("Memory usage normal: %.1f MB", allocMB)
	}
	return status
}

func worst(components []*ComponentStatus) HealthStatus {
	overall := StatusHealthy
	for _, comp := range components {
		if severity[comp.Status] > severity[overall] {
			overall = comp.Status
		}
	}
	return overall
}

func countByStatus(components []*ComponentStatus, status HealthStatus) int {
	count := 0
	for _, comp := range components {
		if comp.Status == status {
			count++
		}
	}
	return count
}

// formatUptime formats uptime duration as a human-readable string
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// HandleHealth is the HTTP handler for health checks
func (h *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	resp := h.CheckHealth(ctx)

	// Degraded still serves routing lookups
	statusCode := http.StatusOK
	if resp.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
		return
	}

	h.logger.Debug("Health check completed",
		zap.String("status", string(resp.Status)),
		zap.Int("status_code", statusCode),
		zap.String("client_ip", r.RemoteAddr),
	)
}
