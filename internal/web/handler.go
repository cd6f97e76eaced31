package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Shugur-Network/relaymap/internal/domain"
	"github.com/Shugur-Network/relaymap/internal/errors"
	"github.com/Shugur-Network/relaymap/internal/nips"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CodeInvalidPubkey is returned for malformed pubkeys in routing lookups.
const CodeInvalidPubkey = "INVALID_PUBKEY"

// Router answers routing lookups from the published snapshot.
type Router interface {
	Snapshot() *domain.Snapshot
	RelaysFor(pubkey string) ([]string, bool)
}

// RelaysResponse is the body of a routing lookup.
type RelaysResponse struct {
	Pubkey string   `json:"pubkey"`
	Relays []string `json:"relays"`
	Known  bool     `json:"known"`
}

// Handler provides the operational HTTP endpoints.
type Handler struct {
	router Router
	health http.HandlerFunc
	logger *zap.Logger
}

// NewHandler creates a handler. health serves /health.
func NewHandler(router Router, health http.HandlerFunc, logger *zap.Logger) *Handler {
	return &Handler{router: router, health: health, logger: logger}
}

// Routes returns the mux with every endpoint wrapped in the middleware chain.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("GET /api/snapshot", SecureAPIHandlerFunc(h.HandleSnapshot))
	mux.HandleFunc("GET /api/relays/{pubkey}", SecureAPIHandlerFunc(h.HandleRelays))

	return Chain(mux,
		errors.RecoveryMiddleware,
		RequestIDMiddleware,
		LoggingMiddleware(h.logger),
	)
}

// HandleSnapshot serves the current snapshot.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.router.Snapshot()
	if snap == nil {
		errors.HandleHTTPError(w, r, errors.SnapshotNotFound())
		return
	}
	h.writeJSON(w, snap.View())
}

// HandleRelays serves the relays to query for one author's content.
func (h *Handler) HandleRelays(w http.ResponseWriter, r *http.Request) {
	pubkey := r.PathValue("pubkey")
	if !nips.IsValidPubkey(pubkey) {
		errors.HandleHTTPError(w, r,
			errors.New(errors.ErrorTypeValidation, CodeInvalidPubkey, fmt.Sprintf("invalid pubkey %q", pubkey)).
				WithUserMessage("Pubkey must be 64 lower-case hex characters."))
		return
	}
	if h.router.Snapshot() == nil {
		errors.HandleHTTPError(w, r, errors.SnapshotNotFound())
		return
	}

	relays, known := h.router.RelaysFor(pubkey)
	if relays == nil {
		relays = []string{}
	}
	h.writeJSON(w, RelaysResponse{Pubkey: pubkey, Relays: relays, Known: known})
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// NewServer returns the HTTP server for addr with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
