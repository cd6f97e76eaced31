package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"

	"github.com/gorilla/websocket"
)

// Error codes owned by the relay routing core
const (
	CodeInvalidRelayURL   = "INVALID_RELAY_URL"
	CodeRelayUnreachable  = "RELAY_UNREACHABLE"
	CodeProbeFailed       = "PROBE_FAILED"
	CodeQueryFailed       = "QUERY_FAILED"
	CodeConfigurationErr  = "CONFIGURATION_ERROR"
	CodeStorageErr        = "STORAGE_ERROR"
	CodeSnapshotNotFound  = "SNAPSHOT_NOT_FOUND"
	CodeInternal          = "INTERNAL_ERROR"
	CodePanicRecovered    = "PANIC_RECOVERED"
	CodeNetworkTimeout    = "NETWORK_TIMEOUT"
	CodeNetworkDialFailed = "NETWORK_DIAL_FAILED"
	CodeDNSLookupFailed   = "DNS_LOOKUP_FAILED"
	CodeBadHandshake      = "WS_BAD_HANDSHAKE"
	CodeNetworkUnknown    = "NETWORK_UNKNOWN"
)

// Sentinels for errors.Is matching.
var (
	ErrInvalidURL       = &AppError{Type: ErrorTypeValidation, Code: CodeInvalidRelayURL}
	ErrRelayUnreachable = &AppError{Type: ErrorTypeNetwork, Code: CodeRelayUnreachable}
)

// InvalidURL reports a relay URL that is not a well-formed WebSocket URL.
// The caller must skip or reject the item.
func InvalidURL(raw, reason string) *AppError {
	return New(ErrorTypeValidation, CodeInvalidRelayURL, fmt.Sprintf("invalid relay URL %q", raw)).
		WithSeverity(SeverityLow).
		WithDetails(reason).
		WithUserMessage("Relay address should be a correct WebSocket URL (ws:// or wss://).")
}

// RelayUnreachable is returned once a connection has used up its attempts.
// The user message depends on whether the local network looks offline,
// since each case points at a different fix.
func RelayUnreachable(url string, attempts int, offline bool, cause error) *AppError {
	userMessage := fmt.Sprintf("WebSocket connection to %q failed. You can try again ", url)
	if offline {
		userMessage += "or check your internet connection."
	} else {
		userMessage += "and check the relay address, it should be a correct WebSocket URL. The relay may be unavailable."
	}

	return Wrap(cause, ErrorTypeNetwork, CodeRelayUnreachable,
		fmt.Sprintf("relay %s unreachable after %d attempts", url, attempts)).
		WithSeverity(SeverityMedium).
		WithUserMessage(userMessage)
}

// ProbeFailure describes why a reachability probe came back negative.
// It is only logged: probe results cross package boundaries as booleans.
func ProbeFailure(url string, cause error) *AppError {
	classified := DialError(cause)
	return Wrap(cause, ErrorTypeNetwork, CodeProbeFailed, fmt.Sprintf("probe of %s failed", url)).
		WithSeverity(SeverityLow).
		WithDetails(classified.Code + ": " + errString(cause))
}

// QueryFailed wraps the combined per-relay errors of a query in which no
// relay answered.
func QueryFailed(relayCount int, cause error) *AppError {
	return Wrap(cause, ErrorTypeExternal, CodeQueryFailed,
		fmt.Sprintf("query failed on all %d relays", relayCount)).
		WithSeverity(SeverityMedium).
		WithUserMessage("None of the connected relays answered. Please try again later.")
}

// ConfigurationError creates an error for configuration issues
func ConfigurationError(field, reason string) *AppError {
	return New(ErrorTypeInternal, CodeConfigurationErr, fmt.Sprintf("Configuration error in %s: %s", field, reason)).
		WithSeverity(SeverityCritical).
		WithUserMessage("Service is misconfigured. Please contact system administrator.")
}

// StorageError creates an error for snapshot persistence issues
func StorageError(operation string, cause error) *AppError {
	return Wrap(cause, ErrorTypeDatabase, CodeStorageErr, fmt.Sprintf("Storage %s failed", operation)).
		WithSeverity(SeverityHigh).
		WithUserMessage("A database error occurred. Please try again later.")
}

// SnapshotNotFound is returned before the first resolution cycle finishes.
func SnapshotNotFound() *AppError {
	return New(ErrorTypeNotFound, CodeSnapshotNotFound, "no relay snapshot has been built yet").
		WithSeverity(SeverityLow).
		WithUserMessage("Relay resolution is still running. Please try again shortly.")
}

// InternalError creates an internal error
func InternalError(message string, cause error) *AppError {
	return Wrap(cause, ErrorTypeInternal, CodeInternal, message).
		WithSeverity(SeverityHigh).
		WithUserMessage("An internal error occurred. Please try again.")
}

// DialError classifies a failed WebSocket dial.
func DialError(cause error) *AppError {
	var (
		code     string
		severity = SeverityMedium
		dnsErr   *net.DNSError
		opErr    *net.OpError
		netErr   net.Error
	)

	switch {
	case cause == nil:
		code = CodeNetworkUnknown
	case stderrors.Is(cause, context.DeadlineExceeded):
		code = CodeNetworkTimeout
	case stderrors.Is(cause, websocket.ErrBadHandshake):
		code = CodeBadHandshake
		severity = SeverityHigh
	case stderrors.As(cause, &dnsErr):
		code = CodeDNSLookupFailed
		severity = SeverityHigh
	case stderrors.As(cause, &netErr) && netErr.Timeout():
		code = CodeNetworkTimeout
	case stderrors.As(cause, &opErr) && opErr.Op == "dial":
		code = CodeNetworkDialFailed
		severity = SeverityHigh
	default:
		code = CodeNetworkUnknown
	}

	return Wrap(cause, ErrorTypeNetwork, code, "WebSocket dial failed").WithSeverity(severity)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
