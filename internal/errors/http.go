package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Shugur-Network/relaymap/internal/logger"
	"github.com/Shugur-Network/relaymap/internal/metrics"
	"go.uber.org/zap"
)

// ErrorResponse represents the JSON response format for errors
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the payload of ErrorResponse.
type ErrorBody struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// HandleHTTPError logs err and writes it as a JSON error response.
func HandleHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := As(err)
	if !ok {
		appErr = InternalError("An internal error occurred", err)
	}
	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		appErr.RequestID = requestID
	}

	logHTTPError(appErr, r)
	metrics.ErrorsCount.WithLabelValues(string(appErr.Type)).Inc()

	response := ErrorResponse{Error: ErrorBody{
		Type:      appErr.Type,
		Code:      appErr.Code,
		Message:   UserMessage(appErr),
		Timestamp: appErr.Timestamp,
		RequestID: appErr.RequestID,
	}}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(appErr.Type))
	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		logger.Error("Failed to encode error response", zap.Error(encodeErr))
	}
}

// RecoveryMiddleware converts panics into structured 500 responses
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err, ok := recovered.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", recovered)
				}
				panicErr := Wrap(err, ErrorTypeInternal, CodePanicRecovered, "An unexpected error occurred").
					WithSeverity(SeverityCritical)
				HandleHTTPError(w, r, panicErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// HTTPStatus maps error types to HTTP status codes
func HTTPStatus(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeTimeout:
		return http.StatusRequestTimeout
	case ErrorTypeExternal:
		return http.StatusBadGateway
	case ErrorTypeNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func logHTTPError(err *AppError, r *http.Request) {
	log := logger.New("http_errors")
	fields := []zap.Field{
		zap.String("error_type", string(err.Type)),
		zap.String("error_code", err.Code),
		zap.String("severity", string(err.Severity)),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	}
	if err.RequestID != "" {
		fields = append(fields, zap.String("request_id", err.RequestID))
	}
	if err.Details != "" {
		fields = append(fields, zap.String("details", err.Details))
	}
	if err.Severity == SeverityHigh || err.Severity == SeverityCritical {
		fields = append(fields, zap.String("stack_trace", err.StackTrace))
	}

	switch err.Severity {
	case SeverityLow:
		log.Info(err.Message, fields...)
	case SeverityMedium:
		log.Warn(err.Message, fields...)
	default:
		log.Error(err.Message, fields...)
	}
}
