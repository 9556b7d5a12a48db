package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"rigshop-api/pkg/uid"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// headerCorrelationID is forwarded by the gateway when the client sent no request id.
const headerCorrelationID = "X-Correlation-ID"

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID tags every request with an id and echoes it in the response.
// Incoming ids are kept only when they are UUIDs; generated ids are time-ordered.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := incomingRequestID(r)
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))
	})
}

func incomingRequestID(r *http.Request) string {
	for _, header := range []string{HeaderRequestID, headerCorrelationID} {
		if id := strings.TrimSpace(r.Header.Get(header)); uid.IsValid(id) {
			return id
		}
	}
	return uid.NewOrdered()
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// LoggerFrom returns logger tagged with the request id carried by ctx.
func LoggerFrom(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := GetRequestID(ctx); id != "" {
		return logger.With(zap.String("request_id", id))
	}
	return logger
}
