package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"rigshop-api/pkg/apierror"
)

// Recovery returns a middleware that recovers from panics.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					LoggerFrom(r.Context(), logger).Error("panic recovered",
						zap.Any("panic", err),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)

					writeError(w, apierror.InternalError("internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
