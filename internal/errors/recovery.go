package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/zhichaoleo/roboptim-core/internal/logging"
)

// RecoveryMiddleware returns a middleware that recovers from panics and
// answers with a JSON 500.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Let the server abort the connection as it would without us.
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("recovered from panic", map[string]interface{}{
					"error":  fmt.Sprint(rec),
					"stack":  string(debug.Stack()),
					"method": r.Method,
					"path":   r.URL.Path,
					"query":  r.URL.RawQuery,
				})
				Write(w, Errorf("panic: %v", rec).WithStatus(http.StatusInternalServerError))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
