package middleware

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"multiphase-telemetry-dashboard/shared/httpx"
)

// DBRequiredMiddleware rejects data-plane requests with 503 when the API
// booted degraded without a Postgres pool. Health and metrics endpoints
// are expected to skip it.
type DBRequiredMiddleware struct {
	Pool *pgxpool.Pool
	Skip func(*http.Request) bool
}

func (m DBRequiredMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		if m.Pool == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "telemetry store unavailable", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
