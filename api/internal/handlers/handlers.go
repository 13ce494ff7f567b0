// Package handlers implements the HTTP API. Each handler struct owns the
// repos it reads and registers its own routes on the mux.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"multiphase-telemetry-dashboard/shared/httpx"
	"multiphase-telemetry-dashboard/shared/tenantx"
)

// requireTenant pulls the tenant out of the request context. The tenant
// middleware has already validated it; a miss here means the route was
// wired outside the middleware chain.
func requireTenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, tenantx.TenantContext, bool) {
	tenant, ok := tenantx.FromContext(r.Context())
	if !ok || tenant.ID == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "missing tenant", nil)
		return uuid.Nil, tenant, false
	}
	id, err := uuid.Parse(tenant.ID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid tenant id", nil)
		return uuid.Nil, tenant, false
	}
	return id, tenant, true
}

func pathInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// writeRepoError translates a repo failure into the API error envelope.
func writeRepoError(w http.ResponseWriter, r *http.Request, err error, resource string) {
	if errors.Is(err, pgx.ErrNoRows) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", resource+" not found", nil)
		return
	}
	httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to access "+resource, nil)
}

// forbidden writes the cross-tenant rejection. Resources owned by another
// tenant answer 403 for non-admins rather than pretending not to exist.
func forbidden(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "resource belongs to another tenant", nil)
}

// requireAdmin gates mutating catalog operations on the admin role.
func requireAdmin(w http.ResponseWriter, r *http.Request, tenant tenantx.TenantContext) bool {
	if tenant.IsAdmin() {
		return true
	}
	httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "admin role required", nil)
	return false
}
