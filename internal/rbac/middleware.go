package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/people-registry/registry/internal/platform/httpx"
)

// Middleware wires fine-grained permission guards for HTTP handlers that sit
// behind the request authorization pipeline.
type Middleware struct {
	Service     *Service
	Logger      *slog.Logger
	CurrentUser func(ctx context.Context) (string, bool)
}

// RequireAny ensures the current user holds at least one of perms.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return m.require("rbac require any", perms, func(granted PermissionSet) bool {
		for _, p := range perms {
			if granted.Has(p) {
				return true
			}
		}
		return false
	})
}

// RequireAll ensures the current user holds every permission in perms.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return m.require("rbac require all", perms, func(granted PermissionSet) bool {
		for _, p := range perms {
			if !granted.Has(p) {
				return false
			}
		}
		return true
	})
}

func (m Middleware) require(name string, perms []Permission, satisfied func(PermissionSet) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.currentUserID(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			granted := m.Service.EffectivePermissions(r.Context(), userID)
			if satisfied(granted) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn(name,
					slog.String("user_id", userID),
					slog.Any("required", permissionNames(perms)),
					slog.String("path", r.URL.Path),
				)
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (string, bool) {
	if m.CurrentUser == nil {
		return "", false
	}
	id, ok := m.CurrentUser(r.Context())
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func permissionNames(perms []Permission) []string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.String()
	}
	return names
}
