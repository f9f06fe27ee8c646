// Package authz runs the per-request authorization pipeline: identify public
// routes, authenticate bearer tokens, then authorize against the route table.
package authz

import (
	"context"
	"net/http"

	"github.com/people-registry/registry/internal/rbac"
)

// Decision is the outcome of a pipeline pass.
type Decision uint8

const (
	Allow Decision = iota
	DenyUnauthenticated
	DenyLocked
	DenyForbidden
)

// String returns the label used in logs and metrics.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "unauthenticated"
	case DenyLocked:
		return "locked"
	case DenyForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Status maps the decision to its HTTP status code.
func (d Decision) Status() int {
	switch d {
	case Allow:
		return http.StatusOK
	case DenyUnauthenticated:
		return http.StatusUnauthorized
	case DenyLocked:
		return http.StatusLocked
	default:
		return http.StatusForbidden
	}
}

// RequestContext is what the pipeline learned about a request.
type RequestContext struct {
	UserID        string
	Email         string
	Roles         rbac.RoleSet
	Public        bool
	Permission    rbac.Permission
	HasPermission bool
	ResourceID    string
	IP            string
	Method        string
	Path          string
}

// Authenticated reports whether a user was resolved.
func (c RequestContext) Authenticated() bool { return c.UserID != "" }

// Result bundles the decision with its context. Reason is diagnostic only.
type Result struct {
	Decision Decision
	Context  RequestContext
	Reason   string
}

type requestContextKey struct{}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext attached by Middleware.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}
