package authz

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/people-registry/registry/internal/auth"
	"github.com/people-registry/registry/internal/rbac"
)

// Authenticator validates bearer tokens and reports account locks.
type Authenticator interface {
	ValidateToken(ctx context.Context, token string) (auth.Principal, error)
	IsAccountLocked(ctx context.Context, userID string) (bool, error)
}

// RoleResolver resolves the active roles of a user. It never fails; lookup
// problems resolve to guest.
type RoleResolver interface {
	GetUserRoles(ctx context.Context, userID string) rbac.RoleSet
}

// Pipeline evaluates requests in the order identify, authenticate, authorize.
type Pipeline struct {
	auth   Authenticator
	roles  RoleResolver
	owners rbac.OwnershipSource
	logger *slog.Logger
}

// NewPipeline constructs a Pipeline. owners may be nil: callers still own
// their own user record, and every other own-scoped check on a resource id
// is denied.
func NewPipeline(authn Authenticator, roles RoleResolver, owners rbac.OwnershipSource, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{auth: authn, roles: roles, owners: owners, logger: logger}
}

// Evaluate runs one authorization pass over r.
func (p *Pipeline) Evaluate(ctx context.Context, r *http.Request) Result {
	rc := RequestContext{
		Method: r.Method,
		Path:   r.URL.Path,
		IP:     clientIP(r),
	}

	if IsPublic(rc.Method, rc.Path) {
		rc.Public = true
		rc.Roles = rbac.GuestRoles()
		return Result{Decision: Allow, Context: rc, Reason: "public route"}
	}

	token, ok := bearerToken(r)
	if !ok {
		p.logger.Info("authn missing token", slog.String("path", rc.Path), slog.String("ip", rc.IP))
		return Result{Decision: DenyUnauthenticated, Context: rc, Reason: "missing bearer token"}
	}
	principal, err := p.auth.ValidateToken(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			p.logger.Info("authn invalid token", slog.String("path", rc.Path), slog.String("ip", rc.IP), slog.Any("error", err))
		} else {
			p.logger.Error("authn validate token", slog.String("path", rc.Path), slog.Any("error", err))
		}
		return Result{Decision: DenyUnauthenticated, Context: rc, Reason: "invalid bearer token"}
	}
	rc.UserID = principal.UserID
	rc.Email = principal.Email

	locked, err := p.auth.IsAccountLocked(ctx, principal.UserID)
	if err != nil {
		p.logger.Error("authn lock check", slog.String("user_id", principal.UserID), slog.Any("error", err))
		return Result{Decision: DenyUnauthenticated, Context: rc, Reason: "lock check failed"}
	}
	if locked {
		p.logger.Warn("authn locked account", slog.String("user_id", principal.UserID), slog.String("ip", rc.IP))
		return Result{Decision: DenyLocked, Context: rc, Reason: "account locked"}
	}
	rc.Roles = p.roles.GetUserRoles(ctx, principal.UserID)

	perm, mapped := RequiredPermission(rc.Method, rc.Path)
	if !mapped {
		return Result{Decision: Allow, Context: rc, Reason: "unmapped route"}
	}
	rc.Permission = perm
	rc.HasPermission = true
	rc.ResourceID = ExtractResourceID(rc.Path)

	var owns rbac.OwnershipPredicate
	if perm.OwnScoped() {
		switch {
		case p.owners != nil:
			owns = p.owners.PredicateFor(ctx, perm)
		case perm.Resource() == rbac.ResourceUser:
			owns = ownsSelf
		}
	}
	check := rbac.CheckPermission(rc.UserID, rc.Roles, perm, rc.ResourceID, owns)
	if !check.HasPermission {
		return Result{Decision: DenyForbidden, Context: rc, Reason: check.Reason}
	}
	return Result{Decision: Allow, Context: rc, Reason: check.Reason}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
