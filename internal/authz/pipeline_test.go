package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/people-registry/registry/internal/auth"
	"github.com/people-registry/registry/internal/rbac"
	"github.com/people-registry/registry/internal/shared"
)

type fakeAuthenticator struct {
	principals map[string]auth.Principal
	locked     map[string]bool
	lockErr    error
	validates  atomic.Int32
}

func (f *fakeAuthenticator) ValidateToken(ctx context.Context, token string) (auth.Principal, error) {
	f.validates.Add(1)
	p, ok := f.principals[token]
	if !ok {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	return p, nil
}

func (f *fakeAuthenticator) IsAccountLocked(ctx context.Context, userID string) (bool, error) {
	if f.lockErr != nil {
		return false, f.lockErr
	}
	return f.locked[userID], nil
}

type fakeRoles map[string]rbac.RoleSet

func (f fakeRoles) GetUserRoles(ctx context.Context, userID string) rbac.RoleSet {
	if roles, ok := f[userID]; ok {
		return roles
	}
	return rbac.GuestRoles()
}

type fakeOwners struct {
	owned map[string]string
	err   error
	calls atomic.Int32
}

func (f *fakeOwners) IsOwner(ctx context.Context, userID string, resource rbac.Resource, resourceID string) (bool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return false, f.err
	}
	return f.owned[string(resource)+"/"+resourceID] == userID, nil
}

type fixture struct {
	authn    *fakeAuthenticator
	owners   *fakeOwners
	pipeline *Pipeline
}

func newFixture() *fixture {
	authn := &fakeAuthenticator{
		principals: map[string]auth.Principal{
			"tok-alice": {UserID: "alice", Email: "alice@example.com"},
			"tok-bob":   {UserID: "bob", Email: "bob@example.com"},
			"tok-admin": {UserID: "root", Email: "root@example.com"},
			"tok-mod":   {UserID: "mod", Email: "mod@example.com"},
		},
		locked: map[string]bool{"bob": true},
	}
	roles := fakeRoles{
		"alice": rbac.NewRoleSet(rbac.RoleUser),
		"bob":   rbac.NewRoleSet(rbac.RoleUser),
		"root":  rbac.NewRoleSet(rbac.RoleAdmin),
		"mod":   rbac.NewRoleSet(rbac.RoleModerator),
	}
	owners := &fakeOwners{owned: map[string]string{
		"subscription/sub-1": "alice",
		"project/proj-1":     "alice",
	}}
	return &fixture{
		authn:    authn,
		owners:   owners,
		pipeline: NewPipeline(authn, roles, NewOwnership(owners, nil), nil),
	}
}

func (f *fixture) evaluate(method, path, token string) Result {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	return f.pipeline.Evaluate(req.Context(), req)
}

func TestPublicRoutesBypassAuthentication(t *testing.T) {
	f := newFixture()
	cases := []struct{ method, path string }{
		{http.MethodGet, "/healthz"},
		{http.MethodGet, "/health"},
		{http.MethodPost, "/auth/login"},
		{http.MethodGet, "/docs/index.html"},
		{http.MethodGet, "/v2/projects"},
		{http.MethodGet, "/v2/projects/public"},
		{http.MethodPost, "/v2/public/subscribe"},
	}
	for _, tc := range cases {
		for _, header := range []string{"", "Bearer", "garbage", "Bearer not-a-token"} {
			res := f.evaluate(tc.method, tc.path, header)
			assert.Equal(t, Allow, res.Decision, "%s %s with %q", tc.method, tc.path, header)
			assert.True(t, res.Context.Public)
			assert.Equal(t, rbac.GuestRoles(), res.Context.Roles)
			assert.Empty(t, res.Context.UserID)
		}
	}
	assert.Zero(t, f.authn.validates.Load())
}

func TestProjectListIsPublicOnlyForReads(t *testing.T) {
	f := newFixture()
	res := f.evaluate(http.MethodPost, "/v2/projects", "")
	assert.Equal(t, DenyUnauthenticated, res.Decision)

	res = f.evaluate(http.MethodPost, "/v2/projects", "Bearer tok-alice")
	assert.Equal(t, Allow, res.Decision)
	assert.Equal(t, rbac.PermProjectCreate, res.Context.Permission)
}

func TestMissingOrInvalidTokenIsUnauthenticated(t *testing.T) {
	f := newFixture()
	res := f.evaluate(http.MethodGet, "/v2/people", "")
	assert.Equal(t, DenyUnauthenticated, res.Decision)
	assert.Zero(t, f.authn.validates.Load())

	res = f.evaluate(http.MethodGet, "/v2/people", "Basic dXNlcjpwYXNz")
	assert.Equal(t, DenyUnauthenticated, res.Decision)

	res = f.evaluate(http.MethodGet, "/v2/people/alice", "Bearer forged")
	assert.Equal(t, DenyUnauthenticated, res.Decision)
	assert.False(t, res.Context.HasPermission, "authorization must not run")
	assert.Nil(t, res.Context.Roles)
}

func TestLockedAccountIsDistinctFromUnauthenticated(t *testing.T) {
	f := newFixture()
	res := f.evaluate(http.MethodGet, "/v2/people/bob", "Bearer tok-bob")
	assert.Equal(t, DenyLocked, res.Decision)
	assert.Equal(t, http.StatusLocked, res.Decision.Status())
	assert.Equal(t, "bob", res.Context.UserID)
}

func TestLockCheckFailureFailsClosed(t *testing.T) {
	f := newFixture()
	f.authn.lockErr = errors.New("redis down")
	res := f.evaluate(http.MethodGet, "/v2/people/alice", "Bearer tok-alice")
	assert.Equal(t, DenyUnauthenticated, res.Decision)
}

func TestUnmappedRouteFailsOpenAfterAuthentication(t *testing.T) {
	f := newFixture()
	res := f.evaluate(http.MethodGet, "/v2/unmapped/thing", "Bearer tok-alice")
	assert.Equal(t, Allow, res.Decision)
	assert.False(t, res.Context.HasPermission)
	assert.Equal(t, "alice", res.Context.UserID)

	res = f.evaluate(http.MethodPatch, "/v2/people/alice", "Bearer tok-alice")
	assert.Equal(t, Allow, res.Decision, "method missing from a matched rule is unmapped")

	res = f.evaluate(http.MethodGet, "/v2/unmapped/thing", "")
	assert.Equal(t, DenyUnauthenticated, res.Decision)
}

func TestOwnResourceAccess(t *testing.T) {
	f := newFixture()

	res := f.evaluate(http.MethodGet, "/v2/subscriptions/sub-1", "Bearer tok-alice")
	assert.Equal(t, Allow, res.Decision)
	assert.Equal(t, rbac.PermSubscriptionReadOwn, res.Context.Permission)
	assert.Equal(t, "sub-1", res.Context.ResourceID)

	res = f.evaluate(http.MethodGet, "/v2/people/alice", "Bearer tok-alice")
	assert.Equal(t, Allow, res.Decision)

	res = f.evaluate(http.MethodPut, "/v2/projects/proj-1", "Bearer tok-alice")
	assert.Equal(t, Allow, res.Decision)
}

func TestForeignResourceIsForbidden(t *testing.T) {
	f := newFixture()
	f.authn.locked = nil

	res := f.evaluate(http.MethodGet, "/v2/subscriptions/sub-1", "Bearer tok-bob")
	assert.Equal(t, DenyForbidden, res.Decision)
	assert.NotEmpty(t, res.Reason)

	res = f.evaluate(http.MethodPut, "/v2/people/alice", "Bearer tok-bob")
	assert.Equal(t, DenyForbidden, res.Decision)

	res = f.evaluate(http.MethodGet, "/v2/people", "Bearer tok-bob")
	assert.Equal(t, DenyForbidden, res.Decision, "user role lacks user:read:all")
}

func TestOwnershipLookupFailureDenies(t *testing.T) {
	f := newFixture()
	f.owners.err = errors.New("db down")
	res := f.evaluate(http.MethodDelete, "/v2/projects/proj-1", "Bearer tok-alice")
	assert.Equal(t, DenyForbidden, res.Decision)
}

func TestSelfOwnershipWithoutOwnershipSource(t *testing.T) {
	f := newFixture()
	f.authn.locked = nil
	f.pipeline = NewPipeline(f.authn, fakeRoles{
		"alice": rbac.NewRoleSet(rbac.RoleUser),
		"bob":   rbac.NewRoleSet(rbac.RoleUser),
	}, nil, nil)

	res := f.evaluate(http.MethodGet, "/v2/people/alice", "Bearer tok-alice")
	assert.Equal(t, Allow, res.Decision, res.Reason)

	res = f.evaluate(http.MethodPut, "/v2/people/alice", "Bearer tok-alice")
	assert.Equal(t, Allow, res.Decision, res.Reason)

	res = f.evaluate(http.MethodGet, "/v2/people/alice", "Bearer tok-bob")
	assert.Equal(t, DenyForbidden, res.Decision)

	res = f.evaluate(http.MethodGet, "/v2/subscriptions/sub-1", "Bearer tok-alice")
	assert.Equal(t, DenyForbidden, res.Decision, "no resolver for subscriptions")
}

func TestAdminBypassesOwnership(t *testing.T) {
	f := newFixture()
	res := f.evaluate(http.MethodDelete, "/v2/subscriptions/sub-1", "Bearer tok-admin")
	assert.Equal(t, Allow, res.Decision)
	assert.Zero(t, f.owners.calls.Load(), "admin override runs before ownership")
}

func TestAdminNamespace(t *testing.T) {
	f := newFixture()

	res := f.evaluate(http.MethodGet, "/v2/admin/roles", "Bearer tok-mod")
	assert.Equal(t, Allow, res.Decision)
	assert.Equal(t, rbac.PermAdminAccess, res.Context.Permission)

	res = f.evaluate(http.MethodPost, "/v2/admin/roles/assign", "Bearer tok-mod")
	assert.Equal(t, DenyForbidden, res.Decision)

	res = f.evaluate(http.MethodPost, "/v2/admin/roles/assign", "Bearer tok-admin")
	assert.Equal(t, Allow, res.Decision)

	res = f.evaluate(http.MethodGet, "/v2/admin/roles", "Bearer tok-alice")
	assert.Equal(t, DenyForbidden, res.Decision)
}

func TestExtractResourceID(t *testing.T) {
	assert.Equal(t, "abc", ExtractResourceID("/v2/people/abc"))
	assert.Equal(t, "abc", ExtractResourceID("/v2/people/abc/"))
	assert.Equal(t, "roles", ExtractResourceID("/v2/admin/roles/assign"))
	assert.Empty(t, ExtractResourceID("/v2/people"))
	assert.Empty(t, ExtractResourceID("/"))
}

func TestRequiredPermissionFirstMatchWins(t *testing.T) {
	perm, ok := RequiredPermission(http.MethodGet, "/v2/people/abc")
	require.True(t, ok)
	assert.Equal(t, rbac.PermUserReadOwn, perm)

	_, ok = RequiredPermission(http.MethodPost, "/v2/people/abc")
	assert.False(t, ok)

	_, ok = RequiredPermission(http.MethodGet, "/v2/people/abc/history")
	assert.False(t, ok)
}

type countingObserver struct {
	counts map[string]int
}

func (c *countingObserver) ObserveAuthzDecision(decision string) {
	c.counts[decision]++
}

func TestMiddlewareStatuses(t *testing.T) {
	f := newFixture()
	observer := &countingObserver{counts: map[string]int{}}
	mw := NewMiddleware(f.pipeline, nil, observer)

	var seenUser string
	var seenRC RequestContext
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser, _ = shared.UserIDFromContext(r.Context())
		seenRC, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := mw.Handler(next)

	serve := func(method, path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := serve(http.MethodGet, "/v2/people/alice", "tok-alice")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "alice", seenUser)
	assert.Equal(t, "alice", seenRC.ResourceID)

	rec = serve(http.MethodGet, "/v2/people/alice", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Contains(t, rec.Body.String(), "authentication required")

	rec = serve(http.MethodGet, "/v2/people/bob", "tok-bob")
	assert.Equal(t, http.StatusLocked, rec.Code)

	rec = serve(http.MethodGet, "/v2/people/bob", "tok-alice")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient permissions")
	assert.NotContains(t, rec.Body.String(), "user:read:own")

	assert.Equal(t, 1, observer.counts["allow"])
	assert.Equal(t, 1, observer.counts["unauthenticated"])
	assert.Equal(t, 1, observer.counts["locked"])
	assert.Equal(t, 1, observer.counts["forbidden"])
}
