package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testUserKey struct{}

func testCurrentUser(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(testUserKey{}).(string)
	return id, ok
}

type selfOwnership struct{}

func (selfOwnership) PredicateFor(ctx context.Context, perm Permission) OwnershipPredicate {
	return func(userID, resourceID string) bool { return userID == resourceID }
}

func newTestRouter(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	svc, _, _, _ := newTestService()
	guard := Middleware{Service: svc, CurrentUser: testCurrentUser}
	h := NewHandler(nil, svc, guard, selfOwnership{})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id := req.Header.Get("X-User"); id != "" {
				req = req.WithContext(context.WithValue(req.Context(), testUserKey{}, id))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/v2/admin/roles", h.MountAdminRoutes)
	r.Route("/v2/me", h.MountSelfRoutes)
	return r, svc
}

func doRequest(router http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListRolesCatalog(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/v2/admin/roles/", "root", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view catalogView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Len(t, view.Roles, len(AllRoleTypes()))
	assert.Len(t, view.AvailablePermissions, len(AllPermissions()))

	rec = doRequest(router, http.MethodGet, "/v2/admin/roles/", "alice", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(router, http.MethodGet, "/v2/admin/roles/", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAssignAndRevokeEndpoints(t *testing.T) {
	router, svc := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/v2/admin/roles/assign", "root", `{"user_email":"alice@example.com","role_type":"moderator"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, svc.GetUserRoles(context.Background(), "alice").Has(RoleModerator))

	rec = doRequest(router, http.MethodPost, "/v2/admin/roles/assign", "root", `{"user_email":"alice@example.com","role_type":"moderator"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(router, http.MethodPost, "/v2/admin/roles/assign", "root", `{"user_email":"alice@example.com","role_type":"super_admin"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(router, http.MethodPost, "/v2/admin/roles/assign", "root", `{"user_email":"nobody@example.com","role_type":"user"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "nobody")

	rec = doRequest(router, http.MethodPost, "/v2/admin/roles/assign", "root", `{"user_email":"not-an-email","role_type":"user"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodPost, "/v2/admin/roles/assign", "root", `{"user_email":"alice@example.com","role_type":"wizard"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodPost, "/v2/admin/roles/revoke", "mod", `{"user_id":"alice","role_type":"moderator"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(router, http.MethodPost, "/v2/admin/roles/revoke", "root", `{"user_id":"owner","role_type":"super_admin"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.True(t, svc.GetUserRoles(context.Background(), "owner").Has(RoleSuperAdmin))

	rec = doRequest(router, http.MethodPost, "/v2/admin/roles/revoke", "root", `{"user_id":"alice","role_type":"moderator"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, svc.GetUserRoles(context.Background(), "alice").Has(RoleModerator))

	rec = doRequest(router, http.MethodPost, "/v2/admin/roles/revoke", "root", `{"user_id":"alice","role_type":"moderator"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodGet, "/v2/admin/roles/users/alice", "root", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_active":false`)
}

func TestSelfEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/v2/me/roles", "root", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
		IsAdmin     bool     `json:"is_admin"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"admin"}, body.Roles)
	assert.True(t, body.IsAdmin)
	assert.Contains(t, body.Permissions, "role:assign")

	rec = doRequest(router, http.MethodPost, "/v2/me/permissions/check", "alice", `{"permission":"user:update:own","resource_id":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"has_permission":true`)

	rec = doRequest(router, http.MethodPost, "/v2/me/permissions/check", "alice", `{"permission":"user:update:own","resource_id":"bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"has_permission":false`)

	rec = doRequest(router, http.MethodPost, "/v2/me/permissions/check", "alice", `{"permission":"user:teleport"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodGet, "/v2/me/roles", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAll(t *testing.T) {
	svc, _, _, _ := newTestService()
	guard := Middleware{Service: svc, CurrentUser: testCurrentUser}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := guard.RequireAll(PermRoleRead, PermRoleRevoke)(ok)

	serve := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), testUserKey{}, user))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusForbidden, serve("root"))
	assert.Equal(t, http.StatusNoContent, serve("owner"))
}
