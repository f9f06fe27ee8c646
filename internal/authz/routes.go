package authz

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/people-registry/registry/internal/rbac"
)

type publicRoute struct {
	pattern *regexp.Regexp
	methods []string
}

func (p publicRoute) matches(method, path string) bool {
	if !p.pattern.MatchString(path) {
		return false
	}
	if len(p.methods) == 0 {
		return true
	}
	for _, m := range p.methods {
		if m == method {
			return true
		}
	}
	return false
}

// publicRoutes skip authentication. A nil method list matches every method.
var publicRoutes = []publicRoute{
	{pattern: regexp.MustCompile(`^/$`)},
	{pattern: regexp.MustCompile(`^/healthz?$`)},
	{pattern: regexp.MustCompile(`^/metrics$`), methods: []string{http.MethodGet}},
	{pattern: regexp.MustCompile(`^/docs`)},
	{pattern: regexp.MustCompile(`^/openapi\.json$`)},
	{pattern: regexp.MustCompile(`^/auth/login$`)},
	{pattern: regexp.MustCompile(`^/auth/refresh$`)},
	{pattern: regexp.MustCompile(`^/auth/forgot-password$`)},
	{pattern: regexp.MustCompile(`^/auth/reset-password$`)},
	{pattern: regexp.MustCompile(`^/auth/validate-reset-token/`)},
	{pattern: regexp.MustCompile(`^/v2/projects$`), methods: []string{http.MethodGet, http.MethodHead}},
	{pattern: regexp.MustCompile(`^/v2/projects/public$`)},
	{pattern: regexp.MustCompile(`^/v2/public/subscribe$`)},
}

type permissionRule struct {
	pattern *regexp.Regexp
	methods map[string]rbac.Permission
}

// permissionRules is ordered; the first pattern matching the path decides.
var permissionRules = []permissionRule{
	{regexp.MustCompile(`^/v2/people$`), map[string]rbac.Permission{
		http.MethodGet:  rbac.PermUserReadAll,
		http.MethodPost: rbac.PermUserCreate,
	}},
	{regexp.MustCompile(`^/v2/people/[^/]+$`), map[string]rbac.Permission{
		http.MethodGet:    rbac.PermUserReadOwn,
		http.MethodPut:    rbac.PermUserUpdateOwn,
		http.MethodDelete: rbac.PermUserDeleteOwn,
	}},
	{regexp.MustCompile(`^/v2/projects$`), map[string]rbac.Permission{
		http.MethodGet:  rbac.PermProjectReadAll,
		http.MethodPost: rbac.PermProjectCreate,
	}},
	{regexp.MustCompile(`^/v2/projects/[^/]+$`), map[string]rbac.Permission{
		http.MethodGet:    rbac.PermProjectReadAll,
		http.MethodPut:    rbac.PermProjectUpdateOwn,
		http.MethodDelete: rbac.PermProjectDeleteOwn,
	}},
	{regexp.MustCompile(`^/v2/subscriptions$`), map[string]rbac.Permission{
		http.MethodGet:  rbac.PermSubscriptionReadAll,
		http.MethodPost: rbac.PermSubscriptionCreate,
	}},
	{regexp.MustCompile(`^/v2/subscriptions/[^/]+$`), map[string]rbac.Permission{
		http.MethodGet:    rbac.PermSubscriptionReadOwn,
		http.MethodPut:    rbac.PermSubscriptionUpdateOwn,
		http.MethodDelete: rbac.PermSubscriptionDeleteOwn,
	}},
	{regexp.MustCompile(`^/v2/admin/.*`), map[string]rbac.Permission{
		http.MethodGet:    rbac.PermAdminAccess,
		http.MethodPost:   rbac.PermSystemConfig,
		http.MethodPut:    rbac.PermSystemConfig,
		http.MethodDelete: rbac.PermSystemConfig,
	}},
}

// IsPublic reports whether method+path bypasses authentication.
func IsPublic(method, path string) bool {
	for _, route := range publicRoutes {
		if route.matches(method, path) {
			return true
		}
	}
	return false
}

// RequiredPermission returns the permission the route table demands for
// method+path. ok is false for unmapped routes, which are allowed once the
// caller is authenticated.
func RequiredPermission(method, path string) (perm rbac.Permission, ok bool) {
	for _, rule := range permissionRules {
		if rule.pattern.MatchString(path) {
			perm, ok = rule.methods[method]
			return perm, ok
		}
	}
	return 0, false
}

// ExtractResourceID returns the third path segment, e.g. the id in /v2/projects/{id}.
func ExtractResourceID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
