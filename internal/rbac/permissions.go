package rbac

import (
	"sort"
	"strings"
)

// Resource names the kind of object a permission acts on.
type Resource string

// Resources referenced by the permission catalog.
const (
	ResourceUser         Resource = "user"
	ResourceProject      Resource = "project"
	ResourceSubscription Resource = "subscription"
	ResourceSystem       Resource = "system"
	ResourceRole         Resource = "role"
	ResourceSecurity     Resource = "security"
	ResourceAdmin        Resource = "admin"
)

// Permission represents an atomic capability.
type Permission uint8

// The closed permission enumeration. New values must be added before
// permissionCount so they flow into AllPermissions.
const (
	PermUserReadOwn Permission = iota
	PermUserUpdateOwn
	PermUserDeleteOwn
	PermUserReadAll
	PermUserCreate
	PermUserUpdateAll
	PermUserDeleteAll
	PermUserAdmin

	PermProjectReadPublic
	PermProjectReadAll
	PermProjectCreate
	PermProjectUpdateOwn
	PermProjectUpdateAll
	PermProjectDeleteOwn
	PermProjectDeleteAll
	PermProjectAdmin

	PermSubscriptionReadOwn
	PermSubscriptionReadAll
	PermSubscriptionCreate
	PermSubscriptionUpdateOwn
	PermSubscriptionUpdateAll
	PermSubscriptionDeleteOwn
	PermSubscriptionDeleteAll
	PermSubscriptionAdmin

	PermSystemConfig
	PermSystemAudit
	PermSystemMonitor
	PermSystemBackup

	PermRoleRead
	PermRoleAssign
	PermRoleRevoke
	PermRoleAdmin

	PermSecurityAudit
	PermSecurityAdmin

	PermAdminAccess

	permissionCount
)

type permissionInfo struct {
	name      string
	resource  Resource
	ownScoped bool
}

var permissionTable = [permissionCount]permissionInfo{
	PermUserReadOwn:   {"user:read:own", ResourceUser, true},
	PermUserUpdateOwn: {"user:update:own", ResourceUser, true},
	PermUserDeleteOwn: {"user:delete:own", ResourceUser, true},
	PermUserReadAll:   {"user:read:all", ResourceUser, false},
	PermUserCreate:    {"user:create", ResourceUser, false},
	PermUserUpdateAll: {"user:update:all", ResourceUser, false},
	PermUserDeleteAll: {"user:delete:all", ResourceUser, false},
	PermUserAdmin:     {"user:admin", ResourceUser, false},

	PermProjectReadPublic: {"project:read:public", ResourceProject, false},
	PermProjectReadAll:    {"project:read:all", ResourceProject, false},
	PermProjectCreate:     {"project:create", ResourceProject, false},
	PermProjectUpdateOwn:  {"project:update:own", ResourceProject, true},
	PermProjectUpdateAll:  {"project:update:all", ResourceProject, false},
	PermProjectDeleteOwn:  {"project:delete:own", ResourceProject, true},
	PermProjectDeleteAll:  {"project:delete:all", ResourceProject, false},
	PermProjectAdmin:      {"project:admin", ResourceProject, false},

	PermSubscriptionReadOwn:   {"subscription:read:own", ResourceSubscription, true},
	PermSubscriptionReadAll:   {"subscription:read:all", ResourceSubscription, false},
	PermSubscriptionCreate:    {"subscription:create", ResourceSubscription, false},
	PermSubscriptionUpdateOwn: {"subscription:update:own", ResourceSubscription, true},
	PermSubscriptionUpdateAll: {"subscription:update:all", ResourceSubscription, false},
	PermSubscriptionDeleteOwn: {"subscription:delete:own", ResourceSubscription, true},
	PermSubscriptionDeleteAll: {"subscription:delete:all", ResourceSubscription, false},
	PermSubscriptionAdmin:     {"subscription:admin", ResourceSubscription, false},

	PermSystemConfig:  {"system:config", ResourceSystem, false},
	PermSystemAudit:   {"system:audit", ResourceSystem, false},
	PermSystemMonitor: {"system:monitor", ResourceSystem, false},
	PermSystemBackup:  {"system:backup", ResourceSystem, false},

	PermRoleRead:   {"role:read", ResourceRole, false},
	PermRoleAssign: {"role:assign", ResourceRole, false},
	PermRoleRevoke: {"role:revoke", ResourceRole, false},
	PermRoleAdmin:  {"role:admin", ResourceRole, false},

	PermSecurityAudit: {"security:audit", ResourceSecurity, false},
	PermSecurityAdmin: {"security:admin", ResourceSecurity, false},

	PermAdminAccess: {"admin:access", ResourceAdmin, false},
}

var permissionsByName = func() map[string]Permission {
	m := make(map[string]Permission, permissionCount)
	for i := Permission(0); i < permissionCount; i++ {
		m[permissionTable[i].name] = i
	}
	return m
}()

// Valid reports whether p belongs to the permission enumeration.
func (p Permission) Valid() bool {
	return p < permissionCount
}

// String returns the namespaced identifier, e.g. "user:read:own".
func (p Permission) String() string {
	if !p.Valid() {
		return "unknown"
	}
	return permissionTable[p].name
}

// Resource returns the resource family the permission acts on.
func (p Permission) Resource() Resource {
	if !p.Valid() {
		return ""
	}
	return permissionTable[p].resource
}

// OwnScoped reports whether granting p requires the caller to own the target resource.
func (p Permission) OwnScoped() bool {
	return p.Valid() && permissionTable[p].ownScoped
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePermission resolves a permission from its identifier.
func ParsePermission(raw string) (Permission, error) {
	p, ok := permissionsByName[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return 0, ErrInvalidPermission
	}
	return p, nil
}

// AllPermissions returns every defined permission in declaration order.
func AllPermissions() []Permission {
	perms := make([]Permission, 0, permissionCount)
	for i := Permission(0); i < permissionCount; i++ {
		perms = append(perms, i)
	}
	return perms
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Clone returns an independent copy of the set.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Sorted returns the permissions in declaration order.
func (s PermissionSet) Sorted() []Permission {
	perms := make([]Permission, 0, len(s))
	for p := range s {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// Names returns the sorted permission identifiers.
func (s PermissionSet) Names() []string {
	sorted := s.Sorted()
	names := make([]string, len(sorted))
	for i, p := range sorted {
		names[i] = p.String()
	}
	return names
}
