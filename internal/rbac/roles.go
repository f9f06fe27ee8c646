package rbac

import (
	"sort"
	"strings"
)

// RoleType identifies one named role.
type RoleType uint8

// The closed role enumeration.
const (
	RoleGuest RoleType = iota
	RoleUser
	RoleModerator
	RoleAdmin
	RoleSuperAdmin
	RoleAuditor
	RoleSystem

	roleCount
)

// RoleDefinition describes a role of the catalog.
type RoleDefinition struct {
	Type        RoleType
	Name        string
	Description string
	Level       int
	Permissions PermissionSet
}

type roleInfo struct {
	slug        string
	name        string
	description string
	level       int
}

var roleTable = [roleCount]roleInfo{
	RoleGuest:      {"guest", "Guest User", "Anonymous user with minimal read access", 0},
	RoleUser:       {"user", "Standard User", "Authenticated user with basic permissions", 1},
	RoleModerator:  {"moderator", "Content Moderator", "User with project moderation capabilities", 2},
	RoleAuditor:    {"auditor", "System Auditor", "Read-only access for compliance and auditing", 3},
	RoleAdmin:      {"admin", "Administrator", "System administrator with user and content management", 4},
	RoleSuperAdmin: {"super_admin", "Super Administrator", "Full system access with all permissions", 5},
	RoleSystem:     {"system", "System Service", "Internal system service account", 6},
}

var rolePermissions = [roleCount]PermissionSet{
	RoleGuest: NewPermissionSet(
		PermProjectReadPublic,
	),
	RoleUser: NewPermissionSet(
		PermUserReadOwn,
		PermUserUpdateOwn,
		PermProjectReadPublic,
		PermProjectReadAll,
		PermProjectCreate,
		PermProjectUpdateOwn,
		PermProjectDeleteOwn,
		PermSubscriptionReadOwn,
		PermSubscriptionCreate,
		PermSubscriptionUpdateOwn,
		PermSubscriptionDeleteOwn,
	),
	RoleModerator: NewPermissionSet(
		PermUserReadOwn,
		PermUserUpdateOwn,
		PermProjectReadAll,
		PermProjectCreate,
		PermProjectUpdateAll,
		PermProjectDeleteOwn,
		PermSubscriptionReadAll,
		PermSubscriptionCreate,
		PermSubscriptionUpdateAll,
		PermSubscriptionDeleteOwn,
		PermAdminAccess,
	),
	// The own-scoped grants let the admin override apply on routes that are
	// gated by an own permission.
	RoleAdmin: NewPermissionSet(
		PermUserReadOwn,
		PermUserUpdateOwn,
		PermUserDeleteOwn,
		PermUserReadAll,
		PermUserCreate,
		PermUserUpdateAll,
		PermUserAdmin,
		PermProjectReadAll,
		PermProjectCreate,
		PermProjectUpdateOwn,
		PermProjectUpdateAll,
		PermProjectDeleteOwn,
		PermProjectDeleteAll,
		PermProjectAdmin,
		PermSubscriptionReadOwn,
		PermSubscriptionReadAll,
		PermSubscriptionCreate,
		PermSubscriptionUpdateOwn,
		PermSubscriptionUpdateAll,
		PermSubscriptionDeleteOwn,
		PermSubscriptionDeleteAll,
		PermSubscriptionAdmin,
		PermRoleRead,
		PermRoleAssign,
		PermSystemConfig,
		PermSystemMonitor,
		PermSystemAudit,
		PermSecurityAudit,
		PermAdminAccess,
	),
	// Derived from the enumeration so new permissions reach super_admin automatically.
	RoleSuperAdmin: NewPermissionSet(AllPermissions()...),
	RoleAuditor: NewPermissionSet(
		PermUserReadAll,
		PermProjectReadAll,
		PermSubscriptionReadAll,
		PermSystemAudit,
		PermSecurityAudit,
		PermRoleRead,
		PermAdminAccess,
	),
	RoleSystem: NewPermissionSet(
		PermSystemConfig,
		PermSystemBackup,
		PermSecurityAdmin,
	),
}

var rolesBySlug = func() map[string]RoleType {
	m := make(map[string]RoleType, roleCount)
	for i := RoleType(0); i < roleCount; i++ {
		m[roleTable[i].slug] = i
	}
	return m
}()

// Valid reports whether r belongs to the role enumeration.
func (r RoleType) Valid() bool {
	return r < roleCount
}

// String returns the role slug, e.g. "super_admin".
func (r RoleType) String() string {
	if !r.Valid() {
		return "unknown"
	}
	return roleTable[r].slug
}

// MarshalText implements encoding.TextMarshaler.
func (r RoleType) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RoleType) UnmarshalText(text []byte) error {
	parsed, err := ParseRoleType(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRoleType resolves a role from its slug.
func ParseRoleType(raw string) (RoleType, error) {
	r, ok := rolesBySlug[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return 0, ErrInvalidRole
	}
	return r, nil
}

// AllRoleTypes returns every role in declaration order.
func AllRoleTypes() []RoleType {
	roles := make([]RoleType, 0, roleCount)
	for i := RoleType(0); i < roleCount; i++ {
		roles = append(roles, i)
	}
	return roles
}

// PermissionsFor returns a copy of the fixed permission set of role.
func PermissionsFor(role RoleType) PermissionSet {
	if !role.Valid() {
		return PermissionSet{}
	}
	return rolePermissions[role].Clone()
}

// HierarchyLevel returns the numeric level used to gate role assignment.
func HierarchyLevel(role RoleType) int {
	if !role.Valid() {
		return 0
	}
	return roleTable[role].level
}

// IsAdminRole reports whether role is admin or super_admin.
func IsAdminRole(role RoleType) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// IsSuperAdminRole reports whether role is super_admin.
func IsSuperAdminRole(role RoleType) bool {
	return role == RoleSuperAdmin
}

// Definition returns the catalog entry for role.
func Definition(role RoleType) RoleDefinition {
	if !role.Valid() {
		return RoleDefinition{Type: role, Permissions: PermissionSet{}}
	}
	info := roleTable[role]
	return RoleDefinition{
		Type:        role,
		Name:        info.name,
		Description: info.description,
		Level:       info.level,
		Permissions: PermissionsFor(role),
	}
}

// RoleSet is an unordered set of roles.
type RoleSet map[RoleType]struct{}

// NewRoleSet builds a set from the given roles.
func NewRoleSet(roles ...RoleType) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// GuestRoles is the role set of anonymous callers and failed lookups.
func GuestRoles() RoleSet {
	return NewRoleSet(RoleGuest)
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r RoleType) bool {
	_, ok := s[r]
	return ok
}

// Sorted returns the roles in declaration order.
func (s RoleSet) Sorted() []RoleType {
	roles := make([]RoleType, 0, len(s))
	for r := range s {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Names returns the sorted role slugs.
func (s RoleSet) Names() []string {
	sorted := s.Sorted()
	names := make([]string, len(sorted))
	for i, r := range sorted {
		names[i] = r.String()
	}
	return names
}

// Permissions returns the union of the permission sets of every role in s.
func (s RoleSet) Permissions() PermissionSet {
	out := PermissionSet{}
	for r := range s {
		if !r.Valid() {
			continue
		}
		for p := range rolePermissions[r] {
			out[p] = struct{}{}
		}
	}
	return out
}

// MaxLevel returns the highest hierarchy level in s, or 0 for an empty set.
func (s RoleSet) MaxLevel() int {
	highest := 0
	for r := range s {
		if lvl := HierarchyLevel(r); lvl > highest {
			highest = lvl
		}
	}
	return highest
}
