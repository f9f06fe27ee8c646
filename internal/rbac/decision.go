package rbac

import (
	"fmt"
	"time"
)

// OwnershipPredicate reports whether userID owns resourceID.
type OwnershipPredicate func(userID, resourceID string) bool

// HasPermission reports whether any role in roles carries required.
func HasPermission(roles RoleSet, required Permission) bool {
	if !required.Valid() {
		return false
	}
	for r := range roles {
		if r.Valid() && rolePermissions[r].Has(required) {
			return true
		}
	}
	return false
}

// CanAssignRole reports whether a principal holding assigner may grant or
// revoke target. super_admin may manage any role regardless of level.
func CanAssignRole(assigner RoleSet, target RoleType) bool {
	if assigner.Has(RoleSuperAdmin) {
		return true
	}
	return assigner.MaxLevel() >= HierarchyLevel(target)
}

// CheckPermission decides whether userID, holding roles, may exercise
// required on resourceID. An empty resourceID means no resource scoping.
// The steps run in a fixed order: permission, resource presence, admin
// bypass, ownership. A nil owns predicate denies own-scoped checks.
func CheckPermission(userID string, roles RoleSet, required Permission, resourceID string, owns OwnershipPredicate) PermissionCheckResult {
	now := time.Now().UTC()
	if !HasPermission(roles, required) {
		return PermissionCheckResult{
			HasPermission: false,
			Reason:        fmt.Sprintf("permission denied: %s not granted to roles %v", required, roles.Names()),
			CheckedAt:     now,
		}
	}
	if resourceID == "" {
		return granted("permission granted", now)
	}
	for r := range roles {
		if IsAdminRole(r) {
			return granted("permission granted: admin override", now)
		}
	}
	if required.OwnScoped() {
		if owns != nil && owns(userID, resourceID) {
			return granted("permission granted: resource owner", now)
		}
		return PermissionCheckResult{
			HasPermission: false,
			Reason:        fmt.Sprintf("permission denied: %s requires ownership of %s %s", required, required.Resource(), resourceID),
			CheckedAt:     now,
		}
	}
	return granted("permission granted", now)
}

func granted(reason string, at time.Time) PermissionCheckResult {
	return PermissionCheckResult{HasPermission: true, Reason: reason, CheckedAt: at}
}
