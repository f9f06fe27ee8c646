package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func never(string, string) bool  { return false }
func always(string, string) bool { return true }

func TestHasPermissionIsDeterministic(t *testing.T) {
	sets := []RoleSet{
		{},
		GuestRoles(),
		NewRoleSet(RoleUser),
		NewRoleSet(RoleModerator, RoleAuditor),
		NewRoleSet(RoleSuperAdmin),
	}
	for _, roles := range sets {
		for _, p := range AllPermissions() {
			first := HasPermission(roles, p)
			assert.Equal(t, first, HasPermission(roles, p))
			assert.Equal(t, roles.Permissions().Has(p), first)
		}
	}
	assert.False(t, HasPermission(NewRoleSet(RoleSuperAdmin), Permission(250)))
	assert.False(t, HasPermission(nil, PermProjectReadPublic))
}

func TestCheckPermissionDeniesMissingPermission(t *testing.T) {
	res := CheckPermission("bob", NewRoleSet(RoleUser), PermUserReadAll, "", always)
	assert.False(t, res.HasPermission)
	assert.Contains(t, res.Reason, "user")
	assert.False(t, res.CheckedAt.IsZero())

	res = CheckPermission("bob", RoleSet{}, PermProjectReadPublic, "", nil)
	assert.False(t, res.HasPermission)
}

func TestCheckPermissionWithoutResourceGrants(t *testing.T) {
	res := CheckPermission("bob", NewRoleSet(RoleUser), PermUserUpdateOwn, "", never)
	assert.True(t, res.HasPermission)
}

func TestAdminBypassesOwnership(t *testing.T) {
	res := CheckPermission("root", NewRoleSet(RoleAdmin), PermProjectUpdateOwn, "proj-9", never)
	assert.True(t, res.HasPermission)

	res = CheckPermission("root", NewRoleSet(RoleSuperAdmin), PermSubscriptionDeleteOwn, "sub-1", nil)
	assert.True(t, res.HasPermission)

	res = CheckPermission("root", NewRoleSet(RoleAdmin, RoleUser), PermUserUpdateOwn, "alice", never)
	assert.True(t, res.HasPermission)
}

func TestOwnershipEnforcedForNonAdmins(t *testing.T) {
	calls := 0
	owns := func(userID, resourceID string) bool {
		calls++
		assert.Equal(t, "bob", userID)
		assert.Equal(t, "alice", resourceID)
		return false
	}
	res := CheckPermission("bob", NewRoleSet(RoleUser), PermUserUpdateOwn, "alice", owns)
	assert.False(t, res.HasPermission)
	assert.Equal(t, 1, calls)

	res = CheckPermission("bob", NewRoleSet(RoleUser), PermUserUpdateOwn, "alice", always)
	assert.True(t, res.HasPermission)

	res = CheckPermission("bob", NewRoleSet(RoleUser), PermUserUpdateOwn, "alice", nil)
	assert.False(t, res.HasPermission, "missing predicate denies")
}

func TestGlobalPermissionSkipsOwnership(t *testing.T) {
	res := CheckPermission("mod", NewRoleSet(RoleModerator), PermProjectUpdateAll, "proj-1", never)
	assert.True(t, res.HasPermission)
}

func TestCanAssignRole(t *testing.T) {
	assert.False(t, CanAssignRole(NewRoleSet(RoleModerator), RoleAdmin))
	assert.True(t, CanAssignRole(NewRoleSet(RoleAdmin), RoleModerator))
	assert.True(t, CanAssignRole(NewRoleSet(RoleAdmin), RoleAdmin))
	assert.False(t, CanAssignRole(NewRoleSet(RoleAdmin), RoleSuperAdmin))
	assert.False(t, CanAssignRole(GuestRoles(), RoleUser))
	assert.True(t, CanAssignRole(GuestRoles(), RoleGuest))

	// system sits above super_admin; only the explicit override lets it through.
	assert.Less(t, HierarchyLevel(RoleSuperAdmin), HierarchyLevel(RoleSystem))
	assert.True(t, CanAssignRole(NewRoleSet(RoleSuperAdmin), RoleSystem))
	assert.True(t, CanAssignRole(NewRoleSet(RoleUser, RoleSuperAdmin), RoleAdmin))
}
