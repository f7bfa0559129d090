package domain

// RoleSet is a named group of roles.
type RoleSet map[Role]struct{}

func newRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

func union(sets ...RoleSet) RoleSet {
	out := RoleSet{}
	for _, s := range sets {
		for r := range s {
			out[r] = struct{}{}
		}
	}
	return out
}

// Contains reports membership.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

var (
	AdminRoles          = newRoleSet(RoleChief, RoleAdmin)
	ManagerRoles        = newRoleSet(RoleManager, RoleProjectManager, RoleJuniorManager)
	ReportsAccessRoles  = union(ManagerRoles, AdminRoles)
	UserManagementRoles = union(ManagerRoles, AdminRoles)
	PromotionRoles      = union(AdminRoles)
)

// IsAdminLike reports chief and admin roles.
func IsAdminLike(r Role) bool { return AdminRoles.Contains(r) }

// IsManagerLike reports the manager tier.
func IsManagerLike(r Role) bool { return ManagerRoles.Contains(r) }

// HasReportsAccess reports whether r may open reports.
func HasReportsAccess(r Role) bool { return ReportsAccessRoles.Contains(r) }

// HasUserManagement reports whether r may manage the team hierarchy.
func HasUserManagement(r Role) bool { return UserManagementRoles.Contains(r) }

// CanPromote reports whether r may change other users' roles.
func CanPromote(r Role) bool { return PromotionRoles.Contains(r) }
