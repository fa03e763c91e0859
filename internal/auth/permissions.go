package auth

// Permission is a capability checked on API routes.
type Permission string

const (
	PermEntityRead       Permission = "entity:read"
	PermDeviceOperate    Permission = "device:operate"
	PermControllerManage Permission = "controller:manage"
)

// Roles are strictly ordered; each one holds every permission of the roles
// below it.
var roleRank = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// minimumRole is the lowest role granted each permission.
var minimumRole = []struct {
	perm Permission
	role Role
}{
	{PermEntityRead, RoleViewer},
	{PermDeviceOperate, RoleOperator},
	{PermControllerManage, RoleAdmin},
}

// rank is zero for unknown roles.
func (r Role) rank() int {
	return roleRank[r]
}

// AtLeast reports whether r is floor or a higher role. Unknown roles never are.
func (r Role) AtLeast(floor Role) bool {
	return r.rank() > 0 && r.rank() >= floor.rank()
}

// HasPermission reports whether role is granted perm.
func HasPermission(role Role, perm Permission) bool {
	for _, m := range minimumRole {
		if m.perm == perm {
			return role.AtLeast(m.role)
		}
	}
	return false
}

// PermissionsForRole lists the permissions of role, lowest first. It is
// nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	var perms []Permission
	for _, m := range minimumRole {
		if role.AtLeast(m.role) {
			perms = append(perms, m.perm)
		}
	}
	return perms
}
