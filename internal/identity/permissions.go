package identity

import (
	"slices"

	"github.com/aridosvaldez/aridos/internal/domain"
)

// PermissionTable maps each role to the set of permissions it grants.
// Roles missing from the table grant nothing.
type PermissionTable map[domain.Role]map[domain.Permission]struct{}

// NewPermissionTable builds a table from role -> permission lists.
func NewPermissionTable(grants map[domain.Role][]domain.Permission) PermissionTable {
	table := make(PermissionTable, len(grants))
	for role, perms := range grants {
		set := make(map[domain.Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		table[role] = set
	}
	return table
}

// DefaultPermissions is the role table used by both the agent and the server.
var DefaultPermissions = NewPermissionTable(map[domain.Role][]domain.Permission{
	domain.RoleAdmin: {
		domain.PermissionRead,
		domain.PermissionWrite,
		domain.PermissionDelete,
		domain.PermissionManageUsers,
		domain.PermissionViewReports,
	},
	domain.RoleOperator: {
		domain.PermissionRead,
		domain.PermissionWrite,
		domain.PermissionViewMovements,
	},
	domain.RoleViewer: {
		domain.PermissionRead,
	},
})

// Allows reports whether role grants perm.
func (t PermissionTable) Allows(role domain.Role, perm domain.Permission) bool {
	perms, ok := t[role]
	if !ok {
		return false
	}
	_, ok = perms[perm]
	return ok
}

// Permissions returns the sorted permissions granted to role.
func (t PermissionTable) Permissions(role domain.Role) []domain.Permission {
	perms := make([]domain.Permission, 0, len(t[role]))
	for p := range t[role] {
		perms = append(perms, p)
	}
	slices.Sort(perms)
	return perms
}
