package identity

import (
	"testing"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/stretchr/testify/assert"
)

var allPermissions = []domain.Permission{
	domain.PermissionRead,
	domain.PermissionWrite,
	domain.PermissionDelete,
	domain.PermissionManageUsers,
	domain.PermissionViewReports,
	domain.PermissionViewMovements,
}

func TestDefaultPermissions_Allows(t *testing.T) {
	granted := map[domain.Role][]domain.Permission{
		domain.RoleAdmin: {
			domain.PermissionRead, domain.PermissionWrite, domain.PermissionDelete,
			domain.PermissionManageUsers, domain.PermissionViewReports,
		},
		domain.RoleOperator: {domain.PermissionRead, domain.PermissionWrite, domain.PermissionViewMovements},
		domain.RoleViewer:   {domain.PermissionRead},
	}

	for role, perms := range granted {
		for _, perm := range allPermissions {
			want := false
			for _, p := range perms {
				if p == perm {
					want = true
				}
			}
			assert.Equal(t, want, DefaultPermissions.Allows(role, perm), "%s/%s", role, perm)
		}
	}
}

func TestDefaultPermissions_AdminCannotViewMovements(t *testing.T) {
	assert.False(t, DefaultPermissions.Allows(domain.RoleAdmin, domain.PermissionViewMovements))
}

func TestDefaultPermissions_UnknownRole(t *testing.T) {
	for _, perm := range allPermissions {
		assert.False(t, DefaultPermissions.Allows("supervisor", perm))
		assert.False(t, DefaultPermissions.Allows("", perm))
	}
	assert.Empty(t, DefaultPermissions.Permissions("supervisor"))
}

func TestPermissions_Sorted(t *testing.T) {
	assert.Equal(t,
		[]domain.Permission{domain.PermissionRead, domain.PermissionViewMovements, domain.PermissionWrite},
		DefaultPermissions.Permissions(domain.RoleOperator),
	)
}

func TestNewPermissionTable_Custom(t *testing.T) {
	table := NewPermissionTable(map[domain.Role][]domain.Permission{
		domain.RoleViewer: {domain.PermissionRead, domain.PermissionViewReports},
	})

	assert.True(t, table.Allows(domain.RoleViewer, domain.PermissionViewReports))
	assert.False(t, table.Allows(domain.RoleAdmin, domain.PermissionRead))
}
