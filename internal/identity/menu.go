package identity

import "github.com/aridosvaldez/aridos/internal/domain"

// MenuItem is a navigation entry gated by a permission.
type MenuItem struct {
	Title      string            `json:"title"`
	Path       string            `json:"path"`
	Permission domain.Permission `json:"permission"`
}

// DefaultMenu is the terminal's sidebar.
var DefaultMenu = []MenuItem{
	{Title: "Dashboard", Path: "/dashboard", Permission: domain.PermissionRead},
	{Title: "Materiales", Path: "/materiales", Permission: domain.PermissionRead},
	{Title: "Maquinaria", Path: "/maquinaria", Permission: domain.PermissionRead},
	{Title: "Movimientos", Path: "/movimientos", Permission: domain.PermissionRead},
	{Title: "Reportes", Path: "/reportes", Permission: domain.PermissionRead},
	{Title: "Usuarios", Path: "/usuarios", Permission: domain.PermissionManageUsers},
}

// Navigation returns the entries of menu the current session may open,
// in menu order.
func (m *SessionManager) Navigation(menu []MenuItem) []MenuItem {
	visible := make([]MenuItem, 0, len(menu))
	for _, item := range menu {
		if m.HasPermission(item.Permission) {
			visible = append(visible, item)
		}
	}
	return visible
}
