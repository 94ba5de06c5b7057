package domain

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

type Permission string

const (
	PermissionRead          Permission = "read"
	PermissionWrite         Permission = "write"
	PermissionDelete        Permission = "delete"
	PermissionManageUsers   Permission = "manage_users"
	PermissionViewReports   Permission = "view_reports"
	PermissionViewMovements Permission = "view_movements"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile is the backend-stored metadata attached to an authenticated identity.
type Profile struct {
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Email string `json:"email"`
}

// Profile returns the profile projection of the user.
func (u *User) Profile() *Profile {
	return &Profile{Name: u.Name, Role: u.Role, Email: u.Email}
}

// AuthToken is issued on sign-in and presented as a bearer token afterwards.
type AuthToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}
