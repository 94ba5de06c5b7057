package accounts

import (
	"context"

	"github.com/aridosvaldez/aridos/internal/domain"
)

// UserFilter narrows ListUsers.
type UserFilter struct {
	// Search matches name or email, case-insensitively.
	Search string
	Role   *domain.Role
}

// Repository defines the interface for user storage.
type Repository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
}

// TokenIssuer issues and revokes access tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, user *domain.User) (*domain.AuthToken, error)
	Revoke(ctx context.Context, tokenID string) error
}
