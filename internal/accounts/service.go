// Package accounts implements the server side of authentication and user
// management: password sign-in, bearer tokens and the users admin API.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aridosvaldez/aridos/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor for stored password hashes.
const BcryptCost = 12

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Service implements account business logic.
type Service struct {
	repo   Repository
	tokens TokenIssuer
}

// NewService creates a new account service.
func NewService(repo Repository, tokens TokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// LoginInput contains data for user login.
type LoginInput struct {
	Email    string
	Password string
}

// Login checks the password and issues an access token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, input LoginInput) (*domain.AuthToken, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Logout revokes the token with id tokenID. Unknown ids are ignored.
func (s *Service) Logout(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, tokenID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// GetUserByID returns a user by ID.
func (s *Service) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// GetProfile returns the profile projection of a user.
func (s *Service) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// ListUsers returns users matching filter ordered by name.
func (s *Service) ListUsers(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.ListUsers(ctx, filter)
}

// CreateUserInput contains data for creating a user.
type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Role     domain.Role
}

// CreateUser stores a new user with a hashed password.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	if !input.Role.IsValid() {
		return nil, ErrInvalidRole
	}

	email := normalizeEmail(input.Email)
	_, err := s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailExists
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: hash,
		Role:         input.Role,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	slog.Info("user created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// UpdateUserInput holds optional changes. Nil fields are left unchanged.
type UpdateUserInput struct {
	Name     *string
	Role     *domain.Role
	Password *string
}

// UpdateUser applies input to the user with the given id.
func (s *Service) UpdateUser(ctx context.Context, id string, input UpdateUserInput) (*domain.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Role != nil {
		if !input.Role.IsValid() {
			return nil, ErrInvalidRole
		}
		user.Role = *input.Role
	}
	if input.Password != nil {
		hash, err := HashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
