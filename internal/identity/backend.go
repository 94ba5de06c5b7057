package identity

import (
	"context"
	"time"

	"github.com/aridosvaldez/aridos/internal/domain"
)

// Session is the auth backend's view of a signed-in identity.
type Session struct {
	Identity    string    `json:"identity"`
	Email       string    `json:"email"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionChangeFunc receives session transitions. A nil session means signed out.
type SessionChangeFunc func(sess *Session)

// Unsubscribe detaches a SessionChangeFunc.
type Unsubscribe func()

// Backend is the auth/profile collaborator the SessionManager depends on.
type Backend interface {
	// CurrentSession returns the existing session, or nil when there is none.
	CurrentSession(ctx context.Context) (*Session, error)
	// OnSessionChange registers fn for every sign-in and sign-out.
	OnSessionChange(fn SessionChangeFunc) Unsubscribe
	// SignInWithPassword returns ErrInvalidCredentials or ErrNetwork on failure.
	SignInWithPassword(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	// GetProfile returns ErrProfileNotFound when the identity has no profile.
	GetProfile(ctx context.Context, identity string) (*domain.Profile, error)
}
