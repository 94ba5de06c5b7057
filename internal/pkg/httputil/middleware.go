package httputil

import (
	"context"
	"net/http"
	"strings"

	"github.com/aridosvaldez/aridos/internal/domain"
)

// CORSMiddleware creates CORS middleware that handles preflight requests
// and adds appropriate CORS headers to responses.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	originsSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if originsSet[origin] || originsSet["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

// Context keys for storing the authenticated principal.
const (
	UserIDKey  contextKey = "user_id"
	RoleKey    contextKey = "role"
	TokenIDKey contextKey = "token_id"
)

// Principal is the identity a bearer token resolves to.
type Principal struct {
	UserID  string
	Role    domain.Role
	TokenID string
}

// TokenValidator resolves bearer tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Principal, error)
}

// RoleAuthorizer answers whether a role holds a permission.
type RoleAuthorizer interface {
	Allows(role domain.Role, perm domain.Permission) bool
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware creates authentication middleware.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token, ok := BearerToken(r)
			if !ok {
				Error(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			principal, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, principal.UserID)
			ctx = context.WithValue(ctx, RoleKey, principal.Role)
			ctx = context.WithValue(ctx, TokenIDKey, principal.TokenID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission lets the request through when the caller's role holds
// any of perms.
func RequirePermission(authz RoleAuthorizer, perms ...domain.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := r.Context().Value(RoleKey).(domain.Role)
			if !ok {
				Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			for _, p := range perms {
				if authz.Allows(role, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			Error(w, http.StatusForbidden, "insufficient permissions")
		})
	}
}

// GetUserID extracts user ID from context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// GetRole extracts role from context.
func GetRole(ctx context.Context) domain.Role {
	if role, ok := ctx.Value(RoleKey).(domain.Role); ok {
		return role
	}
	return ""
}

// GetTokenID extracts the token id (jti) from context.
func GetTokenID(ctx context.Context) string {
	if id, ok := ctx.Value(TokenIDKey).(string); ok {
		return id
	}
	return ""
}
