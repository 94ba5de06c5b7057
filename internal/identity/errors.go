package identity

import "errors"

// Sign-in errors. Both propagate to the caller of SessionManager.SignIn.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNetwork            = errors.New("backend unreachable")
)

// Profile and session errors. These never leave the SessionManager.
var (
	ErrProfileLoad     = errors.New("profile load failed")
	ErrProfileNotFound = errors.New("profile not found")
	ErrAlreadyStarted  = errors.New("session manager already started")
)
