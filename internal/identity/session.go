// Package identity owns the terminal's authenticated session and answers
// permission checks against the role table.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aridosvaldez/aridos/internal/domain"
)

// State is the lifecycle stage of the session.
type State int

// Session states.
const (
	StateLoading State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a read-only projection of the session.
type Snapshot struct {
	State       State               `json:"state"`
	Identity    string              `json:"identity,omitempty"`
	Profile     *domain.Profile     `json:"profile,omitempty"`
	Permissions []domain.Permission `json:"permissions"`
}

// Option configures a SessionManager.
type Option func(*SessionManager)

// WithPermissionTable overrides DefaultPermissions.
func WithPermissionTable(table PermissionTable) Option {
	return func(m *SessionManager) {
		m.perms = table
	}
}

// WithLogger sets the logger used for swallowed backend errors.
func WithLogger(logger *slog.Logger) Option {
	return func(m *SessionManager) {
		m.logger = logger
	}
}

// SessionManager tracks the single session of this process.
//
// The backend's session-change subscription is the only writer of the
// identity. Every transition bumps a generation counter; profile fetches
// started for an older generation are discarded when they complete.
type SessionManager struct {
	backend Backend
	perms   PermissionTable
	logger  *slog.Logger

	mu         sync.RWMutex
	state      State
	identity   string
	profile    *domain.Profile
	loading    bool
	generation uint64
	changed    chan struct{}
	started    bool
	closed     bool

	unsubscribe Unsubscribe
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewSessionManager creates a manager in the Loading state.
func NewSessionManager(backend Backend, opts ...Option) *SessionManager {
	m := &SessionManager{
		backend: backend,
		perms:   DefaultPermissions,
		logger:  slog.Default(),
		state:   StateLoading,
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Start subscribes to session changes and resolves the initial session.
// A notification that arrives while the lookup is in flight wins over it.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	startGen := m.generation
	m.mu.Unlock()

	unsubscribe := m.backend.OnSessionChange(m.handleSessionChange)

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	sess, err := m.backend.CurrentSession(ctx)
	if err != nil {
		m.logger.Warn("failed to look up current session", "error", err)
		sess = nil
	}

	m.apply(sess, &startGen)
	return nil
}

// Close unsubscribes from the backend and waits for in-flight profile fetches.
func (m *SessionManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.cancel()
	m.wg.Wait()
}

// SignIn authenticates against the backend and waits until the resulting
// session-change notification has been applied.
func (m *SessionManager) SignIn(ctx context.Context, email, password string) error {
	m.mu.RLock()
	startGen := m.generation
	m.mu.RUnlock()

	if err := m.backend.SignInWithPassword(ctx, email, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrNetwork) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	for {
		m.mu.RLock()
		gen, state, changed := m.generation, m.state, m.changed
		m.mu.RUnlock()

		if gen > startGen && state == StateAuthenticated {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("wait for session change: %w", ctx.Err())
		}
	}
}

// SignOut always leaves the local session cleared. Remote failures are logged.
func (m *SessionManager) SignOut(ctx context.Context) {
	if err := m.backend.SignOut(ctx); err != nil {
		m.logger.Warn("remote sign out failed, clearing local session", "error", err)
	}
	m.apply(nil, nil)
}

// HasPermission reports whether the current profile's role grants perm.
// It is false while loading, signed out, without a profile or with an unknown role.
func (m *SessionManager) HasPermission(perm domain.Permission) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateAuthenticated || m.profile == nil {
		return false
	}
	return m.perms.Allows(m.profile.Role, perm)
}

// IsAuthenticated reports whether an identity is signed in.
func (m *SessionManager) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

// State returns the current lifecycle state.
func (m *SessionManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot returns a copy of the current session.
func (m *SessionManager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		State:       m.state,
		Identity:    m.identity,
		Permissions: []domain.Permission{},
	}
	if m.profile != nil {
		profile := *m.profile
		snap.Profile = &profile
		if m.state == StateAuthenticated {
			snap.Permissions = m.perms.Permissions(profile.Role)
		}
	}
	return snap
}

// WaitProfile blocks until the profile fetch of the current session has
// finished, successfully or not. It returns at once when signed out.
func (m *SessionManager) WaitProfile(ctx context.Context) error {
	for {
		m.mu.RLock()
		pending, changed := m.state == StateAuthenticated && m.loading, m.changed
		m.mu.RUnlock()

		if !pending {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Changed returns a channel closed on the next state or profile change.
func (m *SessionManager) Changed() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changed
}

func (m *SessionManager) handleSessionChange(sess *Session) {
	m.apply(sess, nil)
}

// apply transitions to sess (nil means signed out). When ifGeneration is set
// the transition is skipped if any other transition happened since.
func (m *SessionManager) apply(sess *Session, ifGeneration *uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if ifGeneration != nil && m.generation != *ifGeneration {
		return
	}

	m.generation++

	if sess == nil || sess.Identity == "" {
		m.state = StateUnauthenticated
		m.identity = ""
		m.profile = nil
		m.loading = false
		m.broadcastLocked()
		return
	}

	if sess.Identity != m.identity {
		m.profile = nil
	}
	m.state = StateAuthenticated
	m.identity = sess.Identity
	m.loading = true
	m.broadcastLocked()

	m.wg.Add(1)
	go m.loadProfile(m.generation, sess.Identity)
}

func (m *SessionManager) loadProfile(gen uint64, identity string) {
	defer m.wg.Done()

	profile, err := m.backend.GetProfile(m.ctx, identity)
	switch {
	case err != nil:
		m.logger.Error("failed to load user profile",
			"identity", identity,
			"error", fmt.Errorf("%w: %w", ErrProfileLoad, err),
		)
	case profile == nil:
		m.logger.Warn("user has no profile", "identity", identity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen || m.identity != identity {
		m.logger.Debug("discarding stale profile", "identity", identity)
		return
	}
	if err == nil && profile != nil {
		m.profile = profile
	}
	m.loading = false
	m.broadcastLocked()
}

func (m *SessionManager) broadcastLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}
