package identity

import (
	"context"
	"sync"

	"github.com/aridosvaldez/aridos/internal/domain"
)

// fakeBackend implements Backend for testing.
type fakeBackend struct {
	mu sync.Mutex

	session     *Session
	currentErr  error
	currentGate chan struct{}

	subs   map[int]SessionChangeFunc
	nextID int

	signInErr     error
	signInSession *Session
	signInCalls   int
	signOutErr    error
	signOutCalls  int

	profiles     map[string]*domain.Profile
	profileErr   error
	profileGates map[string]chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		subs:         make(map[int]SessionChangeFunc),
		profiles:     make(map[string]*domain.Profile),
		profileGates: make(map[string]chan struct{}),
	}
}

func (f *fakeBackend) CurrentSession(ctx context.Context) (*Session, error) {
	f.mu.Lock()
	gate := f.currentGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.currentErr
}

func (f *fakeBackend) OnSessionChange(fn SessionChangeFunc) Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeBackend) SignInWithPassword(_ context.Context, _, _ string) error {
	f.mu.Lock()
	f.signInCalls++
	err := f.signInErr
	sess := f.signInSession
	f.mu.Unlock()

	if err != nil {
		return err
	}
	go f.emit(sess)
	return nil
}

func (f *fakeBackend) SignOut(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	return f.signOutErr
}

func (f *fakeBackend) GetProfile(ctx context.Context, identity string) (*domain.Profile, error) {
	f.mu.Lock()
	gate := f.profileGates[identity]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p, ok := f.profiles[identity]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (f *fakeBackend) emit(sess *Session) {
	f.mu.Lock()
	subs := make([]SessionChangeFunc, 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(sess)
	}
}

func (f *fakeBackend) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeBackend) gateProfile(identity string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.profileGates[identity] = gate
	return gate
}
