package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "token-123"

// fakeServer mimics the server's auth, profile and batch endpoints.
type fakeServer struct {
	mu          sync.Mutex
	sessionCode int
	batchCode   int
	batches     [][]domain.PendingOperation
	logouts     int
}

func (f *fakeServer) submitted() [][]domain.PendingOperation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]domain.PendingOperation(nil), f.batches...)
}

func (f *fakeServer) logoutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logouts
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"message": "unauthorized"}})
			return false
		}
		return true
	}

	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"message": "invalid credentials"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": domain.AuthToken{
			AccessToken: testToken,
			ExpiresAt:   time.Now().Add(time.Hour),
			User:        &domain.User{ID: "u-1", Email: req.Email, Name: "Ana", Role: domain.RoleOperator},
		}})
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.logouts++
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/v1/auth/session", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		code := f.sessionCode
		f.mu.Unlock()
		if code != 0 {
			writeJSON(w, code, map[string]any{"error": map[string]string{"message": "nope"}})
			return
		}
		if !authorized(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": domain.User{ID: "u-1", Email: "ana@aridos.com.ar"}})
	})
	mux.HandleFunc("GET /api/v1/profiles/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		if r.PathValue("id") != "u-1" {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"message": "user not found"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": domain.Profile{Name: "Ana", Role: domain.RoleOperator, Email: "ana@aridos.com.ar"}})
	})
	mux.HandleFunc("POST /api/v1/batches", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		var req batchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		code := f.batchCode
		f.batches = append(f.batches, req.Operations)
		f.mu.Unlock()

		if code != 0 {
			writeJSON(w, code, map[string]any{"error": map[string]string{"message": "rejected"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": domain.BatchResult{Applied: len(req.Operations)}})
	})
	return mux
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, fake *fakeServer, store TokenStore) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Timeout: time.Second}, store, discardLogger())
}

func storedSession(expiresIn time.Duration) *identity.Session {
	return &identity.Session{
		Identity:    "u-1",
		Email:       "ana@aridos.com.ar",
		AccessToken: testToken,
		ExpiresAt:   time.Now().Add(expiresIn),
	}
}

func TestClient_SignInStoresSessionAndNotifies(t *testing.T) {
	// Arrange
	store := &MemoryStore{}
	client := newTestClient(t, &fakeServer{}, store)

	var got []*identity.Session
	client.OnSessionChange(func(sess *identity.Session) { got = append(got, sess) })

	// Act
	err := client.SignInWithPassword(context.Background(), "ana@aridos.com.ar", "secret")

	// Assert
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u-1", got[0].Identity)

	stored, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, testToken, stored.AccessToken)
}

func TestClient_SignInInvalidCredentials(t *testing.T) {
	store := &MemoryStore{}
	client := newTestClient(t, &fakeServer{}, store)
	notified := false
	client.OnSessionChange(func(*identity.Session) { notified = true })

	err := client.SignInWithPassword(context.Background(), "ana@aridos.com.ar", "wrong")

	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	assert.False(t, notified)
	stored, _ := store.Load()
	assert.Nil(t, stored)
}

func TestClient_SignInUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(Config{BaseURL: srv.URL, Timeout: 200 * time.Millisecond}, &MemoryStore{}, discardLogger())

	err := client.SignInWithPassword(context.Background(), "ana@aridos.com.ar", "secret")

	assert.ErrorIs(t, err, identity.ErrNetwork)
}

func TestClient_CurrentSession(t *testing.T) {
	tests := []struct {
		name        string
		stored      *identity.Session
		sessionCode int
		wantSession bool
		wantCleared bool
	}{
		{name: "nothing stored", stored: nil},
		{name: "valid token", stored: storedSession(time.Hour), wantSession: true},
		{name: "expired token", stored: storedSession(-time.Minute), wantCleared: true},
		{name: "rejected token", stored: storedSession(time.Hour), sessionCode: http.StatusUnauthorized, wantCleared: true},
		{name: "server failing keeps stored session", stored: storedSession(time.Hour), sessionCode: http.StatusBadGateway, wantSession: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			store := &MemoryStore{}
			if tt.stored != nil {
				require.NoError(t, store.Save(tt.stored))
			}
			client := newTestClient(t, &fakeServer{sessionCode: tt.sessionCode}, store)

			// Act
			sess, err := client.CurrentSession(context.Background())

			// Assert
			require.NoError(t, err)
			if tt.wantSession {
				require.NotNil(t, sess)
				assert.Equal(t, "u-1", sess.Identity)
			} else {
				assert.Nil(t, sess)
			}
			stored, _ := store.Load()
			if tt.wantCleared {
				assert.Nil(t, stored)
			}
		})
	}
}

func TestClient_SignOutClearsEvenWhenServerFails(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	store := &MemoryStore{}
	require.NoError(t, store.Save(storedSession(time.Hour)))
	client := NewClient(Config{BaseURL: srv.URL}, store, discardLogger())

	var got []*identity.Session
	client.OnSessionChange(func(sess *identity.Session) { got = append(got, sess) })

	// Act
	err := client.SignOut(context.Background())

	// Assert
	assert.ErrorIs(t, err, identity.ErrNetwork)
	stored, _ := store.Load()
	assert.Nil(t, stored)
	require.Len(t, got, 1)
	assert.Nil(t, got[0])
}

func TestClient_SignOut(t *testing.T) {
	fake := &fakeServer{}
	store := &MemoryStore{}
	require.NoError(t, store.Save(storedSession(time.Hour)))
	client := newTestClient(t, fake, store)

	require.NoError(t, client.SignOut(context.Background()))

	assert.Equal(t, 1, fake.logoutCalls())
}

func TestClient_Unsubscribe(t *testing.T) {
	client := newTestClient(t, &fakeServer{}, &MemoryStore{})
	calls := 0
	unsubscribe := client.OnSessionChange(func(*identity.Session) { calls++ })

	unsubscribe()
	require.NoError(t, client.SignInWithPassword(context.Background(), "ana@aridos.com.ar", "secret"))

	assert.Zero(t, calls)
}

func TestClient_GetProfile(t *testing.T) {
	store := &MemoryStore{}
	require.NoError(t, store.Save(storedSession(time.Hour)))
	client := newTestClient(t, &fakeServer{}, store)

	profile, err := client.GetProfile(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOperator, profile.Role)

	_, err = client.GetProfile(context.Background(), "u-404")
	assert.ErrorIs(t, err, identity.ErrProfileNotFound)
}

func TestClient_GetProfileWithoutToken(t *testing.T) {
	client := newTestClient(t, &fakeServer{}, &MemoryStore{})

	_, err := client.GetProfile(context.Background(), "u-1")

	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestClient_SubmitBatch(t *testing.T) {
	ops := []domain.PendingOperation{
		{ID: "op-1", Payload: json.RawMessage(`{"type":"entrada"}`), EnqueuedAt: time.Now().UTC()},
		{ID: "op-2", Payload: json.RawMessage(`{"type":"salida"}`), EnqueuedAt: time.Now().UTC()},
	}

	t.Run("accepted", func(t *testing.T) {
		fake := &fakeServer{}
		store := &MemoryStore{}
		require.NoError(t, store.Save(storedSession(time.Hour)))
		client := newTestClient(t, fake, store)

		require.NoError(t, client.SubmitBatch(context.Background(), ops))

		batches := fake.submitted()
		require.Len(t, batches, 1)
		assert.Equal(t, []string{"op-1", "op-2"}, []string{batches[0][0].ID, batches[0][1].ID})
	})

	t.Run("rejected", func(t *testing.T) {
		store := &MemoryStore{}
		require.NoError(t, store.Save(storedSession(time.Hour)))
		client := newTestClient(t, &fakeServer{batchCode: http.StatusUnprocessableEntity}, store)

		err := client.SubmitBatch(context.Background(), ops)

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnprocessableEntity, se.Code)
		assert.Equal(t, "rejected", se.Message)
		assert.False(t, se.IsRetryable())
	})
}
