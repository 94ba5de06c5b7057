// Package backend is the agent's HTTP client for the central server. It
// provides the auth backend for identity.SessionManager and the batch
// submitter for connectivity.Tracker.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/identity"
)

const defaultTimeout = 10 * time.Second

// ErrNotSignedIn is returned by calls that need a bearer token when none is stored.
var ErrNotSignedIn = errors.New("not signed in")

// Config holds backend client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the server's /api/v1 API.
//
// Session-change notifications are emitted locally after sign-in and
// sign-out, on the calling goroutine, once the token store is updated.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      TokenStore
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	subs      map[int]identity.SessionChangeFunc
	nextSubID int
}

// NewClient creates a backend client.
func NewClient(config Config, store TokenStore, logger *slog.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		store:      store,
		logger:     logger,
		now:        time.Now,
		subs:       make(map[int]identity.SessionChangeFunc),
	}
}

// CurrentSession returns the stored session after checking it with the server.
// An expired or rejected token is cleared. When the server cannot be reached
// the stored session is trusted until it expires.
func (c *Client) CurrentSession(ctx context.Context) (*identity.Session, error) {
	sess, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired(c.now()) {
		c.logger.Info("stored session expired", "identity", sess.Identity)
		return nil, c.store.Clear()
	}

	var user domain.User
	err = c.do(ctx, http.MethodGet, "/api/v1/auth/session", sess.AccessToken, nil, &user)
	switch {
	case err == nil:
		sess.Identity = user.ID
		sess.Email = user.Email
		return sess, nil
	case isStatus(err, http.StatusUnauthorized):
		c.logger.Info("stored session rejected by server", "identity", sess.Identity)
		return nil, c.store.Clear()
	case errors.Is(err, identity.ErrNetwork):
		c.logger.Warn("server unreachable, using stored session", "identity", sess.Identity, "error", err)
		return sess, nil
	default:
		return nil, err
	}
}

// OnSessionChange registers fn for sign-in and sign-out events.
func (c *Client) OnSessionChange(fn identity.SessionChangeFunc) identity.Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInWithPassword exchanges credentials for a token and stores it.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) error {
	var token domain.AuthToken
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: email, Password: password}, &token)
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			return identity.ErrInvalidCredentials
		}
		return err
	}
	if token.User == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: login response without token", identity.ErrNetwork)
	}

	sess := &identity.Session{
		Identity:    token.User.ID,
		Email:       token.User.Email,
		AccessToken: token.AccessToken,
		ExpiresAt:   token.ExpiresAt,
	}
	if err := c.store.Save(sess); err != nil {
		c.logger.Error("failed to persist session", "error", err)
	}

	c.emit(sess)
	return nil
}

// SignOut revokes the token server-side and always clears it locally.
func (c *Client) SignOut(ctx context.Context) error {
	sess, loadErr := c.store.Load()

	var remoteErr error
	if sess != nil {
		remoteErr = c.do(ctx, http.MethodPost, "/api/v1/auth/logout", sess.AccessToken, nil, nil)
	}
	if err := c.store.Clear(); err != nil {
		c.logger.Error("failed to clear stored session", "error", err)
	}

	c.emit(nil)
	return errors.Join(loadErr, remoteErr)
}

// GetProfile fetches the profile of identity.
func (c *Client) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	var profile domain.Profile
	err = c.do(ctx, http.MethodGet, "/api/v1/profiles/"+url.PathEscape(id), token, nil, &profile)
	if isStatus(err, http.StatusNotFound) {
		return nil, identity.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

type batchRequest struct {
	Operations []domain.PendingOperation `json:"operations"`
}

// SubmitBatch replays ops in order. The server applies all of them or none.
func (c *Client) SubmitBatch(ctx context.Context, ops []domain.PendingOperation) error {
	token, err := c.token()
	if err != nil {
		return err
	}

	var result domain.BatchResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/batches", token, batchRequest{Operations: ops}, &result); err != nil {
		return err
	}
	c.logger.Debug("batch accepted", "applied", result.Applied, "duplicates", result.Duplicates)
	return nil
}

func (c *Client) token() (string, error) {
	sess, err := c.store.Load()
	if err != nil {
		return "", err
	}
	if sess == nil || sess.AccessToken == "" {
		return "", ErrNotSignedIn
	}
	return sess.AccessToken, nil
}

func (c *Client) emit(sess *identity.Session) {
	c.mu.Lock()
	subs := make([]identity.SessionChangeFunc, 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(sess)
	}
}

// do sends a JSON request and decodes the {"data": ...} envelope into out.
// Transport failures and 5xx answers wrap identity.ErrNetwork.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", identity.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return newStatusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
