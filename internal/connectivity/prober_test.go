package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHealthServer(t *testing.T, healthy *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type edgeRecorder struct {
	mu    sync.Mutex
	edges []bool
}

func (e *edgeRecorder) record(online bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, online)
}

func (e *edgeRecorder) all() []bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bool(nil), e.edges...)
}

func TestProber_Check(t *testing.T) {
	// Arrange
	var healthy atomic.Bool
	srv := newHealthServer(t, &healthy)
	p := NewProber(ProberConfig{URL: srv.URL + "/healthz", FailureThreshold: 2}, discardLogger())
	rec := &edgeRecorder{}
	p.Subscribe(rec.record)
	ctx := context.Background()

	// Act & Assert
	assert.False(t, p.Online(), "starts offline")

	healthy.Store(true)
	assert.True(t, p.Check(ctx))
	assert.True(t, p.Check(ctx))

	healthy.Store(false)
	assert.True(t, p.Check(ctx), "one failure stays online")
	assert.False(t, p.Check(ctx), "threshold reached")

	healthy.Store(true)
	assert.True(t, p.Check(ctx))

	assert.Equal(t, []bool{true, false, true}, rec.all())
}

func TestProber_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProber(ProberConfig{URL: url, FailureThreshold: 1, Timeout: 200 * time.Millisecond}, discardLogger())

	assert.False(t, p.Check(context.Background()))
}

func TestProber_Unsubscribe(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := newHealthServer(t, &healthy)
	p := NewProber(ProberConfig{URL: srv.URL + "/healthz"}, discardLogger())
	rec := &edgeRecorder{}

	unsubscribe := p.Subscribe(rec.record)
	unsubscribe()
	p.Check(context.Background())

	assert.Empty(t, rec.all())
}

func TestProber_RunStopsOnCancel(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := newHealthServer(t, &healthy)
	p := NewProber(ProberConfig{URL: srv.URL + "/healthz", Interval: 10 * time.Millisecond}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, p.Online, waitFor, tick)
	cancel()

	select {
	case <-done:
	case <-time.After(waitFor):
		require.Fail(t, "Run did not return after cancel")
	}
}

func TestProber_Defaults(t *testing.T) {
	p := NewProber(ProberConfig{URL: "http://localhost"}, discardLogger())

	assert.Equal(t, DefaultProberConfig().Interval, p.config.Interval)
	assert.Equal(t, DefaultProberConfig().FailureThreshold, p.config.FailureThreshold)
	assert.Equal(t, DefaultProberConfig().Timeout, p.httpClient.Timeout)
}
