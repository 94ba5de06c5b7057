// Package connectivity tracks backend reachability and buffers writes made
// while offline, replaying them as one batch when the connection returns.
package connectivity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/notifications"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// User-facing messages.
const (
	MessageOnline      = "Conexión restaurada. Sincronizando datos..."
	MessageOffline     = "Sin conexión. Trabajando en modo offline"
	MessageSyncSuccess = "Datos sincronizados correctamente"
	MessageSyncError   = "Error al sincronizar datos"
)

// edgeBuffer bounds reachability edges waiting behind a running sync.
const edgeBuffer = 16

// SyncPolicy decides what happens to a batch the backend rejected.
type SyncPolicy string

const (
	// ClearOnSuccess keeps rejected operations queued for the next sync.
	ClearOnSuccess SyncPolicy = "clear_on_success"
	// ClearAlways drops the submitted operations whatever the outcome.
	ClearAlways SyncPolicy = "clear_always"
)

// ParseSyncPolicy validates a policy name. An empty string means ClearOnSuccess.
func ParseSyncPolicy(s string) (SyncPolicy, error) {
	switch SyncPolicy(s) {
	case "", ClearOnSuccess:
		return ClearOnSuccess, nil
	case ClearAlways:
		return ClearAlways, nil
	}
	return "", fmt.Errorf("unknown sync policy %q", s)
}

// Status is a read-only projection of the tracker.
type Status struct {
	Online        bool       `json:"online"`
	Pending       int        `json:"pending"`
	Policy        SyncPolicy `json:"policy"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastSyncError string     `json:"last_sync_error,omitempty"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSyncPolicy sets the failure policy. Defaults to ClearOnSuccess.
func WithSyncPolicy(p SyncPolicy) Option {
	return func(t *Tracker) { t.policy = p }
}

// WithLogger sets the tracker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator overrides uuid-based operation ids.
func WithIDGenerator(newID func() string) Option {
	return func(t *Tracker) { t.newID = newID }
}

// Tracker holds the online flag and the FIFO queue of pending operations.
//
// Operations are only ever appended at the tail and removed from the head,
// so a sync that submitted the first n operations can drop exactly those
// even if more were enqueued while the batch was in flight.
type Tracker struct {
	submitter BatchSubmitter
	sink      notifications.Sink
	policy    SyncPolicy
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	mu            sync.Mutex
	online        bool
	queue         []domain.PendingOperation
	lastSyncAt    *time.Time
	lastSyncError string
	unsubscribe   func()

	flight singleflight.Group
	edges  chan bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTracker creates a tracker. initialOnline should come from the
// reachability signal at startup.
func NewTracker(initialOnline bool, submitter BatchSubmitter, sink notifications.Sink, opts ...Option) *Tracker {
	t := &Tracker{
		submitter: submitter,
		sink:      sink,
		policy:    ClearOnSuccess,
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
		online:    initialOnline,
		edges:     make(chan bool, edgeBuffer),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())

	recordOnline(initialOnline)
	pendingGauge.Set(0)
	return t
}

// IsOnline reports the last known reachability.
func (t *Tracker) IsOnline() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online
}

// PendingOperations returns a copy of the queue in FIFO order.
func (t *Tracker) PendingOperations() []domain.PendingOperation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.PendingOperation(nil), t.queue...)
}

// Status returns the current state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Status{
		Online:        t.online,
		Pending:       len(t.queue),
		Policy:        t.policy,
		LastSyncError: t.lastSyncError,
	}
	if t.lastSyncAt != nil {
		at := *t.lastSyncAt
		s.LastSyncAt = &at
	}
	return s
}

// AddPendingOperation appends payload to the tail of the queue, online or not.
func (t *Tracker) AddPendingOperation(payload json.RawMessage) domain.PendingOperation {
	op := domain.PendingOperation{
		ID:         t.newID(),
		Payload:    append(json.RawMessage(nil), payload...),
		EnqueuedAt: t.now().UTC(),
	}

	t.mu.Lock()
	t.queue = append(t.queue, op)
	pendingGauge.Set(float64(len(t.queue)))
	t.mu.Unlock()

	recordOperations("queued", 1)
	t.logger.Debug("operation queued", "operation_id", op.ID)
	return op
}

// HandleOffline marks the tracker offline and warns the operator.
// The queue is kept. Repeated offline reports are ignored.
func (t *Tracker) HandleOffline(ctx context.Context) {
	if !t.setOnline(false) {
		return
	}
	t.logger.Warn("backend unreachable, working offline")
	t.sink.Notify(ctx, MessageOffline, notifications.SeverityWarning)
}

// HandleOnline marks the tracker online, tells the operator and syncs.
// Repeated online reports are ignored.
func (t *Tracker) HandleOnline(ctx context.Context) {
	if !t.setOnline(true) {
		return
	}
	t.logger.Info("backend reachable again")
	t.sink.Notify(ctx, MessageOnline, notifications.SeverityInfo)

	if err := t.SyncData(ctx); err != nil {
		t.logger.Warn("sync after reconnect failed", "error", err)
	}
}

// SyncData submits every queued operation as one batch. It is a no-op when
// offline or when nothing is queued. Concurrent callers share a single
// in-flight submission and its result. The submission runs on the tracker's
// own context: a caller whose ctx ends stops waiting but does not abort the
// batch for the others.
func (t *Tracker) SyncData(ctx context.Context) error {
	t.mu.Lock()
	idle := !t.online || len(t.queue) == 0
	t.mu.Unlock()
	if idle {
		return nil
	}

	ch := t.flight.DoChan("sync", func() (any, error) {
		return nil, t.sync(t.ctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) sync(ctx context.Context) error {
	t.mu.Lock()
	if !t.online || len(t.queue) == 0 {
		t.mu.Unlock()
		return nil
	}
	batch := append([]domain.PendingOperation(nil), t.queue...)
	t.mu.Unlock()

	n := len(batch)
	logger := t.logger.With("operations", n, "policy", t.policy)
	logger.Info("syncing pending operations")

	start := time.Now()
	err := t.submitter.SubmitBatch(ctx, batch)
	elapsed := time.Since(start)

	if err != nil && ctx.Err() != nil {
		logger.Info("sync interrupted by shutdown, operations kept")
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}

	t.mu.Lock()
	now := t.now().UTC()
	t.lastSyncAt = &now
	if err == nil || t.policy == ClearAlways {
		t.queue = t.queue[n:]
	}
	if err != nil {
		t.lastSyncError = err.Error()
	} else {
		t.lastSyncError = ""
	}
	pendingGauge.Set(float64(len(t.queue)))
	t.mu.Unlock()

	if err != nil {
		recordSync("failure", elapsed)
		if t.policy == ClearAlways {
			recordOperations("dropped", n)
			logger.Error("sync failed, operations dropped", "error", err)
		} else {
			logger.Error("sync failed, operations kept for retry", "error", err)
		}
		t.sink.Notify(ctx, MessageSyncError, notifications.SeverityError)
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}

	recordSync("success", elapsed)
	recordOperations("synced", n)
	logger.Info("pending operations synced", "duration", elapsed)
	t.sink.Notify(ctx, MessageSyncSuccess, notifications.SeveritySuccess)
	return nil
}

// Watch follows reachability edges from signal until Close. Edges are
// handled one at a time, in the order the signal reported them, on a single
// tracker goroutine so the signal is never blocked by a sync.
func (t *Tracker) Watch(signal Signal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.unsubscribe != nil {
		return ErrAlreadyWatching
	}
	t.wg.Add(1)
	go t.runEdges()
	t.unsubscribe = signal.Subscribe(t.handleEdge)
	return nil
}

func (t *Tracker) handleEdge(online bool) {
	select {
	case t.edges <- online:
	case <-t.ctx.Done():
	}
}

func (t *Tracker) runEdges() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case online := <-t.edges:
			if online {
				t.HandleOnline(t.ctx)
			} else {
				t.HandleOffline(t.ctx)
			}
		}
	}
}

// Close detaches from the signal, stops edge handling and waits for it.
func (t *Tracker) Close() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	t.cancel()
	t.wg.Wait()
}

// setOnline stores v and reports whether it changed.
func (t *Tracker) setOnline(v bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.online == v {
		return false
	}
	t.online = v
	recordOnline(v)
	if v {
		edgesTotal.WithLabelValues("online").Inc()
	} else {
		edgesTotal.WithLabelValues("offline").Inc()
	}
	return true
}
