package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aridosvaldez/aridos/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestTracker(t *testing.T, online bool, sub BatchSubmitter, sink notifications.Sink, opts ...Option) *Tracker {
	t.Helper()
	n := 0
	opts = append([]Option{
		WithLogger(discardLogger()),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("op-%d", n) }),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }),
	}, opts...)
	tr := NewTracker(online, sub, sink, opts...)
	t.Cleanup(tr.Close)
	return tr
}

func payload(i int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))
}

func TestTracker_AddPendingOperation(t *testing.T) {
	tr := newTestTracker(t, false, &fakeSubmitter{}, &recordingSink{})

	first := tr.AddPendingOperation(payload(1))
	second := tr.AddPendingOperation(payload(2))

	ops := tr.PendingOperations()
	require.Len(t, ops, 2)
	assert.Equal(t, "op-1", first.ID)
	assert.Equal(t, "op-2", second.ID)
	assert.Equal(t, first, ops[0], "queue is FIFO")
	assert.JSONEq(t, `{"n":2}`, string(ops[1].Payload))
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), ops[0].EnqueuedAt)
}

func TestTracker_PendingOperationsReturnsCopy(t *testing.T) {
	tr := newTestTracker(t, false, &fakeSubmitter{}, &recordingSink{})
	tr.AddPendingOperation(payload(1))

	ops := tr.PendingOperations()
	ops[0].ID = "mutated"

	assert.Equal(t, "op-1", tr.PendingOperations()[0].ID)
}

func TestTracker_HandleOfflineOnlyOnEdge(t *testing.T) {
	// Arrange
	sink := &recordingSink{}
	tr := newTestTracker(t, true, &fakeSubmitter{}, sink)
	tr.AddPendingOperation(payload(1))

	// Act
	tr.HandleOffline(context.Background())
	tr.HandleOffline(context.Background())

	// Assert
	assert.False(t, tr.IsOnline())
	assert.Equal(t, []sentNotification{{MessageOffline, notifications.SeverityWarning}}, sink.all())
	assert.Len(t, tr.PendingOperations(), 1, "going offline keeps the queue")
}

func TestTracker_HandleOnlineSyncsQueueInOrder(t *testing.T) {
	// Arrange
	sink := &recordingSink{}
	sub := &fakeSubmitter{}
	tr := newTestTracker(t, false, sub, sink)
	for i := 1; i <= 3; i++ {
		tr.AddPendingOperation(payload(i))
	}

	// Act
	tr.HandleOnline(context.Background())

	// Assert
	assert.True(t, tr.IsOnline())
	require.Equal(t, 1, sub.calls())
	batch := sub.batch(0)
	require.Len(t, batch, 3)
	for i, op := range batch {
		assert.Equal(t, fmt.Sprintf("op-%d", i+1), op.ID)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i+1), string(op.Payload))
	}
	assert.Empty(t, tr.PendingOperations())
	assert.Equal(t, []sentNotification{
		{MessageOnline, notifications.SeverityInfo},
		{MessageSyncSuccess, notifications.SeveritySuccess},
	}, sink.all())
}

func TestTracker_HandleOnlineIgnoresRepeat(t *testing.T) {
	sink := &recordingSink{}
	sub := &fakeSubmitter{}
	tr := newTestTracker(t, true, sub, sink)
	tr.AddPendingOperation(payload(1))

	tr.HandleOnline(context.Background())

	assert.Empty(t, sink.all())
	assert.Zero(t, sub.calls())
	assert.Len(t, tr.PendingOperations(), 1)
}

func TestTracker_HandleOnlineWithEmptyQueue(t *testing.T) {
	sink := &recordingSink{}
	sub := &fakeSubmitter{}
	tr := newTestTracker(t, false, sub, sink)

	tr.HandleOnline(context.Background())

	assert.Zero(t, sub.calls())
	assert.Equal(t, []sentNotification{{MessageOnline, notifications.SeverityInfo}}, sink.all())
}

func TestTracker_SyncDataNoop(t *testing.T) {
	tests := []struct {
		name    string
		online  bool
		enqueue int
	}{
		{name: "offline with queued operations", online: false, enqueue: 2},
		{name: "online with empty queue", online: true, enqueue: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			sub := &fakeSubmitter{}
			tr := newTestTracker(t, tt.online, sub, sink)
			for i := range tt.enqueue {
				tr.AddPendingOperation(payload(i))
			}

			err := tr.SyncData(context.Background())

			require.NoError(t, err)
			assert.Zero(t, sub.calls())
			assert.Empty(t, sink.all())
			assert.Len(t, tr.PendingOperations(), tt.enqueue)
		})
	}
}

func TestTracker_SyncDataFailure(t *testing.T) {
	tests := []struct {
		name        string
		policy      SyncPolicy
		wantPending int
	}{
		{name: "clear on success keeps operations", policy: ClearOnSuccess, wantPending: 2},
		{name: "clear always drops operations", policy: ClearAlways, wantPending: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			backendErr := errors.New("500 internal error")
			sink := &recordingSink{}
			sub := &fakeSubmitter{errs: []error{backendErr}}
			tr := newTestTracker(t, true, sub, sink, WithSyncPolicy(tt.policy))
			tr.AddPendingOperation(payload(1))
			tr.AddPendingOperation(payload(2))

			// Act
			err := tr.SyncData(context.Background())

			// Assert
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSyncFailed)
			assert.ErrorIs(t, err, backendErr)
			assert.Len(t, tr.PendingOperations(), tt.wantPending)
			assert.Equal(t, []sentNotification{{MessageSyncError, notifications.SeverityError}}, sink.all())

			status := tr.Status()
			assert.Equal(t, backendErr.Error(), status.LastSyncError)
			assert.NotNil(t, status.LastSyncAt)
		})
	}
}

func TestTracker_RetryAfterFailureResubmitsSameOperations(t *testing.T) {
	sub := &fakeSubmitter{errs: []error{errors.New("timeout")}}
	tr := newTestTracker(t, true, sub, &recordingSink{})
	op := tr.AddPendingOperation(payload(1))

	require.Error(t, tr.SyncData(context.Background()))
	require.NoError(t, tr.SyncData(context.Background()))

	require.Equal(t, 2, sub.calls())
	assert.Equal(t, op.ID, sub.batch(1)[0].ID, "retry reuses the idempotency key")
	assert.Empty(t, tr.PendingOperations())
	assert.Empty(t, tr.Status().LastSyncError)
}

func TestTracker_OperationsAddedDuringSyncSurvive(t *testing.T) {
	// Arrange
	sub := &fakeSubmitter{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	tr := newTestTracker(t, true, sub, &recordingSink{})
	tr.AddPendingOperation(payload(1))

	done := make(chan error, 1)
	go func() { done <- tr.SyncData(context.Background()) }()
	<-sub.entered

	// Act
	late := tr.AddPendingOperation(payload(2))
	close(sub.gate)

	// Assert
	require.NoError(t, <-done)
	assert.Len(t, sub.batch(0), 1)
	ops := tr.PendingOperations()
	require.Len(t, ops, 1)
	assert.Equal(t, late.ID, ops[0].ID)
}

func TestTracker_ConcurrentSyncSharesSubmission(t *testing.T) {
	// Arrange
	sub := &fakeSubmitter{gate: make(chan struct{}), entered: make(chan struct{}, 4)}
	tr := newTestTracker(t, true, sub, &recordingSink{})
	tr.AddPendingOperation(payload(1))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	start := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- tr.SyncData(context.Background())
		}()
	}

	// Act
	start()
	<-sub.entered
	start()
	time.Sleep(20 * time.Millisecond)
	close(sub.gate)
	wg.Wait()
	close(errs)

	// Assert
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, sub.calls())
	assert.Empty(t, tr.PendingOperations())
}

func TestTracker_WatchFollowsSignal(t *testing.T) {
	// Arrange
	sink := &recordingSink{}
	sub := &fakeSubmitter{}
	signal := &fakeSignal{}
	tr := newTestTracker(t, false, sub, sink)
	tr.AddPendingOperation(payload(1))
	require.NoError(t, tr.Watch(signal))

	// Act
	signal.set(true)

	// Assert
	assert.Eventually(t, func() bool {
		return sub.calls() == 1 && len(tr.PendingOperations()) == 0
	}, waitFor, tick)

	signal.set(false)
	assert.Eventually(t, func() bool { return !tr.IsOnline() }, waitFor, tick)
}

func TestTracker_WatchHandlesEdgesInOrder(t *testing.T) {
	// Arrange
	sink := &recordingSink{}
	signal := &fakeSignal{online: true}
	tr := newTestTracker(t, true, &fakeSubmitter{}, sink)
	require.NoError(t, tr.Watch(signal))

	// Act
	signal.set(false)
	signal.set(true)

	// Assert
	want := []sentNotification{
		{MessageOffline, notifications.SeverityWarning},
		{MessageOnline, notifications.SeverityInfo},
	}
	assert.Eventually(t, func() bool { return len(sink.all()) == len(want) }, waitFor, tick)
	assert.Equal(t, want, sink.all())
	assert.True(t, tr.IsOnline())
}

func TestTracker_SyncSurvivesCallerCancellation(t *testing.T) {
	// Arrange
	sink := &recordingSink{}
	sub := &fakeSubmitter{gate: make(chan struct{}), entered: make(chan struct{}, 4)}
	tr := newTestTracker(t, true, sub, sink, WithSyncPolicy(ClearAlways))
	tr.AddPendingOperation(payload(1))

	reqCtx, cancel := context.WithCancel(context.Background())
	manual := make(chan error, 1)
	go func() { manual <- tr.SyncData(reqCtx) }()
	<-sub.entered

	auto := make(chan error, 1)
	go func() { auto <- tr.SyncData(context.Background()) }()

	// Act
	cancel()
	manualErr := <-manual
	close(sub.gate)

	// Assert
	assert.ErrorIs(t, manualErr, context.Canceled)
	require.NoError(t, <-auto)
	assert.Equal(t, 1, sub.calls())
	assert.Empty(t, tr.PendingOperations())
	assert.Equal(t, []sentNotification{{MessageSyncSuccess, notifications.SeveritySuccess}}, sink.all())
}

func TestTracker_CloseDuringSyncKeepsQueue(t *testing.T) {
	sink := &recordingSink{}
	sub := &fakeSubmitter{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	tr := NewTracker(true, sub, sink, WithLogger(discardLogger()), WithSyncPolicy(ClearAlways))
	tr.AddPendingOperation(payload(1))

	done := make(chan error, 1)
	go func() { done <- tr.SyncData(context.Background()) }()
	<-sub.entered

	tr.Close()

	assert.ErrorIs(t, <-done, ErrSyncFailed)
	assert.Len(t, tr.PendingOperations(), 1)
	assert.Empty(t, sink.all())
}

func TestTracker_WatchTwice(t *testing.T) {
	tr := newTestTracker(t, false, &fakeSubmitter{}, &recordingSink{})
	require.NoError(t, tr.Watch(&fakeSignal{}))

	assert.ErrorIs(t, tr.Watch(&fakeSignal{}), ErrAlreadyWatching)
}

func TestTracker_CloseDetachesSignal(t *testing.T) {
	sink := &recordingSink{}
	signal := &fakeSignal{}
	tr := NewTracker(true, &fakeSubmitter{}, sink, WithLogger(discardLogger()))
	require.NoError(t, tr.Watch(signal))

	tr.Close()
	signal.set(false)

	assert.True(t, tr.IsOnline())
	assert.Empty(t, sink.all())
}

func TestParseSyncPolicy(t *testing.T) {
	p, err := ParseSyncPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ClearOnSuccess, p)

	p, err = ParseSyncPolicy("clear_always")
	require.NoError(t, err)
	assert.Equal(t, ClearAlways, p)

	_, err = ParseSyncPolicy("never")
	assert.Error(t, err)
}
