package connectivity

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/notifications"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	errs    []error
	batches [][]domain.PendingOperation
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeSubmitter) SubmitBatch(ctx context.Context, ops []domain.PendingOperation) error {
	f.mu.Lock()
	f.batches = append(f.batches, ops)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeSubmitter) batch(i int) []domain.PendingOperation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[i]
}

type sentNotification struct {
	Message  string
	Severity notifications.Severity
}

type recordingSink struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (s *recordingSink) Notify(_ context.Context, message string, severity notifications.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentNotification{Message: message, Severity: severity})
}

func (s *recordingSink) all() []sentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentNotification(nil), s.sent...)
}

type fakeSignal struct {
	mu     sync.Mutex
	online bool
	subs   []func(bool)
}

func (f *fakeSignal) Online() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeSignal) Subscribe(fn func(bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	idx := len(f.subs) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.subs[idx] = nil
	}
}

func (f *fakeSignal) set(online bool) {
	f.mu.Lock()
	f.online = online
	subs := slices.Clone(f.subs)
	f.mu.Unlock()

	for _, fn := range subs {
		if fn != nil {
			fn(online)
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
