package notifications

import (
	"context"
	"sync"
	"time"
)

const defaultFeedCapacity = 100

// Feed keeps the most recent notifications in memory for the local API.
type Feed struct {
	mu     sync.RWMutex
	items  []Notification
	next   int
	full   bool
	lastID uint64
	now    func() time.Time
}

// NewFeed creates a ring buffer holding up to capacity notifications.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = defaultFeedCapacity
	}
	return &Feed{
		items: make([]Notification, capacity),
		now:   time.Now,
	}
}

// Add stores a notification, assigning its ID and timestamp.
func (f *Feed) Add(message string, severity Severity, source string) Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastID++
	n := Notification{
		ID:        f.lastID,
		Message:   message,
		Severity:  severity,
		Source:    source,
		CreatedAt: f.now().UTC(),
	}

	f.items[f.next] = n
	f.next = (f.next + 1) % len(f.items)
	if f.next == 0 {
		f.full = true
	}
	return n
}

// Notify implements Sink.
func (f *Feed) Notify(_ context.Context, message string, severity Severity) {
	f.Add(message, severity, "")
}

// Recent returns up to limit notifications, newest first. limit <= 0 means all.
// Only notifications with an ID greater than after are returned.
func (f *Feed) Recent(limit int, after uint64) []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()

	size := f.next
	if f.full {
		size = len(f.items)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Notification, 0, limit)
	for i := 1; i <= size && len(out) < limit; i++ {
		idx := (f.next - i + len(f.items)) % len(f.items)
		n := f.items[idx]
		if n.ID <= after {
			break
		}
		out = append(out, n)
	}
	return out
}
