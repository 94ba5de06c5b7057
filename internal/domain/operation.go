package domain

import (
	"encoding/json"
	"time"
)

// PendingOperation is a write buffered locally while the backend was unreachable.
// ID doubles as the idempotency key when the operation is replayed.
type PendingOperation struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
