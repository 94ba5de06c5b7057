package notifications

import "errors"

// Delivery errors.
var (
	ErrQueueFull       = errors.New("notification queue is full")
	ErrWorkerStopped   = errors.New("notification worker stopped")
	ErrUnknownSeverity = errors.New("unknown severity")
)
