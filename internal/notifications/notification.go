// Package notifications delivers user-facing messages: an in-memory feed
// for the terminal UI plus optional fan-out to chat and mail.
package notifications

import (
	"context"
	"fmt"
	"time"
)

// Severity classifies a notification.
type Severity string

// Severities, ordered from least to most urgent by Rank.
const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Rank orders severities for minimum-severity routing. Unknown severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeveritySuccess:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s is as urgent as threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}

// ParseSeverity validates a severity name. An empty string means info.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case "":
		return SeverityInfo, nil
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return Severity(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
}

// Notification is one message shown to the operator.
type Notification struct {
	ID        uint64    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink receives user-facing notifications. Implementations must not block
// on remote delivery.
type Sink interface {
	Notify(ctx context.Context, message string, severity Severity)
}

// Sender delivers a rendered notification to one external channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Message is a notification rendered for a Sender.
type Message struct {
	Subject  string
	Body     string
	Severity Severity
}
