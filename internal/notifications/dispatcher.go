package notifications

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aridosvaldez/aridos/internal/pkg/ctxlog"
)

// Dispatcher is the agent's Sink: every notification lands in the feed and
// is queued for each route whose minimum severity it meets.
type Dispatcher struct {
	feed   *Feed
	worker *Worker
	routes []Route
}

// NewDispatcher creates a dispatcher. worker may be nil when no routes are configured.
func NewDispatcher(feed *Feed, worker *Worker, routes ...Route) *Dispatcher {
	return &Dispatcher{
		feed:   feed,
		worker: worker,
		routes: routes,
	}
}

// Notify implements Sink.
func (d *Dispatcher) Notify(ctx context.Context, message string, severity Severity) {
	d.notify(ctx, message, severity, "")
}

// Source returns a Sink that tags notifications with source.
func (d *Dispatcher) Source(source string) Sink {
	return sourcedSink{dispatcher: d, source: source}
}

// Routes returns the names of the configured senders.
func (d *Dispatcher) Routes() []string {
	names := make([]string, 0, len(d.routes))
	for _, r := range d.routes {
		names = append(names, r.Sender.Name())
	}
	return names
}

func (d *Dispatcher) notify(ctx context.Context, message string, severity Severity, source string) {
	n := d.feed.Add(message, severity, source)
	recordNotification(severity)

	logger := ctxlog.FromContext(ctx)
	logger.Log(ctx, logLevel(severity), "notification",
		"id", n.ID,
		"severity", severity,
		"source", source,
		"message", message,
	)

	if d.worker == nil {
		return
	}
	for _, route := range d.routes {
		if !severity.AtLeast(route.MinSeverity) {
			continue
		}
		if err := d.worker.enqueue(delivery{route: route, notification: n}); err != nil {
			level := slog.LevelWarn
			if errors.Is(err, ErrWorkerStopped) {
				level = slog.LevelDebug
			}
			logger.Log(ctx, level, "notification not queued",
				"sender", route.Sender.Name(),
				"id", n.ID,
				"error", err,
			)
			recordNotificationSent(route.Sender.Name(), "dropped")
		}
	}
}

type sourcedSink struct {
	dispatcher *Dispatcher
	source     string
}

func (s sourcedSink) Notify(ctx context.Context, message string, severity Severity) {
	s.dispatcher.notify(ctx, message, severity, s.source)
}

func logLevel(s Severity) slog.Level {
	switch s {
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
