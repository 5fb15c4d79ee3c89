// Package notify delivers human-readable monitoring messages to external
// sinks. Delivery failures are reported to callers as a boolean and logged;
// they are never fatal and never retried within a cycle.
package notify

import (
	"context"

	"github.com/mfolkes/portwarden/internal/logging"
	"github.com/mfolkes/portwarden/internal/metrics"
)

// Notifier delivers one message to a sink. Implementations report success
// as a boolean; the monitor logs failures and moves on.
type Notifier interface {
	Notify(ctx context.Context, message string) bool
}

// LogNotifier writes messages to the structured log. It is the default
// sink when no external transport is configured.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier backed by the given logger. A nil
// logger falls back to the package default.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger.WithComponent("notify")}
}

// Notify implements Notifier. Logging never fails.
func (n *LogNotifier) Notify(_ context.Context, message string) bool {
	n.logger.Info("Notification", "message", message)
	metrics.Counter("notifications_total", metrics.Labels{"sink": "log", "status": "success"})
	return true
}

// MultiNotifier fans a message out to several sinks. Delivery succeeds if
// at least one sink accepts the message.
type MultiNotifier struct {
	sinks []Notifier
}

// NewMultiNotifier creates a fan-out notifier over the given sinks.
func NewMultiNotifier(sinks ...Notifier) *MultiNotifier {
	return &MultiNotifier{sinks: sinks}
}

// Notify implements Notifier.
func (n *MultiNotifier) Notify(ctx context.Context, message string) bool {
	delivered := false
	for _, sink := range n.sinks {
		if sink.Notify(ctx, message) {
			delivered = true
		}
	}
	return delivered
}

// NoopNotifier discards every message. Used in tests and when
// notifications are disabled.
type NoopNotifier struct{}

// Notify implements Notifier.
func (NoopNotifier) Notify(context.Context, string) bool {
	return true
}
