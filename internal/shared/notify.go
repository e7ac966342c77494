package shared

import (
	"context"
	"log/slog"
)

// Severity classifies a notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityError   Severity = "error"
)

// Notifier delivers a short message to the acting user.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, message string)
}

// FlashNotifier queues notifications as flash messages on the request session.
type FlashNotifier struct {
	Logger *slog.Logger
}

// Notify appends a flash to the session in ctx. Without a session the message
// is only logged.
func (n FlashNotifier) Notify(ctx context.Context, severity Severity, message string) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		if n.Logger != nil {
			n.Logger.Debug("notification without session", slog.String("severity", string(severity)), slog.String("message", message))
		}
		return
	}
	sess.AddFlash(FlashMessage{Kind: string(severity), Message: message})
}
