// Package notify delivers operator notifications. Delivery is best effort: the
// caller logs failures and carries on.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// ErrSend wraps every delivery failure.
var ErrSend = errors.New("notification not delivered")

// Notifier sends a text message or a document with a caption.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
	SendDocument(ctx context.Context, path, caption string) error
}

// Noop is used when the transport is not configured. It only logs a warning.
type Noop struct {
	logger *slog.Logger
}

func NewNoop(logger *slog.Logger) *Noop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Noop{logger: logger}
}

func (n *Noop) SendMessage(_ context.Context, text string) error {
	n.logger.Warn("notify.disabled", "kind", "message", "hint", "telegram is not configured", "text", text)
	return nil
}

func (n *Noop) SendDocument(_ context.Context, path, caption string) error {
	n.logger.Warn("notify.disabled", "kind", "document", "hint", "telegram is not configured", "path", path, "caption", caption)
	return nil
}
