package notification

import (
	"context"
	"log/slog"
)

const (
	// KindAccountLocked indicates a chargeback froze a client account.
	KindAccountLocked = "account_locked"
)

// Message describes a notification payload.
type Message struct {
	Kind   string
	Client uint16
	TxID   uint32
	Body   string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.WarnContext(ctx, "notification",
		slog.String("kind", message.Kind),
		slog.Int("client", int(message.Client)),
		slog.Int64("tx", int64(message.TxID)),
		slog.String("body", message.Body),
	)
	return nil
}
