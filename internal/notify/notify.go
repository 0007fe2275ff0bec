// Package notify defines the Notifier contract spec.md treats as an
// external sink (Discord, email, ...) and ships a logging-backed
// implementation so the engine is runnable standalone.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Level is a notification severity, mirroring the teacher's
// info/warn/error Notification.Severity values.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notifier is the contract spec.md §1 abstracts the notification sink
// behind. No Discord/webhook implementation is in scope.
type Notifier interface {
	Notify(ctx context.Context, level Level, message string, fields map[string]any)
}

// ZapNotifier sinks notifications into the structured logger, grounded
// on the teacher's Notification{Timestamp,Type,Severity,Message,Meta}
// shape reused here as log fields instead of a websocket broadcast.
type ZapNotifier struct {
	logger *zap.Logger
}

// NewZapNotifier builds a ZapNotifier over logger.
func NewZapNotifier(logger *zap.Logger) *ZapNotifier {
	return &ZapNotifier{logger: logger}
}

// Notify logs message at the zap level matching level, attaching fields
// as a single zap.Any per key.
func (n *ZapNotifier) Notify(_ context.Context, level Level, message string, fields map[string]any) {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}

	switch level {
	case LevelWarn:
		n.logger.Warn(message, zapFields...)
	case LevelError:
		n.logger.Error(message, zapFields...)
	default:
		n.logger.Info(message, zapFields...)
	}
}
