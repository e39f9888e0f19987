// Package notify is the user-facing notification surface. Calls are
// fire-and-forget; the sync layer never depends on delivery.
package notify

import (
	"go.uber.org/zap"

	"eduai-sync-service/internal/logger"
)

type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Error   Level = "error"
)

type Notifier interface {
	Notify(level Level, message string)
}

// LogNotifier reports notifications through the service log. A UI host would
// supply its own Notifier (toast surface) instead.
type LogNotifier struct{}

func (LogNotifier) Notify(level Level, message string) {
	switch level {
	case Error:
		logger.Log.Error(message, zap.String("notify", string(level)))
	default:
		logger.Log.Info(message, zap.String("notify", string(level)))
	}
}
