// Package logger builds the slog loggers used across the notification
// pipeline.
//
// New applies functional options on top of production-safe defaults (JSON,
// info level) and wraps the handler in a decorator that injects attributes
// extracted from the context on every log call. The attr helpers keep
// attribute keys consistent between packages: a worker, the orchestrator and
// the bus all log "notification_id" the same way.
//
//	log := logger.New(logger.WithProduction("notify"))
//	log.Info("delivery finished", logger.NotificationID(id), logger.Channel("email"))
package logger
