package core

import "log/slog"

// cronLogger bridges the cron library's logging interface onto slog.
// Routine entry bookkeeping goes to debug so monitor evaluations stay the
// signal in the log stream; only panics recovered from a job surface at
// error level.
type cronLogger struct {
	logger *slog.Logger
}

func newCronLogger(l *slog.Logger) cronLogger {
	return cronLogger{logger: l}
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{"error", err}, keysAndValues...)
	c.logger.Error(msg, args...)
}
