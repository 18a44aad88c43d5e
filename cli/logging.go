package cli

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sirupsen/logrus"
)

// ApplyLogLevel sets the global logging level if level is valid.
func ApplyLogLevel(level string) {
	if level == "" {
		return
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return
	}
	logrus.SetLevel(lvl)
}

// NewLogger returns a slog logger backed by the given logrus logger, so
// structured service logs and the formatted process logs share one sink
// and one level configuration.
func NewLogger(base *logrus.Logger) *slog.Logger {
	return slog.New(&logrusHandler{logger: base})
}

// logrusHandler adapts logrus to the slog.Handler interface.
type logrusHandler struct {
	logger *logrus.Logger
	attrs  []slog.Attr
	group  string
}

func (h *logrusHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.IsLevelEnabled(logrusLevel(level))
}

func (h *logrusHandler) Handle(_ context.Context, rec slog.Record) error {
	fields := make(logrus.Fields, len(h.attrs)+rec.NumAttrs())
	// Attrs bound via WithAttrs were qualified with their group already.
	for _, attr := range h.attrs {
		fields[attr.Key] = attr.Value.Any()
	}
	rec.Attrs(func(attr slog.Attr) bool {
		fields[h.key(attr.Key)] = attr.Value.Any()
		return true
	})
	h.logger.WithFields(fields).Log(logrusLevel(rec.Level), rec.Message)
	return nil
}

func (h *logrusHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, attr := range attrs {
		attr.Key = h.key(attr.Key)
		merged = append(merged, attr)
	}
	return &logrusHandler{logger: h.logger, attrs: merged, group: h.group}
}

func (h *logrusHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &logrusHandler{logger: h.logger, attrs: h.attrs, group: group}
}

func (h *logrusHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

func logrusLevel(level slog.Level) logrus.Level {
	switch {
	case level >= slog.LevelError:
		return logrus.ErrorLevel
	case level >= slog.LevelWarn:
		return logrus.WarnLevel
	case level >= slog.LevelInfo:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}
