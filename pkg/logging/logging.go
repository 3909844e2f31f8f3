// Package logging configures the process-wide structured logger.
//
// All components accept a *slog.Logger via constructor injection; this
// package only supplies the default used by cmd/orchestrator at startup and
// the filtering behavior applied to it.
package logging

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const modulePackagePrefix = "github.com/forgeflow/orchestrator"

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error. Anything else is treated as warn.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// filteringHandler drops every log record from outside this module unless
// the configured level is slog.LevelDebug or lower, so that a noisy
// dependency (the etcd client, go-plugin's hclog bridge, ...) doesn't drown
// out orchestrator-level events at the configured level.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if isModulePackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func isModulePackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), modulePackagePrefix) || strings.Contains(file, "orchestrator/")
}

// New builds a slog.Logger writing JSON records to w at the given level,
// with third-party noise filtered above debug.
func New(levelStr string, w *os.File) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := ParseLevel(levelStr)
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug})
	return slog.New(&filteringHandler{handler: base, minLevel: level})
}

var defaultLogger *slog.Logger

// Default returns the process default logger, initializing it to
// info/stderr/JSON on first use.
func Default() *slog.Logger {
	if defaultLogger == nil {
		defaultLogger = New("info", os.Stderr)
		slog.SetDefault(defaultLogger)
	}
	return defaultLogger
}

// SetDefault installs l as both this package's and slog's default logger.
func SetDefault(l *slog.Logger) {
	defaultLogger = l
	slog.SetDefault(l)
}
