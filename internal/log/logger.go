package log

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// sensitiveKeys contains attribute keys that should always be masked.
// The control-port password and cookie are the obvious ones for this tool,
// but we also mask generic credential keys in case a check-service URL or
// header carries them.
var sensitiveKeys = map[string]bool{
	"control_password": true,
	"controlpassword":  true,
	"cookie":           true,
	"set-cookie":       true,
	"authorization":    true,
	"password":         true,
	"passwd":           true,
	"secret":           true,
	"token":            true,
	"credential":       true,
	"credentials":      true,
	"auth":             true,
}

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// RedactHandler wraps an slog.Handler to sanitize sensitive information.
// It intercepts log records and masks attribute values whose keys indicate
// credentials before passing them to the underlying handler.
//
// Design decision: We use a handler wrapper rather than a custom logger
// because it integrates seamlessly with standard slog APIs and works with
// any underlying handler (text, JSON, etc.).
type RedactHandler struct {
	handler slog.Handler
}

// NewRedactHandler creates a RedactHandler wrapping the given handler.
// If handler is nil, the returned RedactHandler uses slog.Default().Handler().
func NewRedactHandler(handler slog.Handler) *RedactHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &RedactHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record's attributes and passes it on.
func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(h.sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given attributes added,
// sanitized first.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitizedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitizedAttrs[i] = h.sanitizeAttr(a)
	}
	return &RedactHandler{handler: h.handler.WithAttrs(sanitizedAttrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{handler: h.handler.WithGroup(name)}
}

// sanitizeAttr masks a single attribute, recursively handling groups.
func (h *RedactHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitizedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			sanitizedAttrs[i] = h.sanitizeAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitizedAttrs...)}
	}

	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, MaskValue)
	}
	return a
}

// Options configures logger construction.
type Options struct {
	// Level is the minimum level: "debug", "info", "warn", or "error".
	// Unrecognized values fall back to warn.
	Level string

	// Verbose forces debug level regardless of Level.
	Verbose bool

	// File, when non-empty, enables size-rotated file output in addition
	// to the primary writer.
	File string

	// MaxSizeMB is the rotation threshold for File.
	MaxSizeMB int
}

// ParseLevel converts a config level string to an slog.Level.
// It returns the level and true on success, or slog.LevelWarn and false
// for an unrecognized value so the caller can log a warning.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelWarn, false
	}
}

// NewLogger creates a redacting slog.Logger writing to w.
//
// When opts.File is set, output is duplicated into a size-rotated file via
// lumberjack so that long-running rotation sessions do not fill the disk.
// The returned logger can be used with slog.SetDefault() or passed to
// components that accept *slog.Logger.
func NewLogger(w io.Writer, opts Options) *slog.Logger {
	level, _ := ParseLevel(opts.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}

	out := w
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: 3,
			Compress:   true,
		}
		out = io.MultiWriter(w, rotator)
	}

	textHandler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(NewRedactHandler(textHandler))
}
