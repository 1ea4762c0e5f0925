// Package logging wraps log/slog with the request-scoped fields and
// domain events emitted by the stemma pipeline and its servers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

type ctxKey struct{}

// Format selects the handler used for output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var current atomic.Pointer[slog.Logger]

func init() {
	InitLoggerWithWriter(os.Stderr, slog.LevelInfo, FormatText)
}

// ParseLevel maps a level name to a slog level. Unknown names yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat maps a format name to a Format. Anything but "json" is text.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// InitLogger installs a logger writing to stderr. Stdout stays reserved
// for command output.
func InitLogger(level slog.Level, format Format) {
	InitLoggerWithWriter(os.Stderr, level, format)
}

// InitLoggerWithWriter installs a logger writing to w.
func InitLoggerWithWriter(w io.Writer, level slog.Level, format Format) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(requestIDHandler{h})
	current.Store(logger)
	slog.SetDefault(logger)
}

// GetLogger returns the installed logger.
func GetLogger() *slog.Logger {
	return current.Load()
}

// requestIDHandler copies the request ID from the record context onto
// every record, so callers never thread it by hand.
type requestIDHandler struct {
	slog.Handler
}

func (h requestIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := GetRequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h requestIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestIDHandler{h.Handler.WithAttrs(attrs)}
}

func (h requestIDHandler) WithGroup(name string) slog.Handler {
	return requestIDHandler{h.Handler.WithGroup(name)}
}

// WithRequestID stores a request ID on ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// GetRequestID returns the request ID stored on ctx, or "".
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func Debug(msg string, args ...any) { GetLogger().Debug(msg, args...) }
func Info(msg string, args ...any)  { GetLogger().Info(msg, args...) }
func Warn(msg string, args ...any)  { GetLogger().Warn(msg, args...) }
func Error(msg string, args ...any) { GetLogger().Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) {
	GetLogger().DebugContext(ctx, msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	GetLogger().InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	GetLogger().WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	GetLogger().ErrorContext(ctx, msg, args...)
}

// event logs msg tagged with an event kind so downstream tooling can
// filter on "event" without parsing messages.
func event(ctx context.Context, level slog.Level, kind, msg string, fields []any, extra []any) {
	args := make([]any, 0, 2+len(fields)+len(extra))
	args = append(args, "event", kind)
	args = append(args, fields...)
	args = append(args, extra...)
	GetLogger().Log(ctx, level, msg, args...)
}

// HTTPRequestContext records one served request. Server errors log at
// error level and client errors at warn.
func HTTPRequestContext(ctx context.Context, method, path, remoteAddr string, statusCode int, duration time.Duration, args ...any) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}
	event(ctx, level, "http_request", "request served", []any{
		"method", method,
		"path", path,
		"remote_addr", remoteAddr,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	}, args)
}

// CollationFailure records a verse whose alignment could not be produced.
func CollationFailure(ctx context.Context, verse string, witnesses int, err error, args ...any) {
	event(ctx, slog.LevelWarn, "collation_failure", "verse collation failed", []any{
		"verse", verse,
		"witnesses", witnesses,
		"error", errString(err),
	}, args)
}

// NumericAnomaly records a non-finite or negative distance cell that was
// replaced before clustering.
func NumericAnomaly(row, col int, value float64, args ...any) {
	event(context.Background(), slog.LevelWarn, "numeric_anomaly", "distance cell replaced", []any{
		"row", row,
		"col", col,
		"value", value,
	}, args)
}

// ClusteringFallback records a linkage method that failed before the next
// one in the fallback order was tried.
func ClusteringFallback(method string, err error, args ...any) {
	event(context.Background(), slog.LevelWarn, "clustering_fallback", "linkage method failed", []any{
		"method", method,
		"error", errString(err),
	}, args)
}

// PipelineStage records the duration of one pipeline stage.
func PipelineStage(ctx context.Context, stage string, duration time.Duration, args ...any) {
	event(ctx, slog.LevelDebug, "pipeline_stage", "stage finished", []any{
		"stage", stage,
		"duration_ms", duration.Milliseconds(),
	}, args)
}

func WebSocketEvent(name string, clientCount int, args ...any) {
	event(context.Background(), slog.LevelDebug, "websocket_event", name, []any{
		"client_count", clientCount,
	}, args)
}

func ServerStartup(serverType, protocol string, port int, args ...any) {
	event(context.Background(), slog.LevelInfo, "server_startup", "server listening", []any{
		"server", serverType,
		"protocol", protocol,
		"port", port,
	}, args)
}

// SecurityEvent records a rejected origin, rate limit hit or similar.
func SecurityEvent(name, component string, args ...any) {
	event(context.Background(), slog.LevelWarn, "security_event", name, []any{
		"component", component,
	}, args)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
