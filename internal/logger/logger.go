// Package logger configures log/slog JSON output and carries per-event
// trace IDs through context so a decision can be followed from the HTTP
// request to the persisted record.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type ctxKey struct{}

// Init installs a JSON slog handler tagged with the service name as the
// process default and returns it.
func Init(service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	l := slog.New(h).With(slog.String("service", service))
	slog.SetDefault(l)
	return l
}

// WithTraceID attaches a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// TraceID returns the trace ID attached to ctx, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// GenerateTraceID builds a "{symbol}-{unixNano}" trace ID. Unique enough
// for correlating log lines without a UUID dependency.
func GenerateTraceID(symbol string, ts time.Time) string {
	return symbol + "-" + strconv.FormatInt(ts.UnixNano(), 10)
}

// LogWithTrace returns the trace ID from ctx as slog attributes, or nil
// when no trace ID is set. Append to the attrs of any slog call.
func LogWithTrace(ctx context.Context) []any {
	id := TraceID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("trace_id", id)}
}
