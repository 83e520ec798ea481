package observability

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/toolhub/internal/logger"
	"github.com/harun/toolhub/pkg/toolexecutor"
)

// AuditLogger writes one JSON line per tool run and mirrors it onto the
// active span as an event
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	closer io.Closer
}

// NewAuditLogger writes audit lines to w
func NewAuditLogger(w io.Writer) *AuditLogger {
	if w == nil {
		w = os.Stderr
	}
	return &AuditLogger{
		logger: zerolog.New(w).With().Timestamp().Logger(),
	}
}

// OpenAuditLogger appends audit lines to path, rotating it like the
// application log
func OpenAuditLogger(path string, maxSizeMB, maxAge int, compress bool) (*AuditLogger, error) {
	w, err := logger.NewRotatingWriter(path, maxSizeMB, maxAge, compress)
	if err != nil {
		return nil, err
	}
	a := NewAuditLogger(w)
	a.closer = w
	return a, nil
}

// Record implements toolexecutor.Auditor
func (a *AuditLogger) Record(ctx context.Context, rec *toolexecutor.RunRecord) error {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		if rec.TraceID == "" {
			rec.TraceID = span.SpanContext().TraceID().String()
		}
		span.AddEvent("tool.audit", trace.WithAttributes(
			attribute.String("audit.tool", rec.ToolName),
			attribute.String("audit.status", rec.Status()),
			attribute.String("audit.source", rec.Source),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("type", "tool").
		Str("run_id", rec.ID).
		Str("tool", rec.ToolName).
		Str("status", rec.Status()).
		Str("source", rec.Source).
		Str("request_ip", rec.RequestIP).
		Str("trace_id", rec.TraceID).
		Float64("execution_time_ms", rec.ExecutionTimeMS)

	if rec.IsError {
		entry.Str("error_type", rec.ErrorType).
			Str("error_message", rec.ErrorMessage)
	}

	entry.Msg("")
	return nil
}

// Close closes the underlying file, if any
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer != nil {
		err := a.closer.Close()
		a.closer = nil
		return err
	}
	return nil
}
