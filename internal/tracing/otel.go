package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const toolTracer = "toolhub/tools"

// Span attributes set on every tool run
const (
	AttrToolName  = attribute.Key("toolhub.tool.name")
	AttrSource    = attribute.Key("toolhub.source")
	AttrRunID     = attribute.Key("toolhub.run_id")
	AttrErrorType = attribute.Key("toolhub.error_type")
)

// Options configures the process tracer provider
type Options struct {
	ServiceName    string
	ServiceVersion string
	// SampleRatio outside (0, 1) samples every root span
	SampleRatio float64
}

var (
	setupOnce sync.Once
	setupErr  error

	providerMu sync.RWMutex
	provider   *sdktrace.TracerProvider
)

// Setup installs the global tracer provider. Only the first call has an
// effect; later calls return its result.
func Setup(opts Options) error {
	setupOnce.Do(func() {
		tp, err := newProvider(opts)
		if err != nil {
			setupErr = err
			return
		}

		providerMu.Lock()
		provider = tp
		providerMu.Unlock()
		otel.SetTracerProvider(tp)
	})
	return setupErr
}

func newProvider(opts Options, extra ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(opts.ServiceName)}
	if opts.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(opts.ServiceVersion))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.AlwaysSample()
	if opts.SampleRatio > 0 && opts.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(opts.SampleRatio)
	}

	tpOpts := append([]sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
		sdktrace.WithResource(res),
	}, extra...)
	return sdktrace.NewTracerProvider(tpOpts...), nil
}

// Shutdown flushes and stops the provider installed by Setup
func Shutdown(ctx context.Context) error {
	providerMu.RLock()
	tp := provider
	providerMu.RUnlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartToolSpan opens the span around one tool run and tags the context
// as a tool run. The trace ID logged with the run is the span's unless the
// caller already supplied one.
func StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = NewToolRunContext(ctx, toolName)

	attrs := []attribute.KeyValue{
		AttrToolName.String(toolName),
		AttrRunID.String(GetRunID(ctx)),
	}
	if source := GetSource(ctx); source != "" {
		attrs = append(attrs, AttrSource.String(source))
	}

	ctx, span := otel.Tracer(toolTracer).Start(ctx, "tool.execute", trace.WithAttributes(attrs...))
	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}
	return ctx, span
}

// EndToolSpan records the outcome and ends span. An empty errorType
// means the run succeeded.
func EndToolSpan(span trace.Span, errorType string) {
	if errorType == "" {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetAttributes(AttrErrorType.String(errorType))
		span.SetStatus(codes.Error, errorType)
	}
	span.End()
}
