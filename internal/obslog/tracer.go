package obslog

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InitTracing installs a sdktrace.TracerProvider as the process-global
// tracer so the spans internal/toolregistry starts around every tool
// call (and any other otel.Tracer(...) caller) are recorded by a real
// SDK provider instead of silently discarded by the default no-op one.
// No exporter is attached here; a caller that wants spans shipped
// somewhere can attach one with sdktrace.WithBatcher before traffic
// starts. ratio <= 0 samples every span.
func InitTracing(ratio float64) trace.TracerProvider {
	if ratio <= 0 {
		ratio = 1.0
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(ratio)),
	)
	otel.SetTracerProvider(tp)
	return tp
}

// ShutdownTracing flushes and stops a TracerProvider built by
// InitTracing. Errors are swallowed: a trace-export failure on exit
// shouldn't change the process's exit behavior.
func ShutdownTracing(ctx context.Context, tp trace.TracerProvider) {
	if sdktp, ok := tp.(*sdktrace.TracerProvider); ok {
		_ = sdktp.Shutdown(ctx)
	}
}
