package telemetry

import (
	"context"

	"github.com/funnyzak/replaytap/internal/config"
	"github.com/funnyzak/replaytap/pkg/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/funnyzak/replaytap"

// Span names
const (
	SpanRun    = "replay.run"
	SpanRecord = "replay.record"
)

// Setup initialises OpenTelemetry tracing.
//
// Tracing is opt-in: when telemetry.enable is false Setup returns a no-op
// shutdown function and no global provider is registered. An empty endpoint
// falls back to the standard OTEL_EXPORTER_OTLP_* variables.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, cfg *config.TelemetryConfig, version string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if cfg == nil || !cfg.Enable {
		return noop, nil
	}

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return noop, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "replaytap"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Tracer returns the tracer of the globally registered provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// RunAttributes describes a run span.
func RunAttributes(report *session.Report) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("replay.session_id", report.Context.SessionID),
		attribute.String("replay.session_name", report.Context.Name),
		attribute.String("replay.source_session_id", report.SourceSessionID),
		attribute.String("replay.mode", report.Mode),
		attribute.Bool("replay.dry_run", report.DryRun),
	}
}

// EndRecord annotates a record span with its outcome and ends it.
func EndRecord(span trace.Span, o session.Outcome) {
	span.SetAttributes(
		attribute.String("replay.record_id", o.RecordID),
		attribute.String("replay.hierarchy_path", o.HierarchyPath),
		attribute.String("replay.kind", string(o.Kind)),
		attribute.String("replay.status", string(o.Status)),
		attribute.Int("replay.depth", o.Depth),
	)
	if o.StatusCode != 0 {
		span.SetAttributes(semconv.HTTPResponseStatusCode(o.StatusCode))
	}
	if o.Usage.TotalTokens > 0 {
		span.SetAttributes(attribute.Int64("replay.total_tokens", o.Usage.TotalTokens))
	}
	if !o.SourceUsage.IsZero() {
		span.SetAttributes(
			attribute.Float64("replay.source.cost", o.SourceUsage.Cost),
			attribute.Int64("replay.source.total_tokens", o.SourceUsage.TotalTokens),
		)
	}
	if o.Failed() {
		span.SetStatus(codes.Error, o.Error)
	}
	span.End()
}

// EndRun records run counters and the fatal error, if any, then ends span.
func EndRun(span trace.Span, report *session.Report, runErr error) {
	s := report.Summary()
	span.SetAttributes(
		attribute.Int("replay.records", report.Records),
		attribute.Int("replay.replayed", s.Replayed),
		attribute.Int("replay.failed", s.Failed),
		attribute.Int("replay.not_attempted", s.NotAttempted),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	span.End()
}
