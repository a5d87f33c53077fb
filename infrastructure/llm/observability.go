package llm

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/pitchpanel/internal/ports"
)

// Metric names recorded by MetricsMiddleware.
const (
	MetricRequestDuration = "llm_request_duration_seconds"
	MetricRequests        = "llm_requests_total"
	MetricTokens          = "llm_tokens_total"
)

// MetricsMiddleware records latency, request outcome and token usage.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next Backend) Backend {
		return backendFunc{next: next, fn: func(ctx context.Context, prompt string, opts map[string]any) (Completion, error) {
			start := time.Now()
			out, err := next.Generate(ctx, prompt, opts)

			labels := map[string]string{"model": next.Model(), "status": requestStatus(ctx, err)}
			collector.RecordHistogram(MetricRequestDuration, time.Since(start).Seconds(), labels)
			collector.RecordCounter(MetricRequests, 1, labels)
			if err == nil {
				collector.RecordCounter(MetricTokens, float64(out.TokensIn), map[string]string{"model": next.Model(), "direction": "input"})
				collector.RecordCounter(MetricTokens, float64(out.TokensOut), map[string]string{"model": next.Model(), "direction": "output"})
			}
			return out, err
		}}
	}
}

func requestStatus(ctx context.Context, err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &pe):
		return pe.Kind.String()
	default:
		return "error"
	}
}

// TracingMiddleware wraps each call in a span named "llm.generate".
func TracingMiddleware(tracer trace.Tracer) Middleware {
	return func(next Backend) Backend {
		return backendFunc{next: next, fn: func(ctx context.Context, prompt string, opts map[string]any) (Completion, error) {
			ctx, span := tracer.Start(ctx, "llm.generate",
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("llm.model", next.Model()),
					attribute.Int("llm.prompt.length", len(prompt)),
				),
			)
			defer span.End()

			out, err := next.Generate(ctx, prompt, opts)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return out, err
			}
			span.SetAttributes(
				attribute.Int("llm.tokens.input", out.TokensIn),
				attribute.Int("llm.tokens.output", out.TokensOut),
			)
			return out, nil
		}}
	}
}
