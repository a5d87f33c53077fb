package ports

import (
	"context"
	"time"
)

// LLMClient is the text-completion capability every judge is backed by.
// Implementations must be safe for concurrent use; evaluation fans out
// one Complete call per persona.
type LLMClient interface {
	// Complete sends prompt to the provider and returns the raw completion.
	//
	// Common options:
	//   - "temperature": float64
	//   - "max_tokens": int
	//   - "model": string
	//   - "system": string
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens returns an approximate token count for text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier used by this client.
	GetModel() string
}

// MetricsCollector records operational metrics. The Prometheus collector
// in infrastructure/middleware is the production implementation.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
