package middleware

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/pitchpanel/infrastructure/llm"
	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/ports"
)

// Budget caps completion usage. Zero means unlimited.
type Budget struct {
	MaxTokens int64
	MaxCalls  int64
}

// Unlimited reports whether no cap is set.
func (b Budget) Unlimited() bool { return b.MaxTokens <= 0 && b.MaxCalls <= 0 }

// BudgetExceededError reports which limit rejected a completion.
type BudgetExceededError struct {
	LimitType string
	Limit     int64
	Used      int64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("completion budget exceeded: %s used %d of %d", e.LimitType, e.Used, e.Limit)
}

// Is lets errors.Is match domain.ErrBudgetExceeded.
func (e *BudgetExceededError) Is(target error) bool { return target == domain.ErrBudgetExceeded }

// Usage is what a BudgetTracker has counted so far.
type Usage struct {
	Tokens int64
	Calls  int64
}

// Threshold fractions of a limit at which span events are recorded.
const (
	warningThreshold  = 0.8
	criticalThreshold = 0.9
)

// BudgetTracker counts completion calls and tokens across every request
// made through its middleware and rejects requests once a limit is spent.
type BudgetTracker struct {
	budget  Budget
	metrics ports.MetricsCollector

	mu    sync.Mutex
	usage Usage
}

// NewBudgetTracker returns a tracker enforcing budget.
func NewBudgetTracker(budget Budget, metrics ports.MetricsCollector) *BudgetTracker {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &BudgetTracker{budget: budget, metrics: metrics}
}

// Usage returns the counted usage.
func (t *BudgetTracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// Reset zeroes the counted usage.
func (t *BudgetTracker) Reset() {
	t.mu.Lock()
	t.usage = Usage{}
	t.mu.Unlock()
	t.publish(Usage{})
}

// Middleware enforces the budget around a completion backend. Place it
// outermost so a retried request is charged once.
func (t *BudgetTracker) Middleware() llm.Middleware {
	return func(next llm.Backend) llm.Backend {
		return &budgetBackend{next: next, tracker: t}
	}
}

// reserve charges one call, failing when either limit is already spent.
func (t *BudgetTracker) reserve() *BudgetExceededError {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.budget.MaxCalls > 0 && t.usage.Calls >= t.budget.MaxCalls {
		return &BudgetExceededError{LimitType: "calls", Limit: t.budget.MaxCalls, Used: t.usage.Calls}
	}
	if t.budget.MaxTokens > 0 && t.usage.Tokens >= t.budget.MaxTokens {
		return &BudgetExceededError{LimitType: "tokens", Limit: t.budget.MaxTokens, Used: t.usage.Tokens}
	}
	t.usage.Calls++
	return nil
}

func (t *BudgetTracker) charge(tokens int) Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.Tokens += int64(tokens)
	return t.usage
}

func (t *BudgetTracker) publish(u Usage) {
	t.metrics.RecordGauge(ports.MetricBudgetTokensUsed, float64(u.Tokens), nil)
	t.metrics.RecordGauge(ports.MetricBudgetCallsUsed, float64(u.Calls), nil)
}

// annotate records usage on the active span with threshold events.
func (t *BudgetTracker) annotate(span trace.Span, u Usage) {
	span.SetAttributes(
		attribute.Int64("budget.tokens_used", u.Tokens),
		attribute.Int64("budget.calls_made", u.Calls),
	)
	check := func(resource string, used, limit int64) {
		if limit <= 0 {
			return
		}
		span.SetAttributes(attribute.Int64("budget.remaining_"+resource, limit-used))
		pct := float64(used) / float64(limit)
		switch {
		case pct >= criticalThreshold:
			span.AddEvent("budget.threshold.critical", trace.WithAttributes(
				attribute.String("resource_type", resource),
				attribute.Float64("usage_percentage", pct*100),
			))
		case pct >= warningThreshold:
			span.AddEvent("budget.threshold.warning", trace.WithAttributes(
				attribute.String("resource_type", resource),
				attribute.Float64("usage_percentage", pct*100),
			))
		}
	}
	check("tokens", u.Tokens, t.budget.MaxTokens)
	check("calls", u.Calls, t.budget.MaxCalls)
}

type budgetBackend struct {
	next    llm.Backend
	tracker *BudgetTracker
}

func (b *budgetBackend) Generate(ctx context.Context, prompt string, opts map[string]any) (llm.Completion, error) {
	t := b.tracker
	span := trace.SpanFromContext(ctx)

	if bexc := t.reserve(); bexc != nil {
		span.AddEvent("budget.exceeded", trace.WithAttributes(
			attribute.String("limit_type", bexc.LimitType),
			attribute.Int64("limit_value", bexc.Limit),
			attribute.Int64("used_value", bexc.Used),
		))
		t.metrics.RecordCounter(ports.MetricBudgetExceeded, 1, map[string]string{"limit_type": bexc.LimitType})
		clog.FromContext(ctx).With("limit_type", bexc.LimitType, "limit", bexc.Limit).Warn("completion rejected by budget")
		return llm.Completion{}, bexc
	}

	out, err := b.next.Generate(ctx, prompt, opts)
	u := t.charge(out.TokensIn + out.TokensOut)
	t.publish(u)
	t.annotate(span, u)
	return out, err
}

func (b *budgetBackend) Model() string { return b.next.Model() }
