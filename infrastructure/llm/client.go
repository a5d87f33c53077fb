// Package llm backs the judge panel with hosted text-completion models.
//
// Every judge turn, evaluation request, negotiation round and routing
// decision goes through a Client. A Client wraps one provider Backend
// (OpenAI, Anthropic or Google) in a chain of Middleware that adds
// timeouts, retries, rate limiting, circuit breaking, metrics and tracing.
//
//	client, err := llm.NewClient("openai", llm.Config{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o",
//	    Middleware: llm.DefaultMiddleware(llm.Resilience{
//	        Timeout:    30 * time.Second,
//	        RateLimit:  5,
//	        Burst:      10,
//	        MaxRetries: 2,
//	    }, collector, nil),
//	})
//	text, err := client.Complete(ctx, prompt, map[string]any{"temperature": 0.7})
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ahrav/pitchpanel/internal/ports"
)

// Completion is the result of a single provider call.
type Completion struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Backend is the minimal contract a provider implements. Middleware
// wraps a Backend and returns another one.
type Backend interface {
	Generate(ctx context.Context, prompt string, opts map[string]any) (Completion, error)
	Model() string
}

// Middleware decorates a Backend.
type Middleware func(Backend) Backend

// Chain applies middleware so that mws[0] is the outermost layer.
func Chain(b Backend, mws ...Middleware) Backend {
	for i := len(mws) - 1; i >= 0; i-- {
		b = mws[i](b)
	}
	return b
}

// Config configures a Client.
type Config struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model selects the provider model. Each provider has a default.
	Model string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// Timeout bounds the underlying HTTP client.
	Timeout time.Duration

	// Middleware is applied in order, first entry outermost.
	Middleware []Middleware
}

// Resilience groups the knobs DefaultMiddleware reads. Zero values
// disable the corresponding layer.
type Resilience struct {
	Timeout         time.Duration
	RateLimit       float64
	Burst           int
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// DefaultMiddleware assembles the standard chain: tracing, metrics, retry,
// circuit breaker, rate limit and per-attempt timeout, outermost first.
// A nil collector or tracer skips that layer.
func DefaultMiddleware(r Resilience, collector ports.MetricsCollector, tracer trace.Tracer) []Middleware {
	var mws []Middleware
	if tracer != nil {
		mws = append(mws, TracingMiddleware(tracer))
	}
	if collector != nil {
		mws = append(mws, MetricsMiddleware(collector))
	}
	if r.MaxRetries > 0 {
		base, maxDelay := r.BaseDelay, r.MaxDelay
		if base <= 0 {
			base = 500 * time.Millisecond
		}
		if maxDelay <= 0 {
			maxDelay = 10 * time.Second
		}
		mws = append(mws, RetryMiddleware(r.MaxRetries, base, maxDelay))
	}
	if r.BreakerFailures > 0 {
		cooldown := r.BreakerCooldown
		if cooldown <= 0 {
			cooldown = 30 * time.Second
		}
		mws = append(mws, CircuitBreakerMiddleware(NewCircuitBreaker(r.BreakerFailures, cooldown)))
	}
	if r.RateLimit > 0 {
		burst := r.Burst
		if burst <= 0 {
			burst = 1
		}
		mws = append(mws, RateLimitMiddleware(rate.Limit(r.RateLimit), burst))
	}
	if r.Timeout > 0 {
		mws = append(mws, TimeoutMiddleware(r.Timeout))
	}
	return mws
}

// Client implements ports.LLMClient on top of a middleware-wrapped Backend.
type Client struct {
	backend  Backend
	provider string
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient builds a client for a registered provider.
func NewClient(provider string, cfg Config) (*Client, error) {
	factory, ok := lookupFactory(provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (known: %v)", provider, Providers())
	}

	backend, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", provider, err)
	}

	return &Client{backend: Chain(backend, cfg.Middleware...), provider: provider}, nil
}

// NewClientFromBackend wraps an existing backend. It is how tests and
// alternative providers plug into the same middleware chain.
func NewClientFromBackend(provider string, backend Backend, mws ...Middleware) *Client {
	return &Client{backend: Chain(backend, mws...), provider: provider}
}

// Complete sends prompt and returns the completion text.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	out, err := c.backend.Generate(ctx, prompt, options)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// CompleteWithUsage sends prompt and returns the full completion with
// token counts.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (Completion, error) {
	return c.backend.Generate(ctx, prompt, options)
}

// EstimateTokens approximates tokens at four characters per token.
func (c *Client) EstimateTokens(text string) (int, error) { return estimateTokens(text), nil }

// GetModel returns the backend model.
func (c *Client) GetModel() string { return c.backend.Model() }

// Provider returns the provider name the client was built for.
func (c *Client) Provider() string { return c.provider }

func estimateTokens(text string) int { return (len(text) + 3) / 4 }

// Factory creates a Backend from configuration.
type Factory func(Config) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// RegisterProvider makes a provider available to NewClient.
func RegisterProvider(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

func lookupFactory(name string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Providers lists registered provider names in sorted order.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
