package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned without calling the provider while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// backendFunc lets middleware define Generate inline.
type backendFunc struct {
	next Backend
	fn   func(ctx context.Context, prompt string, opts map[string]any) (Completion, error)
}

func (b backendFunc) Generate(ctx context.Context, prompt string, opts map[string]any) (Completion, error) {
	return b.fn(ctx, prompt, opts)
}

func (b backendFunc) Model() string { return b.next.Model() }

// TimeoutMiddleware bounds each call with its own deadline.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Backend) Backend {
		return backendFunc{next: next, fn: func(ctx context.Context, prompt string, opts map[string]any) (Completion, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next.Generate(ctx, prompt, opts)
		}}
	}
}

// RateLimitMiddleware paces calls with a token bucket shared by every
// backend the middleware wraps.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next Backend) Backend {
		return backendFunc{next: next, fn: func(ctx context.Context, prompt string, opts map[string]any) (Completion, error) {
			if err := limiter.Wait(ctx); err != nil {
				return Completion{}, fmt.Errorf("rate limit: %w", err)
			}
			return next.Generate(ctx, prompt, opts)
		}}
	}
}

// RetryMiddleware retries transient failures with jittered exponential
// backoff. Non-retryable provider errors and an open circuit end the loop
// immediately.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next Backend) Backend {
		return backendFunc{next: next, fn: func(ctx context.Context, prompt string, opts map[string]any) (Completion, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				out, err := next.Generate(ctx, prompt, opts)
				if err == nil {
					return out, nil
				}
				lastErr = err

				if attempt == maxRetries || ctx.Err() != nil || !isRetryable(err) {
					break
				}

				select {
				case <-ctx.Done():
					return Completion{}, ctx.Err()
				case <-time.After(backoff(attempt, baseDelay, maxDelay)):
				}
			}
			return Completion{}, fmt.Errorf("request failed after retries: %w", lastErr)
		}}
	}
}

func backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	attempt = min(max(attempt, 0), 30)
	d := base << attempt
	if d <= 0 || d > maxDelay {
		d = maxDelay
	}
	// ±25% jitter.
	jitter := time.Duration(rand.Float64()*float64(d)*0.5) - d/4
	return min(d+jitter, maxDelay)
}

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after maxFailures consecutive failures and lets a
// single probe through once the cooldown has elapsed. The lock is never
// held across a provider call, so concurrent judges are not serialized.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	now         func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{maxFailures: maxFailures, cooldown: cooldown, now: time.Now}
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = BreakerHalfOpen
		cb.probing = true
	case BreakerHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	if err == nil {
		cb.failures = 0
		cb.state = BreakerClosed
		return
	}
	// A caller giving up says nothing about provider health.
	if errors.Is(err, context.Canceled) {
		if cb.state == BreakerHalfOpen {
			cb.state = BreakerOpen
		}
		return
	}

	cb.failures++
	if cb.state == BreakerHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
	}
}

// CircuitBreakerMiddleware guards calls with cb.
func CircuitBreakerMiddleware(cb *CircuitBreaker) Middleware {
	return func(next Backend) Backend {
		return backendFunc{next: next, fn: func(ctx context.Context, prompt string, opts map[string]any) (Completion, error) {
			if err := cb.allow(); err != nil {
				return Completion{}, err
			}
			out, err := next.Generate(ctx, prompt, opts)
			cb.record(err)
			return out, err
		}}
	}
}
