// Package testutils provides deterministic fakes for the panel's ports.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/pitchpanel/internal/ports"
)

// Rule scripts the client's answer to prompts containing Pattern
// (case-insensitive). Responses are returned in order; the last one
// repeats. A non-nil Err is returned instead of a response.
type Rule struct {
	Pattern   string
	Responses []string
	Err       error
	// Panic makes the call panic with this value.
	Panic any
	Delay time.Duration

	served int
}

// Call records one Complete invocation.
type Call struct {
	Prompt  string
	Options map[string]any
}

// ScriptedLLMClient is a ports.LLMClient whose answers are scripted by
// prompt substring. Rules are checked in the order they were added.
type ScriptedLLMClient struct {
	mu       sync.Mutex
	model    string
	rules    []*Rule
	fallback string
	calls    []Call
}

// NewScriptedLLMClient returns a client that answers unmatched prompts
// with fallback.
func NewScriptedLLMClient(fallback string) *ScriptedLLMClient {
	return &ScriptedLLMClient{model: "scripted", fallback: fallback}
}

// On adds a rule answering prompts containing pattern with responses.
func (c *ScriptedLLMClient) On(pattern string, responses ...string) *ScriptedLLMClient {
	return c.Add(Rule{Pattern: pattern, Responses: responses})
}

// Fail adds a rule that fails prompts containing pattern with err.
func (c *ScriptedLLMClient) Fail(pattern string, err error) *ScriptedLLMClient {
	return c.Add(Rule{Pattern: pattern, Err: err})
}

// Add appends a rule.
func (c *ScriptedLLMClient) Add(r Rule) *ScriptedLLMClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.Pattern = strings.ToLower(r.Pattern)
	c.rules = append(c.rules, &r)
	return c
}

// Complete implements ports.LLMClient.
func (c *ScriptedLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	c.mu.Lock()
	c.calls = append(c.calls, Call{Prompt: prompt, Options: options})
	rule := c.match(prompt)
	var (
		resp  = c.fallback
		err   error
		delay time.Duration
		boom  any
	)
	if rule != nil {
		err, delay, boom = rule.Err, rule.Delay, rule.Panic
		if len(rule.Responses) > 0 {
			resp = rule.Responses[min(rule.served, len(rule.Responses)-1)]
		}
		rule.served++
	}
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if boom != nil {
		panic(boom)
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}

func (c *ScriptedLLMClient) match(prompt string) *Rule {
	lower := strings.ToLower(prompt)
	for _, r := range c.rules {
		if strings.Contains(lower, r.Pattern) {
			return r
		}
	}
	return nil
}

// EstimateTokens implements ports.LLMClient.
func (c *ScriptedLLMClient) EstimateTokens(text string) (int, error) {
	return (len(text) + 3) / 4, nil
}

// GetModel implements ports.LLMClient.
func (c *ScriptedLLMClient) GetModel() string { return c.model }

// Calls returns every recorded call in order.
func (c *ScriptedLLMClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns the number of Complete calls.
func (c *ScriptedLLMClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// CallsMatching counts calls whose prompt contains pattern.
func (c *ScriptedLLMClient) CallsMatching(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if strings.Contains(strings.ToLower(call.Prompt), strings.ToLower(pattern)) {
			n++
		}
	}
	return n
}

var _ ports.LLMClient = (*ScriptedLLMClient)(nil)
