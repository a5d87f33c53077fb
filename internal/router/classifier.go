package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/ports"
)

// LLMClassifier asks a completion model which persona should answer.
type LLMClassifier struct {
	client ports.LLMClient
	prompt string
}

// NewLLMClassifier builds the decider prompt once from personas.
func NewLLMClassifier(client ports.LLMClient, personas []domain.Persona) *LLMClassifier {
	var b strings.Builder
	b.WriteString("You are a router that chooses which judge is best suited to respond to the presenter's message.\n")
	b.WriteString("Choose the most appropriate judge from the following list and reply with only one name:\n")
	for _, p := range personas {
		desc := p.Description
		if desc == "" {
			desc = p.Company
		}
		fmt.Fprintf(&b, "- %s: %s\n", p.Name, desc)
	}
	b.WriteString("\nDo not include any additional text.")
	return &LLMClassifier{client: client, prompt: b.String()}
}

// Classify implements ports.RoutingClassifier. The answer is returned
// trimmed but otherwise unvalidated.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (string, error) {
	out, err := c.client.Complete(ctx, "Presenter: "+text, map[string]any{
		"system":      c.prompt,
		"temperature": 0.0,
		"max_tokens":  20,
	})
	if err != nil {
		return "", fmt.Errorf("routing classifier: %w", err)
	}
	return strings.TrimSpace(out), nil
}

var _ ports.RoutingClassifier = (*LLMClassifier)(nil)
