package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicDefaultModel is used when Config.Model is empty.
const AnthropicDefaultModel = "claude-3-5-sonnet-20241022"

func init() { RegisterProvider("anthropic", newAnthropicBackend) }

type anthropicBackend struct {
	client anthropic.Client
	model  string
}

func newAnthropicBackend(cfg Config) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := cfg.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	base, err := validateBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	return &anthropicBackend{client: anthropic.NewClient(opts...), model: model}, nil
}

func (b *anthropicBackend) Model() string { return b.model }

func (b *anthropicBackend) Generate(ctx context.Context, prompt string, opts map[string]any) (Completion, error) {
	o := ParseRequestOptions(opts, b.model)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(o.Model),
		MaxTokens: int64(o.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if o.Temperature != nil {
		// Anthropic accepts [0, 1].
		params.Temperature = anthropic.Float(clamp(*o.Temperature, 0, 1))
	}
	if o.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: o.System}}
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return Completion{}, b.classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	text := sb.String()
	if text == "" {
		return Completion{}, ErrEmptyResponse
	}

	return Completion{
		Text:      text,
		TokensIn:  orEstimate(int(msg.Usage.InputTokens), prompt),
		TokensOut: orEstimate(int(msg.Usage.OutputTokens), text),
	}, nil
}

func (b *anthropicBackend) classify(err error) error {
	if pe := classifyContext("anthropic", err); pe != nil {
		return pe
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus("anthropic", apiErr.StatusCode, http.StatusText(apiErr.StatusCode), err)
	}
	return &ProviderError{Provider: "anthropic", Message: "request failed", Err: err}
}
