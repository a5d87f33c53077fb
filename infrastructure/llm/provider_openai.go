package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIDefaultModel is used when Config.Model is empty.
const OpenAIDefaultModel = "gpt-4o-mini"

func init() { RegisterProvider("openai", newOpenAIBackend) }

type openAIBackend struct {
	client *openai.Client
	model  string
}

func newOpenAIBackend(cfg Config) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := cfg.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	cc := openai.DefaultConfig(cfg.APIKey)
	base, err := validateBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	if base != "" {
		cc.BaseURL = base
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &openAIBackend{client: openai.NewClientWithConfig(cc), model: model}, nil
}

func (b *openAIBackend) Model() string { return b.model }

func (b *openAIBackend) Generate(ctx context.Context, prompt string, opts map[string]any) (Completion, error) {
	o := ParseRequestOptions(opts, b.model)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if o.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:     o.Model,
		Messages:  messages,
		MaxTokens: o.MaxTokens,
	}
	if o.Temperature != nil {
		req.Temperature = float32(clamp(*o.Temperature, 0, 2))
	}
	if o.TopP != nil {
		req.TopP = float32(*o.TopP)
	}
	if asJSON, _ := o.Extra[OptionJSON].(bool); asJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, b.classify(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Completion{}, ErrEmptyResponse
	}

	text := resp.Choices[0].Message.Content
	return Completion{
		Text:      text,
		TokensIn:  orEstimate(resp.Usage.PromptTokens, prompt),
		TokensOut: orEstimate(resp.Usage.CompletionTokens, text),
	}, nil
}

func (b *openAIBackend) classify(err error) error {
	if pe := classifyContext("openai", err); pe != nil {
		return pe
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("openai", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus("openai", reqErr.HTTPStatusCode, "request failed", err)
	}
	return &ProviderError{Provider: "openai", Message: "request failed", Err: err}
}

// orEstimate prefers the provider's token count.
func orEstimate(reported int, text string) int {
	if reported > 0 {
		return reported
	}
	return estimateTokens(text)
}
