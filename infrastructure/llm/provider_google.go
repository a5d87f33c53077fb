package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when Config.Model is empty.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() { RegisterProvider("google", newGoogleBackend) }

type googleBackend struct {
	client *genai.Client
	model  string
}

func newGoogleBackend(cfg Config) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if strings.HasSuffix(strings.ToLower(cfg.APIKey), ".json") {
		return nil, fmt.Errorf("service account credentials are not supported; provide a Gemini API key")
	}

	model := cfg.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	base, err := validateBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if base != "" {
		cc.HTTPOptions.BaseURL = base
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &googleBackend{client: client, model: model}, nil
}

func (b *googleBackend) Model() string { return b.model }

func (b *googleBackend) Generate(ctx context.Context, prompt string, opts map[string]any) (Completion, error) {
	o := ParseRequestOptions(opts, b.model)

	gc := &genai.GenerateContentConfig{}
	if o.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(o.System, genai.RoleUser)
	}
	if o.Temperature != nil {
		gc.Temperature = genai.Ptr(float32(*o.Temperature))
	}
	if o.TopP != nil {
		gc.TopP = genai.Ptr(float32(*o.TopP))
	}
	gc.MaxOutputTokens = int32(min(o.MaxTokens, math.MaxInt32))
	if asJSON, _ := o.Extra[OptionJSON].(bool); asJSON {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := b.client.Models.GenerateContent(ctx, o.Model, genai.Text(prompt), gc)
	if err != nil {
		return Completion{}, b.classify(err)
	}

	text := resp.Text()
	if text == "" {
		return Completion{}, ErrEmptyResponse
	}

	var in, out int
	if u := resp.UsageMetadata; u != nil {
		in, out = int(u.PromptTokenCount), int(u.CandidatesTokenCount)
	}
	return Completion{Text: text, TokensIn: orEstimate(in, prompt), TokensOut: orEstimate(out, text)}, nil
}

func (b *googleBackend) classify(err error) error {
	if pe := classifyContext("google", err); pe != nil {
		return pe
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if isSafetyBlock(apiErr.Message) {
			return &ProviderError{Kind: KindContentPolicy, Provider: "google", StatusCode: apiErr.Code, Message: "blocked by safety filters", Err: err}
		}
		return classifyStatus("google", apiErr.Code, apiErr.Message, err)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		msg := gErr.Message
		if msg == "" && len(gErr.Errors) > 0 {
			msg = gErr.Errors[0].Message
		}
		for _, item := range gErr.Errors {
			if item.Reason == "SAFETY" || item.Reason == "BLOCKED" {
				return &ProviderError{Kind: KindContentPolicy, Provider: "google", StatusCode: gErr.Code, Message: "blocked by safety filters", Err: err}
			}
		}
		if isSafetyBlock(msg) {
			return &ProviderError{Kind: KindContentPolicy, Provider: "google", StatusCode: gErr.Code, Message: "blocked by safety filters", Err: err}
		}
		return classifyStatus("google", gErr.Code, msg, err)
	}

	return &ProviderError{Provider: "google", Message: "request failed", Err: err}
}

func isSafetyBlock(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "safety") || strings.Contains(lower, "blocked")
}
