package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyAPIKey indicates that an API key was required but not provided.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse indicates the provider returned no text.
	ErrEmptyResponse = errors.New("empty response from provider")
)

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthentication
	KindRateLimit
	KindBadRequest
	KindNotFound
	KindServer
	KindContentPolicy
	KindTimeout
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindRateLimit:
		return "rate_limit"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server_error"
	case KindContentPolicy:
		return "content_policy"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ProviderError normalizes an error returned by a provider SDK.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + " error"
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Kind != KindUnknown {
		msg += " [" + e.Kind.String() + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the SDK error.
func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt may succeed.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindServer, KindTimeout, KindUnknown:
		return true
	default:
		return false
	}
}

// isRetryable treats unclassified errors as transient.
func isRetryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}

// classifyStatus builds a ProviderError from an HTTP status code.
func classifyStatus(provider string, status int, message string, err error) *ProviderError {
	kind := KindUnknown
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthentication
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusRequestTimeout:
		kind = KindTimeout
	case status >= 400 && status < 500:
		kind = KindBadRequest
	case status >= 500:
		kind = KindServer
	}
	return &ProviderError{Kind: kind, Provider: provider, StatusCode: status, Message: message, Err: err}
}

// classifyContext returns a ProviderError for context failures, or nil.
func classifyContext(provider string, err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ProviderError{Kind: KindTimeout, Provider: provider, Message: "deadline exceeded", Err: err}
	case errors.Is(err, context.Canceled):
		return &ProviderError{Kind: KindCanceled, Provider: provider, Message: "request canceled", Err: err}
	default:
		return nil
	}
}
