package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestServer(t *testing.T, status int, body any, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chatResponse(content string, in, out int) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": in, "completion_tokens": out, "total_tokens": in + out},
	}
}

func TestOpenAIBackendGenerate(t *testing.T) {
	var req map[string]any
	srv := newOpenAITestServer(t, http.StatusOK, chatResponse("route: 2\nmessage: Tell me more.", 42, 7), &req)

	backend, err := newOpenAIBackend(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	out, err := backend.Generate(context.Background(), "judge prompt", map[string]any{
		"system":      "You are the RBC Judge.",
		"temperature": 0.7,
		"max_tokens":  300,
		OptionJSON:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, "route: 2\nmessage: Tell me more.", out.Text)
	assert.Equal(t, 42, out.TokensIn)
	assert.Equal(t, 7, out.TokensOut)

	assert.Equal(t, OpenAIDefaultModel, req["model"])
	assert.EqualValues(t, 300, req["max_tokens"])
	assert.InDelta(t, 0.7, req["temperature"], 1e-6)
	msgs, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "judge prompt", msgs[1].(map[string]any)["content"])
	assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])
}

func TestOpenAIBackendEstimatesMissingUsage(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusOK, chatResponse("abcdefgh", 0, 0), nil)

	backend, err := newOpenAIBackend(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	out, err := backend.Generate(context.Background(), "abcd", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.TokensIn)
	assert.Equal(t, 2, out.TokensOut)
}

func TestOpenAIBackendErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		kind   ErrorKind
		sent   error
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   map[string]any{"error": map[string]any{"message": "bad key", "type": "invalid_request_error"}},
			kind:   KindAuthentication,
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   map[string]any{"error": map[string]any{"message": "bad model", "type": "invalid_request_error"}},
			kind:   KindBadRequest,
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   map[string]any{"id": "x", "choices": []any{}},
			sent:   ErrEmptyResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newOpenAITestServer(t, tt.status, tt.body, nil)
			backend, err := newOpenAIBackend(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
			require.NoError(t, err)

			_, err = backend.Generate(context.Background(), "p", nil)
			require.Error(t, err)
			if tt.sent != nil {
				assert.ErrorIs(t, err, tt.sent)
				return
			}
			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestOpenAIBackendCanceledContext(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusOK, chatResponse("x", 1, 1), nil)
	backend, err := newOpenAIBackend(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = backend.Generate(ctx, "p", nil)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindCanceled, pe.Kind)
	assert.False(t, pe.Retryable())
}
