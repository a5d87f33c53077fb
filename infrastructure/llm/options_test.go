package llm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		o := ParseRequestOptions(nil, "base-model")
		assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
		assert.Equal(t, "base-model", o.Model)
		assert.Nil(t, o.Temperature)
		assert.Nil(t, o.TopP)
		assert.Empty(t, o.System)
		assert.Empty(t, o.Extra)
	})

	t.Run("standard keys", func(t *testing.T) {
		o := ParseRequestOptions(map[string]any{
			"max_tokens":  512,
			"model":       "override",
			"system":      "be terse",
			"temperature": 0.7,
			"top_p":       0.9,
			OptionJSON:    true,
		}, "base-model")

		assert.Equal(t, 512, o.MaxTokens)
		assert.Equal(t, "override", o.Model)
		assert.Equal(t, "be terse", o.System)
		require.NotNil(t, o.Temperature)
		assert.InDelta(t, 0.7, *o.Temperature, 1e-9)
		require.NotNil(t, o.TopP)
		assert.InDelta(t, 0.9, *o.TopP, 1e-9)
		assert.Equal(t, true, o.Extra[OptionJSON])
	})

	t.Run("integer temperature", func(t *testing.T) {
		o := ParseRequestOptions(map[string]any{"temperature": 0}, "m")
		require.NotNil(t, o.Temperature)
		assert.Equal(t, 0.0, *o.Temperature)
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		o := ParseRequestOptions(map[string]any{
			"max_tokens":  -1,
			"model":       "",
			"temperature": 3.5,
			"top_p":       math.NaN(),
		}, "m")
		assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
		assert.Equal(t, "m", o.Model)
		assert.Nil(t, o.Temperature)
		assert.Nil(t, o.TopP)
	})
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "https://api.example.com/v1", want: "https://api.example.com/v1"},
		{in: "http://localhost:8080", want: "http://localhost:8080"},
		{in: "localhost:8080", wantErr: true},
		{in: "ftp://example.com", wantErr: true},
		{in: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := validateBaseURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
