package llm

import (
	"fmt"
	"math"
	"net/url"
)

// Request defaults and limits shared by every provider.
const (
	DefaultMaxTokens = 2048

	MinTemperature = 0.0
	MaxTemperature = 2.0

	// OptionJSON asks providers that support it for a JSON object response.
	OptionJSON = "json"
)

// RequestOptions is the provider-neutral view of a request option map.
type RequestOptions struct {
	MaxTokens int
	Model     string
	// Temperature is nil when the provider default applies.
	Temperature *float64
	TopP        *float64
	System      string
	// Extra carries keys the standard fields do not cover.
	Extra map[string]any
}

// ParseRequestOptions reads the standard keys from opts. Missing or
// invalid values fall back to defaults.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	o := RequestOptions{
		MaxTokens: DefaultMaxTokens,
		Model:     defaultModel,
		Extra:     map[string]any{},
	}

	for k, v := range opts {
		switch k {
		case "max_tokens":
			if n, ok := toInt(v); ok && n > 0 {
				o.MaxTokens = n
			}
		case "model":
			if s, ok := v.(string); ok && s != "" {
				o.Model = s
			}
		case "system":
			if s, ok := v.(string); ok {
				o.System = s
			}
		case "temperature":
			if f, ok := toFloat(v); ok && f >= MinTemperature && f <= MaxTemperature {
				o.Temperature = &f
			}
		case "top_p":
			if f, ok := toFloat(v); ok && f >= 0 && f <= 1 {
				o.TopP = &f
			}
		default:
			o.Extra[k] = v
		}
	}
	return o
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		if int64(int(n)) != n {
			return 0, false
		}
		return int(n), true
	case float64:
		if math.IsNaN(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }

// validateBaseURL accepts "" or an absolute http(s) URL.
func validateBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return u.String(), nil
}
