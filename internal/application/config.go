package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/pitchpanel/infrastructure/llm"
	"github.com/ahrav/pitchpanel/internal/domain"
)

// Config is the complete panel configuration and the root of the YAML
// file accepted by LoadConfigFile.
type Config struct {
	// CatalogPath points at a persona catalog. Empty selects the built-in
	// hackathon panel.
	CatalogPath string `yaml:"catalog_path"`
	// Categories restricts evaluation to these rubric categories. Empty
	// evaluates the whole rubric.
	Categories []string `yaml:"categories" validate:"omitempty,unique,dive,required"`
	// DefaultJudge answers when neither a name mention nor the classifier
	// picks a persona. Empty selects the first persona in the catalog.
	DefaultJudge string `yaml:"default_judge"`

	Session    SessionConfig    `yaml:"session"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Consensus  ConsensusConfig  `yaml:"consensus"`
	LLM        LLMConfig        `yaml:"llm" validate:"required"`
	Server     ServerConfig     `yaml:"server"`
}

// SessionConfig tunes the live Q&A.
type SessionConfig struct {
	// FirstSpeaker decides who opens the Q&A after the pitch.
	FirstSpeaker string  `yaml:"first_speaker" validate:"omitempty,oneof=judge human"`
	Temperature  float64 `yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens    int     `yaml:"max_tokens" validate:"omitempty,min=1,max=8192"`
	// VoiceBuffer bounds queued speech; extra lines are dropped.
	VoiceBuffer int `yaml:"voice_buffer" validate:"omitempty,min=1,max=1024"`
}

// EvaluationConfig tunes independent evaluation.
type EvaluationConfig struct {
	Temperature    float64 `yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens      int     `yaml:"max_tokens" validate:"omitempty,min=1,max=32768"`
	MaxConcurrency int     `yaml:"max_concurrency" validate:"omitempty,min=1,max=64"`
	JSONMode       bool    `yaml:"json_mode"`
}

// ConsensusConfig tunes negotiation.
type ConsensusConfig struct {
	MaxRounds      int     `yaml:"max_rounds" validate:"omitempty,min=1,max=10"`
	Temperature    float64 `yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens      int     `yaml:"max_tokens" validate:"omitempty,min=1,max=32768"`
	MaxConcurrency int     `yaml:"max_concurrency" validate:"omitempty,min=1,max=64"`
}

// LLMConfig selects the completion provider and its resilience layers.
type LLMConfig struct {
	Provider string        `yaml:"provider" validate:"required,provider"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" validate:"min=0"`
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit       float64       `yaml:"rate_limit" validate:"min=0"`
	Burst           int           `yaml:"burst" validate:"min=0"`
	MaxRetries      int           `yaml:"max_retries" validate:"min=0,max=10"`
	BreakerFailures int           `yaml:"breaker_failures" validate:"min=0"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" validate:"min=0"`
	// BudgetTokens and BudgetCalls cap total completion usage for the
	// life of the client; 0 disables the cap.
	BudgetTokens int64 `yaml:"budget_tokens" validate:"min=0"`
	BudgetCalls  int64 `yaml:"budget_calls" validate:"min=0"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{FirstSpeaker: "judge", Temperature: 0.7, MaxTokens: 400, VoiceBuffer: 16},
		Evaluation: EvaluationConfig{
			Temperature:    0.5,
			MaxTokens:      2000,
			MaxConcurrency: 8,
		},
		Consensus: ConsensusConfig{
			MaxRounds:      3,
			Temperature:    0.7,
			MaxTokens:      1500,
			MaxConcurrency: 4,
		},
		LLM: LLMConfig{
			Provider:        "openai",
			Timeout:         60 * time.Second,
			MaxRetries:      3,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Server: ServerConfig{Addr: "localhost:8080"},
	}
}

// LoadConfig decodes YAML from r over DefaultConfig and validates the
// result. Unknown fields are rejected.
func LoadConfig(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads a config from path. A relative CatalogPath is
// resolved against the config file's directory.
func LoadConfigFile(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg, err := LoadConfig(f)
	if err != nil {
		return nil, err
	}
	if cfg.CatalogPath != "" && !filepath.IsAbs(cfg.CatalogPath) {
		cfg.CatalogPath = filepath.Join(filepath.Dir(cleanPath), cfg.CatalogPath)
	}
	return cfg, nil
}

// Validate checks struct constraints. Category names are checked against
// the catalog when the panel is built.
func (c *Config) Validate() error {
	v, err := newValidator()
	if err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
		}
		verr := domain.NewValidationError("config")
		for _, fe := range verrs {
			verr.AddError(fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		return verr
	}
	return nil
}

func newValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := v.RegisterValidation("provider", validateProvider); err != nil {
		return nil, fmt.Errorf("failed to register provider validator: %w", err)
	}
	return v, nil
}

// validateProvider accepts the names of registered completion providers.
func validateProvider(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	for _, p := range llm.Providers() {
		if p == name {
			return true
		}
	}
	return false
}

// Secrets holds provider credentials read from the environment.
type Secrets struct {
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GoogleAPIKey    string `env:"GOOGLE_API_KEY"`
}

// LoadSecrets loads envFiles (".env" when none are given) into the process
// environment and then reads Secrets from it. A missing env file is not an
// error; variables already set in the environment win.
func LoadSecrets(ctx context.Context, envFiles ...string) (Secrets, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return loadSecrets(ctx, envconfig.OsLookuper())
}

func loadSecrets(ctx context.Context, l envconfig.Lookuper) (Secrets, error) {
	var s Secrets
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &s, Lookuper: l}); err != nil {
		return Secrets{}, fmt.Errorf("failed to process environment: %w", err)
	}
	return s, nil
}

// APIKey returns the credential for provider.
func (s Secrets) APIKey(provider string) string {
	switch provider {
	case "openai":
		return s.OpenAIAPIKey
	case "anthropic":
		return s.AnthropicAPIKey
	case "google":
		return s.GoogleAPIKey
	default:
		return ""
	}
}
