package application

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/pitchpanel/internal/domain"
)

// TestLoadConfig_YAML verifies decoding over the defaults and the struct
// validation applied afterwards.
func TestLoadConfig_YAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		verify  func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty document keeps defaults",
			yaml: "",
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultConfig(), cfg)
			},
		},
		{
			name: "overrides",
			yaml: `
categories: [design, pitching]
default_judge: Google Judge
session:
  first_speaker: human
  voice_buffer: 4
evaluation:
  temperature: 0.2
  max_concurrency: 2
  json_mode: true
consensus:
  max_rounds: 5
llm:
  provider: anthropic
  model: claude-test
  timeout: 15s
  rate_limit: 2.5
  burst: 3
server:
  addr: ":9090"
`,
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"design", "pitching"}, cfg.Categories)
				assert.Equal(t, "Google Judge", cfg.DefaultJudge)
				assert.Equal(t, "human", cfg.Session.FirstSpeaker)
				assert.Equal(t, 4, cfg.Session.VoiceBuffer)
				assert.Equal(t, 400, cfg.Session.MaxTokens, "unset fields keep defaults")
				assert.Equal(t, 0.2, cfg.Evaluation.Temperature)
				assert.Equal(t, 2, cfg.Evaluation.MaxConcurrency)
				assert.True(t, cfg.Evaluation.JSONMode)
				assert.Equal(t, 5, cfg.Consensus.MaxRounds)
				assert.Equal(t, "anthropic", cfg.LLM.Provider)
				assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
				assert.Equal(t, 2.5, cfg.LLM.RateLimit)
				assert.Equal(t, ":9090", cfg.Server.Addr)
			},
		},
		{
			name:    "unknown field",
			yaml:    "judges: 3\n",
			wantErr: "field judges not found",
		},
		{
			name:    "unknown provider",
			yaml:    "llm:\n  provider: carrier-pigeon\n",
			wantErr: "Config.LLM.Provider",
		},
		{
			name:    "bad first speaker",
			yaml:    "session:\n  first_speaker: audience\n",
			wantErr: "Config.Session.FirstSpeaker",
		},
		{
			name:    "repeated category",
			yaml:    "categories: [design, design]\n",
			wantErr: "Config.Categories",
		},
		{
			name:    "too many rounds",
			yaml:    "consensus:\n  max_rounds: 50\n",
			wantErr: "Config.Consensus.MaxRounds",
		},
		{
			name:    "malformed yaml",
			yaml:    "session: [",
			wantErr: "YAML decode failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(strings.NewReader(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.verify(t, cfg)
		})
	}
}

// TestLoadConfig_ValidationErrorCategory checks struct failures surface as
// a domain validation error.
func TestLoadConfig_ValidationErrorCategory(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("server:\n  addr: not-an-address\n"))
	require.Error(t, err)
	assert.Equal(t, domain.CategoryValidation, domain.Categorize(err))
}

func TestLoadConfigFile_ResolvesCatalogPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("catalog_path: judges.yaml\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "judges.yaml"), cfg.CatalogPath)

	_, err = LoadConfigFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadSecrets_FromLookuper(t *testing.T) {
	s, err := loadSecrets(context.Background(), envconfig.MapLookuper(map[string]string{
		"OPENAI_API_KEY":    "sk-openai",
		"ANTHROPIC_API_KEY": "sk-anthropic",
	}))
	require.NoError(t, err)

	assert.Equal(t, "sk-openai", s.APIKey("openai"))
	assert.Equal(t, "sk-anthropic", s.APIKey("anthropic"))
	assert.Empty(t, s.APIKey("google"))
	assert.Empty(t, s.APIKey("unknown"))
}

func TestLoadSecrets_DotEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	require.NoError(t, os.Unsetenv("ANTHROPIC_API_KEY"))
	t.Setenv("OPENAI_API_KEY", "from-env")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ANTHROPIC_API_KEY=from-file\nOPENAI_API_KEY=file-loses\n"), 0o600))

	s, err := LoadSecrets(context.Background(), envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-file", s.AnthropicAPIKey)
	assert.Equal(t, "from-env", s.OpenAIAPIKey)

	_, err = LoadSecrets(context.Background(), filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err, "a missing env file is not an error")
}
