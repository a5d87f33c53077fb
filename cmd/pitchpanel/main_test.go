package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/pitchpanel/internal/application"
	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/ports"
	"github.com/ahrav/pitchpanel/internal/testutils"
)

var categories = []string{"practicality_and_impact", "pitching", "design", "completion", "theme_and_originality"}

func scriptedPanel() *testutils.ScriptedLLMClient {
	return testutils.NewScriptedLLMClient("").
		On("evaluating hackathon projects", testutils.EvaluationJSON(7, categories...)).
		On("Initial Scores", testutils.ConsensusJSON(testutils.Score(7), "Everyone landed on 7", "Google: agreed")).
		On("on a hackathon pitch panel", testutils.RoutingReply("", "What is your moat?"))
}

// run executes the CLI with a scripted completion client and returns
// stdout and the captured LLM config.
func run(t *testing.T, client ports.LLMClient, stdin string, args ...string) (string, application.LLMConfig, error) {
	t.Helper()
	var got application.LLMConfig
	c := &cli{newClient: func(cfg application.LLMConfig, _ application.Secrets, _ ports.MetricsCollector) (ports.LLMClient, error) {
		got = cfg
		return client, nil
	}}
	root := newRootCmd(c)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := root.ExecuteContext(context.Background())
	return out.String(), got, err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestEvaluate_Markdown(t *testing.T) {
	pitch := writeFile(t, "pitch.txt", "We built a budgeting app for students.")

	out, _, err := run(t, scriptedPanel(), "", "evaluate", "--pitch", pitch, "--category", "design", "--category", "pitching")
	require.NoError(t, err)

	assert.Contains(t, out, "# Panel Report")
	assert.Contains(t, out, "design")
	assert.Contains(t, out, "pitching")
	assert.Contains(t, out, "Everyone landed on 7")
}

func TestEvaluate_JSONFromStdin(t *testing.T) {
	out, _, err := run(t, scriptedPanel(), "We built a budgeting app.", "evaluate", "--pitch", "-", "--json")
	require.NoError(t, err)

	var r domain.Report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Len(t, r.IndividualEvaluations, 3)
	assert.Len(t, r.Consensus.FinalScores, len(categories))
	assert.Equal(t, 7.0, r.Consensus.FinalScores["design"])
}

func TestEvaluate_Failures(t *testing.T) {
	pitch := writeFile(t, "pitch.txt", "pitch")

	tests := []struct {
		name    string
		client  ports.LLMClient
		args    []string
		wantErr string
	}{
		{
			name:    "pitch flag required",
			client:  scriptedPanel(),
			args:    []string{"evaluate"},
			wantErr: `required flag(s) "pitch" not set`,
		},
		{
			name:    "missing pitch file",
			client:  scriptedPanel(),
			args:    []string{"evaluate", "--pitch", filepath.Join(t.TempDir(), "nope.txt")},
			wantErr: "failed to read pitch",
		},
		{
			name:    "unknown category",
			client:  scriptedPanel(),
			args:    []string{"evaluate", "--pitch", pitch, "--category", "vibes"},
			wantErr: domain.CategoryValidation,
		},
		{
			name:    "every judge fails",
			client:  testutils.NewScriptedLLMClient("").Fail("evaluating", errors.New("provider down")),
			args:    []string{"evaluate", "--pitch", pitch},
			wantErr: domain.CategoryNoEvaluations,
		},
		{
			name:    "bad log level",
			client:  scriptedPanel(),
			args:    []string{"evaluate", "--pitch", pitch, "--log-level", "loud"},
			wantErr: "invalid log level",
		},
		{
			name:    "unknown provider",
			client:  scriptedPanel(),
			args:    []string{"evaluate", "--pitch", pitch, "--provider", "carrier-pigeon"},
			wantErr: "provider",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.client, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRoot_ConfigFileAndOverrides(t *testing.T) {
	cfgPath := writeFile(t, "panel.yaml", "llm:\n  provider: anthropic\n  model: claude-test\n")
	pitch := writeFile(t, "pitch.txt", "pitch")

	_, llmCfg, err := run(t, scriptedPanel(), "", "evaluate", "--config", cfgPath, "--pitch", pitch)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", llmCfg.Provider)
	assert.Equal(t, "claude-test", llmCfg.Model)

	_, llmCfg, err = run(t, scriptedPanel(), "", "evaluate", "--config", cfgPath, "--model", "override", "--pitch", pitch)
	require.NoError(t, err)
	assert.Equal(t, "override", llmCfg.Model)

	t.Setenv("PITCHPANEL_PROVIDER", "google")
	_, llmCfg, err = run(t, scriptedPanel(), "", "evaluate", "--pitch", pitch)
	require.NoError(t, err)
	assert.Equal(t, "google", llmCfg.Provider)
}

func TestRehearse(t *testing.T) {
	client := scriptedPanel()
	stdin := "We built a budgeting app for students.\nOur moat is the bank integrations.\n"

	out, _, err := run(t, client, stdin, "rehearse", "--evaluate")
	require.NoError(t, err)

	assert.Contains(t, out, "User: We built a budgeting app for students.")
	assert.Contains(t, out, "RBC Judge: What is your moat?")
	assert.Contains(t, out, "User: Our moat is the bank integrations.")
	assert.Contains(t, out, "# Panel Report")
	assert.Equal(t, 3, client.CallsMatching("evaluating hackathon projects"))
}
