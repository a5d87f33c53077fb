package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/pitchpanel/internal/consensus"
	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/session"
	"github.com/ahrav/pitchpanel/internal/testutils"
)

const (
	evaluationPrompt = "evaluating hackathon projects"
	turnPrompt       = "on a hackathon pitch panel"
)

var rubricCategories = []string{"practicality_and_impact", "pitching", "design", "completion", "theme_and_originality"}

func newPanel(t *testing.T, cfg *Config, deps Dependencies) *Panel {
	t.Helper()
	p, err := NewPanel(context.Background(), cfg, deps)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

// TestPanel_Evaluate runs a pitch through evaluation, consensus and report
// synthesis against scripted judges.
func TestPanel_Evaluate(t *testing.T) {
	client := testutils.NewScriptedLLMClient("").
		On("judge from Royal Bank of Canada evaluating", testutils.EvaluationJSON(8, rubricCategories...)).
		On("judge from Google evaluating", testutils.EvaluationJSON(7, rubricCategories...)).
		On("judge from 1Password evaluating", testutils.EvaluationJSON(6, rubricCategories...)).
		On("Initial Scores for design", testutils.ConsensusJSON(testutils.Score(7.5), "Agreed on 7.5", "RBC: strong UI")).
		On("Initial Scores", testutils.ConsensusJSON(nil, "", "still talking"))
	metrics := testutils.NewRecordingMetrics()
	p := newPanel(t, nil, Dependencies{Client: client, Metrics: metrics})

	r, failure := p.Evaluate(context.Background(), "User: we built a budgeting app", []string{"design", "pitching"})
	require.Nil(t, failure)
	require.NotNil(t, r)

	assert.Len(t, r.IndividualEvaluations, 3)
	assert.Equal(t, map[string]float64{"design": 7.5, "pitching": 7}, r.Consensus.FinalScores)
	assert.Contains(t, r.Consensus.DiscussionSummary, "## design Discussion Summary:\nAgreed on 7.5")

	design := r.MetaAnalysis.ScoreChanges["design"]
	assert.Equal(t, []float64{8, 7, 6}, design.InitialScores)
	assert.InDelta(t, 0.5, design.AverageChange, 1e-9)
	assert.Equal(t, 2.0, design.ScoreRange)

	pitching := r.MetaAnalysis.ScoreChanges["pitching"]
	assert.Zero(t, pitching.AverageChange)
	assert.Contains(t, r.MetaAnalysis.DiscussionHighlights, "pitching: "+consensus.FallbackReasoning)

	assert.True(t, r.Consensus.DetailedDiscussions["design"].Reached)
	assert.Equal(t, "Agreed on 7.5", r.Consensus.DetailedDiscussions["design"].FinalReasoning)
	assert.False(t, r.Consensus.DetailedDiscussions["pitching"].Reached)
	assert.Equal(t, consensus.FallbackReasoning, r.Consensus.DetailedDiscussions["pitching"].FinalReasoning)

	assert.Equal(t, 3, client.CallsMatching(evaluationPrompt))
}

func TestPanel_ZeroTemperatureFromConfig(t *testing.T) {
	client := testutils.NewScriptedLLMClient("").
		On(evaluationPrompt, testutils.EvaluationJSON(7, rubricCategories...)).
		On("Initial Scores", testutils.ConsensusJSON(testutils.Score(7), "Agreed", "RBC: fine"))
	cfg := DefaultConfig()
	cfg.Evaluation.Temperature = 0
	cfg.Consensus.Temperature = 0

	p := newPanel(t, cfg, Dependencies{Client: client})
	_, failure := p.Evaluate(context.Background(), "pitch", []string{"design"})
	require.Nil(t, failure)

	require.Equal(t, 4, client.CallCount())
	for _, call := range client.Calls() {
		assert.Equal(t, 0.0, call.Options["temperature"], call.Prompt)
	}
}

func TestPanel_EvaluateDefaultsToConfiguredCategories(t *testing.T) {
	client := testutils.NewScriptedLLMClient(testutils.ConsensusJSON(testutils.Score(6), "ok")).
		On(evaluationPrompt, testutils.EvaluationJSON(6, rubricCategories...))
	cfg := DefaultConfig()
	cfg.Categories = []string{"completion"}
	p := newPanel(t, cfg, Dependencies{Client: client})

	r, failure := p.Evaluate(context.Background(), "pitch", nil)
	require.Nil(t, failure)
	assert.Equal(t, map[string]float64{"completion": 6}, r.Consensus.FinalScores)
	assert.Equal(t, []string{"completion"}, p.Categories())
}

func TestPanel_EvaluateFailures(t *testing.T) {
	tests := []struct {
		name         string
		client       *testutils.ScriptedLLMClient
		pitch        string
		categories   []string
		wantCategory string
	}{
		{
			name:         "every judge fails",
			client:       testutils.NewScriptedLLMClient("no json here"),
			pitch:        "pitch",
			wantCategory: domain.CategoryNoEvaluations,
		},
		{
			name:         "every request errors",
			client:       testutils.NewScriptedLLMClient("").Fail(evaluationPrompt, errors.New("provider down")),
			pitch:        "pitch",
			wantCategory: domain.CategoryNoEvaluations,
		},
		{
			name:         "unknown category",
			client:       testutils.NewScriptedLLMClient(""),
			pitch:        "pitch",
			categories:   []string{"vibes"},
			wantCategory: domain.CategoryValidation,
		},
		{
			name:         "blank pitch",
			client:       testutils.NewScriptedLLMClient(""),
			pitch:        "   ",
			wantCategory: domain.CategoryValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPanel(t, nil, Dependencies{Client: tt.client})
			r, failure := p.Evaluate(context.Background(), tt.pitch, tt.categories)
			assert.Nil(t, r)
			require.NotNil(t, failure)
			assert.Equal(t, tt.wantCategory, failure.Category)
			assert.NotEmpty(t, failure.Error)
		})
	}
}

func TestPanel_EvaluateToleratesOneJudge(t *testing.T) {
	client := testutils.NewScriptedLLMClient(testutils.ConsensusJSON(nil, "")).
		On("judge from Google evaluating", "I refuse to use numbers.").
		On(evaluationPrompt, testutils.EvaluationJSON(8, rubricCategories...))
	p := newPanel(t, nil, Dependencies{Client: client})

	r, failure := p.Evaluate(context.Background(), "pitch", []string{"design"})
	require.Nil(t, failure)
	require.Len(t, r.IndividualEvaluations, 2)
	assert.Equal(t, []float64{8, 8}, r.MetaAnalysis.ScoreChanges["design"].InitialScores)
}

func TestNewPanel_InvalidConfiguration(t *testing.T) {
	client := testutils.NewScriptedLLMClient("")

	tests := []struct {
		name   string
		mutate func(*Config)
		deps   Dependencies
	}{
		{"no client", func(*Config) {}, Dependencies{}},
		{"unknown category", func(c *Config) { c.Categories = []string{"vibes"} }, Dependencies{Client: client}},
		{"unknown default judge", func(c *Config) { c.DefaultJudge = "Nobody" }, Dependencies{Client: client}},
		{"missing catalog", func(c *Config) { c.CatalogPath = filepath.Join(t.TempDir(), "none.yaml") }, Dependencies{Client: client}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			_, err := NewPanel(context.Background(), cfg, tt.deps)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}
}

func TestNewPanel_CustomCatalog(t *testing.T) {
	catalog := `
personas:
  - name: Solo Judge
    company: Acme
    background: Builds things.
    evaluation_bias: Shipping matters.
    description: the only judge
rubric:
  - name: shipping
    description: Did it ship?
    weight: 1
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o600))

	cfg := DefaultConfig()
	cfg.CatalogPath = path
	p := newPanel(t, cfg, Dependencies{Client: testutils.NewScriptedLLMClient("")})

	assert.Equal(t, []string{"Solo Judge"}, p.Registry().Names())
	assert.Equal(t, []string{"shipping"}, p.Categories())
}

func TestPanel_SessionLifecycle(t *testing.T) {
	client := testutils.NewScriptedLLMClient(testutils.ConsensusJSON(testutils.Score(7), "fine")).
		On(turnPrompt, testutils.RoutingReply("", "What problem does it solve?")).
		On(evaluationPrompt, testutils.EvaluationJSON(7, rubricCategories...))
	capture := testutils.NewQueueCapture("Our pitch is a budgeting app.")
	sink := &testutils.TranscriptRecorder{}
	speaker := &testutils.RecordingSpeaker{}
	p := newPanel(t, nil, Dependencies{
		Client:     client,
		Classifier: &testutils.StaticClassifier{Name: "Google Judge"},
		Capture:    capture,
		Speaker:    speaker,
		Sink:       sink,
	})

	require.NoError(t, p.StartSession(context.Background()))
	assert.Equal(t, session.PhasePitchCaptured, p.Phase())

	require.NoError(t, p.BeginQnA(context.Background()))
	assert.ErrorIs(t, p.BeginQnA(context.Background()), domain.ErrSessionAlreadyActive)

	require.Eventually(t, func() bool {
		return len(p.SessionState().Transcript) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	p.StopSession()
	state := p.SessionState()
	assert.False(t, state.Active)
	assert.False(t, state.QnAInProgress)
	assert.Equal(t, session.PhaseEnded, p.Phase())
	assert.Equal(t, domain.SpeakerHuman, state.Transcript[0].Speaker)
	assert.Equal(t, "Google Judge", state.Transcript[1].Speaker, "the classifier picks the opening judge")
	assert.NotEmpty(t, sink.Entries())

	r, failure := p.EvaluateSession(context.Background(), []string{"design"})
	require.Nil(t, failure)
	assert.Equal(t, 7.0, r.Consensus.FinalScores["design"])
	assert.Contains(t, client.Calls()[len(client.Calls())-1].Prompt, "Initial Scores for design")

	require.NoError(t, p.BeginQnA(context.Background()), "a stopped session can begin again")
}

func TestPanel_WithoutCapture(t *testing.T) {
	p := newPanel(t, nil, Dependencies{Client: testutils.NewScriptedLLMClient("")})

	assert.ErrorIs(t, p.StartSession(context.Background()), ErrNoSession)
	assert.ErrorIs(t, p.BeginQnA(context.Background()), ErrNoSession)
	assert.Equal(t, session.PhaseIdle, p.Phase())
	p.StopSession()

	_, failure := p.EvaluateSession(context.Background(), nil)
	require.NotNil(t, failure)
	assert.Equal(t, domain.CategoryInternal, failure.Category)
}

func TestNewClient(t *testing.T) {
	cfg := DefaultConfig().LLM

	_, err := NewClient(cfg, Secrets{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration, "missing API key")

	client, err := NewClient(cfg, Secrets{OpenAIAPIKey: "sk-test"}, testutils.NewRecordingMetrics())
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Provider())
}
