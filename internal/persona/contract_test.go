package persona

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/judgeio"
)

func TestTurnPrompt(t *testing.T) {
	c, err := Default().Contract("Google Judge")
	require.NoError(t, err)

	prompt, err := c.TurnPrompt("User: We built a budgeting app.", StartTrigger)
	require.NoError(t, err)

	assert.Contains(t, prompt, "You are Google Judge, a judge from Google")
	assert.Contains(t, prompt, "RBC Judge, 1Password Judge")
	assert.NotContains(t, prompt, "judges on the panel are: Google Judge")
	assert.Contains(t, prompt, "route: 1")
	assert.Contains(t, prompt, "target: <judge name>")
	assert.Contains(t, prompt, "User: We built a budgeting app.")
	assert.True(t, strings.HasSuffix(prompt, "User: Start Q&A\nGoogle Judge:"))
	assert.Equal(t, "CwhRBWXzGAHq8TQ4Fs17", c.VoiceID())
	assert.Equal(t, "Google Judge", c.Persona().Name)
}

func TestTurnPromptEmptyHistory(t *testing.T) {
	c, err := Default().Contract("RBC Judge")
	require.NoError(t, err)

	prompt, err := c.TurnPrompt("", "hello")
	require.NoError(t, err)
	assert.Contains(t, prompt, "(nothing yet)")
}

func TestEvaluationPromptSkeletonIsValidJSON(t *testing.T) {
	r := Default()
	rubric := r.Rubric()

	for _, name := range r.Names() {
		t.Run(name, func(t *testing.T) {
			c, err := r.Contract(name)
			require.NoError(t, err)

			prompt, err := c.EvaluationPrompt("We built a budgeting app.", rubric)
			require.NoError(t, err)
			assert.Contains(t, prompt, "Project Pitch Details:\nWe built a budgeting app.")
			assert.Contains(t, prompt, "practicality_and_impact:\n- Description:")

			var skeleton struct {
				Main struct {
					Scores   map[string]float64 `json:"scores"`
					Feedback map[string]string  `json:"feedback"`
				} `json:"main_evaluation"`
				Sponsor *domain.SponsorEvaluation `json:"sponsor_challenge_evaluation"`
			}
			raw := prompt[strings.Index(prompt, "{\n  \"main_evaluation\""):]
			require.NoError(t, json.Unmarshal([]byte(raw), &skeleton), raw)
			assert.Len(t, skeleton.Main.Scores, len(rubric))
			assert.Len(t, skeleton.Main.Feedback, len(rubric))

			p, _ := r.Lookup(name)
			if p.HasSponsor() {
				require.NotNil(t, skeleton.Sponsor)
				assert.Equal(t, p.Sponsor.Name, skeleton.Sponsor.ChallengeName)
				assert.Len(t, skeleton.Sponsor.Scores, len(p.Sponsor.Criteria))
				assert.Contains(t, prompt, "sponsor challenge")
			} else {
				assert.Nil(t, skeleton.Sponsor)
				assert.NotContains(t, prompt, "sponsor_challenge_evaluation")
			}
		})
	}
}

func TestEvaluationPromptSubsetOfCategories(t *testing.T) {
	r := Default()
	design, _ := r.Rubric().Category("design")

	c, err := r.Contract("1Password Judge")
	require.NoError(t, err)
	prompt, err := c.EvaluationPrompt("pitch", domain.Rubric{design})
	require.NoError(t, err)

	assert.NotContains(t, prompt, "pitching")
	assert.NotEmpty(t, judgeio.ExtractJSON(prompt[strings.Index(prompt, "respond with JSON"):]))
}

func TestTemplateFuncs(t *testing.T) {
	f := templateFuncs()
	truncate := f["truncate"].(func(string, int) string)
	assert.Equal(t, "", truncate("abc", 0))
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "ab", truncate("abcdefgh", 2))

	indent := f["indent"].(func(string, string) string)
	assert.Equal(t, "  a\n\n  b", indent("  ", "a\n\n   b\n"))

	last := f["last"].(func(int, int) bool)
	assert.True(t, last(2, 3))
	assert.False(t, last(0, 3))
}
