package persona

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ahrav/pitchpanel/internal/domain"
)

// StartTrigger is the input a judge receives when it opens the Q&A.
const StartTrigger = "Start Q&A"

const turnPromptText = `You are {{.Name}}, a judge from {{.Company}} on a hackathon pitch panel.
Background:
{{indent "  " .Background}}
Evaluation style:
{{indent "  " .Bias}}
{{if .Peers}}
The other judges on the panel are: {{join .Peers ", "}}.
{{end}}
Question the presenter about their project the way you would at a real judging table.
Keep each message to a few sentences. You may pass the floor to another judge when
their expertise fits the question better.

Answer using exactly these lines:
route: 2
message: <what you say to the presenter>

or, to hand the turn to another judge:
route: 1
target: <judge name>
message: <what you say to that judge>

Conversation so far:
{{if .History}}{{truncate .History 12000}}{{else}}(nothing yet){{end}}
User: {{.Input}}
{{.Name}}:`

const evaluationPromptText = `You are a judge from {{.Company}} evaluating hackathon projects.
Background:
{{indent "  " .Background}}
Evaluation style:
{{indent "  " .Bias}}

Project Pitch Details:
{{.Pitch}}
{{with .Sponsor}}
You are also evaluating for the {{.Name}} sponsor challenge.
Challenge Focus: {{.Description}}

Sponsor Challenge Rubric:
{{.Criteria.Text}}
{{end}}
Evaluation Rubric:
{{.RubricText}}

Score every category from 0 to 10 and respond with JSON only, using this exact structure:
{
  "main_evaluation": {
    "scores": {
{{- range $i, $c := .Categories}}
      "{{$c}}": 0.0{{if not (last $i (len $.Categories))}},{{end}}
{{- end}}
    },
    "feedback": {
{{- range $i, $c := .Categories}}
      "{{$c}}": "Your detailed feedback here"{{if not (last $i (len $.Categories))}},{{end}}
{{- end}}
    },
    "overall_feedback": "Your overall perspective of the project",
    "key_points": ["Key strength or weakness 1", "Key strength or weakness 2", "Key strength or weakness 3"]
  }{{if .Sponsor}},
  "sponsor_challenge_evaluation": {
    "challenge_name": "{{.Sponsor.Name}}",
    "scores": {
{{- range $i, $c := .SponsorCategories}}
      "{{$c}}": 0.0{{if not (last $i (len $.SponsorCategories))}},{{end}}
{{- end}}
    },
    "feedback": {
{{- range $i, $c := .SponsorCategories}}
      "{{$c}}": "Your detailed feedback here"{{if not (last $i (len $.SponsorCategories))}},{{end}}
{{- end}}
    },
    "challenge_specific_feedback": "Your overall assessment for the sponsor challenge",
    "key_strengths": ["Strength 1", "Strength 2", "Strength 3"],
    "areas_for_improvement": ["Area 1", "Area 2", "Area 3"]
  }{{end}}
}`

// Contract is the response contract of one persona: how it is prompted
// for a Q&A turn and for an evaluation, and which voice speaks for it.
type Contract struct {
	persona    domain.Persona
	peers      []string
	turn       *template.Template
	evaluation *template.Template
}

func newContract(p domain.Persona, peers []string) (*Contract, error) {
	turn, err := template.New("turnPrompt").Funcs(templateFuncs()).Parse(turnPromptText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse turn prompt template: %w", err)
	}
	eval, err := template.New("evaluationPrompt").Funcs(templateFuncs()).Parse(evaluationPromptText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse evaluation prompt template: %w", err)
	}
	return &Contract{persona: p, peers: peers, turn: turn, evaluation: eval}, nil
}

// Persona returns the persona the contract belongs to.
func (c *Contract) Persona() domain.Persona { return c.persona }

// VoiceID returns the text-to-speech voice of the persona.
func (c *Contract) VoiceID() string { return c.persona.VoiceID }

// TurnPrompt renders the Q&A prompt for one turn. history is the rendered
// conversation so far and input is what the persona is responding to.
func (c *Contract) TurnPrompt(history, input string) (string, error) {
	var b strings.Builder
	err := c.turn.Execute(&b, struct {
		Name, Company, Background, Bias string
		Peers                           []string
		History, Input                  string
	}{
		Name:       c.persona.Name,
		Company:    c.persona.Company,
		Background: c.persona.Background,
		Bias:       c.persona.EvaluationBias,
		Peers:      c.peers,
		History:    history,
		Input:      input,
	})
	if err != nil {
		return "", fmt.Errorf("render turn prompt for %s: %w", c.persona.Name, err)
	}
	return b.String(), nil
}

// EvaluationPrompt renders the scoring prompt for pitch over rubric. The
// sponsor section is included only when the persona has a challenge.
func (c *Contract) EvaluationPrompt(pitch string, rubric domain.Rubric) (string, error) {
	data := struct {
		Company, Background, Bias string
		Pitch, RubricText         string
		Categories                []string
		Sponsor                   *domain.SponsorChallenge
		SponsorCategories         []string
	}{
		Company:    c.persona.Company,
		Background: c.persona.Background,
		Bias:       c.persona.EvaluationBias,
		Pitch:      pitch,
		RubricText: rubric.Text(),
		Categories: rubric.Names(),
		Sponsor:    c.persona.Sponsor,
	}
	if c.persona.Sponsor != nil {
		data.SponsorCategories = c.persona.Sponsor.Criteria.Names()
	}

	var b strings.Builder
	if err := c.evaluation.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render evaluation prompt for %s: %w", c.persona.Name, err)
	}
	return b.String(), nil
}
