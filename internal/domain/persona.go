package domain

import (
	"fmt"
	"strings"
)

// RubricCategory is one weighted scoring dimension of a rubric.
// Name is the key judges use when reporting scores.
type RubricCategory struct {
	Name        string  `json:"name" yaml:"name" validate:"required"`
	Description string  `json:"description" yaml:"description"`
	Weight      float64 `json:"weight" yaml:"weight" validate:"gt=0"`
}

// Rubric is an ordered list of categories. Order is preserved when the
// rubric is rendered into prompts.
type Rubric []RubricCategory

// Category returns the category with the given name.
func (r Rubric) Category(name string) (RubricCategory, bool) {
	for _, c := range r {
		if c.Name == name {
			return c, true
		}
	}
	return RubricCategory{}, false
}

// Names returns the category names in rubric order.
func (r Rubric) Names() []string {
	names := make([]string, len(r))
	for i, c := range r {
		names[i] = c.Name
	}
	return names
}

// Text renders the rubric in the line format judges are prompted with.
func (r Rubric) Text() string {
	var b strings.Builder
	for i, c := range r {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s:\n- Description: %s\n- Weight: %g\n", c.Name, c.Description, c.Weight)
	}
	return b.String()
}

// SponsorChallenge is an extra rubric scoped to the persona that carries it.
type SponsorChallenge struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Description string `json:"description" yaml:"description"`
	Criteria    Rubric `json:"criteria" yaml:"criteria" validate:"required,min=1,dive"`
}

// Persona is a configured judge identity. Personas are loaded once and
// never mutated afterwards.
type Persona struct {
	// Name is unique across the registry and doubles as the transcript
	// speaker label.
	Name string `json:"name" yaml:"name" validate:"required"`

	Company        string `json:"company" yaml:"company"`
	Background     string `json:"background" yaml:"background" validate:"required"`
	EvaluationBias string `json:"evaluation_bias" yaml:"evaluation_bias" validate:"required"`

	// Description is the one-line summary the routing classifier sees.
	Description string `json:"description" yaml:"description"`

	// VoiceID selects the text-to-speech voice for this persona.
	VoiceID string `json:"voice_id" yaml:"voice_id"`

	Sponsor *SponsorChallenge `json:"sponsor_challenge,omitempty" yaml:"sponsor_challenge,omitempty" validate:"omitempty"`
}

// HasSponsor reports whether the persona evaluates a sponsor challenge.
func (p Persona) HasSponsor() bool { return p.Sponsor != nil }
