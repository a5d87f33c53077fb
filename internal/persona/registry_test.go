package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/pitchpanel/internal/domain"
)

func TestDefaultCatalog(t *testing.T) {
	r := Default()

	assert.Equal(t, []string{"RBC Judge", "Google Judge", "1Password Judge"}, r.Names())
	assert.Equal(t, []string{"practicality_and_impact", "pitching", "design", "completion", "theme_and_originality"}, r.Rubric().Names())

	rbc, err := r.Lookup("RBC Judge")
	require.NoError(t, err)
	require.True(t, rbc.HasSponsor())
	assert.Equal(t, "Young, Smart, & Financially Savvy", rbc.Sponsor.Name)
	assert.Equal(t, []string{"cyber_security", "student_focus", "implementation_feasibility", "regulatory_compliance"}, rbc.Sponsor.Criteria.Names())

	google, err := r.Lookup("Google Judge")
	require.NoError(t, err)
	assert.False(t, google.HasSponsor())

	weights := map[string]float64{}
	for _, c := range r.Rubric() {
		weights[c.Name] = c.Weight
	}
	assert.Equal(t, map[string]float64{
		"practicality_and_impact": 5,
		"pitching":                2,
		"design":                  4,
		"completion":              5,
		"theme_and_originality":   3,
	}, weights)
}

func TestLookupUnknown(t *testing.T) {
	_, err := Default().Lookup("Apple Judge")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownPersona)

	var upe *domain.UnknownPersonaError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, "Apple Judge", upe.Name)

	_, err = Default().Contract("Apple Judge")
	assert.ErrorIs(t, err, domain.ErrUnknownPersona)
}

func TestResolve(t *testing.T) {
	r := Default()
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Google Judge", "Google Judge", true},
		{"google judge", "Google Judge", true},
		{"  Google judge.  ", "Google Judge", true},
		{`"RBC Judge"`, "RBC Judge", true},
		{"1password  judge", "1Password Judge", true},
		{"Gogle Judge", "Google Judge", true},
		{"RBC Jduge", "RBC Judge", true},
		{"Amazon Judge", "", false},
		{"", "", false},
		{"Judge", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := r.Resolve(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRejectsAmbiguousFuzzyMatch(t *testing.T) {
	r, err := New(Catalog{
		Personas: []domain.Persona{
			{Name: "Judge A", Background: "b", EvaluationBias: "e"},
			{Name: "Judge B", Background: "b", EvaluationBias: "e"},
		},
		Rubric: domain.Rubric{{Name: "design", Weight: 1}},
	})
	require.NoError(t, err)

	_, ok := r.Resolve("Judge C")
	assert.False(t, ok)

	got, ok := r.Resolve("judge a")
	assert.True(t, ok)
	assert.Equal(t, "Judge A", got)
}

func TestNewValidation(t *testing.T) {
	valid := domain.Persona{Name: "A", Background: "b", EvaluationBias: "e"}
	rubric := domain.Rubric{{Name: "design", Weight: 1}}

	tests := []struct {
		name    string
		catalog Catalog
	}{
		{"no personas", Catalog{Rubric: rubric}},
		{"no rubric", Catalog{Personas: []domain.Persona{valid}}},
		{"duplicate names", Catalog{Personas: []domain.Persona{valid, valid}, Rubric: rubric}},
		{"names differing in case", Catalog{Personas: []domain.Persona{valid, {Name: "a", Background: "b", EvaluationBias: "e"}}, Rubric: rubric}},
		{"missing background", Catalog{Personas: []domain.Persona{{Name: "A", EvaluationBias: "e"}}, Rubric: rubric}},
		{"zero weight", Catalog{Personas: []domain.Persona{valid}, Rubric: domain.Rubric{{Name: "design"}}}},
		{"duplicate category", Catalog{Personas: []domain.Persona{valid}, Rubric: domain.Rubric{{Name: "design", Weight: 1}, {Name: "design", Weight: 2}}}},
		{"sponsor without criteria", Catalog{Personas: []domain.Persona{{Name: "A", Background: "b", EvaluationBias: "e", Sponsor: &domain.SponsorChallenge{Name: "x"}}}, Rubric: rubric}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.catalog)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panel.yaml")
	catalog := `personas:
  - name: Solo Judge
    company: Acme
    background: Builds things.
    evaluation_bias: Likes working demos.
rubric:
  - name: completion
    weight: 5
    description: Does it work.
`
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o600))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Solo Judge"}, r.Names())
	assert.Equal(t, 1, r.Len())

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(strings.NewReader("personas: [unknown_field: 1]"))
	assert.Error(t, err)
}

func TestAccessorsReturnCopies(t *testing.T) {
	r := Default()
	ps := r.Personas()
	ps[0].Name = "mutated"
	rubric := r.Rubric()
	rubric[0].Weight = 100

	p, err := r.Lookup("RBC Judge")
	require.NoError(t, err)
	assert.Equal(t, "RBC Judge", p.Name)
	assert.Equal(t, 5.0, r.Rubric()[0].Weight)
}
