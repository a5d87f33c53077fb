// Package persona holds the read-only catalog of judge personas and the
// rubric they score against.
//
// A Registry is built once at startup, from YAML or from the embedded
// default catalog, and is safe for concurrent use because nothing in it
// changes after construction.
package persona

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/pitchpanel/internal/domain"
)

// MaxResolveDistance is the largest edit distance Resolve accepts for a
// fuzzy match.
const MaxResolveDistance = 2

//go:embed catalogs/default.yaml
var defaultCatalog []byte

// Catalog is the on-disk form of a registry.
type Catalog struct {
	Personas []domain.Persona `yaml:"personas" validate:"required,min=1,unique=Name,dive"`
	Rubric   domain.Rubric    `yaml:"rubric" validate:"required,min=1,unique=Name,dive"`
}

var validate = validator.New()

// Registry maps persona names to personas and their prompt contracts.
type Registry struct {
	personas  []domain.Persona
	byName    map[string]int
	folded    map[string]string
	rubric    domain.Rubric
	contracts map[string]*Contract
}

// New validates the catalog and builds a registry from it.
func New(c Catalog) (*Registry, error) {
	if err := validate.Struct(c); err != nil {
		return nil, fmt.Errorf("invalid persona catalog: %w", err)
	}

	r := &Registry{
		personas:  append([]domain.Persona(nil), c.Personas...),
		byName:    make(map[string]int, len(c.Personas)),
		folded:    make(map[string]string, len(c.Personas)),
		rubric:    append(domain.Rubric(nil), c.Rubric...),
		contracts: make(map[string]*Contract, len(c.Personas)),
	}
	for i, p := range r.personas {
		key := fold(p.Name)
		if other, dup := r.folded[key]; dup {
			return nil, fmt.Errorf("invalid persona catalog: %q and %q differ only in case", other, p.Name)
		}
		r.byName[p.Name] = i
		r.folded[key] = p.Name
	}
	for _, p := range r.personas {
		contract, err := newContract(p, r.peersOf(p.Name))
		if err != nil {
			return nil, fmt.Errorf("persona %q: %w", p.Name, err)
		}
		r.contracts[p.Name] = contract
	}
	return r, nil
}

// Load decodes a YAML catalog from r.
func Load(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse persona catalog: %w", err)
	}
	return New(c)
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open persona catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the embedded catalog: the RBC, Google and 1Password
// judges and the hackathon rubric.
func Default() *Registry {
	r, err := Load(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("embedded persona catalog is invalid: %v", err))
	}
	return r
}

// Lookup returns the persona with exactly this name.
func (r *Registry) Lookup(name string) (domain.Persona, error) {
	i, ok := r.byName[name]
	if !ok {
		return domain.Persona{}, &domain.UnknownPersonaError{Name: name}
	}
	return r.personas[i], nil
}

// Contract returns the prompt contract of the named persona.
func (r *Registry) Contract(name string) (*Contract, error) {
	c, ok := r.contracts[name]
	if !ok {
		return nil, &domain.UnknownPersonaError{Name: name}
	}
	return c, nil
}

// Resolve maps loosely written text to a registered name. It tries an
// exact case-folded match, then a unique match within
// MaxResolveDistance edits. Surrounding punctuation and quotes are ignored.
func (r *Registry) Resolve(text string) (string, bool) {
	key := fold(strings.TrimFunc(text, func(c rune) bool {
		return unicode.IsSpace(c) || unicode.IsPunct(c)
	}))
	if key == "" {
		return "", false
	}
	if name, ok := r.folded[key]; ok {
		return name, true
	}

	best, bestDist, ties := "", MaxResolveDistance+1, 0
	for k, name := range r.folded {
		d := levenshtein.ComputeDistance(key, k)
		switch {
		case d < bestDist:
			best, bestDist, ties = name, d, 1
		case d == bestDist:
			ties++
		}
	}
	if bestDist > MaxResolveDistance || ties != 1 {
		return "", false
	}
	return best, true
}

// Names returns persona names in catalog order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.personas))
	for i, p := range r.personas {
		names[i] = p.Name
	}
	return names
}

// Personas returns a copy of the catalog's personas in order.
func (r *Registry) Personas() []domain.Persona {
	return append([]domain.Persona(nil), r.personas...)
}

// Rubric returns the main rubric.
func (r *Registry) Rubric() domain.Rubric {
	return append(domain.Rubric(nil), r.rubric...)
}

// Len returns the number of personas.
func (r *Registry) Len() int { return len(r.personas) }

func (r *Registry) peersOf(name string) []string {
	var peers []string
	for _, p := range r.personas {
		if p.Name != name {
			peers = append(peers, p.Name)
		}
	}
	return peers
}

// fold normalizes for caseless comparison. Casers carry state, so a fresh
// one is made per call.
func fold(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}
