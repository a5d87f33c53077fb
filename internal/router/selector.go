package router

import (
	"context"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/ahrav/pitchpanel/internal/ports"
)

// Directory is what the selector needs from the persona registry.
type Directory interface {
	Resolver
	Names() []string
}

// Selection is the outcome of Select.
type Selection struct {
	Persona string
	// Source is "mention", "classifier" or "default".
	Source string
}

// Selector picks the judge that answers an utterance.
type Selector struct {
	directory  Directory
	classifier ports.RoutingClassifier
	fallback   string
}

// NewSelector returns a selector falling back to defaultPersona. The
// classifier may be nil, in which case unaddressed utterances go straight
// to the default.
func NewSelector(dir Directory, classifier ports.RoutingClassifier, defaultPersona string) *Selector {
	return &Selector{directory: dir, classifier: classifier, fallback: defaultPersona}
}

// Default returns the fallback persona.
func (s *Selector) Default() string { return s.fallback }

// Select applies the judge-select policy: a persona named anywhere in the
// utterance wins; otherwise the classifier decides; an error or an
// unrecognized answer selects the default persona.
func (s *Selector) Select(ctx context.Context, utterance string) Selection {
	if name, ok := s.mentioned(utterance); ok {
		return Selection{Persona: name, Source: "mention"}
	}

	if s.classifier == nil {
		return Selection{Persona: s.fallback, Source: "default"}
	}

	log := clog.FromContext(ctx)
	answer, err := s.classifier.Classify(ctx, utterance)
	if err != nil {
		log.With("error", err).Warn("routing classifier failed, using default judge")
		return Selection{Persona: s.fallback, Source: "default"}
	}
	if name, ok := s.directory.Resolve(answer); ok {
		return Selection{Persona: name, Source: "classifier"}
	}
	log.With("answer", answer).Warn("routing classifier returned unknown judge, using default")
	return Selection{Persona: s.fallback, Source: "default"}
}

// mentioned returns the first persona, in registry order, whose name
// appears in text regardless of case.
func (s *Selector) mentioned(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, name := range s.directory.Names() {
		if strings.Contains(lower, strings.ToLower(name)) {
			return name, true
		}
	}
	return "", false
}
