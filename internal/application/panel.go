// Package application wires the persona registry, the live Q&A session and
// the evaluation pipeline into the Panel service the transports call.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/pitchpanel/infrastructure/llm"
	"github.com/ahrav/pitchpanel/infrastructure/middleware"
	"github.com/ahrav/pitchpanel/internal/consensus"
	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/evaluation"
	"github.com/ahrav/pitchpanel/internal/persona"
	"github.com/ahrav/pitchpanel/internal/ports"
	"github.com/ahrav/pitchpanel/internal/report"
	"github.com/ahrav/pitchpanel/internal/router"
	"github.com/ahrav/pitchpanel/internal/session"
)

// Dependencies are the external collaborators of a Panel. Client and
// Capture are required.
type Dependencies struct {
	Client ports.LLMClient
	// Classifier overrides the LLM-backed routing classifier.
	Classifier ports.RoutingClassifier
	Capture    ports.SpeechCapture
	Speaker    ports.TextToSpeech
	Sink       ports.TranscriptSink
	Metrics    ports.MetricsCollector
}

// Panel is the service behind every transport: session control for the
// live rehearsal and pitch evaluation into a report.
type Panel struct {
	cfg        *Config
	registry   *persona.Registry
	session    *session.Orchestrator
	voice      *session.VoiceDispatcher
	gatherer   *evaluation.Gatherer
	engine     *consensus.Engine
	tracer     trace.Tracer
	categories []string
}

// NewPanel builds a panel from cfg. ctx bounds the voice worker; Close
// releases it.
func NewPanel(ctx context.Context, cfg *Config, deps Dependencies) (*Panel, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("%w: panel requires an LLM client", domain.ErrInvalidConfiguration)
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}

	registry, err := loadRegistry(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	evalTemperature, consensusTemperature := cfg.Evaluation.Temperature, cfg.Consensus.Temperature
	gatherer := evaluation.NewGatherer(registry, deps.Client, evaluation.Options{
		Temperature:    &evalTemperature,
		MaxTokens:      cfg.Evaluation.MaxTokens,
		MaxConcurrency: cfg.Evaluation.MaxConcurrency,
		JSONMode:       cfg.Evaluation.JSONMode,
	}, deps.Metrics)

	// Configured categories are checked against the catalog up front.
	rubric, err := gatherer.Categories(cfg.Categories)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}

	defaultJudge := cfg.DefaultJudge
	if defaultJudge == "" {
		defaultJudge = registry.Names()[0]
	}
	if _, err := registry.Lookup(defaultJudge); err != nil {
		return nil, fmt.Errorf("%w: default judge: %w", domain.ErrInvalidConfiguration, err)
	}

	classifier := deps.Classifier
	if classifier == nil {
		classifier = router.NewLLMClassifier(deps.Client, registry.Personas())
	}

	var voice *session.VoiceDispatcher
	if deps.Speaker != nil {
		voice = session.NewVoiceDispatcher(ctx, deps.Speaker, cfg.Session.VoiceBuffer, deps.Metrics)
	}

	p := &Panel{
		cfg:      cfg,
		registry: registry,
		voice:    voice,
		gatherer: gatherer,
		engine: consensus.NewEngine(deps.Client, consensus.Options{
			MaxRounds:      cfg.Consensus.MaxRounds,
			Temperature:    &consensusTemperature,
			MaxTokens:      cfg.Consensus.MaxTokens,
			MaxConcurrency: cfg.Consensus.MaxConcurrency,
		}, deps.Metrics),
		tracer:     otel.Tracer("github.com/ahrav/pitchpanel/internal/application"),
		categories: rubric.Names(),
	}

	if deps.Capture != nil {
		sessionCfg := session.DefaultConfig()
		if cfg.Session.FirstSpeaker != "" {
			sessionCfg.FirstSpeaker = session.FirstSpeaker(cfg.Session.FirstSpeaker)
		}
		sessionCfg.Temperature = cfg.Session.Temperature
		if cfg.Session.MaxTokens > 0 {
			sessionCfg.MaxTokens = cfg.Session.MaxTokens
		}
		p.session, err = session.New(session.Dependencies{
			Registry: registry,
			Selector: router.NewSelector(registry, classifier, defaultJudge),
			Client:   deps.Client,
			Capture:  deps.Capture,
			Voice:    voice,
			Sink:     deps.Sink,
			Metrics:  deps.Metrics,
		}, sessionCfg)
		if err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

func loadRegistry(path string) (*persona.Registry, error) {
	if path == "" {
		return persona.Default(), nil
	}
	registry, err := persona.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	return registry, nil
}

// ErrNoSession is returned by session operations on a panel built without
// speech capture.
var ErrNoSession = errors.New("panel has no live session")

// Config returns the configuration the panel was built from.
func (p *Panel) Config() *Config { return p.cfg }

// Registry returns the persona registry.
func (p *Panel) Registry() *persona.Registry { return p.registry }

// Categories returns the categories evaluated by default.
func (p *Panel) Categories() []string { return append([]string(nil), p.categories...) }

// StartSession resets the session and captures the pitch.
func (p *Panel) StartSession(ctx context.Context) error {
	if p.session == nil {
		return ErrNoSession
	}
	return p.session.Start(ctx)
}

// BeginQnA starts the Q&A loop. It returns domain.ErrSessionAlreadyActive
// when a loop is already running and domain.ErrPitchNotCaptured while the
// pitch is still being captured.
func (p *Panel) BeginQnA(ctx context.Context) error {
	if p.session == nil {
		return ErrNoSession
	}
	return p.session.BeginQnA(ctx)
}

// StopSession ends the session and waits for the Q&A loop to exit.
func (p *Panel) StopSession() {
	if p.session != nil {
		p.session.Stop()
	}
}

// SessionState returns a snapshot of the session flags and transcript.
func (p *Panel) SessionState() domain.SessionState {
	if p.session == nil {
		return domain.SessionState{}
	}
	return p.session.State()
}

// Phase returns the session lifecycle phase.
func (p *Panel) Phase() session.Phase {
	if p.session == nil {
		return session.PhaseIdle
	}
	return p.session.Phase()
}

// Evaluate scores pitch over categories, or over the configured categories
// when none are given, and synthesizes the report. Failures come back as
// a payload instead of an error.
func (p *Panel) Evaluate(ctx context.Context, pitch string, categories []string) (*domain.Report, *domain.FailurePayload) {
	ctx, span := p.tracer.Start(ctx, "panel.evaluate")
	defer span.End()
	log := clog.FromContext(ctx)

	if strings.TrimSpace(pitch) == "" {
		verr := domain.NewValidationError("pitch")
		verr.AddError("pitch is empty")
		return nil, domain.NewFailurePayload(verr)
	}
	if len(categories) == 0 {
		categories = p.categories
	}
	rubric, err := p.gatherer.Categories(categories)
	if err != nil {
		return nil, domain.NewFailurePayload(err)
	}

	evals, err := p.gatherer.Gather(ctx, pitch, rubric.Names())
	if err != nil {
		log.With("error", err).Error("evaluation failed")
		return nil, domain.NewFailurePayload(err)
	}

	results, summary := p.engine.Moderate(ctx, evals, rubric.Names())
	r := report.Synthesize(evals, results, summary)
	log.With("judges", len(evals), "categories", len(results)).Info("report ready")
	return &r, nil
}

// EvaluateSession evaluates the current session transcript.
func (p *Panel) EvaluateSession(ctx context.Context, categories []string) (*domain.Report, *domain.FailurePayload) {
	if p.session == nil {
		return nil, domain.NewFailurePayload(ErrNoSession)
	}
	return p.Evaluate(ctx, p.session.PitchText(), categories)
}

// Close stops the session and the voice worker.
func (p *Panel) Close() {
	p.StopSession()
	if p.voice != nil {
		p.voice.Close()
	}
}

// NewClient builds the completion client described by cfg with the standard
// middleware chain, preceded by a budget when one is configured.
func NewClient(cfg LLMConfig, secrets Secrets, metrics ports.MetricsCollector) (*llm.Client, error) {
	var mws []llm.Middleware
	if budget := (middleware.Budget{MaxTokens: cfg.BudgetTokens, MaxCalls: cfg.BudgetCalls}); !budget.Unlimited() {
		mws = append(mws, middleware.NewBudgetTracker(budget, metrics).Middleware())
	}
	mws = append(mws, llm.DefaultMiddleware(llm.Resilience{
		Timeout:         cfg.Timeout,
		RateLimit:       cfg.RateLimit,
		Burst:           cfg.Burst,
		MaxRetries:      cfg.MaxRetries,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}, metrics, otel.Tracer("github.com/ahrav/pitchpanel/infrastructure/llm"))...)

	client, err := llm.NewClient(cfg.Provider, llm.Config{
		APIKey:     secrets.APIKey(cfg.Provider),
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		Middleware: mws,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	return client, nil
}
