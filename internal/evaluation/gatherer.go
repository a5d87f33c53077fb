// Package evaluation collects independent scores from every judge.
package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/persona"
	"github.com/ahrav/pitchpanel/internal/ports"
)

// Defaults applied to zero Options fields.
const (
	DefaultTemperature    = 0.5
	DefaultMaxTokens      = 2000
	DefaultMaxConcurrency = 8
)

// Options tunes evaluation requests.
type Options struct {
	// Temperature nil means DefaultTemperature; zero is a valid setting.
	Temperature    *float64
	MaxTokens      int
	MaxConcurrency int
	// JSONMode asks providers that support it for a JSON object response.
	JSONMode bool
}

// Gatherer fans one scoring request out to every registered judge.
type Gatherer struct {
	registry *persona.Registry
	client   ports.LLMClient
	opts        Options
	temperature float64
	metrics     ports.MetricsCollector
	tracer      trace.Tracer
	validate    *validator.Validate
}

// NewGatherer returns a gatherer over every persona in registry.
func NewGatherer(registry *persona.Registry, client ports.LLMClient, opts Options, metrics ports.MetricsCollector) *Gatherer {
	temperature := DefaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Gatherer{
		registry:    registry,
		client:      client,
		opts:        opts,
		temperature: temperature,
		metrics:     metrics,
		tracer:      otel.Tracer("github.com/ahrav/pitchpanel/internal/evaluation"),
		validate:    validator.New(),
	}
}

// Categories resolves the requested category names against the rubric. An
// empty request selects the whole rubric; unknown or repeated names fail
// with a *domain.ValidationError.
func (g *Gatherer) Categories(requested []string) (domain.Rubric, error) {
	rubric := g.registry.Rubric()
	if len(requested) == 0 {
		return rubric, nil
	}

	verr := domain.NewValidationError("categories")
	seen := make(map[string]bool, len(requested))
	out := make(domain.Rubric, 0, len(requested))
	for _, name := range requested {
		name = strings.TrimSpace(name)
		c, ok := rubric.Category(name)
		switch {
		case !ok:
			verr.AddError(fmt.Sprintf("unknown category %q", name))
		case seen[name]:
			verr.AddError(fmt.Sprintf("category %q requested twice", name))
		default:
			seen[name] = true
			out = append(out, c)
		}
	}
	if verr.HasErrors() {
		return nil, verr
	}
	return out, nil
}

// Gather asks every judge to score pitch over the requested categories,
// concurrently. Judges whose output cannot be used are logged and left
// out; the call fails with domain.ErrNoValidEvaluations only when no judge
// succeeds. Results follow registry order.
func (g *Gatherer) Gather(ctx context.Context, pitch string, categories []string) ([]domain.InitialEvaluation, error) {
	rubric, err := g.Categories(categories)
	if err != nil {
		return nil, err
	}

	ctx, span := g.tracer.Start(ctx, "evaluation.gather", trace.WithAttributes(
		attribute.Int("panel.judges", g.registry.Len()),
		attribute.StringSlice("panel.categories", rubric.Names()),
	))
	defer span.End()

	personas := g.registry.Personas()
	results := make([]*domain.InitialEvaluation, len(personas))

	// Workers never return errors: one judge failing must not cancel the rest.
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.MaxConcurrency)
	for i, p := range personas {
		eg.Go(func() error {
			eval, err := g.evaluate(egCtx, p, pitch, rubric)
			if err != nil {
				clog.FromContext(ctx).With("judge", p.Name, "error", err).Warn("excluding judge from evaluation")
				g.metrics.RecordCounter(ports.MetricEvaluations, 1, map[string]string{"judge": p.Name, "status": "excluded"})
				return nil
			}
			g.metrics.RecordCounter(ports.MetricEvaluations, 1, map[string]string{"judge": p.Name, "status": "ok"})
			results[i] = eval
			return nil
		})
	}
	_ = eg.Wait()

	evals := make([]domain.InitialEvaluation, 0, len(results))
	for _, r := range results {
		if r != nil {
			evals = append(evals, *r)
		}
	}
	span.SetAttributes(attribute.Int("panel.valid_evaluations", len(evals)))

	if len(evals) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("gather evaluations: %w", err)
		}
		span.SetStatus(codes.Error, domain.ErrNoValidEvaluations.Error())
		return nil, domain.ErrNoValidEvaluations
	}
	clog.FromContext(ctx).With("valid", len(evals), "judges", len(personas)).Info("gathered evaluations")
	return evals, nil
}

func (g *Gatherer) evaluate(ctx context.Context, p domain.Persona, pitch string, rubric domain.Rubric) (*domain.InitialEvaluation, error) {
	contract, err := g.registry.Contract(p.Name)
	if err != nil {
		return nil, err
	}
	prompt, err := contract.EvaluationPrompt(pitch, rubric)
	if err != nil {
		return nil, err
	}

	opts := map[string]any{
		"temperature": g.temperature,
		"max_tokens":  g.opts.MaxTokens,
	}
	if g.opts.JSONMode {
		opts["json"] = true
	}
	raw, err := g.client.Complete(ctx, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("%s evaluation request: %w", p.Name, err)
	}
	return parseEvaluation(g.validate, p, raw, rubric.Names())
}
