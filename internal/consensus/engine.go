// Package consensus negotiates one agreed score per rubric category from
// the judges' independent evaluations.
package consensus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/judgeio"
	"github.com/ahrav/pitchpanel/internal/ports"
)

// Defaults applied to zero Options fields.
const (
	DefaultMaxRounds      = 3
	DefaultTemperature    = 0.7
	DefaultMaxTokens      = 1500
	DefaultMaxConcurrency = 4
)

// Texts used when no round produced a consensus score.
const (
	FallbackReasoning = "Consensus not reached, using average score"
	NoDiscussion      = "No detailed discussion available"
	NoScoresReasoning = "No judge scored this category"
)

const roundPromptText = `You are facilitating a discussion between judges about a hackathon project.
Note: This discussion is ONLY about the main hackathon rubric, not any sponsor challenges.

Initial Scores for {{.Category}}:
{{range .Initial}}{{.}}
{{end}}
Previous Discussion (if any):
{{range .Discussion}}{{.}}
{{else}}(none)
{{end}}
As judges, discuss the scores for this category. Each judge should:
1. Explain their reasoning for their score
2. Listen to other perspectives
3. Consider adjusting their score based on other judges' input
4. Work towards a consensus score

Respond with JSON only, using this exact structure:
{
    "discussion": ["Judge A: point...", "Judge B: response..."],
    "consensus_score": 7.5,
    "reasoning": "explanation for final consensus"
}
Leave out "consensus_score" if the judges have not agreed yet.`

var roundPrompt = template.Must(template.New("consensusRound").Parse(roundPromptText))

// Options tunes negotiation.
type Options struct {
	MaxRounds int
	// Temperature nil means DefaultTemperature; zero is a valid setting.
	Temperature    *float64
	MaxTokens      int
	MaxConcurrency int
}

// Engine runs negotiation rounds against a completion model.
type Engine struct {
	client  ports.LLMClient
	opts        Options
	temperature float64
	metrics     ports.MetricsCollector
	tracer      trace.Tracer
}

// NewEngine returns an engine with defaults filled in.
func NewEngine(client ports.LLMClient, opts Options, metrics ports.MetricsCollector) *Engine {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
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
	return &Engine{
		client:      client,
		opts:        opts,
		temperature: temperature,
		metrics:     metrics,
		tracer:      otel.Tracer("github.com/ahrav/pitchpanel/internal/consensus"),
	}
}

type round struct {
	Discussion []string `json:"discussion"`
	Score      *float64 `json:"consensus_score"`
	Reasoning  string   `json:"reasoning"`
}

// Negotiate always returns a result for category. Judges that did not
// score the category take no part. Rounds stop at the first consensus
// score; an unusable round or a failed request ends negotiation early, and
// without a consensus score the mean of the initial scores is used.
func (e *Engine) Negotiate(ctx context.Context, category string, evals []domain.InitialEvaluation) domain.ConsensusResult {
	ctx, span := e.tracer.Start(ctx, "consensus.negotiate", trace.WithAttributes(attribute.String("panel.category", category)))
	defer span.End()
	log := clog.FromContext(ctx).With("category", category)

	var (
		initial []string
		scores  []float64
	)
	for _, ev := range evals {
		s, ok := ev.Scores[category]
		if !ok {
			continue
		}
		scores = append(scores, s)
		initial = append(initial, fmt.Sprintf("%s: %g - %s", ev.JudgeName, s, ev.Feedback[category]))
	}

	if len(scores) == 0 {
		log.Warn("no judge scored category")
		e.record(span, category, "no_scores", 0)
		return domain.ConsensusResult{
			Category:   category,
			Discussion: []string{NoDiscussion},
			Reasoning:  NoScoresReasoning,
		}
	}

	var discussion []string
	rounds := 0
	for rounds < e.opts.MaxRounds {
		if ctx.Err() != nil {
			log.Warn("negotiation canceled")
			break
		}
		rounds++

		r, err := e.round(ctx, category, initial, discussion)
		if err != nil {
			log.With("round", rounds, "error", err).Warn("aborting negotiation")
			break
		}
		discussion = append(discussion, r.Discussion...)
		if r.Score != nil && domain.IsFiniteScore(*r.Score) {
			e.record(span, category, "reached", rounds)
			return domain.ConsensusResult{
				Category:   category,
				Score:      *r.Score,
				Discussion: discussion,
				Reasoning:  r.Reasoning,
				Reached:    true,
				Rounds:     rounds,
			}
		}
	}

	mean, _ := domain.Mean(scores)
	if len(discussion) == 0 {
		discussion = []string{NoDiscussion}
	}
	e.record(span, category, "fallback", rounds)
	log.With("score", mean, "rounds", rounds).Info("consensus not reached, using mean score")
	return domain.ConsensusResult{
		Category:   category,
		Score:      mean,
		Discussion: discussion,
		Reasoning:  FallbackReasoning,
		Rounds:     rounds,
	}
}

func (e *Engine) round(ctx context.Context, category string, initial, discussion []string) (round, error) {
	var b strings.Builder
	err := roundPrompt.Execute(&b, struct {
		Category   string
		Initial    []string
		Discussion []string
	}{category, initial, discussion})
	if err != nil {
		return round{}, fmt.Errorf("render consensus prompt: %w", err)
	}

	raw, err := e.client.Complete(ctx, b.String(), map[string]any{
		"temperature": e.temperature,
		"max_tokens":  e.opts.MaxTokens,
	})
	if err != nil {
		return round{}, fmt.Errorf("consensus request: %w", err)
	}

	var r round
	if err := judgeio.Decode(raw, &r); err != nil {
		return round{}, domain.NewMalformedOutputError("panel", "unparseable consensus round", err)
	}
	return r, nil
}

func (e *Engine) record(span trace.Span, category, outcome string, rounds int) {
	span.SetAttributes(attribute.String("panel.outcome", outcome), attribute.Int("panel.rounds", rounds))
	e.metrics.RecordCounter(ports.MetricConsensusOutcomes, 1, map[string]string{"outcome": outcome})
	e.metrics.RecordHistogram(ports.MetricConsensusRounds, float64(rounds), map[string]string{"category": category})
}

// Moderate negotiates every category concurrently and returns the results
// with the panel summary. Repeated categories are negotiated once.
func (e *Engine) Moderate(ctx context.Context, evals []domain.InitialEvaluation, categories []string) (map[string]domain.ConsensusResult, string) {
	categories = dedupe(categories)
	results := make(map[string]domain.ConsensusResult, len(categories))
	var mu sync.Mutex

	var eg errgroup.Group
	eg.SetLimit(e.opts.MaxConcurrency)
	for _, c := range categories {
		eg.Go(func() error {
			res := e.Negotiate(ctx, c, evals)
			mu.Lock()
			results[c] = res
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	return results, Summary(categories, results)
}

// Summary renders one Markdown section per category, in the given order:
// the final reasoning, or the discussion points when there is none.
func Summary(categories []string, results map[string]domain.ConsensusResult) string {
	var parts []string
	for _, c := range categories {
		res, ok := results[c]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("\n## %s Discussion Summary:", c))
		if res.Reasoning != "" {
			parts = append(parts, res.Reasoning)
			continue
		}
		if len(res.Discussion) > 0 {
			parts = append(parts, "Key discussion points:")
			for _, point := range res.Discussion {
				parts = append(parts, "- "+point)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
