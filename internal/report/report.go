// Package report assembles the final panel report from the independent
// evaluations and the negotiated consensus.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ahrav/pitchpanel/internal/domain"
)

// Synthesize builds the report. It does no I/O and never fails.
//
// Sponsor blocks are lifted out of the individual evaluations and keyed by
// challenge name. Score changes are computed per consensus category over the
// judges that scored it.
func Synthesize(evals []domain.InitialEvaluation, consensus map[string]domain.ConsensusResult, summary string) domain.Report {
	r := domain.Report{
		IndividualEvaluations: make([]domain.InitialEvaluation, 0, len(evals)),
		Consensus: domain.ConsensusSection{
			FinalScores:         make(map[string]float64, len(consensus)),
			DiscussionSummary:   summary,
			DetailedDiscussions: make(map[string]domain.DiscussionRecord, len(consensus)),
		},
		MetaAnalysis: domain.MetaAnalysis{
			ScoreChanges:         make(map[string]domain.ScoreChange, len(consensus)),
			DiscussionHighlights: []string{},
		},
	}

	for _, ev := range evals {
		if ev.Sponsor != nil {
			if r.SponsorResults == nil {
				r.SponsorResults = make(map[string]domain.SponsorEvaluation)
			}
			r.SponsorResults[ev.Sponsor.ChallengeName] = *ev.Sponsor
		}
		r.IndividualEvaluations = append(r.IndividualEvaluations, ev.WithoutSponsor())
	}

	for _, category := range Categories(consensus) {
		res := consensus[category]
		r.Consensus.FinalScores[category] = res.Score
		r.Consensus.DetailedDiscussions[category] = domain.DiscussionRecord{
			DiscussionLog:  append([]string{}, res.Discussion...),
			FinalReasoning: res.Reasoning,
			Reached:        res.Reached,
		}
		r.MetaAnalysis.ScoreChanges[category] = scoreChange(evals, category, res.Score)
		if h, ok := highlight(category, res); ok {
			r.MetaAnalysis.DiscussionHighlights = append(r.MetaAnalysis.DiscussionHighlights, h)
		}
	}
	return r
}

// Categories returns the consensus categories in sorted order.
func Categories(consensus map[string]domain.ConsensusResult) []string {
	out := make([]string, 0, len(consensus))
	for c := range consensus {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func scoreChange(evals []domain.InitialEvaluation, category string, final float64) domain.ScoreChange {
	initial := []float64{}
	for _, ev := range evals {
		if s, ok := ev.Scores[category]; ok {
			initial = append(initial, s)
		}
	}
	change := domain.ScoreChange{
		InitialScores: initial,
		FinalScore:    final,
		ScoreRange:    domain.Spread(initial),
	}
	if mean, err := domain.Mean(initial); err == nil {
		change.AverageChange = math.Abs(final - mean)
		change.ConsensusDelta = change.AverageChange
	}
	return change
}

func highlight(category string, res domain.ConsensusResult) (string, bool) {
	if res.Reasoning != "" {
		return fmt.Sprintf("%s: %s", category, res.Reasoning), true
	}
	for i := len(res.Discussion) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(res.Discussion[i]); line != "" {
			return fmt.Sprintf("%s: %s", category, line), true
		}
	}
	return "", false
}

// Markdown renders r as a human-readable document.
func Markdown(r domain.Report) string {
	var b strings.Builder
	b.WriteString("# Panel Report\n\n## Final Scores\n\n")
	if err := WriteTable(&b, r); err != nil {
		fmt.Fprintf(&b, "(score table unavailable: %v)\n", err)
	}

	if r.Consensus.DiscussionSummary != "" {
		b.WriteString("\n# Discussion\n")
		b.WriteString(r.Consensus.DiscussionSummary)
		b.WriteString("\n")
	}

	if len(r.MetaAnalysis.DiscussionHighlights) > 0 {
		b.WriteString("\n## Highlights\n\n")
		for _, h := range r.MetaAnalysis.DiscussionHighlights {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	for _, ev := range r.IndividualEvaluations {
		fmt.Fprintf(&b, "\n## %s\n\n", ev.JudgeName)
		if ev.OverallFeedback != "" {
			fmt.Fprintf(&b, "%s\n\n", ev.OverallFeedback)
		}
		for _, p := range ev.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}

	names := make([]string, 0, len(r.SponsorResults))
	for name := range r.SponsorResults {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := r.SponsorResults[name]
		fmt.Fprintf(&b, "\n## Sponsor challenge: %s\n\n", name)
		criteria := make([]string, 0, len(s.Scores))
		for c := range s.Scores {
			criteria = append(criteria, c)
		}
		sort.Strings(criteria)
		for _, c := range criteria {
			fmt.Fprintf(&b, "- %s: %g %s\n", c, s.Scores[c], s.Feedback[c])
		}
		if s.ChallengeFeedback != "" {
			fmt.Fprintf(&b, "\n%s\n", s.ChallengeFeedback)
		}
	}
	return b.String()
}
