package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ahrav/pitchpanel/internal/domain"
)

// EvaluationJSON renders a judge evaluation payload giving every category
// score and a one-line feedback.
func EvaluationJSON(score float64, categories ...string) string {
	scores := make(map[string]float64, len(categories))
	for _, c := range categories {
		scores[c] = score
	}
	return EvaluationJSONScores(scores)
}

// EvaluationJSONScores renders a payload with per-category scores.
func EvaluationJSONScores(scores map[string]float64) string {
	feedback := make(map[string]string, len(scores))
	for c, s := range scores {
		feedback[c] = fmt.Sprintf("%s looks like a %g", c, s)
	}
	return mustJSON(map[string]any{
		"scores":           scores,
		"feedback":         feedback,
		"overall_feedback": "Solid pitch overall.",
		"key_points":       []string{"clear problem", "credible team"},
	})
}

// WrappedEvaluationJSON renders the main_evaluation form with a sponsor block.
func WrappedEvaluationJSON(score float64, sponsor domain.SponsorEvaluation, categories ...string) string {
	var main map[string]any
	_ = json.Unmarshal([]byte(EvaluationJSON(score, categories...)), &main)
	return mustJSON(map[string]any{
		"main_evaluation":              main,
		"sponsor_challenge_evaluation": sponsor,
	})
}

// ConsensusJSON renders a consensus round payload. A nil score leaves
// consensus_score out so the round continues.
func ConsensusJSON(score *float64, reasoning string, discussion ...string) string {
	payload := map[string]any{
		"discussion": discussion,
		"reasoning":  reasoning,
	}
	if score != nil {
		payload["consensus_score"] = *score
	}
	return mustJSON(payload)
}

// Score returns a pointer to s for ConsensusJSON.
func Score(s float64) *float64 { return &s }

// RoutingReply renders a persona turn in the route/target/message line form.
// An empty target renders a reply to the human.
func RoutingReply(target, message string) string {
	var b strings.Builder
	if target == "" {
		b.WriteString("route: 2\n")
	} else {
		fmt.Fprintf(&b, "route: 1\ntarget: %s\n", target)
	}
	fmt.Fprintf(&b, "message: %s", message)
	return b.String()
}

func mustJSON(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(out)
}
