package evaluation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/judgeio"
)

// payload is the main evaluation block judges return.
type payload struct {
	Scores          map[string]float64 `json:"scores" validate:"required"`
	Feedback        map[string]string  `json:"feedback" validate:"required"`
	OverallFeedback string             `json:"overall_feedback" validate:"required"`
	KeyPoints       []string           `json:"key_points" validate:"required"`
}

// envelope accepts both the wrapped form ({"main_evaluation": {...}}) and
// the main fields at the top level.
type envelope struct {
	payload
	Main    *payload                  `json:"main_evaluation"`
	Sponsor *domain.SponsorEvaluation `json:"sponsor_challenge_evaluation"`
}

func parseEvaluation(v *validator.Validate, p domain.Persona, raw string, categories []string) (*domain.InitialEvaluation, error) {
	var env envelope
	if err := judgeio.Decode(raw, &env); err != nil {
		return nil, domain.NewMalformedOutputError(p.Name, "unparseable evaluation", err)
	}

	body := env.payload
	if env.Main != nil {
		body = *env.Main
	}
	if err := v.Struct(body); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, domain.NewMalformedOutputError(p.Name, fmt.Sprintf("missing field %s", verrs[0].Field()), err)
		}
		return nil, domain.NewMalformedOutputError(p.Name, "invalid evaluation", err)
	}

	eval := &domain.InitialEvaluation{
		JudgeName:       p.Name,
		Company:         p.Company,
		Scores:          make(map[string]float64, len(categories)),
		Feedback:        make(map[string]string, len(categories)),
		OverallFeedback: body.OverallFeedback,
		KeyPoints:       body.KeyPoints,
	}
	for _, c := range categories {
		score, ok := body.Scores[c]
		if !ok {
			return nil, domain.NewMalformedOutputError(p.Name, fmt.Sprintf("no score for %s", c), nil)
		}
		if !domain.IsFiniteScore(score) {
			return nil, domain.NewMalformedOutputError(p.Name, fmt.Sprintf("non-finite score for %s", c), nil)
		}
		feedback, ok := body.Feedback[c]
		if !ok {
			return nil, domain.NewMalformedOutputError(p.Name, fmt.Sprintf("no feedback for %s", c), nil)
		}
		eval.Scores[c] = score
		eval.Feedback[c] = feedback
	}

	if p.HasSponsor() && env.Sponsor != nil {
		s := *env.Sponsor
		if s.ChallengeName == "" {
			s.ChallengeName = p.Sponsor.Name
		}
		eval.Sponsor = &s
	}
	return eval, nil
}
