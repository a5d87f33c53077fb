package domain

// SponsorEvaluation is a judge's assessment against its sponsor challenge.
type SponsorEvaluation struct {
	ChallengeName       string             `json:"challenge_name"`
	Scores              map[string]float64 `json:"scores"`
	Feedback            map[string]string  `json:"feedback"`
	ChallengeFeedback   string             `json:"challenge_specific_feedback"`
	KeyStrengths        []string           `json:"key_strengths"`
	AreasForImprovement []string           `json:"areas_for_improvement"`
}

// InitialEvaluation is one judge's independent assessment of a pitch.
// Scores and Feedback cover every category requested for the run.
type InitialEvaluation struct {
	JudgeName       string             `json:"judge_name"`
	Company         string             `json:"company,omitempty"`
	Scores          map[string]float64 `json:"scores"`
	Feedback        map[string]string  `json:"feedback"`
	OverallFeedback string             `json:"overall_feedback"`
	KeyPoints       []string           `json:"key_points"`

	Sponsor *SponsorEvaluation `json:"sponsor_challenge_evaluation,omitempty"`
}

// WithoutSponsor returns a copy with the sponsor block removed.
func (e InitialEvaluation) WithoutSponsor() InitialEvaluation {
	e.Sponsor = nil
	return e
}

// ConsensusResult is the agreed score for one category.
type ConsensusResult struct {
	Category   string   `json:"category"`
	Score      float64  `json:"consensus_score"`
	Discussion []string `json:"discussion"`
	Reasoning  string   `json:"reasoning"`

	// Reached is false when the score is the fallback mean.
	Reached bool `json:"reached"`
	// Rounds counts negotiation rounds issued, including a failed one.
	Rounds int `json:"rounds"`
}
