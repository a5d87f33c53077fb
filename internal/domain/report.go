package domain

// ConsensusSection groups the panel's agreed scores and discussion.
type ConsensusSection struct {
	FinalScores         map[string]float64  `json:"final_scores"`
	DiscussionSummary   string              `json:"discussion_summary"`
	DetailedDiscussions map[string]DiscussionRecord `json:"detailed_discussions"`
}

// DiscussionRecord is the negotiation record of one category.
type DiscussionRecord struct {
	DiscussionLog  []string `json:"discussion_log"`
	FinalReasoning string   `json:"final_reasoning"`
	// Reached is false when the final score is the fallback mean.
	Reached bool `json:"reached"`
}

// ScoreChange describes how one category moved from the independent
// scores to the consensus score.
type ScoreChange struct {
	InitialScores []float64 `json:"initial_scores"`
	FinalScore    float64   `json:"final_score"`
	// AverageChange is |FinalScore - mean(InitialScores)|.
	AverageChange float64 `json:"average_change"`
	// ScoreRange is max(InitialScores) - min(InitialScores).
	ScoreRange float64 `json:"score_range"`
	// ConsensusDelta equals AverageChange.
	ConsensusDelta float64 `json:"consensus_delta"`
}

// MetaAnalysis summarizes score drift across the panel.
type MetaAnalysis struct {
	ScoreChanges         map[string]ScoreChange `json:"score_changes"`
	DiscussionHighlights []string               `json:"discussion_highlights"`
}

// Report is the final output of an evaluation run.
type Report struct {
	IndividualEvaluations []InitialEvaluation          `json:"individual_evaluations"`
	Consensus             ConsensusSection             `json:"consensus_evaluation"`
	SponsorResults        map[string]SponsorEvaluation `json:"sponsor_challenge_results,omitempty"`
	MetaAnalysis          MetaAnalysis                 `json:"meta_analysis"`
}

// FailurePayload is returned in place of a report when evaluation fails.
type FailurePayload struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}
