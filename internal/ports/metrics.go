package ports

import "time"

// Metric names recorded by the panel components. The Prometheus collector
// maps each one to a dedicated vector; other names fall through to
// generic vectors.
const (
	MetricJudgeTurns          = "panel_judge_turns_total"
	MetricHandoffs            = "panel_handoffs_total"
	MetricClassifierFallbacks = "panel_classifier_fallbacks_total"
	MetricLoopErrors          = "panel_qna_loop_errors_total"
	MetricQnAActive           = "panel_qna_active"
	MetricEvaluations         = "panel_evaluations_total"
	MetricConsensusRounds     = "panel_consensus_rounds"
	MetricConsensusOutcomes   = "panel_consensus_outcomes_total"
	MetricVoiceFailures       = "panel_voice_failures_total"
	MetricTranscriptEntries   = "panel_transcript_entries_total"
	MetricBudgetTokensUsed    = "panel_budget_tokens_used"
	MetricBudgetCallsUsed     = "panel_budget_calls_used"
	MetricBudgetExceeded      = "panel_budget_exceeded_total"
)

// NopMetrics discards every metric.
type NopMetrics struct{}

func (NopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (NopMetrics) RecordCounter(string, float64, map[string]string)       {}
func (NopMetrics) RecordGauge(string, float64, map[string]string)         {}
func (NopMetrics) RecordHistogram(string, float64, map[string]string)     {}
