package evaluator

import (
	"log/slog"

	"github.com/PedroRgz/Episcopio/internal/rules"
	"github.com/PedroRgz/Episcopio/internal/series"
)

// SocialSignalEvaluator detects statistically abnormal mention volume that
// co-occurs with sustained negative sentiment. Volume abnormality is a
// z-score of the current mention count against the trailing baseline window;
// sentiment is averaged over the sustain window including the current point.
type SocialSignalEvaluator struct{}

// NewSocialSignalEvaluator creates a new social signal evaluator.
func NewSocialSignalEvaluator() SocialSignalEvaluator {
	return SocialSignalEvaluator{}
}

// Evaluate runs the rule against an entity's ordered series snapshot. The
// baseline is the trailing WindowDays points excluding the current one, with
// sample standard deviation (n-1). Fewer than 2 baseline points or a zero
// standard deviation yields an indeterminate decision.
func (e SocialSignalEvaluator) Evaluate(rule rules.SocialSignalRule, entityCode string, points []series.Point) Decision {
	n := len(points)
	if n < 3 {
		slog.Debug("Not enough history for social signal rule",
			"rule_id", rule.ID,
			"entity", entityCode,
			"points", n,
		)
		return indeterminate("insufficient reference window history")
	}

	current := points[n-1]

	refStart := n - 1 - rule.WindowDays
	if refStart < 0 {
		refStart = 0
	}
	reference := points[refStart : n-1]
	if len(reference) < 2 {
		return indeterminate("insufficient reference window history")
	}

	var mentions []float64
	for _, pt := range reference {
		mentions = append(mentions, pt.Value)
	}
	m := mean(mentions)
	sd := sampleStdDev(mentions)

	if sd == 0 {
		slog.Debug("Zero baseline deviation for social signal rule",
			"rule_id", rule.ID,
			"entity", entityCode,
			"mean", m,
		)
		return indeterminate("zero baseline standard deviation")
	}

	zscore := (current.Value - m) / sd

	// Sentiment sustain window: the current point plus the trailing
	// SentimentWindowDays points (defaults to the baseline window length).
	sentStart := n - 1 - rule.SentimentWindowDays
	if sentStart < refStart {
		sentStart = refStart
	}
	var sentiments []float64
	for _, pt := range points[sentStart:] {
		sentiments = append(sentiments, pt.Secondary)
	}
	avgSentiment := mean(sentiments)

	stats := &SocialStats{
		ZScore:          zscore,
		Mean:            m,
		StdDev:          sd,
		CurrentMentions: current.Value,
		AvgSentiment:    avgSentiment,
	}

	// Both boundaries are inclusive.
	if zscore >= rule.ZScoreThreshold && avgSentiment <= rule.SentimentMax {
		return Decision{Outcome: OutcomeTriggered, Social: stats}
	}
	return Decision{Outcome: OutcomeNotTriggered, Social: stats}
}
