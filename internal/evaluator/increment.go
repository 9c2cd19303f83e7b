package evaluator

import (
	"log/slog"

	"github.com/PedroRgz/Episcopio/internal/rules"
	"github.com/PedroRgz/Episcopio/internal/series"
)

// IncrementEvaluator detects sudden relative increases in an official
// counted series. It compares the most recent point against the mean of the
// preceding reference window.
type IncrementEvaluator struct{}

// NewIncrementEvaluator creates a new increment evaluator.
func NewIncrementEvaluator() IncrementEvaluator {
	return IncrementEvaluator{}
}

// Evaluate runs the rule against an entity's ordered series snapshot. The
// last point is the current observation; the preceding WindowDays points are
// the reference window. A short reference window or a zero reference mean
// yields an indeterminate decision, never a trigger.
func (e IncrementEvaluator) Evaluate(rule rules.IncrementRule, entityCode string, points []series.Point) Decision {
	n := len(points)
	if n < rule.WindowDays+1 {
		slog.Debug("Not enough history for increment rule",
			"rule_id", rule.ID,
			"entity", entityCode,
			"points", n,
			"needed", rule.WindowDays+1,
		)
		return indeterminate("insufficient reference window history")
	}

	current := points[n-1].Value
	reference := points[n-1-rule.WindowDays : n-1]

	var refValues []float64
	for _, pt := range reference {
		refValues = append(refValues, pt.Value)
	}
	avgRef := mean(refValues)

	// A zero reference mean with a nonzero current value is indeterminate by
	// policy, not an infinite trigger.
	if avgRef == 0 {
		slog.Debug("Zero reference mean for increment rule",
			"rule_id", rule.ID,
			"entity", entityCode,
			"current", current,
		)
		return indeterminate("zero reference mean")
	}

	delta := (current - avgRef) / avgRef
	stats := &IncrementStats{
		Delta:      delta,
		Current:    current,
		AvgRef:     avgRef,
		WindowDays: rule.WindowDays,
	}

	if delta >= rule.DeltaThreshold && current >= rule.MinCases {
		return Decision{Outcome: OutcomeTriggered, Increment: stats}
	}
	return Decision{Outcome: OutcomeNotTriggered, Increment: stats}
}
