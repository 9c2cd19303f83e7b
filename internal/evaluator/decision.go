// Package evaluator implements the two statistical rule evaluators: sudden
// relative increase detection on the official series and z-score/sentiment
// detection on the social series. Evaluators are pure: identical inputs
// always yield the same decision.
package evaluator

// Outcome is the result class of one rule evaluation.
type Outcome int

const (
	// OutcomeNotTriggered means the rule definitively did not fire.
	OutcomeNotTriggered Outcome = iota
	// OutcomeTriggered means the rule fired.
	OutcomeTriggered
	// OutcomeIndeterminate means there was not enough data to judge. It is
	// distinct from a definite non-trigger: no alert is created or modified.
	OutcomeIndeterminate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTriggered:
		return "triggered"
	case OutcomeIndeterminate:
		return "indeterminate"
	default:
		return "not_triggered"
	}
}

// IncrementStats carries the raw numbers behind an increment rule decision.
type IncrementStats struct {
	Delta      float64
	Current    float64
	AvgRef     float64
	WindowDays int
}

// SocialStats carries the raw numbers behind a social signal rule decision.
type SocialStats struct {
	ZScore          float64
	Mean            float64
	StdDev          float64
	CurrentMentions float64
	AvgSentiment    float64
}

// Decision is the outcome of evaluating one rule against one entity's series
// snapshot. Exactly one of Increment/Social is set for determinate outcomes;
// Reason explains indeterminate ones.
type Decision struct {
	Outcome   Outcome
	Reason    string
	Increment *IncrementStats
	Social    *SocialStats
}

// Triggered reports whether the rule fired.
func (d Decision) Triggered() bool {
	return d.Outcome == OutcomeTriggered
}

// Indeterminate reports whether there was not enough data to judge.
func (d Decision) Indeterminate() bool {
	return d.Outcome == OutcomeIndeterminate
}

func indeterminate(reason string) Decision {
	return Decision{Outcome: OutcomeIndeterminate, Reason: reason}
}
