// Package evidence assembles the structured, rule-specific payload attached
// to each alert record. It is pure formatting: evidence shape changes never
// touch evaluator math.
package evidence

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/PedroRgz/Episcopio/internal/evaluator"
)

// Evidence kinds, one per rule variant.
const (
	KindIncrement = "increment"
	KindSocial    = "social_signal"
)

// Evidence is the tagged payload persisted on an alert record.
type Evidence interface {
	Kind() string
}

// IncrementEvidence justifies an increment rule trigger.
type IncrementEvidence struct {
	DeltaPct   float64 `json:"delta_pct"`
	Current    float64 `json:"current"`
	AvgRef     float64 `json:"avg_ref"`
	WindowDays int     `json:"window_days"`
}

// Kind returns the evidence kind tag.
func (IncrementEvidence) Kind() string { return KindIncrement }

// SocialSignalEvidence justifies a social signal rule trigger.
type SocialSignalEvidence struct {
	ZScore          float64 `json:"zscore"`
	Mean            float64 `json:"mean"`
	StdDev          float64 `json:"stddev"`
	CurrentMentions float64 `json:"current_mentions"`
	AvgSentiment    float64 `json:"avg_sentiment"`
}

// Kind returns the evidence kind tag.
func (SocialSignalEvidence) Kind() string { return KindSocial }

// Builder shapes raw evaluator decisions into persisted evidence.
type Builder struct{}

// NewBuilder creates a new evidence builder.
func NewBuilder() Builder {
	return Builder{}
}

// Build produces the evidence payload for a determinate decision. Returns an
// error when the decision carries no stats (indeterminate outcomes have no
// evidence).
func (Builder) Build(d evaluator.Decision) (Evidence, error) {
	switch {
	case d.Increment != nil:
		return IncrementEvidence{
			DeltaPct:   round(d.Increment.Delta*100, 2),
			Current:    d.Increment.Current,
			AvgRef:     round(d.Increment.AvgRef, 4),
			WindowDays: d.Increment.WindowDays,
		}, nil
	case d.Social != nil:
		return SocialSignalEvidence{
			ZScore:          round(d.Social.ZScore, 4),
			Mean:            round(d.Social.Mean, 4),
			StdDev:          round(d.Social.StdDev, 4),
			CurrentMentions: d.Social.CurrentMentions,
			AvgSentiment:    round(d.Social.AvgSentiment, 4),
		}, nil
	default:
		return nil, fmt.Errorf("decision carries no evidence payload (outcome %s)", d.Outcome)
	}
}

// Marshal serializes evidence for storage on an alert record.
func Marshal(ev Evidence) (json.RawMessage, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s evidence: %w", ev.Kind(), err)
	}
	return data, nil
}

func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
