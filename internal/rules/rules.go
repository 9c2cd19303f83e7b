// Package rules defines the alert rule model and catalog loading for the
// evaluation engine. A catalog is the immutable set of rule definitions one
// evaluation run works from.
package rules

import (
	"fmt"
	"math"
)

// Series identifiers a rule can read.
const (
	SeriesOfficial = "official"
	SeriesSocial   = "social"
)

// Alert types derived from the rule variant.
const (
	AlertTypeIncrement = "incremento_oficial"
	AlertTypeSocial    = "pico_social"
)

// Defaults applied when a rule definition omits an optional field.
const (
	DefaultWindowDays      = 14
	DefaultDeltaThreshold  = 0.2
	DefaultMinCases        = 5
	DefaultZScoreThreshold = 2.0
	DefaultSentimentMax    = -0.2
)

// Rule is the common contract of both rule variants.
type Rule interface {
	RuleID() string
	RuleName() string
	SeriesType() string
	AlertType() string
	Window() int
}

// IncrementRule detects sudden relative increases in an official counted
// series against a trailing reference window.
type IncrementRule struct {
	ID             string
	Name           string
	WindowDays     int
	DeltaThreshold float64
	MinCases       float64
}

func (r IncrementRule) RuleID() string     { return r.ID }
func (r IncrementRule) RuleName() string   { return r.Name }
func (r IncrementRule) SeriesType() string { return SeriesOfficial }
func (r IncrementRule) AlertType() string  { return AlertTypeIncrement }
func (r IncrementRule) Window() int        { return r.WindowDays }

// SocialSignalRule detects statistically abnormal mention volume that
// co-occurs with sustained negative sentiment.
type SocialSignalRule struct {
	ID                  string
	Name                string
	WindowDays          int
	ZScoreThreshold     float64
	SentimentMax        float64
	SentimentWindowDays int
}

func (r SocialSignalRule) RuleID() string     { return r.ID }
func (r SocialSignalRule) RuleName() string   { return r.Name }
func (r SocialSignalRule) SeriesType() string { return SeriesSocial }
func (r SocialSignalRule) AlertType() string  { return AlertTypeSocial }
func (r SocialSignalRule) Window() int        { return r.WindowDays }

// Definition is the declarative rule shape parsed from a catalog source.
// Optional fields are pointers so omitted values can be told apart from
// explicit zeroes when applying defaults.
type Definition struct {
	ID                  string   `yaml:"id" json:"id"`
	Name                string   `yaml:"name" json:"name"`
	Series              string   `yaml:"series" json:"series"`
	WindowDays          *int     `yaml:"window_days" json:"window_days,omitempty"`
	DeltaThreshold      *float64 `yaml:"delta_threshold" json:"delta_threshold,omitempty"`
	MinCases            *float64 `yaml:"min_cases" json:"min_cases,omitempty"`
	ZScoreThreshold     *float64 `yaml:"zscore_threshold" json:"zscore_threshold,omitempty"`
	SentimentMax        *float64 `yaml:"sentiment_max" json:"sentiment_max,omitempty"`
	SentimentWindowDays *int     `yaml:"sentiment_window_days" json:"sentiment_window_days,omitempty"`
}

// Build validates a definition, applies defaults, and returns the typed rule
// variant. Returns an error for malformed definitions; the catalog loader
// skips those with a warning.
func (d Definition) Build() (Rule, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}

	window := DefaultWindowDays
	if d.WindowDays != nil {
		window = *d.WindowDays
	}
	if window < 2 {
		return nil, fmt.Errorf("rule %s: window_days must be >= 2, got %d", d.ID, window)
	}

	switch d.Series {
	case SeriesOfficial:
		rule := IncrementRule{
			ID:             d.ID,
			Name:           d.Name,
			WindowDays:     window,
			DeltaThreshold: DefaultDeltaThreshold,
			MinCases:       DefaultMinCases,
		}
		if d.DeltaThreshold != nil {
			rule.DeltaThreshold = *d.DeltaThreshold
		}
		if d.MinCases != nil {
			rule.MinCases = *d.MinCases
		}
		if !isFinite(rule.DeltaThreshold) || !isFinite(rule.MinCases) {
			return nil, fmt.Errorf("rule %s: thresholds must be finite", d.ID)
		}
		return rule, nil

	case SeriesSocial:
		rule := SocialSignalRule{
			ID:                  d.ID,
			Name:                d.Name,
			WindowDays:          window,
			ZScoreThreshold:     DefaultZScoreThreshold,
			SentimentMax:        DefaultSentimentMax,
			SentimentWindowDays: window,
		}
		if d.ZScoreThreshold != nil {
			rule.ZScoreThreshold = *d.ZScoreThreshold
		}
		if d.SentimentMax != nil {
			rule.SentimentMax = *d.SentimentMax
		}
		if d.SentimentWindowDays != nil {
			rule.SentimentWindowDays = *d.SentimentWindowDays
		}
		if !isFinite(rule.ZScoreThreshold) || !isFinite(rule.SentimentMax) {
			return nil, fmt.Errorf("rule %s: thresholds must be finite", d.ID)
		}
		if rule.SentimentWindowDays < 1 || rule.SentimentWindowDays > window {
			return nil, fmt.Errorf("rule %s: sentiment_window_days must be in [1, window_days], got %d", d.ID, rule.SentimentWindowDays)
		}
		return rule, nil

	case "":
		return nil, fmt.Errorf("rule %s: series is required", d.ID)
	default:
		return nil, fmt.Errorf("rule %s: unknown series %q (must be %q or %q)", d.ID, d.Series, SeriesOfficial, SeriesSocial)
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
