package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// Catalog is an immutable set of validated rules for one evaluation run.
type Catalog struct {
	rules []Rule
	byID  map[string]Rule
}

// NewCatalog builds a catalog from already-typed rules, skipping duplicates.
func NewCatalog(rules []Rule) *Catalog {
	c := &Catalog{byID: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		if _, exists := c.byID[r.RuleID()]; exists {
			slog.Warn("Skipping duplicate rule id", "rule_id", r.RuleID())
			continue
		}
		c.byID[r.RuleID()] = r
		c.rules = append(c.rules, r)
	}
	return c
}

// Rules returns the rules in catalog order. The returned slice is a copy.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Get returns the rule with the given id, or nil if not present.
func (c *Catalog) Get(id string) Rule {
	return c.byID[id]
}

// Len returns the number of rules in the catalog.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// buildCatalog turns parsed definitions into a catalog. Malformed definitions
// are skipped with a warning; the load still succeeds with whatever remains.
func buildCatalog(defs []Definition) *Catalog {
	var built []Rule
	for i, def := range defs {
		rule, err := def.Build()
		if err != nil {
			slog.Warn("Skipping malformed rule definition",
				"index", i,
				"rule_id", def.ID,
				"error", err,
			)
			continue
		}
		built = append(built, rule)
	}
	return NewCatalog(built)
}

// ParseYAML parses a YAML list of rule definitions into a catalog.
func ParseYAML(data []byte) (*Catalog, error) {
	var defs []Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}
	return buildCatalog(defs), nil
}

// ParseJSON parses a JSON list of rule definitions into a catalog. This is
// the shape stored in the Redis snapshot.
func ParseJSON(data []byte) (*Catalog, error) {
	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse rules JSON: %w", err)
	}
	return buildCatalog(defs), nil
}

// DefaultCatalog returns the hard-coded minimal rule set used when no catalog
// source is available, so the engine can still run in a degraded but defined
// mode. Ids and names are carried from the original deployment.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Rule{
		IncrementRule{
			ID:             "a1",
			Name:           "Incremento súbito oficial",
			WindowDays:     DefaultWindowDays,
			DeltaThreshold: DefaultDeltaThreshold,
			MinCases:       DefaultMinCases,
		},
		SocialSignalRule{
			ID:                  "a2",
			Name:                "Pico social + negativo",
			WindowDays:          DefaultWindowDays,
			ZScoreThreshold:     DefaultZScoreThreshold,
			SentimentMax:        DefaultSentimentMax,
			SentimentWindowDays: DefaultWindowDays,
		},
	})
}
