// Package config provides configuration parsing and validation for the alert
// evaluation engine.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Rule catalog source kinds.
const (
	RuleSourceFile  = "file"
	RuleSourceRedis = "redis"
)

// Config holds all configuration parameters for the engine. Defaults mirror
// the alert settings of the original deployment: 14-day windows, 24-hour
// cooldown, minimum 5 cases, delta 0.2, z-score 2.0, sentiment -0.2.
type Config struct {
	PostgresDSN         string
	RedisAddr           string
	KafkaBrokers        string
	AlertsChangedTopic  string
	RuleSource          string
	RulesFile           string
	Entities            string
	TickInterval        time.Duration
	Cooldown            time.Duration
	ResolveAfter        int
	Workers             int
	CallTimeout         time.Duration
	VersionPollInterval time.Duration
}

// Validate checks that all required configuration fields are set and have
// valid values. Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres-dsn cannot be empty")
	}
	if c.RuleSource != RuleSourceFile && c.RuleSource != RuleSourceRedis {
		return fmt.Errorf("rule-source must be %q or %q", RuleSourceFile, RuleSourceRedis)
	}
	if c.RuleSource == RuleSourceRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis-addr cannot be empty when rule-source is %q", RuleSourceRedis)
	}
	if c.KafkaBrokers != "" && c.AlertsChangedTopic == "" {
		return fmt.Errorf("alerts-changed-topic cannot be empty when kafka-brokers is set")
	}
	if c.Entities == "" {
		return fmt.Errorf("entities cannot be empty")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick-interval must be > 0")
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be > 0")
	}
	if c.ResolveAfter < 1 {
		return fmt.Errorf("resolve-after must be >= 1")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call-timeout must be > 0")
	}
	if c.VersionPollInterval <= 0 {
		return fmt.Errorf("version-poll-interval must be > 0")
	}
	return nil
}

// EntityCodes expands the entities setting into the list of tracked entity
// codes. The value "all" means the 32 first-level administrative regions
// ("01" through "32"); otherwise it is a comma-separated list of codes.
func (c *Config) EntityCodes() []string {
	if c.Entities == "all" {
		codes := make([]string, 0, 32)
		for i := 1; i <= 32; i++ {
			codes = append(codes, fmt.Sprintf("%02d", i))
		}
		return codes
	}

	parts := strings.Split(c.Entities, ",")
	codes := make([]string, 0, len(parts))
	for _, p := range parts {
		if code := strings.TrimSpace(p); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}
