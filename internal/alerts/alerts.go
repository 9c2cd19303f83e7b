// Package alerts defines the alert record model and the persistence contract
// the lifecycle manager writes through. Records are append/transition only;
// they form an audit trail and are never deleted.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Alert record states, using the external field values the dashboard
// consumes.
const (
	StateActive   = "activa"
	StateResolved = "resuelta"
)

// ErrConflict is returned when a concurrent write raced on the same
// (rule, entity) lifecycle key, detected by the unique constraint on active
// records. Callers retry a bounded number of times with backoff.
var ErrConflict = errors.New("concurrent transition conflict on alert lifecycle key")

// Record is one alert in the audit trail. JSON field names follow the
// external record shape consumed by the dashboard/API tier.
type Record struct {
	ID              string          `json:"id"`
	AlertType       string          `json:"tipo"`
	RuleID          string          `json:"regla"`
	EntityCode      string          `json:"cve_ent"`
	State           string          `json:"estado"`
	Evidence        json.RawMessage `json:"evidencia"`
	ClearStreak     int             `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	LastTriggeredAt time.Time       `json:"last_triggered_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// Active reports whether the record is in the ACTIVE state.
func (r *Record) Active() bool {
	return r.State == StateActive
}

// Store persists and queries alert records. At most one ACTIVE record exists
// per (rule_id, entity_code) pair at any time; implementations must surface
// ErrConflict when a concurrent create would violate that.
type Store interface {
	// FindActive returns the ACTIVE record for the pair, or nil, nil when
	// there is none.
	FindActive(ctx context.Context, ruleID, entityCode string) (*Record, error)

	// FindLatest returns the most recently triggered record for the pair in
	// any state, or nil, nil when the pair has no history. Needed to measure
	// cooldown from a resolved record.
	FindLatest(ctx context.Context, ruleID, entityCode string) (*Record, error)

	// Upsert inserts the record or updates it in place by id.
	Upsert(ctx context.Context, rec *Record) error
}
