// Package lifecycle converts rule trigger decisions into create, maintain,
// and resolve transitions on alert records. It upholds the central
// consistency guarantee: at most one ACTIVE record per (rule_id, entity_code)
// pair at any time.
package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PedroRgz/Episcopio/internal/alerts"
	"github.com/PedroRgz/Episcopio/internal/evaluator"
)

// Action classifies the transition Apply performed.
type Action int

const (
	// ActionNone means no record was created or transitioned.
	ActionNone Action = iota
	// ActionCreated means a fresh ACTIVE record was opened.
	ActionCreated
	// ActionRetriggered means the existing ACTIVE record was refreshed.
	ActionRetriggered
	// ActionResolved means the ACTIVE record transitioned to RESOLVED.
	ActionResolved
	// ActionSuppressed means a trigger within cooldown after a resolved
	// record was deliberately not re-opened.
	ActionSuppressed
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionRetriggered:
		return "retriggered"
	case ActionResolved:
		return "resolved"
	case ActionSuppressed:
		return "suppressed"
	default:
		return "none"
	}
}

// Change is the result of applying one decision to one lifecycle key.
// Record is nil for ActionNone and ActionSuppressed.
type Change struct {
	Action Action
	Record *alerts.Record
}

// Input carries everything Apply needs for one (rule, entity) pair.
type Input struct {
	RuleID     string
	AlertType  string
	EntityCode string
	Outcome    evaluator.Outcome
	Evidence   json.RawMessage // set when Outcome is triggered
}

// Manager applies lifecycle transitions through an alert store. Transitions
// for a given (rule_id, entity_code) key are serialized under a per-key lock
// so two concurrent evaluations cannot both observe no active record and
// both create one.
type Manager struct {
	store        alerts.Store
	cooldown     time.Duration
	resolveAfter int
	now          func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a lifecycle manager. resolveAfter is the number of
// consecutive non-trigger evaluations after which an active alert resolves.
func NewManager(store alerts.Store, cooldown time.Duration, resolveAfter int) *Manager {
	return NewManagerWithClock(store, cooldown, resolveAfter, time.Now)
}

// NewManagerWithClock creates a manager with an injectable clock for
// deterministic tests.
func NewManagerWithClock(store alerts.Store, cooldown time.Duration, resolveAfter int, now func() time.Time) *Manager {
	if resolveAfter < 1 {
		resolveAfter = 1
	}
	return &Manager{
		store:        store,
		cooldown:     cooldown,
		resolveAfter: resolveAfter,
		now:          now,
		locks:        make(map[string]*sync.Mutex),
	}
}

// Apply performs the lifecycle transition for one (rule, entity) decision.
// Called once per pair per tick. Each call is atomic with respect to other
// calls for the same key.
func (m *Manager) Apply(ctx context.Context, in Input) (Change, error) {
	unlock := m.lockKey(in.RuleID + "|" + in.EntityCode)
	defer unlock()

	switch in.Outcome {
	case evaluator.OutcomeIndeterminate:
		// Not enough data to judge: no record created or modified.
		return Change{Action: ActionNone}, nil
	case evaluator.OutcomeTriggered:
		return m.applyTrigger(ctx, in)
	default:
		return m.applyClear(ctx, in)
	}
}

// applyTrigger handles a triggered decision: create, refresh, or suppress.
func (m *Manager) applyTrigger(ctx context.Context, in Input) (Change, error) {
	latest, err := m.store.FindLatest(ctx, in.RuleID, in.EntityCode)
	if err != nil {
		return Change{}, err
	}
	now := m.now().UTC()

	if latest != nil && latest.Active() {
		// Re-triggering refreshes the existing record, never spawns a
		// duplicate.
		latest.Evidence = in.Evidence
		latest.LastTriggeredAt = now
		latest.ClearStreak = 0
		if err := m.store.Upsert(ctx, latest); err != nil {
			return Change{}, err
		}
		slog.Debug("Alert re-triggered",
			"alert_id", latest.ID,
			"rule_id", in.RuleID,
			"entity", in.EntityCode,
		)
		return Change{Action: ActionRetriggered, Record: latest}, nil
	}

	if latest != nil && now.Sub(latest.LastTriggeredAt) < m.cooldown {
		// Resolved recently: cooldown has not elapsed, so no new record.
		slog.Debug("Trigger suppressed by cooldown",
			"rule_id", in.RuleID,
			"entity", in.EntityCode,
			"last_triggered_at", latest.LastTriggeredAt,
			"cooldown", m.cooldown,
		)
		return Change{Action: ActionSuppressed}, nil
	}

	rec := &alerts.Record{
		ID:              uuid.New().String(),
		AlertType:       in.AlertType,
		RuleID:          in.RuleID,
		EntityCode:      in.EntityCode,
		State:           alerts.StateActive,
		Evidence:        in.Evidence,
		CreatedAt:       now,
		LastTriggeredAt: now,
	}
	if err := m.store.Upsert(ctx, rec); err != nil {
		return Change{}, err
	}
	slog.Info("Alert created",
		"alert_id", rec.ID,
		"alert_type", rec.AlertType,
		"rule_id", in.RuleID,
		"entity", in.EntityCode,
	)
	return Change{Action: ActionCreated, Record: rec}, nil
}

// applyClear handles a definite non-trigger: advance the clear streak on an
// active record and resolve it once the streak reaches the threshold.
func (m *Manager) applyClear(ctx context.Context, in Input) (Change, error) {
	active, err := m.store.FindActive(ctx, in.RuleID, in.EntityCode)
	if err != nil {
		return Change{}, err
	}
	if active == nil {
		return Change{Action: ActionNone}, nil
	}

	active.ClearStreak++
	if active.ClearStreak < m.resolveAfter {
		if err := m.store.Upsert(ctx, active); err != nil {
			return Change{}, err
		}
		return Change{Action: ActionNone}, nil
	}

	now := m.now().UTC()
	active.State = alerts.StateResolved
	active.ResolvedAt = &now
	if err := m.store.Upsert(ctx, active); err != nil {
		return Change{}, err
	}
	slog.Info("Alert resolved",
		"alert_id", active.ID,
		"rule_id", in.RuleID,
		"entity", in.EntityCode,
		"clear_streak", active.ClearStreak,
	)
	return Change{Action: ActionResolved, Record: active}, nil
}

// lockKey acquires the per-key mutex and returns its unlock function.
func (m *Manager) lockKey(key string) func() {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
