package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PedroRgz/Episcopio/internal/evaluator"
)

var testEvidence = json.RawMessage(`{"delta_pct": 25, "current": 125, "avg_ref": 100, "window_days": 14}`)

// testClock is a mutable clock for deterministic lifecycle tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func triggeredInput() Input {
	return Input{
		RuleID:     "a1",
		AlertType:  "incremento_oficial",
		EntityCode: "09",
		Outcome:    evaluator.OutcomeTriggered,
		Evidence:   testEvidence,
	}
}

func clearedInput() Input {
	return Input{
		RuleID:     "a1",
		AlertType:  "incremento_oficial",
		EntityCode: "09",
		Outcome:    evaluator.OutcomeNotTriggered,
	}
}

func TestManager_Apply_CreatesAlert(t *testing.T) {
	store := NewFakeStore()
	clock := newTestClock()
	m := NewManagerWithClock(store, 24*time.Hour, 1, clock.Now)

	change, err := m.Apply(context.Background(), triggeredInput())
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if change.Action != ActionCreated {
		t.Fatalf("Apply() action = %v, want created", change.Action)
	}
	rec := change.Record
	if rec == nil {
		t.Fatal("Apply() created change has nil record")
	}
	if rec.ID == "" {
		t.Error("Apply() created record has empty id")
	}
	if !rec.Active() {
		t.Errorf("Apply() created record state = %q, want active", rec.State)
	}
	if rec.AlertType != "incremento_oficial" {
		t.Errorf("Apply() created record type = %q, want incremento_oficial", rec.AlertType)
	}
	if string(rec.Evidence) != string(testEvidence) {
		t.Errorf("Apply() created record evidence = %s, want the trigger evidence", rec.Evidence)
	}
	if !rec.CreatedAt.Equal(clock.Now()) || !rec.LastTriggeredAt.Equal(clock.Now()) {
		t.Error("Apply() created record timestamps should come from the injected clock")
	}
	if store.ActiveCount("a1", "09") != 1 {
		t.Errorf("active records = %d, want 1", store.ActiveCount("a1", "09"))
	}
}

func TestManager_Apply_RetriggerRefreshesInPlace(t *testing.T) {
	store := NewFakeStore()
	clock := newTestClock()
	m := NewManagerWithClock(store, 24*time.Hour, 1, clock.Now)
	ctx := context.Background()

	first, err := m.Apply(ctx, triggeredInput())
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}

	clock.Advance(time.Hour)
	in := triggeredInput()
	in.Evidence = json.RawMessage(`{"delta_pct": 40}`)

	second, err := m.Apply(ctx, in)
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if second.Action != ActionRetriggered {
		t.Fatalf("Apply() action = %v, want retriggered", second.Action)
	}
	if second.Record.ID != first.Record.ID {
		t.Errorf("Apply() retrigger id = %s, want same record %s", second.Record.ID, first.Record.ID)
	}
	if !second.Record.LastTriggeredAt.After(first.Record.LastTriggeredAt) {
		t.Error("Apply() retrigger should advance last_triggered_at")
	}
	if string(second.Record.Evidence) != `{"delta_pct": 40}` {
		t.Errorf("Apply() retrigger evidence = %s, want refreshed payload", second.Record.Evidence)
	}
	if store.ActiveCount("a1", "09") != 1 {
		t.Errorf("active records = %d, want 1 after retrigger", store.ActiveCount("a1", "09"))
	}
}

func TestManager_Apply_ResolveAfterOneClear(t *testing.T) {
	store := NewFakeStore()
	clock := newTestClock()
	m := NewManagerWithClock(store, 24*time.Hour, 1, clock.Now)
	ctx := context.Background()

	created, err := m.Apply(ctx, triggeredInput())
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}

	clock.Advance(time.Hour)
	change, err := m.Apply(ctx, clearedInput())
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if change.Action != ActionResolved {
		t.Fatalf("Apply() action = %v, want resolved", change.Action)
	}
	if change.Record.ID != created.Record.ID {
		t.Errorf("Apply() resolved id = %s, want %s", change.Record.ID, created.Record.ID)
	}
	if change.Record.State != "resuelta" {
		t.Errorf("Apply() resolved state = %q, want resuelta", change.Record.State)
	}
	if change.Record.ResolvedAt == nil || !change.Record.ResolvedAt.Equal(clock.Now()) {
		t.Error("Apply() resolved record should carry the resolution timestamp")
	}

	// Another clear on a pair with no active record is a no-op.
	next, err := m.Apply(ctx, clearedInput())
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if next.Action != ActionNone {
		t.Errorf("Apply() action = %v, want none after resolution", next.Action)
	}
}

func TestManager_Apply_ResolveAfterStreak(t *testing.T) {
	store := NewFakeStore()
	clock := newTestClock()
	m := NewManagerWithClock(store, 24*time.Hour, 3, clock.Now)
	ctx := context.Background()

	if _, err := m.Apply(ctx, triggeredInput()); err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}

	// Two clears keep the alert active with a growing streak.
	for i := 0; i < 2; i++ {
		clock.Advance(time.Hour)
		change, err := m.Apply(ctx, clearedInput())
		if err != nil {
			t.Fatalf("Apply() clear %d error = %v, want nil", i+1, err)
		}
		if change.Action != ActionNone {
			t.Fatalf("Apply() clear %d action = %v, want none", i+1, change.Action)
		}
		if store.ActiveCount("a1", "09") != 1 {
			t.Fatalf("active records = %d after clear %d, want 1", store.ActiveCount("a1", "09"), i+1)
		}
	}

	clock.Advance(time.Hour)
	change, err := m.Apply(ctx, clearedInput())
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if change.Action != ActionResolved {
		t.Fatalf("Apply() third clear action = %v, want resolved", change.Action)
	}
	if store.ActiveCount("a1", "09") != 0 {
		t.Errorf("active records = %d after resolution, want 0", store.ActiveCount("a1", "09"))
	}
}

func TestManager_Apply_TriggerResetsClearStreak(t *testing.T) {
	store := NewFakeStore()
	clock := newTestClock()
	m := NewManagerWithClock(store, 24*time.Hour, 2, clock.Now)
	ctx := context.Background()

	if _, err := m.Apply(ctx, triggeredInput()); err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}

	// clear, trigger, clear: the streak restarts, so the alert stays active.
	for _, in := range []Input{clearedInput(), triggeredInput(), clearedInput()} {
		clock.Advance(time.Hour)
		change, err := m.Apply(ctx, in)
		if err != nil {
			t.Fatalf("Apply() error = %v, want nil", err)
		}
		if change.Action == ActionResolved {
			t.Fatal("Apply() resolved early, trigger should have reset the clear streak")
		}
	}
	if store.ActiveCount("a1", "09") != 1 {
		t.Errorf("active records = %d, want 1", store.ActiveCount("a1", "09"))
	}

	clock.Advance(time.Hour)
	if change, _ := m.Apply(ctx, clearedInput()); change.Action != ActionResolved {
		t.Errorf("Apply() action = %v, want resolved on second consecutive clear", change.Action)
	}
}

func TestManager_Apply_CooldownSuppressesReopen(t *testing.T) {
	store := NewFakeStore()
	clock := newTestClock()
	m := NewManagerWithClock(store, 24*time.Hour, 1, clock.Now)
	ctx := context.Background()

	if _, err := m.Apply(ctx, triggeredInput()); err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	clock.Advance(time.Hour)
	if change, _ := m.Apply(ctx, clearedInput()); change.Action != ActionResolved {
		t.Fatalf("Apply() action = %v, want resolved", change.Action)
	}

	// A new trigger before the cooldown elapses opens nothing.
	clock.Advance(time.Hour)
	change, err := m.Apply(ctx, triggeredInput())
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if change.Action != ActionSuppressed {
		t.Fatalf("Apply() action = %v, want suppressed within cooldown", change.Action)
	}
	if change.Record != nil {
		t.Error("Apply() suppressed change should carry no record")
	}
	if store.ActiveCount("a1", "09") != 0 {
		t.Errorf("active records = %d, want 0 while suppressed", store.ActiveCount("a1", "09"))
	}
}

func TestManager_Apply_ReopensAfterCooldown(t *testing.T) {
	store := NewFakeStore()
	clock := newTestClock()
	m := NewManagerWithClock(store, 24*time.Hour, 1, clock.Now)
	ctx := context.Background()

	first, err := m.Apply(ctx, triggeredInput())
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	clock.Advance(time.Hour)
	if change, _ := m.Apply(ctx, clearedInput()); change.Action != ActionResolved {
		t.Fatalf("Apply() action = %v, want resolved", change.Action)
	}

	// Cooldown is measured from the last trigger, not the resolution.
	clock.Advance(25 * time.Hour)
	change, err := m.Apply(ctx, triggeredInput())
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if change.Action != ActionCreated {
		t.Fatalf("Apply() action = %v, want created after cooldown", change.Action)
	}
	if change.Record.ID == first.Record.ID {
		t.Error("Apply() recurrence should open a distinct record, not reuse the resolved one")
	}
	if store.ActiveCount("a1", "09") != 1 {
		t.Errorf("active records = %d, want 1", store.ActiveCount("a1", "09"))
	}
	// The resolved record stays in the audit trail.
	if len(store.Records) != 2 {
		t.Errorf("total records = %d, want 2", len(store.Records))
	}
}

func TestManager_Apply_IndeterminateIsNoOp(t *testing.T) {
	store := NewFakeStore()
	m := NewManager(store, 24*time.Hour, 1)

	in := triggeredInput()
	in.Outcome = evaluator.OutcomeIndeterminate
	in.Evidence = nil

	change, err := m.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if change.Action != ActionNone {
		t.Errorf("Apply() action = %v, want none", change.Action)
	}
	if store.UpsertCalls != 0 {
		t.Errorf("Apply() upsert calls = %d, want 0 for indeterminate outcome", store.UpsertCalls)
	}
}

func TestManager_Apply_IndeterminateKeepsActiveAlert(t *testing.T) {
	store := NewFakeStore()
	clock := newTestClock()
	m := NewManagerWithClock(store, 24*time.Hour, 1, clock.Now)
	ctx := context.Background()

	if _, err := m.Apply(ctx, triggeredInput()); err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}

	clock.Advance(time.Hour)
	in := clearedInput()
	in.Outcome = evaluator.OutcomeIndeterminate
	change, err := m.Apply(ctx, in)
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if change.Action != ActionNone {
		t.Errorf("Apply() action = %v, want none", change.Action)
	}
	// The active alert neither resolves nor advances its clear streak.
	if store.ActiveCount("a1", "09") != 1 {
		t.Errorf("active records = %d, want 1", store.ActiveCount("a1", "09"))
	}
	clock.Advance(time.Hour)
	if change, _ := m.Apply(ctx, clearedInput()); change.Action != ActionResolved {
		t.Errorf("Apply() action = %v, want resolved on first real clear", change.Action)
	}
}

func TestManager_Apply_StoreErrors(t *testing.T) {
	storeErr := errors.New("connection lost")

	t.Run("find latest fails", func(t *testing.T) {
		store := NewFakeStore()
		store.FindLatestErr = storeErr
		m := NewManager(store, 24*time.Hour, 1)

		if _, err := m.Apply(context.Background(), triggeredInput()); !errors.Is(err, storeErr) {
			t.Errorf("Apply() error = %v, want %v", err, storeErr)
		}
	})

	t.Run("upsert fails", func(t *testing.T) {
		store := NewFakeStore()
		store.UpsertErr = storeErr
		m := NewManager(store, 24*time.Hour, 1)

		if _, err := m.Apply(context.Background(), triggeredInput()); !errors.Is(err, storeErr) {
			t.Errorf("Apply() error = %v, want %v", err, storeErr)
		}
	})

	t.Run("find active fails", func(t *testing.T) {
		store := NewFakeStore()
		store.FindActiveErr = storeErr
		m := NewManager(store, 24*time.Hour, 1)

		if _, err := m.Apply(context.Background(), clearedInput()); !errors.Is(err, storeErr) {
			t.Errorf("Apply() error = %v, want %v", err, storeErr)
		}
	})
}

// Concurrent triggers on the same key must serialize: exactly one record is
// created and every other call refreshes it.
func TestManager_Apply_ConcurrentTriggersSameKey(t *testing.T) {
	store := NewFakeStore()
	m := NewManager(store, 24*time.Hour, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	actions := make(chan Action, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			change, err := m.Apply(ctx, triggeredInput())
			if err != nil {
				t.Errorf("Apply() error = %v, want nil", err)
				return
			}
			actions <- change.Action
		}()
	}
	wg.Wait()
	close(actions)

	created := 0
	for action := range actions {
		if action == ActionCreated {
			created++
		}
	}
	if created != 1 {
		t.Errorf("concurrent Apply() created %d records, want exactly 1", created)
	}
	if store.ActiveCount("a1", "09") != 1 {
		t.Errorf("active records = %d, want 1", store.ActiveCount("a1", "09"))
	}
}

func TestManager_Apply_IndependentKeys(t *testing.T) {
	store := NewFakeStore()
	m := NewManager(store, 24*time.Hour, 1)
	ctx := context.Background()

	for _, entity := range []string{"09", "14", "19"} {
		in := triggeredInput()
		in.EntityCode = entity
		change, err := m.Apply(ctx, in)
		if err != nil {
			t.Fatalf("Apply() error = %v, want nil", err)
		}
		if change.Action != ActionCreated {
			t.Fatalf("Apply() action = %v for entity %s, want created", change.Action, entity)
		}
	}

	for _, entity := range []string{"09", "14", "19"} {
		if store.ActiveCount("a1", entity) != 1 {
			t.Errorf("active records for entity %s = %d, want 1", entity, store.ActiveCount("a1", entity))
		}
	}
}
