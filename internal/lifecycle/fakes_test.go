package lifecycle

import (
	"context"
	"sync"

	"github.com/PedroRgz/Episcopio/internal/alerts"
)

// FakeStore is an in-memory alerts.Store for lifecycle tests. It returns
// copies so callers mutating a record do not leak into storage until they
// Upsert, matching database behavior.
type FakeStore struct {
	mu      sync.Mutex
	Records map[string]*alerts.Record

	FindActiveErr error
	FindLatestErr error
	UpsertErr     error
	UpsertFunc    func(rec *alerts.Record) error
	UpsertCalls   int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{Records: make(map[string]*alerts.Record)}
}

func copyRecord(rec *alerts.Record) *alerts.Record {
	cp := *rec
	if rec.ResolvedAt != nil {
		t := *rec.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

func (f *FakeStore) FindActive(ctx context.Context, ruleID, entityCode string) (*alerts.Record, error) {
	if f.FindActiveErr != nil {
		return nil, f.FindActiveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.Records {
		if rec.RuleID == ruleID && rec.EntityCode == entityCode && rec.Active() {
			return copyRecord(rec), nil
		}
	}
	return nil, nil
}

func (f *FakeStore) FindLatest(ctx context.Context, ruleID, entityCode string) (*alerts.Record, error) {
	if f.FindLatestErr != nil {
		return nil, f.FindLatestErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *alerts.Record
	for _, rec := range f.Records {
		if rec.RuleID != ruleID || rec.EntityCode != entityCode {
			continue
		}
		if latest == nil || rec.LastTriggeredAt.After(latest.LastTriggeredAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyRecord(latest), nil
}

func (f *FakeStore) Upsert(ctx context.Context, rec *alerts.Record) error {
	f.mu.Lock()
	f.UpsertCalls++
	f.mu.Unlock()
	if f.UpsertFunc != nil {
		if err := f.UpsertFunc(rec); err != nil {
			return err
		}
	} else if f.UpsertErr != nil {
		return f.UpsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Records[rec.ID] = copyRecord(rec)
	return nil
}

// ActiveCount returns how many ACTIVE records exist for a lifecycle key.
func (f *FakeStore) ActiveCount(ruleID, entityCode string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, rec := range f.Records {
		if rec.RuleID == ruleID && rec.EntityCode == entityCode && rec.Active() {
			count++
		}
	}
	return count
}
