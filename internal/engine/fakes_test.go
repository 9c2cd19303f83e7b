package engine

import (
	"context"
	"sync"
	"time"

	"github.com/PedroRgz/Episcopio/internal/lifecycle"
	"github.com/PedroRgz/Episcopio/internal/series"
)

// FakeProvider is a test fake for series.Provider keyed by entity and series
// type.
type FakeProvider struct {
	mu      sync.Mutex
	Points  map[string][]series.Point
	Errs    map[string]error
	Queries []string
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		Points: make(map[string][]series.Point),
		Errs:   make(map[string]error),
	}
}

func providerKey(entityCode, seriesType string) string {
	return entityCode + "/" + seriesType
}

func (f *FakeProvider) Set(entityCode, seriesType string, points []series.Point) {
	f.Points[providerKey(entityCode, seriesType)] = points
}

func (f *FakeProvider) Fail(entityCode, seriesType string, err error) {
	f.Errs[providerKey(entityCode, seriesType)] = err
}

func (f *FakeProvider) Query(ctx context.Context, entityCode, seriesType string, start, end time.Time) ([]series.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := providerKey(entityCode, seriesType)
	f.Queries = append(f.Queries, key)
	if err := f.Errs[key]; err != nil {
		return nil, err
	}
	return f.Points[key], nil
}

// FakeLifecycle is a test fake for the Lifecycle interface. It records every
// input and answers with scripted changes or errors.
type FakeLifecycle struct {
	mu        sync.Mutex
	Inputs    []lifecycle.Input
	ApplyFunc func(in lifecycle.Input) (lifecycle.Change, error)
	ApplyErr  error
}

func (f *FakeLifecycle) Apply(ctx context.Context, in lifecycle.Input) (lifecycle.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Inputs = append(f.Inputs, in)
	if f.ApplyFunc != nil {
		return f.ApplyFunc(in)
	}
	if f.ApplyErr != nil {
		return lifecycle.Change{}, f.ApplyErr
	}
	return lifecycle.Change{Action: lifecycle.ActionNone}, nil
}

func (f *FakeLifecycle) InputCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Inputs)
}

// FakeNotifier is a test fake for the Notifier interface.
type FakeNotifier struct {
	mu         sync.Mutex
	Published  []lifecycle.Change
	PublishErr error
}

func (f *FakeNotifier) Publish(ctx context.Context, change lifecycle.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.Published = append(f.Published, change)
	return nil
}

func (f *FakeNotifier) PublishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Published)
}

// FakeMetrics is a MetricsRecorder that counts calls.
type FakeMetrics struct {
	mu            sync.Mutex
	Evaluated     int
	Triggered     int
	Indeterminate int
	Failed        int
}

func (f *FakeMetrics) RecordEvaluated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Evaluated++
}

func (f *FakeMetrics) RecordTriggered() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Triggered++
}

func (f *FakeMetrics) RecordIndeterminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Indeterminate++
}

func (f *FakeMetrics) RecordFailed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Failed++
}
