// Package engine orchestrates one evaluation tick: for each rule and tracked
// entity it fetches the relevant series window, runs the matching evaluator,
// and hands the decision to the lifecycle manager.
package engine

import (
	"context"

	"github.com/PedroRgz/Episcopio/internal/lifecycle"
)

// Lifecycle applies one decision to one (rule, entity) lifecycle key.
type Lifecycle interface {
	Apply(ctx context.Context, in lifecycle.Input) (lifecycle.Change, error)
}

// Notifier fans out alert record changes to an external consumer. Publishing
// is fire-and-forget: a failure never rolls back the lifecycle transition.
type Notifier interface {
	Publish(ctx context.Context, change lifecycle.Change) error
}

// MetricsRecorder records per-pair and per-tick counters.
type MetricsRecorder interface {
	RecordEvaluated()
	RecordTriggered()
	RecordIndeterminate()
	RecordFailed()
}

// NoOpMetrics is a MetricsRecorder that does nothing, used when no metrics
// backend is configured.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordEvaluated()     {}
func (NoOpMetrics) RecordTriggered()     {}
func (NoOpMetrics) RecordIndeterminate() {}
func (NoOpMetrics) RecordFailed()        {}
