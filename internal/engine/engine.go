package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/PedroRgz/Episcopio/internal/alerts"
	"github.com/PedroRgz/Episcopio/internal/evaluator"
	"github.com/PedroRgz/Episcopio/internal/evidence"
	"github.com/PedroRgz/Episcopio/internal/lifecycle"
	"github.com/PedroRgz/Episcopio/internal/retry"
	"github.com/PedroRgz/Episcopio/internal/rules"
	"github.com/PedroRgz/Episcopio/internal/series"
)

const (
	// DefaultWorkers is the number of pair evaluation workers per tick.
	DefaultWorkers = 4
	// DefaultCallTimeout bounds how long a single provider or store call may
	// block. Exceeding it fails that pair, not the tick.
	DefaultCallTimeout = 10 * time.Second
)

// Options configures an Engine.
type Options struct {
	Workers     int
	CallTimeout time.Duration
	Retry       retry.Config
	Notifier    Notifier        // optional
	Metrics     MetricsRecorder // optional
	Clock       func() time.Time
}

// TickSummary reports what one tick did, by pair.
type TickSummary struct {
	Evaluated     int
	Triggered     int
	Indeterminate int
	Failed        int
	Duration      time.Duration
}

// Engine evaluates the rule catalog against tracked entities, one tick at a
// time. Evaluation across distinct (rule, entity) pairs runs on a worker
// pool with no cross-pair ordering; each pair's lifecycle transition is
// atomic, so a tick may be cancelled between pairs without partial state.
type Engine struct {
	provider  series.Provider
	lifecycle Lifecycle
	notifier  Notifier
	metrics   MetricsRecorder
	increment evaluator.IncrementEvaluator
	social    evaluator.SocialSignalEvaluator
	builder   evidence.Builder
	workers   int
	timeout   time.Duration
	retryCfg  retry.Config
	now       func() time.Time
}

// NewEngine creates an engine. Zero-valued options fall back to defaults; a
// nil notifier disables change fan-out and nil metrics record nothing.
func NewEngine(provider series.Provider, lc Lifecycle, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NoOpMetrics{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Retry.Retryable == nil {
		cfg := opts.Retry
		if cfg.MaxRetries == 0 && cfg.InitialBackoff == 0 {
			cfg = retry.DefaultConfig()
		}
		cfg.Retryable = func(err error) bool { return errors.Is(err, alerts.ErrConflict) }
		opts.Retry = cfg
	}

	return &Engine{
		provider:  provider,
		lifecycle: lc,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		increment: evaluator.NewIncrementEvaluator(),
		social:    evaluator.NewSocialSignalEvaluator(),
		builder:   evidence.NewBuilder(),
		workers:   opts.Workers,
		timeout:   opts.CallTimeout,
		retryCfg:  opts.Retry,
		now:       opts.Clock,
	}
}

type pair struct {
	rule   rules.Rule
	entity string
}

type pairResult struct {
	outcome evaluator.Outcome
	failed  bool
	change  lifecycle.Change
}

// RunTick evaluates every rule in the catalog against every tracked entity
// and returns the tick summary plus the alert record changes it produced.
// Failures are isolated per pair: a bad provider call or store conflict
// degrades the tick's coverage, never aborts it.
func (e *Engine) RunTick(ctx context.Context, catalog *rules.Catalog, entities []string) (TickSummary, []lifecycle.Change) {
	start := e.now()

	var pairs []pair
	for _, rule := range catalog.Rules() {
		for _, entity := range entities {
			pairs = append(pairs, pair{rule: rule, entity: entity})
		}
	}

	jobs := make(chan pair)
	results := make(chan pairResult, len(pairs))

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				results <- e.evaluatePair(ctx, p)
			}
		}()
	}

	// Feed pairs with a cooperative cancellation checkpoint between each.
	go func() {
		defer close(jobs)
		for _, p := range pairs {
			select {
			case <-ctx.Done():
				return
			case jobs <- p:
			}
		}
	}()

	wg.Wait()
	close(results)

	summary := TickSummary{}
	var changes []lifecycle.Change
	for res := range results {
		if res.failed {
			summary.Failed++
			continue
		}
		summary.Evaluated++
		switch res.outcome {
		case evaluator.OutcomeTriggered:
			summary.Triggered++
		case evaluator.OutcomeIndeterminate:
			summary.Indeterminate++
		}
		if res.change.Record != nil {
			changes = append(changes, res.change)
		}
	}
	summary.Duration = e.now().Sub(start)

	slog.Info("Tick complete",
		"evaluated", summary.Evaluated,
		"triggered", summary.Triggered,
		"indeterminate", summary.Indeterminate,
		"failed", summary.Failed,
		"changes", len(changes),
		"duration", summary.Duration,
	)

	return summary, changes
}

// evaluatePair fetches the series window for one (rule, entity) pair, runs
// the matching evaluator, and applies the lifecycle transition.
func (e *Engine) evaluatePair(ctx context.Context, p pair) pairResult {
	points, err := e.fetchWindow(ctx, p)
	if err != nil {
		slog.Error("Failed to fetch series window",
			"rule_id", p.rule.RuleID(),
			"entity", p.entity,
			"series", p.rule.SeriesType(),
			"error", err,
		)
		e.metrics.RecordFailed()
		return pairResult{failed: true}
	}

	var decision evaluator.Decision
	switch rule := p.rule.(type) {
	case rules.IncrementRule:
		decision = e.increment.Evaluate(rule, p.entity, points)
	case rules.SocialSignalRule:
		decision = e.social.Evaluate(rule, p.entity, points)
	default:
		slog.Error("Unknown rule variant",
			"rule_id", p.rule.RuleID(),
			"series", p.rule.SeriesType(),
		)
		e.metrics.RecordFailed()
		return pairResult{failed: true}
	}

	in := lifecycle.Input{
		RuleID:     p.rule.RuleID(),
		AlertType:  p.rule.AlertType(),
		EntityCode: p.entity,
		Outcome:    decision.Outcome,
	}

	if decision.Triggered() {
		ev, err := e.builder.Build(decision)
		if err == nil {
			in.Evidence, err = evidence.Marshal(ev)
		}
		if err != nil {
			slog.Error("Failed to build evidence",
				"rule_id", p.rule.RuleID(),
				"entity", p.entity,
				"error", err,
			)
			e.metrics.RecordFailed()
			return pairResult{failed: true}
		}
	}

	var change lifecycle.Change
	err = retry.WithRetry(ctx, e.retryCfg, "apply lifecycle transition", func() error {
		applyCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		var applyErr error
		change, applyErr = e.lifecycle.Apply(applyCtx, in)
		return applyErr
	})
	if err != nil {
		slog.Error("Failed to apply lifecycle transition",
			"rule_id", p.rule.RuleID(),
			"entity", p.entity,
			"outcome", decision.Outcome.String(),
			"error", err,
		)
		e.metrics.RecordFailed()
		return pairResult{failed: true}
	}

	e.metrics.RecordEvaluated()
	switch decision.Outcome {
	case evaluator.OutcomeTriggered:
		e.metrics.RecordTriggered()
	case evaluator.OutcomeIndeterminate:
		e.metrics.RecordIndeterminate()
		slog.Debug("Indeterminate evaluation",
			"rule_id", p.rule.RuleID(),
			"entity", p.entity,
			"reason", decision.Reason,
		)
	}

	e.notify(ctx, change)

	return pairResult{outcome: decision.Outcome, change: change}
}

// fetchWindow queries enough trailing history to cover the rule's reference
// window even with gaps in the series, bounded by the per-call timeout.
func (e *Engine) fetchWindow(ctx context.Context, p pair) ([]series.Point, error) {
	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	end := e.now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -2*p.rule.Window())
	return e.provider.Query(queryCtx, p.entity, p.rule.SeriesType(), start, end)
}

// notify fans out a change to the notifier, fire-and-forget. A publish
// failure is logged and never rolls back the lifecycle transition.
func (e *Engine) notify(ctx context.Context, change lifecycle.Change) {
	if e.notifier == nil || change.Record == nil {
		return
	}
	if err := e.notifier.Publish(ctx, change); err != nil {
		slog.Error("Failed to publish alert change",
			"alert_id", change.Record.ID,
			"action", change.Action.String(),
			"error", err,
		)
	}
}
