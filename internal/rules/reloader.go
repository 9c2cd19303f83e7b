package rules

import (
	"context"
	"log/slog"
	"time"
)

// Reloader polls a catalog source for version changes and swaps the holder's
// catalog when the version moves. Evaluation in flight keeps its snapshot.
type Reloader struct {
	source         Source
	holder         *Holder
	pollInterval   time.Duration
	currentVersion int64
}

// NewReloader creates a new reloader with the given dependencies.
func NewReloader(source Source, holder *Holder, pollInterval time.Duration) *Reloader {
	return &Reloader{
		source:       source,
		holder:       holder,
		pollInterval: pollInterval,
	}
}

// Start begins polling the source for version changes in a background
// goroutine. The goroutine exits when ctx is cancelled.
func (r *Reloader) Start(ctx context.Context) error {
	version, err := r.source.Version(ctx)
	if err != nil {
		return err
	}
	r.currentVersion = version

	slog.Info("Starting rule version poller",
		"poll_interval", r.pollInterval,
		"initial_version", r.currentVersion,
	)

	go r.pollLoop(ctx)
	return nil
}

// pollLoop continuously polls the source for version changes.
func (r *Reloader) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Rule version poller stopped")
			return
		case <-ticker.C:
			if err := r.checkAndReload(ctx); err != nil {
				slog.Error("Failed to check/reload rules", "error", err)
				// Continue polling even if reload fails
			}
		}
	}
}

// checkAndReload checks if the version has changed and reloads if needed.
func (r *Reloader) checkAndReload(ctx context.Context) error {
	version, err := r.source.Version(ctx)
	if err != nil {
		return err
	}

	if version == r.currentVersion {
		return nil // No change
	}

	slog.Info("Rule version changed, reloading catalog",
		"old_version", r.currentVersion,
		"new_version", version,
	)

	catalog, err := r.source.Load(ctx)
	if err != nil {
		return err
	}

	r.holder.Swap(catalog)
	r.currentVersion = version

	slog.Info("Rule catalog reloaded",
		"version", version,
		"rules_count", catalog.Len(),
	)
	return nil
}
