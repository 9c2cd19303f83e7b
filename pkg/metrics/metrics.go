// Package metrics provides a shared metrics collection and reporting system.
// The engine writes tick-level counters to Redis so the dashboard tier can
// read them without reaching into the process.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MetricsKeyPrefix is the Redis key prefix for service metrics.
	MetricsKeyPrefix = "metrics:"
	// MetricsTTL is how long metrics stay in Redis if not refreshed.
	MetricsTTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// ServiceMetrics holds metrics for a single service.
type ServiceMetrics struct {
	ServiceName string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"` // "healthy" or "unhealthy"

	// Counters (monotonically increasing since start)
	TicksRun           uint64 `json:"ticks_run"`
	PairsEvaluated     uint64 `json:"pairs_evaluated"`
	AlertsTriggered    uint64 `json:"alerts_triggered"`
	PairsIndeterminate uint64 `json:"pairs_indeterminate"`
	PairsFailed        uint64 `json:"pairs_failed"`

	// Latencies (averages in nanoseconds)
	AvgTickLatencyNs float64 `json:"avg_tick_latency_ns"`
}

// Collector collects and reports engine metrics for a service.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	// Atomic counters
	ticksRun           atomic.Uint64
	pairsEvaluated     atomic.Uint64
	alertsTriggered    atomic.Uint64
	pairsIndeterminate atomic.Uint64
	pairsFailed        atomic.Uint64

	// Latency tracking
	totalTickLatencyNs atomic.Uint64
	tickLatencyCount   atomic.Uint64

	// Stop channel
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector for a service.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.writeMetrics(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.writeMetrics(context.Background()) // Final write
				return
			case <-ticker.C:
				c.writeMetrics(ctx)
			}
		}
	}()
}

// Stop stops the metrics reporting.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// RecordTick increments the tick counter with the tick's duration.
func (c *Collector) RecordTick(latency time.Duration) {
	c.ticksRun.Add(1)
	c.totalTickLatencyNs.Add(uint64(latency.Nanoseconds()))
	c.tickLatencyCount.Add(1)
}

// RecordEvaluated increments the evaluated pairs counter.
func (c *Collector) RecordEvaluated() {
	c.pairsEvaluated.Add(1)
}

// RecordTriggered increments the triggered alerts counter.
func (c *Collector) RecordTriggered() {
	c.alertsTriggered.Add(1)
}

// RecordIndeterminate increments the indeterminate pairs counter.
func (c *Collector) RecordIndeterminate() {
	c.pairsIndeterminate.Add(1)
}

// RecordFailed increments the failed pairs counter.
func (c *Collector) RecordFailed() {
	c.pairsFailed.Add(1)
}

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *ServiceMetrics {
	now := time.Now().UTC()

	// Calculate average tick latency in nanoseconds
	var avgLatencyNs float64
	latencyCount := c.tickLatencyCount.Load()
	if latencyCount > 0 {
		avgLatencyNs = float64(c.totalTickLatencyNs.Load()) / float64(latencyCount)
	}

	return &ServiceMetrics{
		ServiceName:        c.serviceName,
		StartedAt:          c.startedAt,
		LastUpdated:        now,
		Status:             "healthy",
		TicksRun:           c.ticksRun.Load(),
		PairsEvaluated:     c.pairsEvaluated.Load(),
		AlertsTriggered:    c.alertsTriggered.Load(),
		PairsIndeterminate: c.pairsIndeterminate.Load(),
		PairsFailed:        c.pairsFailed.Load(),
		AvgTickLatencyNs:   avgLatencyNs,
	}
}

// writeMetrics writes current metrics to Redis.
func (c *Collector) writeMetrics(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snapshot := c.GetSnapshot()

	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.serviceName, "error", err)
		return
	}

	key := MetricsKeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, MetricsTTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.serviceName, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "service", c.serviceName, "key", key)
}

// Reader reads service metrics from Redis.
type Reader struct {
	redis *redis.Client
}

// NewReader creates a new metrics reader.
func NewReader(redisClient *redis.Client) *Reader {
	return &Reader{redis: redisClient}
}

// GetServiceMetrics retrieves metrics for a specific service.
func (r *Reader) GetServiceMetrics(ctx context.Context, serviceName string) (*ServiceMetrics, error) {
	key := MetricsKeyPrefix + serviceName
	data, err := r.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no metrics found for service: %s", serviceName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	var snapshot ServiceMetrics
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	// Check if metrics are stale (older than TTL)
	if time.Since(snapshot.LastUpdated) > MetricsTTL {
		snapshot.Status = "unhealthy"
	}

	return &snapshot, nil
}
