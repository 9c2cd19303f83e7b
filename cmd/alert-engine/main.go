package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PedroRgz/Episcopio/internal/alerts"
	"github.com/PedroRgz/Episcopio/internal/config"
	"github.com/PedroRgz/Episcopio/internal/engine"
	"github.com/PedroRgz/Episcopio/internal/lifecycle"
	"github.com/PedroRgz/Episcopio/internal/notifier"
	"github.com/PedroRgz/Episcopio/internal/rules"
	"github.com/PedroRgz/Episcopio/internal/scheduler"
	"github.com/PedroRgz/Episcopio/internal/series"
	"github.com/PedroRgz/Episcopio/pkg/metrics"
	"github.com/PedroRgz/Episcopio/pkg/shared"
)

func main() {
	// Parse command-line flags
	cfg := &config.Config{}
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", shared.GetEnvOrDefault("EP_POSTGRES_DSN", ""), "PostgreSQL connection string")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", shared.GetEnvOrDefault("EP_REDIS_ADDR", ""), "Redis server address (optional; enables metrics and the redis rule source)")
	flag.StringVar(&cfg.KafkaBrokers, "kafka-brokers", shared.GetEnvOrDefault("EP_KAFKA_BROKERS", ""), "Kafka broker addresses, comma-separated (optional; enables alert change fan-out)")
	flag.StringVar(&cfg.AlertsChangedTopic, "alerts-changed-topic", "alerts.changed", "Kafka topic for alert record changes")
	flag.StringVar(&cfg.RuleSource, "rule-source", config.RuleSourceFile, "Rule catalog source: file or redis")
	flag.StringVar(&cfg.RulesFile, "rules-file", "reglas/alertas.yaml", "Path to the YAML rule definitions file")
	flag.StringVar(&cfg.Entities, "entities", "all", "Tracked entity codes, comma-separated, or 'all' for the 32 states")
	flag.DurationVar(&cfg.TickInterval, "tick-interval", time.Hour, "Interval between evaluation ticks")
	flag.DurationVar(&cfg.Cooldown, "cooldown", 24*time.Hour, "Minimum elapsed time after a trigger before the same rule+entity can open a new alert")
	flag.IntVar(&cfg.ResolveAfter, "resolve-after", 1, "Consecutive non-trigger evaluations before an active alert resolves")
	flag.IntVar(&cfg.Workers, "workers", engine.DefaultWorkers, "Number of pair evaluation workers per tick")
	flag.DurationVar(&cfg.CallTimeout, "call-timeout", engine.DefaultCallTimeout, "Timeout for a single provider or store call")
	flag.DurationVar(&cfg.VersionPollInterval, "version-poll-interval", 30*time.Second, "Interval for polling the rule source version")
	flag.Parse()

	// Set up structured logging
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("Starting alert evaluation engine",
		"postgres_dsn", shared.MaskDSN(cfg.PostgresDSN),
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"rule_source", cfg.RuleSource,
		"rules_file", cfg.RulesFile,
		"tick_interval", cfg.TickInterval,
		"cooldown", cfg.Cooldown,
		"resolve_after", cfg.ResolveAfter,
		"workers", cfg.Workers,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Connect PostgreSQL (series provider + alert store share one pool)
	db, err := shared.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect Redis when configured
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = shared.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		slog.Info("Successfully connected to Redis")
	}

	// Select the rule catalog source
	var source rules.Source
	if cfg.RuleSource == config.RuleSourceRedis {
		source = rules.NewRedisSource(redisClient)
	} else {
		source = rules.NewFileSource(cfg.RulesFile)
	}

	catalog, err := source.Load(ctx)
	if err != nil {
		slog.Error("Failed to load rule catalog", "error", err)
		os.Exit(1)
	}
	holder := rules.NewHolder(catalog)
	slog.Info("Rule catalog loaded", "rules_count", catalog.Len())

	// Hot-reload the catalog when the source version changes
	reloader := rules.NewReloader(source, holder, cfg.VersionPollInterval)
	if err := reloader.Start(ctx); err != nil {
		slog.Error("Failed to start rule reloader", "error", err)
		os.Exit(1)
	}

	// Optional Kafka fan-out for alert record changes
	var changeNotifier engine.Notifier
	if cfg.KafkaBrokers != "" {
		producer, err := notifier.NewProducer(cfg.KafkaBrokers, cfg.AlertsChangedTopic)
		if err != nil {
			slog.Error("Failed to create alert change producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		changeNotifier = producer
	}

	// Optional Redis-backed metrics
	var engineMetrics engine.MetricsRecorder
	var collector *metrics.Collector
	if redisClient != nil {
		collector = metrics.NewCollector("alert-engine", redisClient)
		collector.Start(ctx)
		defer collector.Stop()
		engineMetrics = collector
	}

	store := alerts.NewPostgresStore(db)
	provider := series.NewPostgresProvider(db)
	manager := lifecycle.NewManager(store, cfg.Cooldown, cfg.ResolveAfter)

	eng := engine.NewEngine(provider, manager, engine.Options{
		Workers:     cfg.Workers,
		CallTimeout: cfg.CallTimeout,
		Notifier:    changeNotifier,
		Metrics:     engineMetrics,
	})

	entities := cfg.EntityCodes()
	slog.Info("Tracking entities", "count", len(entities))

	// Run evaluation ticks on the configured cadence
	run := func(ctx context.Context) {
		start := time.Now()
		eng.RunTick(ctx, holder.Current(), entities)
		if collector != nil {
			collector.RecordTick(time.Since(start))
		}
	}

	sched := scheduler.New(cfg.TickInterval, run)
	if err := sched.Run(ctx); err != nil {
		slog.Error("Scheduler failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Alert evaluation engine stopped")
}
