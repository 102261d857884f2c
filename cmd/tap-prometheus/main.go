package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"tap-prometheus/internal/adapters/clickhouse"
	"tap-prometheus/internal/adapters/config"
	"tap-prometheus/internal/adapters/prometheus"
	"tap-prometheus/internal/adapters/telegram"
	"tap-prometheus/internal/catalog"
	"tap-prometheus/internal/singer"
	"tap-prometheus/internal/tap"
	"tap-prometheus/pkg/logger"
	"tap-prometheus/pkg/worker"
)

var (
	configPath  = flag.String("config", "", "path to the tap config JSON file")
	statePath   = flag.String("state", "", "path to a previously emitted state file")
	catalogPath = flag.String("catalog", "", "path to a catalog file (defaults to the built-in catalog)")
	discover    = flag.Bool("discover", false, "print the catalog to stdout and exit")
)

func main() {
	flag.Parse()

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "received interrupt signal, shutting down...")
		cancel()
	}()

	// Run tap
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if *discover && *configPath == "" {
		// Discovery needs no source connection.
		return catalog.Default().WriteTo(os.Stdout)
	}

	if *configPath == "" {
		return fmt.Errorf("--config is required")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Runtime.LogLevel, cfg.Runtime.LogFile); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	if *discover {
		return catalog.Default().WriteTo(os.Stdout)
	}

	// Resolve catalog
	cat := catalog.Default()
	if *catalogPath != "" {
		cat, err = catalog.Load(*catalogPath)
		if err != nil {
			return err
		}
	}

	// Load prior state
	state, err := singer.LoadState(*statePath)
	if err != nil {
		return err
	}

	// Initialize source client
	querier, err := prometheus.NewClient(cfg.Endpoint, cfg.Runtime.HTTPTimeout)
	if err != nil {
		return err
	}

	// Initialize sink
	sink, cleanup, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Optional run notifications
	var notifier *telegram.Notifier
	if cfg.Runtime.Telegram.BotToken != "" {
		notifier, err = telegram.NewNotifier(&cfg.Runtime.Telegram)
		if err != nil {
			logger.Error("failed to create telegram notifier", zap.Error(err))
		}
	}

	syncer := tap.NewSyncer(cfg, querier, sink, cat, state)

	logger.Info("tap starting",
		zap.String("endpoint", cfg.Endpoint),
		zap.Int("metrics", len(cfg.Metrics)),
		zap.String("sink", cfg.Runtime.Sink),
	)

	job := &syncJob{syncer: syncer, notifier: notifier}

	// Daemon mode: keep extracting on a fixed interval until interrupted.
	if cfg.Runtime.RunInterval > 0 {
		pw := worker.NewPeriodicWorker(job, cfg.Runtime.RunInterval)
		pw.Start(ctx)
		<-ctx.Done()
		pw.Stop(30 * time.Second)
		return nil
	}

	return job.Run(ctx)
}

// buildSink selects the configured sink implementation.
func buildSink(cfg *config.Config) (singer.Sink, func(), error) {
	switch cfg.Runtime.Sink {
	case "clickhouse":
		chSink, err := clickhouse.NewSink(&cfg.Runtime.ClickHouse)
		if err != nil {
			return nil, nil, err
		}
		return chSink, func() {
			if err := chSink.Close(); err != nil {
				logger.Error("failed to close clickhouse sink", zap.Error(err))
			}
		}, nil
	default:
		return singer.NewMessageWriter(os.Stdout), func() {}, nil
	}
}

// syncJob runs one sync pass and reports the outcome.
type syncJob struct {
	syncer   *tap.Syncer
	notifier *telegram.Notifier
}

func (j *syncJob) Name() string {
	return j.syncer.Name()
}

func (j *syncJob) Run(ctx context.Context) error {
	start := time.Now()

	if err := j.syncer.Run(ctx); err != nil {
		if j.notifier != nil {
			j.notifier.NotifyFailure(err)
		}
		return err
	}

	if j.notifier != nil {
		j.notifier.NotifyRunSummary(j.syncer.Counts(), time.Since(start))
	}
	return nil
}
