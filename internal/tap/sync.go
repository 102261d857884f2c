package tap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tap-prometheus/internal/adapters/config"
	"tap-prometheus/internal/catalog"
	"tap-prometheus/internal/singer"
	"tap-prometheus/pkg/logger"
	"tap-prometheus/pkg/models"
)

// Querier fetches raw samples for one window from the metrics source.
type Querier interface {
	RangeQuery(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]models.Sample, error)
}

// Syncer drives the full extraction: for each configured metric, in order, it
// walks the elapsed windows from the metric's checkpoint, aggregates each
// window and emits one record per window. Metrics and windows are processed
// strictly sequentially; the checkpoint invariant depends on this ordering.
type Syncer struct {
	cfg         *config.Config
	querier     Querier
	sink        singer.Sink
	catalog     *catalog.Catalog
	run         *RunContext
	checkpoints *Checkpoints

	now func() time.Time
}

// NewSyncer wires the sync pipeline around a loaded state.
func NewSyncer(cfg *config.Config, querier Querier, sink singer.Sink, cat *catalog.Catalog, state *singer.State) *Syncer {
	return &Syncer{
		cfg:         cfg,
		querier:     querier,
		sink:        sink,
		catalog:     cat,
		run:         NewRunContext(state),
		checkpoints: NewCheckpoints(state, sink, cfg.Runtime.StateFlushRecords),
		now:         time.Now,
	}
}

// Counts returns the per-metric new-record counts of the last run.
func (s *Syncer) Counts() map[string]int {
	return s.run.NewCounts
}

// Name identifies the syncer when run as a periodic worker.
func (s *Syncer) Name() string {
	return "metrics_sync"
}

// Run executes one full sync pass. Any failure aborts the pass and is
// returned to the caller; partial progress up to the last persisted state
// survives and the next run resumes from it.
func (s *Syncer) Run(ctx context.Context) error {
	specs, err := s.cfg.Specs()
	if err != nil {
		return err
	}

	entry, ok := s.catalog.Entry(catalog.StreamAggregatedMetricHistory)
	if !ok {
		return fmt.Errorf("catalog has no %s stream", catalog.StreamAggregatedMetricHistory)
	}
	if !entry.IsSelected() {
		logger.Info("stream not selected, nothing to sync",
			zap.String("stream", entry.TapStreamID),
		)
		return nil
	}

	// Declare the schema before any record and zero the run counters.
	if err := s.sink.WriteSchema(ctx, entry.TapStreamID, entry.Schema, entry.KeyProperties); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	s.run.ResetCounters(names)

	for _, spec := range specs {
		if err := s.syncMetric(ctx, entry, spec); err != nil {
			return fmt.Errorf("metric %q: %w", spec.Name, err)
		}
	}

	s.run.ReportCounts()

	return nil
}

// syncMetric processes every fully elapsed window for one metric.
func (s *Syncer) syncMetric(ctx context.Context, entry *catalog.Entry, spec models.MetricSpec) error {
	checkpoint, err := s.checkpoints.Resolve(spec.Name, s.cfg.StartTime())
	if err != nil {
		return err
	}

	// "now" is captured fresh per metric so a long-running predecessor does
	// not shrink this metric's window bound.
	extractedAt := s.now().UTC()

	windows, err := Windows(checkpoint, spec.Period, extractedAt)
	if err != nil {
		return err
	}

	logger.Info("loading metric",
		zap.String("metric", spec.Name),
		zap.String("query", spec.Query),
		zap.String("aggregation", string(spec.Aggregation)),
		zap.String("period", string(spec.Period)),
		zap.Int("step_seconds", spec.Step),
		zap.Time("checkpoint", checkpoint),
		zap.Int("windows", len(windows)),
	)

	emitter := NewEmitter(s.sink, entry, s.run)
	step := time.Duration(spec.Step) * time.Second

	for _, window := range windows {
		samples, err := s.querier.RangeQuery(ctx, spec.Query, window.Start, window.End, step)
		if errors.Is(err, models.ErrEmptySeries) {
			// The source has no data for this window. Skip it and keep the
			// checkpoint moving so the run never wedges on a gap.
			logger.Warn("no series for window, skipping",
				zap.String("metric", spec.Name),
				zap.Time("window_start", window.Start),
			)
			s.checkpoints.Advance(spec.Name, window.End)
			continue
		}
		if err != nil {
			return fmt.Errorf("window %s: %w", window.Start.UTC().Format(models.DateFormat), err)
		}

		value, err := Aggregate(spec.Aggregation, samples)
		if err != nil {
			return fmt.Errorf("window %s: %w", window.Start.UTC().Format(models.DateFormat), err)
		}

		rec := models.AggregatedRecord{
			Date:        window.Start,
			Metric:      spec.Name,
			Aggregation: spec.Aggregation,
			Value:       value,
		}

		// Emit first, then advance: the checkpoint must never run ahead of
		// what the sink has accepted.
		if err := emitter.Emit(ctx, rec, extractedAt); err != nil {
			return err
		}
		s.checkpoints.Advance(spec.Name, window.End)

		if err := s.checkpoints.MaybePersist(ctx, s.run.NewCounts[spec.Name]); err != nil {
			return err
		}
	}

	// Final persist when the metric's window loop terminates.
	return s.checkpoints.Persist(ctx)
}
