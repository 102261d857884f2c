package tap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tap-prometheus/internal/adapters/config"
	"tap-prometheus/internal/catalog"
	"tap-prometheus/internal/singer"
	"tap-prometheus/pkg/logger"
	"tap-prometheus/pkg/models"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error", ""); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// memorySink records every sink call in order.
type memorySink struct {
	schemas []string
	records []map[string]any
	states  []string

	failWrites bool
}

func (m *memorySink) WriteSchema(_ context.Context, stream string, _ any, _ []string) error {
	if m.failWrites {
		return fmt.Errorf("sink unavailable")
	}
	m.schemas = append(m.schemas, stream)
	return nil
}

func (m *memorySink) WriteRecord(_ context.Context, _ string, record map[string]any, _ time.Time) error {
	if m.failWrites {
		return fmt.Errorf("sink unavailable")
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memorySink) WriteState(_ context.Context, state *singer.State) error {
	if m.failWrites {
		return fmt.Errorf("sink unavailable")
	}
	if value, ok := state.GetBookmark("cpu", "start_date"); ok {
		m.states = append(m.states, value)
	} else {
		m.states = append(m.states, "")
	}
	return nil
}

// fakeQuerier serves constant-valued samples, with optional per-window
// overrides.
type fakeQuerier struct {
	value   float64
	queries int

	emptyAt map[int64]bool // window starts (epoch) with no series
	failAt  map[int64]bool // window starts (epoch) that fail
}

func (f *fakeQuerier) RangeQuery(_ context.Context, _ string, start, end time.Time, step time.Duration) ([]models.Sample, error) {
	f.queries++
	if f.emptyAt[start.Unix()] {
		return nil, models.ErrEmptySeries
	}
	if f.failAt[start.Unix()] {
		return nil, fmt.Errorf("connection refused")
	}

	var samples []models.Sample
	for ts := start; ts.Before(end); ts = ts.Add(step) {
		samples = append(samples, models.Sample{
			Timestamp: ts,
			Value:     decimal.NewFromFloat(f.value),
		})
	}
	return samples, nil
}

func testConfig(metrics ...config.MetricConfig) *config.Config {
	if len(metrics) == 0 {
		metrics = []config.MetricConfig{
			{Name: "cpu", Query: "cpu_usage", Aggregation: "avg", Period: "day", Step: 60},
		}
	}
	return &config.Config{
		Endpoint:  "http://localhost:9090",
		StartDate: "2024-01-01T00:00:00Z",
		Metrics:   metrics,
		Runtime:   config.RuntimeConfig{StateFlushRecords: 100},
	}
}

func newTestSyncer(cfg *config.Config, querier Querier, sink singer.Sink, state *singer.State, now time.Time) *Syncer {
	s := NewSyncer(cfg, querier, sink, catalog.Default(), state)
	s.now = func() time.Time { return now }
	return s
}

func TestSyncer_Run(t *testing.T) {
	utc := func(day int) time.Time {
		return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
	}

	t.Run("emits one record per elapsed day", func(t *testing.T) {
		sink := &memorySink{}
		state := singer.NewState()
		syncer := newTestSyncer(testConfig(), &fakeQuerier{value: 10.0}, sink, state, utc(4))

		if err := syncer.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if len(sink.schemas) != 1 || sink.schemas[0] != "aggregated_metric_history" {
			t.Errorf("Expected one schema for aggregated_metric_history, got %v", sink.schemas)
		}
		if len(sink.records) != 3 {
			t.Fatalf("Expected 3 records, got %d", len(sink.records))
		}

		for i, record := range sink.records {
			expectedDate := utc(1 + i).Format(models.DateFormat)
			if record["date"] != expectedDate {
				t.Errorf("Record %d: expected date %s, got %v", i, expectedDate, record["date"])
			}
			if record["metric"] != "cpu" {
				t.Errorf("Record %d: expected metric cpu, got %v", i, record["metric"])
			}
			if record["aggregation"] != "avg" {
				t.Errorf("Record %d: expected aggregation avg, got %v", i, record["aggregation"])
			}
			if record["value"] != 10.0 {
				t.Errorf("Record %d: expected value 10.0, got %v", i, record["value"])
			}
		}

		// Final checkpoint must be the end of the last window.
		bookmark, ok := state.GetBookmark("cpu", "start_date")
		if !ok {
			t.Fatal("Expected a bookmark for cpu")
		}
		if bookmark != "2024-01-04T00:00:00Z" {
			t.Errorf("Expected final checkpoint 2024-01-04T00:00:00Z, got %s", bookmark)
		}

		if syncer.Counts()["cpu"] != 3 {
			t.Errorf("Expected new count 3, got %d", syncer.Counts()["cpu"])
		}
	})

	t.Run("re-run with the resulting state emits nothing", func(t *testing.T) {
		sink := &memorySink{}
		state := singer.NewState()
		now := utc(4)

		syncer := newTestSyncer(testConfig(), &fakeQuerier{value: 10.0}, sink, state, now)
		if err := syncer.Run(context.Background()); err != nil {
			t.Fatalf("First run failed: %v", err)
		}
		emitted := len(sink.records)

		again := newTestSyncer(testConfig(), &fakeQuerier{value: 10.0}, sink, state, now)
		if err := again.Run(context.Background()); err != nil {
			t.Fatalf("Second run failed: %v", err)
		}

		if len(sink.records) != emitted {
			t.Errorf("Expected no additional records, got %d more", len(sink.records)-emitted)
		}
	})

	t.Run("interrupted and resumed runs cover the same windows once", func(t *testing.T) {
		state := singer.NewState()
		firstSink := &memorySink{}
		secondSink := &memorySink{}

		first := newTestSyncer(testConfig(), &fakeQuerier{value: 1}, firstSink, state, utc(3))
		if err := first.Run(context.Background()); err != nil {
			t.Fatalf("First run failed: %v", err)
		}
		second := newTestSyncer(testConfig(), &fakeQuerier{value: 1}, secondSink, state, utc(6))
		if err := second.Run(context.Background()); err != nil {
			t.Fatalf("Second run failed: %v", err)
		}

		var resumed []any
		for _, r := range append(firstSink.records, secondSink.records...) {
			resumed = append(resumed, r["date"])
		}

		uninterruptedSink := &memorySink{}
		uninterrupted := newTestSyncer(testConfig(), &fakeQuerier{value: 1}, uninterruptedSink, singer.NewState(), utc(6))
		if err := uninterrupted.Run(context.Background()); err != nil {
			t.Fatalf("Uninterrupted run failed: %v", err)
		}

		if len(resumed) != len(uninterruptedSink.records) {
			t.Fatalf("Expected %d records across resumed runs, got %d", len(uninterruptedSink.records), len(resumed))
		}
		for i, record := range uninterruptedSink.records {
			if resumed[i] != record["date"] {
				t.Errorf("Record %d: expected date %v, got %v", i, record["date"], resumed[i])
			}
		}
	})

	t.Run("persists state every 100 records and at loop end", func(t *testing.T) {
		sink := &memorySink{}
		syncer := newTestSyncer(testConfig(), &fakeQuerier{value: 1}, sink, singer.NewState(), utc(1).AddDate(0, 0, 250))

		if err := syncer.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if len(sink.records) != 250 {
			t.Fatalf("Expected 250 records, got %d", len(sink.records))
		}
		if len(sink.states) != 3 {
			t.Errorf("Expected exactly 3 state writes, got %d", len(sink.states))
		}
	})

	t.Run("skips windows with no series and keeps advancing", func(t *testing.T) {
		sink := &memorySink{}
		state := singer.NewState()
		querier := &fakeQuerier{
			value:   5,
			emptyAt: map[int64]bool{utc(2).Unix(): true},
		}
		syncer := newTestSyncer(testConfig(), querier, sink, state, utc(4))

		if err := syncer.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if len(sink.records) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(sink.records))
		}
		if sink.records[0]["date"] != "2024-01-01T00:00:00Z" || sink.records[1]["date"] != "2024-01-03T00:00:00Z" {
			t.Errorf("Unexpected record dates: %v, %v", sink.records[0]["date"], sink.records[1]["date"])
		}

		bookmark, _ := state.GetBookmark("cpu", "start_date")
		if bookmark != "2024-01-04T00:00:00Z" {
			t.Errorf("Expected checkpoint 2024-01-04T00:00:00Z, got %s", bookmark)
		}
	})

	t.Run("aborts on upstream failure without persisting past progress boundary", func(t *testing.T) {
		sink := &memorySink{}
		querier := &fakeQuerier{
			value:  5,
			failAt: map[int64]bool{utc(2).Unix(): true},
		}
		syncer := newTestSyncer(testConfig(), querier, sink, singer.NewState(), utc(4))

		err := syncer.Run(context.Background())
		if err == nil {
			t.Fatal("Expected run to fail")
		}

		if len(sink.records) != 1 {
			t.Errorf("Expected 1 record before the failure, got %d", len(sink.records))
		}
		if len(sink.states) != 0 {
			t.Errorf("Expected no state writes before the failure, got %d", len(sink.states))
		}
	})

	t.Run("unsupported period aborts before any record", func(t *testing.T) {
		cfg := testConfig(config.MetricConfig{
			Name: "cpu", Query: "cpu_usage", Aggregation: "avg", Period: "hour", Step: 60,
		})
		sink := &memorySink{}
		syncer := newTestSyncer(cfg, &fakeQuerier{value: 1}, sink, singer.NewState(), utc(4))

		err := syncer.Run(context.Background())
		if !errors.Is(err, models.ErrUnsupportedPeriod) {
			t.Fatalf("Expected ErrUnsupportedPeriod, got %v", err)
		}
		if len(sink.records) != 0 {
			t.Errorf("Expected no records, got %d", len(sink.records))
		}
	})

	t.Run("processes metrics sequentially in configured order", func(t *testing.T) {
		cfg := testConfig(
			config.MetricConfig{Name: "cpu", Query: "cpu_usage", Aggregation: "avg", Period: "day", Step: 60},
			config.MetricConfig{Name: "mem", Query: "mem_usage", Aggregation: "max", Period: "day", Step: 60},
		)
		sink := &memorySink{}
		syncer := newTestSyncer(cfg, &fakeQuerier{value: 1}, sink, singer.NewState(), utc(3))

		if err := syncer.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if len(sink.records) != 4 {
			t.Fatalf("Expected 4 records, got %d", len(sink.records))
		}
		expected := []string{"cpu", "cpu", "mem", "mem"}
		for i, record := range sink.records {
			if record["metric"] != expected[i] {
				t.Errorf("Record %d: expected metric %s, got %v", i, expected[i], record["metric"])
			}
		}
	})

	t.Run("deselected stream syncs nothing", func(t *testing.T) {
		selected := false
		cat := catalog.Default()
		cat.Streams[0].Metadata = []catalog.Metadata{
			{Breadcrumb: []string{}, Metadata: catalog.StreamMetadata{Selected: &selected}},
		}

		sink := &memorySink{}
		syncer := NewSyncer(testConfig(), &fakeQuerier{value: 1}, sink, cat, singer.NewState())
		syncer.now = func() time.Time { return utc(4) }

		if err := syncer.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(sink.schemas) != 0 || len(sink.records) != 0 {
			t.Errorf("Expected no output for deselected stream, got %d schemas, %d records", len(sink.schemas), len(sink.records))
		}
	})

	t.Run("sink failure aborts the run", func(t *testing.T) {
		sink := &memorySink{failWrites: true}
		syncer := newTestSyncer(testConfig(), &fakeQuerier{value: 1}, sink, singer.NewState(), utc(4))

		if err := syncer.Run(context.Background()); err == nil {
			t.Fatal("Expected run to fail on sink error")
		}
	})
}
