package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"tap-prometheus/internal/adapters/config"
	"tap-prometheus/internal/singer"
	"tap-prometheus/pkg/logger"
	"tap-prometheus/pkg/models"
)

// Sink writes records and state snapshots directly to ClickHouse instead of
// the stdout message stream: the same protocol, a different transport.
// Records land in aggregated_metric_history, state snapshots are appended to
// tap_state (latest row wins on recovery).
type Sink struct {
	db *sqlx.DB
}

// NewSink connects to ClickHouse and prepares the sink tables.
func NewSink(cfg *config.ClickHouseConfig) (*Sink, error) {
	db, err := sqlx.Connect("clickhouse", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	// Set connection pool parameters
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("clickhouse sink connected")

	return &Sink{db: db}, nil
}

// WriteSchema materializes the stream's schema as sink tables.
func (s *Sink) WriteSchema(ctx context.Context, stream string, _ any, _ []string) error {
	if stream != "aggregated_metric_history" {
		return fmt.Errorf("unknown stream %q", stream)
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS aggregated_metric_history (
			date DateTime,
			metric String,
			aggregation String,
			value Float64,
			time_extracted DateTime
		) ENGINE = MergeTree()
		ORDER BY (date, metric, aggregation)`,
		`CREATE TABLE IF NOT EXISTS tap_state (
			updated_at DateTime,
			state String
		) ENGINE = MergeTree()
		ORDER BY updated_at`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create sink table: %w", err)
		}
	}

	return nil
}

// WriteRecord inserts one aggregated record.
func (s *Sink) WriteRecord(ctx context.Context, stream string, record map[string]any, timeExtracted time.Time) error {
	if stream != "aggregated_metric_history" {
		return fmt.Errorf("unknown stream %q", stream)
	}

	date, err := recordDate(record)
	if err != nil {
		return err
	}
	metric, _ := record["metric"].(string)
	aggregation, _ := record["aggregation"].(string)
	value, ok := record["value"].(float64)
	if metric == "" || aggregation == "" || !ok {
		return fmt.Errorf("record is missing key fields")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO aggregated_metric_history
		(date, metric, aggregation, value, time_extracted)
		VALUES (?, ?, ?, ?, ?)
	`,
		date,
		metric,
		aggregation,
		value,
		timeExtracted.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	logger.Debug("record written to clickhouse",
		zap.String("metric", metric),
		zap.Time("date", date),
	)

	return nil
}

// WriteState appends the full state snapshot.
func (s *Sink) WriteState(ctx context.Context, state *singer.State) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tap_state (updated_at, state) VALUES (?, ?)
	`,
		time.Now().UTC(),
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("failed to insert state: %w", err)
	}

	return nil
}

// Close closes the clickhouse connection.
func (s *Sink) Close() error {
	if s.db != nil {
		logger.Info("closing clickhouse sink")
		return s.db.Close()
	}
	return nil
}

// recordDate accepts the two shapes the emitter produces for the date field.
func recordDate(record map[string]any) (time.Time, error) {
	switch v := record["date"].(type) {
	case string:
		t, err := time.Parse(models.DateFormat, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("record has invalid date %q: %w", v, err)
		}
		return t, nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("record has no date field")
}
