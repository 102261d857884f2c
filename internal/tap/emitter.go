package tap

import (
	"context"
	"fmt"
	"time"

	"tap-prometheus/internal/catalog"
	"tap-prometheus/internal/singer"
	"tap-prometheus/pkg/models"
)

// Emitter shapes aggregated values into the stream's declared schema and
// forwards them to the sink. The stream is append-only: previously emitted
// records are never mutated or deleted.
type Emitter struct {
	sink  singer.Sink
	entry *catalog.Entry
	run   *RunContext
}

// NewEmitter creates an emitter for one catalog stream.
func NewEmitter(sink singer.Sink, entry *catalog.Entry, run *RunContext) *Emitter {
	return &Emitter{
		sink:  sink,
		entry: entry,
		run:   run,
	}
}

// Emit writes one aggregated record, coerced to the stream schema, with the
// extraction time as a side channel for downstream latency tracking. On
// success the metric's new-record counter is incremented.
func (e *Emitter) Emit(ctx context.Context, rec models.AggregatedRecord, extractedAt time.Time) error {
	record := map[string]any{
		"date":        e.shapeDate(rec.Date),
		"metric":      rec.Metric,
		"aggregation": string(rec.Aggregation),
		"value":       rec.Value.InexactFloat64(),
	}

	if err := e.sink.WriteRecord(ctx, e.entry.TapStreamID, record, extractedAt); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	e.run.NewCounts[rec.Metric]++

	return nil
}

// shapeDate coerces the window start to the type the schema declares:
// a calendar date-time string, or raw epoch seconds otherwise.
func (e *Emitter) shapeDate(date time.Time) any {
	if prop, ok := e.entry.Schema.Properties["date"]; ok && prop.Format == "date-time" {
		return date.UTC().Format(models.DateFormat)
	}
	return date.UTC().Unix()
}
