package tap

import (
	"context"
	"fmt"
	"time"

	"tap-prometheus/internal/singer"
	"tap-prometheus/pkg/models"
)

// bookmarkKey is the state key holding a metric's checkpoint.
const bookmarkKey = "start_date"

// Checkpoints tracks per-metric progress and persists it at a bounded
// cadence. A checkpoint value of T means everything through window [·, T) has
// been fully emitted; resuming derives the next window as starting at T, so
// there are neither gaps nor duplicate emissions.
type Checkpoints struct {
	state      *singer.State
	sink       singer.Sink
	flushEvery int
}

// NewCheckpoints creates a checkpoint manager that persists state after every
// flushEvery emitted records per metric, and on demand at loop completion.
func NewCheckpoints(state *singer.State, sink singer.Sink, flushEvery int) *Checkpoints {
	return &Checkpoints{
		state:      state,
		sink:       sink,
		flushEvery: flushEvery,
	}
}

// Resolve returns the metric's persisted checkpoint, or fallback when none
// has been persisted yet.
func (c *Checkpoints) Resolve(metric string, fallback time.Time) (time.Time, error) {
	raw, ok := c.state.GetBookmark(metric, bookmarkKey)
	if !ok {
		return fallback, nil
	}

	t, err := time.Parse(models.DateFormat, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("metric %q: invalid bookmark %q: %w", metric, raw, err)
	}
	return t, nil
}

// Advance moves the metric's in-memory checkpoint to the end boundary of the
// window just processed. Called only after the window's record is emitted.
func (c *Checkpoints) Advance(metric string, windowEnd time.Time) {
	c.state.SetBookmark(metric, bookmarkKey, windowEnd.UTC().Format(models.DateFormat))
}

// MaybePersist persists the state when the metric's emitted-record count has
// reached a flush boundary. Bounds loss on abrupt termination to at most
// flushEvery unpersisted records without paying a persist per record.
func (c *Checkpoints) MaybePersist(ctx context.Context, emitted int) error {
	if emitted > 0 && emitted%c.flushEvery == 0 {
		return c.Persist(ctx)
	}
	return nil
}

// Persist writes the full current state to the sink.
func (c *Checkpoints) Persist(ctx context.Context) error {
	if err := c.sink.WriteState(ctx, c.state); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}
