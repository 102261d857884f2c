package tap

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"tap-prometheus/internal/singer"
	"tap-prometheus/pkg/logger"
)

// RunContext is the single mutable object threaded through a sync run: the
// in-memory state and the per-metric record counters. Reset at run start,
// mutated only from the sync loop's goroutine.
type RunContext struct {
	State         *singer.State
	NewCounts     map[string]int
	UpdatedCounts map[string]int
	TapStart      time.Time
}

// NewRunContext creates a run context around previously loaded state.
func NewRunContext(state *singer.State) *RunContext {
	return &RunContext{
		State:         state,
		NewCounts:     make(map[string]int),
		UpdatedCounts: make(map[string]int),
		TapStart:      time.Now().UTC(),
	}
}

// ResetCounters zeroes the counters for the given metric names.
func (rc *RunContext) ResetCounters(names []string) {
	for _, name := range names {
		rc.NewCounts[name] = 0
		rc.UpdatedCounts[name] = 0
	}
}

// ReportCounts logs the per-metric record counts at end of run.
func (rc *RunContext) ReportCounts() {
	names := make([]string, 0, len(rc.NewCounts))
	for name := range rc.NewCounts {
		names = append(names, name)
	}
	sort.Strings(names)

	logger.Info("------------------")
	for _, name := range names {
		logger.Info("sync counts",
			zap.String("metric", name),
			zap.Int("new", rc.NewCounts[name]),
			zap.Int("updates", rc.UpdatedCounts[name]),
		)
	}
	logger.Info("------------------")
}
