package tap

import (
	"time"

	"tap-prometheus/pkg/models"
)

// Windows returns the ordered sequence of fully elapsed windows between the
// checkpoint and now: contiguous intervals of the period's length starting at
// checkpoint, while start+period <= now. A window whose end would fall past
// now is never produced, so the source is never queried for a range it may
// still be filling in.
func Windows(checkpoint time.Time, period models.Period, now time.Time) ([]models.Window, error) {
	length, err := period.Duration()
	if err != nil {
		return nil, err
	}

	var windows []models.Window
	for start := checkpoint; !start.Add(length).After(now); start = start.Add(length) {
		windows = append(windows, models.Window{
			Start: start,
			End:   start.Add(length),
		})
	}

	return windows, nil
}
