package models

import "errors"

var (
	// ErrUnsupportedPeriod is returned for a period granularity outside the
	// recognized set. Fatal: aborts the run before any record is emitted.
	ErrUnsupportedPeriod = errors.New("period is not supported")

	// ErrUnsupportedAggregation is returned for an unknown aggregation method.
	ErrUnsupportedAggregation = errors.New("aggregation method not implemented")

	// ErrEmptySeries is returned when the source has no series for a query
	// over a window. The sync loop skips the window and keeps advancing.
	ErrEmptySeries = errors.New("query returned no series")

	// ErrNoSamples is returned when a window's series contains no points, so
	// no aggregate can be computed.
	ErrNoSamples = errors.New("cannot aggregate empty sample series")
)
