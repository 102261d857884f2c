package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the bookmark and record timestamp format. The trailing Z is
// literal: all times handled by the tap are UTC.
const DateFormat = "2006-01-02T15:04:05Z"

// Aggregation is the reduction applied to a window's samples.
type Aggregation string

const (
	AggregationMin Aggregation = "min"
	AggregationMax Aggregation = "max"
	AggregationAvg Aggregation = "avg"
)

// ParseAggregation validates a configured aggregation method.
func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(s) {
	case AggregationMin, AggregationMax, AggregationAvg:
		return Aggregation(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedAggregation, s)
}

// Period is the window granularity.
type Period string

const (
	PeriodDay Period = "day"
)

// ParsePeriod validates a configured period granularity.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDay:
		return Period(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPeriod, s)
}

// Duration returns the fixed window length for the period.
func (p Period) Duration() (time.Duration, error) {
	switch p {
	case PeriodDay:
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedPeriod, p)
}

// MetricSpec is one configured metric: a named query with its aggregation,
// window granularity and requested sample resolution. Immutable for the run.
type MetricSpec struct {
	Name        string
	Query       string
	Aggregation Aggregation
	Period      Period
	Step        int // sample resolution in seconds
}

// Window is a half-open interval [Start, End) over which samples are
// aggregated into a single record.
type Window struct {
	Start time.Time
	End   time.Time
}

// Sample is one raw point returned by the range query.
type Sample struct {
	Timestamp time.Time
	Value     decimal.Decimal
}

// AggregatedRecord is the output unit: one aggregated value per window.
// The (Date, Metric, Aggregation) triple is unique across the stream.
type AggregatedRecord struct {
	Date        time.Time
	Metric      string
	Aggregation Aggregation
	Value       decimal.Decimal
}
