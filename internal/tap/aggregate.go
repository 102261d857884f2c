package tap

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tap-prometheus/pkg/models"
)

// Aggregate reduces a window's samples to a single value. Pure: no side
// effects, deterministic for a given input. An empty series is rejected up
// front rather than producing a silent zero.
func Aggregate(method models.Aggregation, samples []models.Sample) (decimal.Decimal, error) {
	if len(samples) == 0 {
		return decimal.Decimal{}, models.ErrNoSamples
	}

	switch method {
	case models.AggregationMin:
		result := samples[0].Value
		for _, s := range samples[1:] {
			if s.Value.LessThan(result) {
				result = s.Value
			}
		}
		return result, nil

	case models.AggregationMax:
		result := samples[0].Value
		for _, s := range samples[1:] {
			if s.Value.GreaterThan(result) {
				result = s.Value
			}
		}
		return result, nil

	case models.AggregationAvg:
		sum := decimal.Zero
		for _, s := range samples {
			sum = sum.Add(s.Value)
		}
		return sum.Div(decimal.NewFromInt(int64(len(samples)))), nil
	}

	return decimal.Decimal{}, fmt.Errorf("%w: %q", models.ErrUnsupportedAggregation, method)
}
