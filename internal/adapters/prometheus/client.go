package prometheus

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tap-prometheus/pkg/logger"
	"tap-prometheus/pkg/models"
)

// Client wraps the Prometheus HTTP API for range queries.
type Client struct {
	api     v1.API
	timeout time.Duration
}

// NewClient creates a Prometheus API client for the configured endpoint.
func NewClient(endpoint string, timeout time.Duration) (*Client, error) {
	c, err := api.NewClient(api.Config{Address: endpoint})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	return &Client{
		api:     v1.NewAPI(c),
		timeout: timeout,
	}, nil
}

// RangeQuery fetches raw samples for one window [start, end] at the requested
// step resolution. Upstream failures are propagated, not retried: retry is the
// caller's restart-and-resume concern. A result with zero series yields
// models.ErrEmptySeries.
func (c *Client) RangeQuery(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]models.Sample, error) {
	queryCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	value, warnings, err := c.api.QueryRange(queryCtx, query, v1.Range{
		Start: start,
		End:   end,
		Step:  step,
	})
	if err != nil {
		return nil, fmt.Errorf("range query failed: %w", err)
	}
	for _, warning := range warnings {
		logger.Warn("range query warning",
			zap.String("query", query),
			zap.String("warning", warning),
		)
	}

	matrix, ok := value.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected range query result type %q", value.Type())
	}
	if matrix.Len() == 0 {
		return nil, models.ErrEmptySeries
	}

	// Queries are expected to yield a single series; only the first is used.
	series := matrix[0]
	samples := make([]models.Sample, 0, len(series.Values))
	for _, pair := range series.Values {
		samples = append(samples, models.Sample{
			Timestamp: pair.Timestamp.Time(),
			Value:     decimal.NewFromFloat(float64(pair.Value)),
		})
	}

	return samples, nil
}
