package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"tap-prometheus/pkg/models"
)

// MetricConfig is one metric definition from the config file.
type MetricConfig struct {
	Name        string `json:"name"`
	Query       string `json:"query"`
	Aggregation string `json:"aggregation"`
	Period      string `json:"period"`
	Step        int    `json:"step"`
}

// Spec parses the raw metric definition into a validated MetricSpec.
func (m *MetricConfig) Spec() (models.MetricSpec, error) {
	if m.Name == "" {
		return models.MetricSpec{}, fmt.Errorf("metric name is required")
	}
	if m.Query == "" {
		return models.MetricSpec{}, fmt.Errorf("metric %q: query is required", m.Name)
	}
	if m.Step <= 0 {
		return models.MetricSpec{}, fmt.Errorf("metric %q: step must be positive", m.Name)
	}

	aggregation, err := models.ParseAggregation(m.Aggregation)
	if err != nil {
		return models.MetricSpec{}, fmt.Errorf("metric %q: %w", m.Name, err)
	}
	period, err := models.ParsePeriod(m.Period)
	if err != nil {
		return models.MetricSpec{}, fmt.Errorf("metric %q: %w", m.Name, err)
	}

	return models.MetricSpec{
		Name:        m.Name,
		Query:       m.Query,
		Aggregation: aggregation,
		Period:      period,
		Step:        m.Step,
	}, nil
}

// ClickHouseConfig holds connection parameters for the ClickHouse sink.
type ClickHouseConfig struct {
	DSN string `envconfig:"CLICKHOUSE_DSN" required:"false"`
}

// TelegramConfig holds parameters for run-summary notifications.
type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
}

// RuntimeConfig holds runtime knobs read from environment variables, separate
// from the tap's JSON config file which carries only source parameters.
type RuntimeConfig struct {
	LogLevel          string        `envconfig:"TAP_LOG_LEVEL" default:"info"`
	LogFile           string        `envconfig:"TAP_LOG_FILE" default:""`
	HTTPTimeout       time.Duration `envconfig:"TAP_HTTP_TIMEOUT" default:"30s"`
	StateFlushRecords int           `envconfig:"TAP_STATE_FLUSH_RECORDS" default:"100"`
	RunInterval       time.Duration `envconfig:"TAP_RUN_INTERVAL" default:"0"`
	Sink              string        `envconfig:"TAP_SINK" default:"stdout"`

	ClickHouse ClickHouseConfig
	Telegram   TelegramConfig
}

// Config is the full tap configuration: source parameters from the JSON
// config file plus runtime settings from the environment.
type Config struct {
	Endpoint  string         `json:"endpoint"`
	StartDate string         `json:"start_date"`
	Metrics   []MetricConfig `json:"metrics"`

	Runtime RuntimeConfig `json:"-"`
}

// Load reads the JSON config file, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Process environment variables
	if err := envconfig.Process("", &cfg.Runtime); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.StartDate == "" {
		return fmt.Errorf("start_date is required")
	}
	if _, err := time.Parse(models.DateFormat, c.StartDate); err != nil {
		return fmt.Errorf("start_date must be formatted as %s: %w", models.DateFormat, err)
	}
	if len(c.Metrics) == 0 {
		return fmt.Errorf("at least one metric must be configured")
	}

	// Reject bad enum values here, not deep inside the sync loop.
	seen := make(map[string]bool, len(c.Metrics))
	for i := range c.Metrics {
		spec, err := c.Metrics[i].Spec()
		if err != nil {
			return err
		}
		if seen[spec.Name] {
			return fmt.Errorf("metric %q: name must be unique per run", spec.Name)
		}
		seen[spec.Name] = true
	}

	if c.Runtime.StateFlushRecords <= 0 {
		return fmt.Errorf("state flush interval must be positive")
	}
	if c.Runtime.Sink != "stdout" && c.Runtime.Sink != "clickhouse" {
		return fmt.Errorf("unknown sink %q", c.Runtime.Sink)
	}
	if c.Runtime.Sink == "clickhouse" && c.Runtime.ClickHouse.DSN == "" {
		return fmt.Errorf("clickhouse sink requires CLICKHOUSE_DSN")
	}

	return nil
}

// StartTime returns the configured global start date.
func (c *Config) StartTime() time.Time {
	t, _ := time.Parse(models.DateFormat, c.StartDate)
	return t
}

// Specs returns the validated metric specs in configured order.
func (c *Config) Specs() ([]models.MetricSpec, error) {
	specs := make([]models.MetricSpec, 0, len(c.Metrics))
	for i := range c.Metrics {
		spec, err := c.Metrics[i].Spec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
