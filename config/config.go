package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/evgrid/fleetsim/core/metrics"
	"github.com/evgrid/fleetsim/core/sim"
	"github.com/evgrid/fleetsim/infra/publish"
)

// Config is the top-level run configuration.
type Config struct {
	Scenario string         `json:"scenario"`
	Strategy StrategyConfig `json:"strategy"`
	Metrics  metrics.Config `json:"metrics"`
	Publish  publish.Config `json:"publish"`
	Output   OutputConfig   `json:"output"`
}

// StrategyConfig selects the policy and its tolerances.
type StrategyConfig struct {
	Name             string  `json:"name"`
	EPS              float64 `json:"eps"`
	PriceThreshold   float64 `json:"price_threshold"`
	Margin           float64 `json:"margin"`
	DischargeLimit   float64 `json:"discharge_limit"`
	HorizonHours     float64 `json:"horizon_hours"`
	AllowNegativeSoC bool    `json:"allow_negative_soc"`
	ClampNegativeSoC bool    `json:"clamp_negative_soc"`
	VehicleOrder     string  `json:"vehicle_order"`
}

// SetDefaults applies sane defaults.
func (c *StrategyConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "greedy"
	}
}

// SimConfig converts the strategy settings into the per-run configuration
// shared by the stepper and the strategies.
func (c StrategyConfig) SimConfig(interval time.Duration) sim.Config {
	cfg := sim.Config{
		Interval:         interval,
		EPS:              c.EPS,
		PriceThreshold:   c.PriceThreshold,
		Margin:           c.Margin,
		DischargeLimit:   c.DischargeLimit,
		Horizon:          time.Duration(c.HorizonHours * float64(time.Hour)),
		AllowNegativeSoC: c.AllowNegativeSoC,
		ClampNegativeSoC: c.ClampNegativeSoC,
		VehicleOrder:     c.VehicleOrder,
	}
	cfg.SetDefaults()
	return cfg
}

// OutputConfig names the report files; empty paths skip the respective
// output.
type OutputConfig struct {
	SummaryPath    string `json:"summary"`
	TimeseriesPath string `json:"timeseries"`
	SchedulePath   string `json:"schedule"`
}

// Load reads the configuration file and applies FS_ environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("FS_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "fs_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Strategy.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Publish.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}
	if c.Publish.Enabled && c.Publish.Broker == "" {
		return fmt.Errorf("publish.broker is required when the publisher is enabled")
	}
	return nil
}
