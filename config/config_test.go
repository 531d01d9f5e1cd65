package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
scenario: scenario.yaml
strategy:
  name: balanced_market
  price_threshold: 0.05
  horizon_hours: 12
output:
  summary: out/summary.json
metrics:
  prometheus_enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "scenario.yaml", cfg.Scenario)
	assert.Equal(t, "balanced_market", cfg.Strategy.Name)
	assert.InDelta(t, 0.05, cfg.Strategy.PriceThreshold, 1e-9)
	assert.Equal(t, "out/summary.json", cfg.Output.SummaryPath)
	assert.True(t, cfg.Metrics.PrometheusEnabled)
	assert.Equal(t, "2112", cfg.Metrics.PrometheusPort)
}

func TestLoadDefaultsStrategyName(t *testing.T) {
	cfg, err := Load(writeConfig(t, "scenario: s.yaml\n"))
	require.NoError(t, err)
	assert.Equal(t, "greedy", cfg.Strategy.Name)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FS_STRATEGY__NAME", "peak_shaving")
	cfg, err := Load(writeConfig(t, "scenario: s.yaml\nstrategy:\n  name: greedy\n"))
	require.NoError(t, err)
	assert.Equal(t, "peak_shaving", cfg.Strategy.Name)
}

func TestLoadRejectsMissingScenario(t *testing.T) {
	_, err := Load(writeConfig(t, "strategy:\n  name: greedy\n"))
	assert.Error(t, err)
}

func TestLoadRejectsEnabledPublisherWithoutBroker(t *testing.T) {
	_, err := Load(writeConfig(t, "scenario: s.yaml\npublish:\n  enabled: true\n"))
	assert.Error(t, err)
}

func TestSimConfigConversion(t *testing.T) {
	sc := StrategyConfig{
		Name:         "balanced",
		EPS:          1e-4,
		HorizonHours: 6,
		VehicleOrder: "departure",
	}
	cfg := sc.SimConfig(30 * time.Minute)
	assert.Equal(t, 30*time.Minute, cfg.Interval)
	assert.InDelta(t, 1e-4, cfg.EPS, 1e-12)
	assert.Equal(t, 6*time.Hour, cfg.Horizon)
	assert.Equal(t, "departure", cfg.VehicleOrder)
	// Unset tolerances pick up the shared defaults.
	assert.InDelta(t, 0.05, cfg.Margin, 1e-9)
}
