package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes yaml content to a temp copilot.yml and returns its path
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "copilot.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, int64(5), *cfg.Router.StaleWindow)
	assert.Equal(t, 24*time.Hour, cfg.Artifacts.TTL.Std())
	assert.Equal(t, int64(20), cfg.Artifacts.MaxPerSession)
	assert.Equal(t, "gemini-1.5-flash", cfg.Inference.Model)
	assert.Equal(t, 0.2, *cfg.Inference.Temperature)
	assert.Equal(t, 10*time.Second, cfg.Inference.Timeout.Std())
	assert.Equal(t, 15*time.Second, cfg.Render.Timeout.Std())
	assert.Equal(t, 32, *cfg.Engine.QueueDepth)

	// Default monitor watches: utilization above 120, ROI below 0
	require.Len(t, cfg.Monitor.Metrics, 2)
	assert.Equal(t, "peakUtilization", cfg.Monitor.Metrics[0].Metric)
	assert.Equal(t, 120.0, cfg.Monitor.Metrics[0].Threshold)
	assert.Equal(t, "above", cfg.Monitor.Metrics[0].Direction)
	assert.Equal(t, 5.0, cfg.Monitor.Metrics[0].Hysteresis)
	assert.Equal(t, "roi", cfg.Monitor.Metrics[1].Metric)
	assert.Equal(t, "below", cfg.Monitor.Metrics[1].Direction)

	// Every numeric input carries a legal range
	assert.Contains(t, cfg.Model.Ranges, "agentCount")
	assert.Contains(t, cfg.Model.Ranges, "monthlyRent")
	assert.Contains(t, cfg.Model.Ranges, "recoveryRate")
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
		require.NoError(t, err)
		assert.Equal(t, "1.0", cfg.Version)
		assert.Equal(t, int64(5), *cfg.Router.StaleWindow)
	})

	t.Run("valid config with overrides", func(t *testing.T) {
		path := writeConfig(t, `
version: "1.0"
router:
  stale_window: 10
monitor:
  metrics:
    - metric: peakUtilization
      threshold: 110
      direction: above
      hysteresis: 3
artifacts:
  ttl: 1h
  max_per_session: 5
inference:
  model: gemini-1.5-pro
  temperature: 0.5
  timeout: 30s
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, int64(10), *cfg.Router.StaleWindow)
		require.Len(t, cfg.Monitor.Metrics, 1)
		assert.Equal(t, 110.0, cfg.Monitor.Metrics[0].Threshold)
		assert.Equal(t, time.Hour, cfg.Artifacts.TTL.Std())
		assert.Equal(t, int64(5), cfg.Artifacts.MaxPerSession)
		assert.Equal(t, "gemini-1.5-pro", cfg.Inference.Model)
		assert.Equal(t, 0.5, *cfg.Inference.Temperature)
		assert.Equal(t, 30*time.Second, cfg.Inference.Timeout.Std())

		// Untouched sections still get defaults
		assert.Equal(t, 15*time.Second, cfg.Render.Timeout.Std())
		assert.Contains(t, cfg.Model.Ranges, "agentCount")
	})

	t.Run("rejects unsupported version", func(t *testing.T) {
		path := writeConfig(t, `version: "2.0"`)
		_, err := Load(path)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported version")
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "version: [unclosed")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("rejects bad duration", func(t *testing.T) {
		path := writeConfig(t, `
version: "1.0"
inference:
  timeout: banana
`)
		_, err := Load(path)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid duration")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Version: "1.0"}
	}

	t.Run("rejects inverted range", func(t *testing.T) {
		cfg := valid()
		cfg.Model = &ModelConfig{Ranges: map[string]FieldRange{
			"agentCount": {Min: 100, Max: 1},
		}}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "min 100 exceeds max 1")
	})

	t.Run("rejects negative stale window", func(t *testing.T) {
		cfg := valid()
		window := int64(-1)
		cfg.Router = &RouterConfig{StaleWindow: &window}
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects bad monitor direction", func(t *testing.T) {
		cfg := valid()
		cfg.Monitor = &MonitorConfig{Metrics: []MetricWatch{
			{Metric: "roi", Threshold: 0, Direction: "sideways"},
		}}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "direction")
	})

	t.Run("rejects duplicate monitor metric", func(t *testing.T) {
		cfg := valid()
		cfg.Monitor = &MonitorConfig{Metrics: []MetricWatch{
			{Metric: "roi", Threshold: 0, Direction: "below"},
			{Metric: "roi", Threshold: 5, Direction: "below"},
		}}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate metric")
	})

	t.Run("rejects negative hysteresis", func(t *testing.T) {
		cfg := valid()
		cfg.Monitor = &MonitorConfig{Metrics: []MetricWatch{
			{Metric: "roi", Threshold: 0, Direction: "below", Hysteresis: -1},
		}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects out-of-range temperature", func(t *testing.T) {
		cfg := valid()
		temp := 3.0
		cfg.Inference = &InferenceConfig{Temperature: &temp}
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects zero queue depth", func(t *testing.T) {
		cfg := valid()
		depth := 0
		cfg.Engine = &EngineConfig{QueueDepth: &depth}
		assert.Error(t, cfg.Validate())
	})
}
