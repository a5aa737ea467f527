// Package config loads and validates copilot.yml, the per-instance engine
// configuration: legal ranges for model fields, monitor thresholds and
// hysteresis margins, the stale-context window, collaborator timeouts, and
// artifact retention bounds. Every knob has a documented default; a missing
// file yields the default configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML unmarshaling from strings like "10s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the top-level copilot.yml configuration.
type Config struct {
	Version   string           `yaml:"version"`
	Model     *ModelConfig     `yaml:"model,omitempty"`
	Router    *RouterConfig    `yaml:"router,omitempty"`
	Monitor   *MonitorConfig   `yaml:"monitor,omitempty"`
	Artifacts *ArtifactsConfig `yaml:"artifacts,omitempty"`
	Inference *InferenceConfig `yaml:"inference,omitempty"`
	Render    *RenderConfig    `yaml:"render,omitempty"`
	Engine    *EngineConfig    `yaml:"engine,omitempty"`
}

// FieldRange is the configured legal range for a numeric model field.
// Modify requests producing a value outside [Min, Max] are rejected.
type FieldRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ModelConfig holds per-field legal ranges. Fields without an entry get no
// range check beyond the model's own non-negativity rules.
type ModelConfig struct {
	Ranges map[string]FieldRange `yaml:"ranges,omitempty"`
}

// RouterConfig holds intent-routing knobs.
type RouterConfig struct {
	// StaleWindow is how many versions behind the live ModelState a request
	// may reference before it is rejected as stale. Default: 5.
	StaleWindow *int64 `yaml:"stale_window,omitempty"`
}

// MetricWatch configures one tracked metric for the proactive monitor.
type MetricWatch struct {
	Metric     string  `yaml:"metric"`     // Derived metric name
	Threshold  float64 `yaml:"threshold"`  // Crossing point
	Direction  string  `yaml:"direction"`  // "above" or "below" is the bad direction
	Hysteresis float64 `yaml:"hysteresis"` // Margin past the threshold required to re-arm
}

// MonitorConfig lists the metrics the proactive monitor tracks.
type MonitorConfig struct {
	Metrics []MetricWatch `yaml:"metrics,omitempty"`
}

// ArtifactsConfig bounds artifact retention.
type ArtifactsConfig struct {
	TTL           Duration `yaml:"ttl,omitempty"`             // Age bound. Default: 24h.
	MaxPerSession int64    `yaml:"max_per_session,omitempty"` // Size bound. Default: 20.
}

// InferenceConfig configures the external inference collaborator.
type InferenceConfig struct {
	Model       string   `yaml:"model,omitempty"`       // Default: gemini-1.5-flash
	Temperature *float64 `yaml:"temperature,omitempty"` // Default: 0.2
	Timeout     Duration `yaml:"timeout,omitempty"`     // Default: 10s
}

// RenderConfig configures the external document-rendering collaborator.
type RenderConfig struct {
	Timeout Duration `yaml:"timeout,omitempty"` // Default: 15s
}

// EngineConfig configures session scheduling.
type EngineConfig struct {
	// QueueDepth is the per-session FIFO request queue capacity. A request
	// arriving while the queue is full is rejected rather than interleaved.
	// Default: 32.
	QueueDepth *int `yaml:"queue_depth,omitempty"`
}

// Default returns the documented default configuration.
func Default() *Config {
	cfg := &Config{Version: "1.0"}
	if err := cfg.Validate(); err != nil {
		// Defaults are static; a validation failure here is a programming error.
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// Load reads and validates a copilot.yml file. If the file does not exist,
// the default configuration is returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate performs strict validation on the configuration and applies
// documented defaults for every omitted section or knob.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Model == nil {
		c.Model = &ModelConfig{}
	}
	if c.Model.Ranges == nil {
		c.Model.Ranges = defaultRanges()
	}
	for field, r := range c.Model.Ranges {
		if r.Min > r.Max {
			return fmt.Errorf("model.ranges.%s: min %g exceeds max %g", field, r.Min, r.Max)
		}
	}

	if c.Router == nil {
		c.Router = &RouterConfig{}
	}
	if c.Router.StaleWindow == nil {
		defaultWindow := int64(5)
		c.Router.StaleWindow = &defaultWindow
	}
	if *c.Router.StaleWindow < 0 {
		return fmt.Errorf("router.stale_window must be >= 0, got %d", *c.Router.StaleWindow)
	}

	if c.Monitor == nil {
		c.Monitor = &MonitorConfig{}
	}
	if c.Monitor.Metrics == nil {
		c.Monitor.Metrics = defaultMetrics()
	}
	seen := make(map[string]bool)
	for i, m := range c.Monitor.Metrics {
		if m.Metric == "" {
			return fmt.Errorf("monitor.metrics[%d]: metric name is required", i)
		}
		if m.Direction != "above" && m.Direction != "below" {
			return fmt.Errorf("monitor.metrics[%d]: direction must be \"above\" or \"below\", got %q", i, m.Direction)
		}
		if m.Hysteresis < 0 {
			return fmt.Errorf("monitor.metrics[%d]: hysteresis must be >= 0, got %g", i, m.Hysteresis)
		}
		if seen[m.Metric] {
			return fmt.Errorf("monitor.metrics[%d]: duplicate metric %q", i, m.Metric)
		}
		seen[m.Metric] = true
	}

	if c.Artifacts == nil {
		c.Artifacts = &ArtifactsConfig{}
	}
	if c.Artifacts.TTL == 0 {
		c.Artifacts.TTL = Duration(24 * time.Hour)
	}
	if c.Artifacts.TTL < 0 {
		return fmt.Errorf("artifacts.ttl must be positive, got %v", c.Artifacts.TTL.Std())
	}
	if c.Artifacts.MaxPerSession == 0 {
		c.Artifacts.MaxPerSession = 20
	}
	if c.Artifacts.MaxPerSession < 0 {
		return fmt.Errorf("artifacts.max_per_session must be positive, got %d", c.Artifacts.MaxPerSession)
	}

	if c.Inference == nil {
		c.Inference = &InferenceConfig{}
	}
	if c.Inference.Model == "" {
		c.Inference.Model = "gemini-1.5-flash"
	}
	if c.Inference.Temperature == nil {
		defaultTemp := 0.2
		c.Inference.Temperature = &defaultTemp
	}
	if *c.Inference.Temperature < 0 || *c.Inference.Temperature > 2 {
		return fmt.Errorf("inference.temperature must be in [0, 2], got %g", *c.Inference.Temperature)
	}
	if c.Inference.Timeout == 0 {
		c.Inference.Timeout = Duration(10 * time.Second)
	}
	if c.Inference.Timeout < 0 {
		return fmt.Errorf("inference.timeout must be positive, got %v", c.Inference.Timeout.Std())
	}

	if c.Render == nil {
		c.Render = &RenderConfig{}
	}
	if c.Render.Timeout == 0 {
		c.Render.Timeout = Duration(15 * time.Second)
	}
	if c.Render.Timeout < 0 {
		return fmt.Errorf("render.timeout must be positive, got %v", c.Render.Timeout.Std())
	}

	if c.Engine == nil {
		c.Engine = &EngineConfig{}
	}
	if c.Engine.QueueDepth == nil {
		defaultDepth := 32
		c.Engine.QueueDepth = &defaultDepth
	}
	if *c.Engine.QueueDepth < 1 {
		return fmt.Errorf("engine.queue_depth must be >= 1, got %d", *c.Engine.QueueDepth)
	}

	return nil
}

// defaultRanges returns the documented legal ranges for the model's numeric
// input fields.
func defaultRanges() map[string]FieldRange {
	return map[string]FieldRange{
		"agentCount":        {Min: 0, Max: 10000},
		"monthlyRent":       {Min: 0, Max: 10000000},
		"avgAgentSalary":    {Min: 0, Max: 1000000},
		"commissionRate":    {Min: 0, Max: 100},
		"accountsAssigned":  {Min: 0, Max: 10000000},
		"avgAccountBalance": {Min: 0, Max: 10000000},
		"recoveryRate":      {Min: 0, Max: 100},
		"accountsPerAgent":  {Min: 1, Max: 100000},
	}
}

// defaultMetrics returns the documented default monitor configuration:
// peak utilization above 120% (hysteresis 5) and ROI below 0% (hysteresis 2).
func defaultMetrics() []MetricWatch {
	return []MetricWatch{
		{Metric: "peakUtilization", Threshold: 120, Direction: "above", Hysteresis: 5},
		{Metric: "roi", Threshold: 0, Direction: "below", Hysteresis: 2},
	}
}
