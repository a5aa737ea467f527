// Package monitor implements the proactive metric watcher: a per-metric
// two-state machine (normal, alerted) with hysteresis. Every committed
// mutation is evaluated against every watched metric; only the transition
// into the alerted state emits an alert, so a metric sitting past its
// threshold stays quiet until it first recovers past the hysteresis margin.
package monitor

import (
	"go.uber.org/zap"

	"github.com/collectiq/copilot/internal/config"
)

// Alert is one threshold crossing detected at a specific state version.
type Alert struct {
	Metric    string
	Threshold float64
	Direction string
	Value     float64
	Version   int64
}

// watchState is the per-metric arming state.
type watchState struct {
	cfg     config.MetricWatch
	alerted bool
}

// Monitor evaluates one session's derived metrics after each committed
// mutation. It is owned by the session's worker goroutine and is not safe
// for concurrent use.
type Monitor struct {
	watches []*watchState
	log     *zap.Logger
}

// New creates a Monitor for the configured metric watches. Every watch
// starts in the normal state regardless of the current metric values; the
// first evaluation establishes reality.
func New(watches []config.MetricWatch, log *zap.Logger) *Monitor {
	m := &Monitor{log: log}
	for _, w := range watches {
		m.watches = append(m.watches, &watchState{cfg: w})
	}
	return m
}

// Evaluate runs every watch against the given derived metrics, committed at
// the given version. It returns the alerts raised by this evaluation: one
// per metric at most, and only for normal-to-alerted transitions.
func (m *Monitor) Evaluate(derived map[string]float64, version int64) []Alert {
	var alerts []Alert
	for _, w := range m.watches {
		value, ok := derived[w.cfg.Metric]
		if !ok {
			continue
		}

		if w.alerted {
			if rearmed(w.cfg, value) {
				w.alerted = false
				m.log.Debug("metric watch re-armed",
					zap.String("metric", w.cfg.Metric),
					zap.Float64("value", value))
			}
			continue
		}

		if breached(w.cfg, value) {
			w.alerted = true
			alerts = append(alerts, Alert{
				Metric:    w.cfg.Metric,
				Threshold: w.cfg.Threshold,
				Direction: w.cfg.Direction,
				Value:     value,
				Version:   version,
			})
		}
	}
	return alerts
}

// breached reports whether value is past the threshold in the bad direction.
func breached(cfg config.MetricWatch, value float64) bool {
	if cfg.Direction == "above" {
		return value > cfg.Threshold
	}
	return value < cfg.Threshold
}

// rearmed reports whether value has recovered past the hysteresis margin on
// the good side of the threshold.
func rearmed(cfg config.MetricWatch, value float64) bool {
	if cfg.Direction == "above" {
		return value <= cfg.Threshold-cfg.Hysteresis
	}
	return value >= cfg.Threshold+cfg.Hysteresis
}
