package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/collectiq/copilot/internal/config"
)

func utilizationWatch() []config.MetricWatch {
	return []config.MetricWatch{
		{Metric: "peakUtilization", Threshold: 120, Direction: "above", Hysteresis: 5},
	}
}

func evaluate(m *Monitor, value float64, version int64) []Alert {
	return m.Evaluate(map[string]float64{"peakUtilization": value}, version)
}

func TestCrossingEmitsExactlyOneAlert(t *testing.T) {
	m := New(utilizationWatch(), zap.NewNop())

	assert.Empty(t, evaluate(m, 110, 1))

	alerts := evaluate(m, 125, 2)
	require.Len(t, alerts, 1)
	assert.Equal(t, "peakUtilization", alerts[0].Metric)
	assert.Equal(t, 120.0, alerts[0].Threshold)
	assert.Equal(t, "above", alerts[0].Direction)
	assert.Equal(t, 125.0, alerts[0].Value)
	assert.Equal(t, int64(2), alerts[0].Version)
}

func TestNoDuplicateWhileAlerted(t *testing.T) {
	m := New(utilizationWatch(), zap.NewNop())

	require.Len(t, evaluate(m, 125, 1), 1)
	assert.Empty(t, evaluate(m, 130, 2))
	assert.Empty(t, evaluate(m, 121, 3))
}

func TestHysteresisRearm(t *testing.T) {
	m := New(utilizationWatch(), zap.NewNop())

	require.Len(t, evaluate(m, 125, 1), 1)

	// Dipping below the threshold but inside the margin does not re-arm
	assert.Empty(t, evaluate(m, 118, 2))
	assert.Empty(t, evaluate(m, 122, 3))

	// Recovery past threshold-hysteresis re-arms; the next crossing alerts
	assert.Empty(t, evaluate(m, 115, 4))
	alerts := evaluate(m, 126, 5)
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(5), alerts[0].Version)
}

func TestBelowDirection(t *testing.T) {
	m := New([]config.MetricWatch{
		{Metric: "roi", Threshold: 0, Direction: "below", Hysteresis: 2},
	}, zap.NewNop())

	roi := func(v float64, version int64) []Alert {
		return m.Evaluate(map[string]float64{"roi": v}, version)
	}

	assert.Empty(t, roi(5, 1))
	require.Len(t, roi(-1, 2), 1)
	assert.Empty(t, roi(-4, 3))

	// Back above zero but under the margin: still armed off
	assert.Empty(t, roi(1, 4))
	// Past threshold+hysteresis: re-armed
	assert.Empty(t, roi(3, 5))
	require.Len(t, roi(-0.5, 6), 1)
}

func TestExactThresholdIsNotBreach(t *testing.T) {
	m := New(utilizationWatch(), zap.NewNop())
	assert.Empty(t, evaluate(m, 120, 1))
}

func TestMultipleWatchesIndependent(t *testing.T) {
	m := New([]config.MetricWatch{
		{Metric: "peakUtilization", Threshold: 120, Direction: "above", Hysteresis: 5},
		{Metric: "roi", Threshold: 0, Direction: "below", Hysteresis: 2},
	}, zap.NewNop())

	alerts := m.Evaluate(map[string]float64{
		"peakUtilization": 130,
		"roi":             -2,
	}, 1)
	require.Len(t, alerts, 2)
}

func TestMissingMetricSkipped(t *testing.T) {
	m := New(utilizationWatch(), zap.NewNop())
	assert.Empty(t, m.Evaluate(map[string]float64{"roi": -50}, 1))
}
