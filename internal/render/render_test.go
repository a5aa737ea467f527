package render

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectiq/copilot/internal/model"
	"github.com/collectiq/copilot/pkg/statehub"
)

func testSnapshot() *statehub.Snapshot {
	snap := model.New(uuid.New().String()).Snapshot()
	snap.UpdatedAtMs = 1700000000000
	return snap
}

func TestRenderROIReport(t *testing.T) {
	r := NewReportRenderer(model.Label)

	payload, err := r.Render(context.Background(), KindROIReport, testSnapshot())
	require.NoError(t, err)

	report := string(payload)
	assert.Contains(t, report, "Collections ROI Report")
	assert.Contains(t, report, "State version: 0")
	// Display labels, not internal identifiers
	assert.Contains(t, report, "agent count")
	assert.Contains(t, report, "peak utilization")
	assert.NotContains(t, report, "agentCount")
	assert.NotContains(t, report, "peakUtilization")
}

func TestRenderDefaultsToReport(t *testing.T) {
	r := NewReportRenderer(model.Label)

	payload, err := r.Render(context.Background(), "", testSnapshot())
	require.NoError(t, err)
	assert.Contains(t, string(payload), "Collections ROI Report")
}

func TestRenderStateJSON(t *testing.T) {
	r := NewReportRenderer(nil)
	snap := testSnapshot()

	payload, err := r.Render(context.Background(), KindStateJSON, snap)
	require.NoError(t, err)

	var decoded statehub.Snapshot
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, snap.SessionID, decoded.SessionID)
	assert.Equal(t, snap.Inputs, decoded.Inputs)
}

func TestRenderUnsupportedKind(t *testing.T) {
	r := NewReportRenderer(nil)

	_, err := r.Render(context.Background(), "spreadsheet", testSnapshot())
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "spreadsheet", failure.Kind)
}

func TestRenderCancelledContext(t *testing.T) {
	r := NewReportRenderer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Render(ctx, KindROIReport, testSnapshot())
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.True(t, errors.Is(err, context.Canceled))
}
