package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectiq/copilot/internal/artifact"
	"github.com/collectiq/copilot/internal/config"
	"github.com/collectiq/copilot/internal/intent"
	"github.com/collectiq/copilot/internal/memory"
	"github.com/collectiq/copilot/internal/model"
	"github.com/collectiq/copilot/internal/render"
	"github.com/collectiq/copilot/pkg/statehub"
)

func testArgs(c intent.Classification) Args {
	return Args{
		RequestID: uuid.New().String(),
		Intent:    c,
		State:     model.New(uuid.New().String()),
		Memory:    memory.New(),
	}
}

func testRanges() map[string]config.FieldRange {
	return config.Default().Model.Ranges
}

func factOf(t *testing.T, facts []Fact, kind FactKind, field string) Fact {
	t.Helper()
	for _, f := range facts {
		if f.Kind == kind && f.Field == field {
			return f
		}
	}
	t.Fatalf("no %s fact for %s", kind, field)
	return Fact{}
}

func TestModifyHandle(t *testing.T) {
	h := NewModify(testRanges())

	t.Run("set and relative decrease in one delta", func(t *testing.T) {
		args := testArgs(intent.Classification{
			Category: intent.CategoryModify,
			FieldChanges: []intent.FieldChange{
				{Field: model.FieldAgentCount, Op: intent.OpSet, Value: 50},
				{Field: model.FieldMonthlyRent, Op: intent.OpDecrease, Value: 10, Percent: true},
			},
		})

		res, err := h.Handle(context.Background(), args)
		require.NoError(t, err)
		require.NotNil(t, res.Delta)

		assert.Equal(t, 50.0, res.Delta.Fields[model.FieldAgentCount])
		assert.Equal(t, 10800.0, res.Delta.Fields[model.FieldMonthlyRent])

		change := factOf(t, res.Facts, FactFieldChanged, model.FieldAgentCount)
		assert.Equal(t, 40.0, change.Before)
		assert.Equal(t, 50.0, change.After)

		// Live state untouched until the engine commits
		v, _ := args.State.Input(model.FieldAgentCount)
		assert.Equal(t, 40.0, v)
		assert.Equal(t, int64(0), args.State.Version())
	})

	t.Run("absolute increase", func(t *testing.T) {
		args := testArgs(intent.Classification{
			FieldChanges: []intent.FieldChange{
				{Field: model.FieldRecoveryRate, Op: intent.OpIncrease, Value: 3},
			},
		})
		res, err := h.Handle(context.Background(), args)
		require.NoError(t, err)
		assert.Equal(t, 15.0, res.Delta.Fields[model.FieldRecoveryRate])
	})

	t.Run("chained changes to the same field compound", func(t *testing.T) {
		args := testArgs(intent.Classification{
			FieldChanges: []intent.FieldChange{
				{Field: model.FieldAgentCount, Op: intent.OpSet, Value: 100},
				{Field: model.FieldAgentCount, Op: intent.OpDecrease, Value: 10, Percent: true},
			},
		})
		res, err := h.Handle(context.Background(), args)
		require.NoError(t, err)
		assert.Equal(t, 90.0, res.Delta.Fields[model.FieldAgentCount])
	})

	t.Run("out of range rejects whole request", func(t *testing.T) {
		args := testArgs(intent.Classification{
			FieldChanges: []intent.FieldChange{
				{Field: model.FieldAgentCount, Op: intent.OpSet, Value: 50},
				{Field: model.FieldCommissionRate, Op: intent.OpSet, Value: 250},
			},
		})
		_, err := h.Handle(context.Background(), args)

		var oor *model.OutOfRangeError
		require.ErrorAs(t, err, &oor)
		assert.Equal(t, model.FieldCommissionRate, oor.Field)
		assert.Equal(t, int64(0), args.State.Version())
	})

	t.Run("unknown field rejects", func(t *testing.T) {
		args := testArgs(intent.Classification{
			FieldChanges: []intent.FieldChange{
				{Field: "headcount", Op: intent.OpSet, Value: 50},
			},
		})
		_, err := h.Handle(context.Background(), args)

		var inv *model.InvalidFieldError
		require.ErrorAs(t, err, &inv)
		assert.Equal(t, "headcount", inv.Field)
	})

	t.Run("strategy mode change reports utilization shift", func(t *testing.T) {
		args := testArgs(intent.Classification{StrategyMode: model.ModeAugmentation})

		res, err := h.Handle(context.Background(), args)
		require.NoError(t, err)
		assert.Equal(t, model.ModeAugmentation, res.Delta.Modes[model.FieldStrategyMode])

		shift := factOf(t, res.Facts, FactMetricShifted, model.MetricPeakUtilization)
		assert.Less(t, shift.After, shift.Before)
	})

	t.Run("no-op mode change rejects", func(t *testing.T) {
		args := testArgs(intent.Classification{StrategyMode: model.ModeDisplacement})
		_, err := h.Handle(context.Background(), args)
		require.Error(t, err)
	})
}

func TestAnalyzeHandle(t *testing.T) {
	h := NewAnalyze()

	t.Run("scoped question reports metric and drivers", func(t *testing.T) {
		args := testArgs(intent.Classification{Metric: model.MetricPeakUtilization})

		res, err := h.Handle(context.Background(), args)
		require.NoError(t, err)
		assert.Nil(t, res.Delta)

		observed := factOf(t, res.Facts, FactMetricObserved, model.MetricPeakUtilization)
		assert.InDelta(t, 91.67, observed.After, 0.01)

		driver := factOf(t, res.Facts, FactMetricObserved, model.FieldAccountsAssigned)
		assert.Equal(t, "driver", driver.Detail)
	})

	t.Run("unscoped question reports overview", func(t *testing.T) {
		res, err := h.Handle(context.Background(), testArgs(intent.Classification{}))
		require.NoError(t, err)
		factOf(t, res.Facts, FactMetricObserved, model.MetricProfit)
		factOf(t, res.Facts, FactMetricObserved, model.MetricROI)
	})

	t.Run("unknown metric degrades to overview", func(t *testing.T) {
		res, err := h.Handle(context.Background(), testArgs(intent.Classification{Metric: "vibes"}))
		require.NoError(t, err)
		factOf(t, res.Facts, FactMetricObserved, model.MetricProfit)
	})
}

func TestScenarioHandle(t *testing.T) {
	h := NewScenario(testRanges())

	t.Run("branch comparison leaves live state untouched", func(t *testing.T) {
		args := testArgs(intent.Classification{
			Overrides: map[string]float64{model.FieldAgentCount: 20},
		})

		res, err := h.Handle(context.Background(), args)
		require.NoError(t, err)
		assert.Nil(t, res.Delta)
		assert.NotEmpty(t, res.Scenario)

		shift := factOf(t, res.Facts, FactMetricShifted, model.MetricPeakUtilization)
		assert.Greater(t, shift.After, shift.Before)

		v, _ := args.State.Input(model.FieldAgentCount)
		assert.Equal(t, 40.0, v)
		assert.Equal(t, int64(0), args.State.Version())
	})

	t.Run("explicit label wins", func(t *testing.T) {
		args := testArgs(intent.Classification{
			Scenario:  "lean team",
			Overrides: map[string]float64{model.FieldAgentCount: 20},
		})
		res, err := h.Handle(context.Background(), args)
		require.NoError(t, err)
		assert.Equal(t, "lean team", res.Scenario)
	})

	t.Run("mode-only scenario", func(t *testing.T) {
		args := testArgs(intent.Classification{
			StrategyMode: model.ModeAugmentation,
			Bucket:       model.BucketOne,
		})
		res, err := h.Handle(context.Background(), args)
		require.NoError(t, err)

		shift := factOf(t, res.Facts, FactMetricShifted, model.MetricPeakUtilization)
		assert.Less(t, shift.After, shift.Before)
	})

	t.Run("override outside range rejects", func(t *testing.T) {
		args := testArgs(intent.Classification{
			Overrides: map[string]float64{model.FieldCommissionRate: 500},
		})
		_, err := h.Handle(context.Background(), args)

		var oor *model.OutOfRangeError
		require.ErrorAs(t, err, &oor)
	})

	t.Run("unknown override field rejects", func(t *testing.T) {
		args := testArgs(intent.Classification{
			Overrides: map[string]float64{"headcount": 10},
		})
		_, err := h.Handle(context.Background(), args)

		var inv *model.InvalidFieldError
		require.ErrorAs(t, err, &inv)
	})
}

// failingRenderer always errors, standing in for a broken collaborator.
type failingRenderer struct{}

func (failingRenderer) Render(_ context.Context, kind string, _ *statehub.Snapshot) ([]byte, error) {
	return nil, &render.Failure{Kind: kind, Err: errors.New("renderer offline")}
}

func setupDocument(t *testing.T, r render.Renderer) (*Document, *artifact.Registry) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	hub, err := statehub.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { hub.Close() })

	reg := artifact.NewRegistry(hub, time.Hour, 20)
	return NewDocument(r, reg, 5*time.Second), reg
}

func TestDocumentHandle(t *testing.T) {
	t.Run("renders and registers artifact", func(t *testing.T) {
		h, reg := setupDocument(t, render.NewReportRenderer(model.Label))
		args := testArgs(intent.Classification{Category: intent.CategoryDocument})

		res, err := h.Handle(context.Background(), args)
		require.NoError(t, err)
		require.NotEmpty(t, res.ArtifactID)
		assert.Nil(t, res.Delta)

		rec, payload, err := reg.Resolve(context.Background(), res.ArtifactID)
		require.NoError(t, err)
		assert.Equal(t, render.KindROIReport, rec.Kind)
		assert.Contains(t, string(payload), "Collections ROI Report")

		fact := res.Facts[0]
		assert.Equal(t, FactDocumentRendered, fact.Kind)
		assert.Equal(t, render.KindROIReport, fact.Detail)
	})

	t.Run("rendering failure aborts with no artifact", func(t *testing.T) {
		h, reg := setupDocument(t, failingRenderer{})
		args := testArgs(intent.Classification{DocumentKind: render.KindROIReport})

		_, err := h.Handle(context.Background(), args)

		var failure *render.Failure
		require.ErrorAs(t, err, &failure)

		recs, err := reg.List(context.Background(), args.State.SessionID())
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestCheckStale(t *testing.T) {
	t.Run("within window passes", func(t *testing.T) {
		assert.NoError(t, CheckStale(7, 10, 5))
	})

	t.Run("at window edge passes", func(t *testing.T) {
		assert.NoError(t, CheckStale(5, 10, 5))
	})

	t.Run("beyond window rejects", func(t *testing.T) {
		err := CheckStale(4, 10, 5)
		var stale *StaleContextError
		require.ErrorAs(t, err, &stale)
		assert.Equal(t, int64(4), stale.RequestedVersion)
		assert.Equal(t, int64(10), stale.CurrentVersion)
	})

	t.Run("untracked client exempt", func(t *testing.T) {
		assert.NoError(t, CheckStale(-1, 100, 5))
	})
}
