package forecast

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LodgingPulse/internal/calculator"
	"LodgingPulse/internal/ingest"
	"LodgingPulse/internal/scenario"
)

const partitionHeader = "latitude,longitude,address,ward,中国,韓国,北米小計,東南アジア小計,ヨーロッパ小計,海外合計,国内合計\n"

const shockTable = `event_id,event_name_ja,start_month,end_month,shock_china,shock_korea,shock_north_america,shock_southeast_asia,shock_europe,shock_domestic_total,note
fx_jpy_depreciation,円安継続,1,12,0.12,0.08,0.15,0.1,0.11,-0.02,為替局面
infectious_disease_resurgence,感染症再拡大,11,2,-0.45,-0.4,-0.3,-0.35,-0.25,-0.1,冬季の域内流行
`

type fixture struct {
	loader    *ingest.Loader
	scenarios *scenario.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()

	write := func(year, month int, total float64) {
		name := fmt.Sprintf("KCTA_%04d_%02d_hotel_allocation.csv", year, month)
		body := fmt.Sprintf("35.0,135.7,京都市中京区,中京区,%.0f,0,0,0,0,%.0f,100\n", total, total)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(partitionHeader+body), 0o644))
	}
	// Rising china totals Mar..Jun 2024.
	write(2024, 3, 100)
	write(2024, 4, 110)
	write(2024, 5, 121)
	write(2024, 6, 133)

	shockPath := filepath.Join(dir, "scenario_event_shock_rates.csv")
	require.NoError(t, os.WriteFile(shockPath, []byte(shockTable), 0o644))

	return fixture{
		loader:    ingest.NewLoader(dir, zerolog.Nop()),
		scenarios: scenario.NewRegistry([]string{shockPath}, zerolog.Nop()),
	}
}

func newHeuristic(t *testing.T) *Heuristic {
	t.Helper()
	fx := newFixture(t)
	return NewHeuristic(fx.loader, fx.scenarios, zerolog.Nop())
}

func TestHeuristicForecast_PayloadShape(t *testing.T) {
	h := newHeuristic(t)
	payload, err := h.Forecast(Request{
		Region: "kyoto", Market: "china", BaseMonth: 6, Horizon: 6,
	})
	require.NoError(t, err)

	assert.Equal(t, "heuristic-v1", payload.ModelVersion)
	assert.Equal(t, TargetMetric, payload.TargetMetric)
	assert.Equal(t, "kyoto", payload.Prefecture)
	assert.Equal(t, "china", payload.Market)
	assert.Equal(t, 2024, payload.BaseYear)
	assert.Equal(t, 6, payload.BaseMonth)
	assert.Equal(t, 6, payload.HorizonMonths)
	assert.Len(t, payload.AvailableScenarios, 2)

	// Baseline growth is June over May.
	assert.InDelta(t, (133.0-121.0)/121.0, payload.BaselineGrowthRate, 1e-9)
	assert.InDelta(t, 133, payload.FeatureSnapshot["current_total"], 1e-9)
	assert.InDelta(t, 1, payload.FeatureSnapshot["active_facilities"], 1e-9)

	// Defaults apply when no scenario ids are requested: base first, then
	// the two default shocks.
	require.Len(t, payload.Scenarios, 3)
	assert.Equal(t, "base", payload.Scenarios[0].ScenarioID)
	assert.Equal(t, "fx_jpy_depreciation", payload.Scenarios[1].ScenarioID)
	assert.Equal(t, "infectious_disease_resurgence", payload.Scenarios[2].ScenarioID)
}

func TestHeuristicForecast_PointsWithinBounds(t *testing.T) {
	h := newHeuristic(t)
	payload, err := h.Forecast(Request{
		Region: "kyoto", Market: "china", BaseMonth: 6, Horizon: 12,
		CustomShock: 0.5,
	})
	require.NoError(t, err)

	for _, sc := range payload.Scenarios {
		require.Len(t, sc.Points, 12, "scenario %s", sc.ScenarioID)
		for i, p := range sc.Points {
			assert.Equal(t, i+1, p.Step)
			assert.GreaterOrEqual(t, p.PredictedGrowthRate, calculator.GrowthFloor)
			assert.LessOrEqual(t, p.PredictedGrowthRate, calculator.GrowthCeil)
			assert.InDelta(t, calculator.Seasonal(p.Month), p.SeasonalComponent, 1e-12)
		}
		// Steps advance month by month from the base month.
		assert.Equal(t, 7, sc.Points[0].Month)
		assert.Equal(t, 2024, sc.Points[0].Year)
		assert.Equal(t, 1, sc.Points[6].Month)
		assert.Equal(t, 2025, sc.Points[6].Year)
	}

	// The base scenario never carries a shock, custom or named.
	for _, p := range payload.Scenarios[0].Points {
		assert.Zero(t, p.AppliedShockRate)
	}
}

func TestHeuristicForecast_ShockOnlyInsideActiveRange(t *testing.T) {
	h := newHeuristic(t)
	payload, err := h.Forecast(Request{
		Region: "kyoto", Market: "china", BaseMonth: 6, Horizon: 12,
		ScenarioIDs: []string{"infectious_disease_resurgence"},
	})
	require.NoError(t, err)
	require.Len(t, payload.Scenarios, 2)

	winter := payload.Scenarios[1]
	for _, p := range winter.Points {
		if calculator.MonthInRange(p.Month, 11, 2) {
			assert.InDelta(t, -0.45, p.AppliedShockRate, 1e-9, "month %d", p.Month)
		} else {
			assert.Zero(t, p.AppliedShockRate, "month %d", p.Month)
		}
	}
}

func TestHeuristicForecast_UnknownScenarioDropped(t *testing.T) {
	h := newHeuristic(t)
	payload, err := h.Forecast(Request{
		Region: "kyoto", Market: "china", BaseMonth: 6, Horizon: 3,
		ScenarioIDs: []string{"fx_jpy_depreciation", "not_a_scenario"},
	})
	require.NoError(t, err)
	require.Len(t, payload.Scenarios, 2)
	assert.Equal(t, "base", payload.Scenarios[0].ScenarioID)
	assert.Equal(t, "fx_jpy_depreciation", payload.Scenarios[1].ScenarioID)
}

func TestHeuristicForecast_ZeroHorizon(t *testing.T) {
	h := newHeuristic(t)
	payload, err := h.Forecast(Request{
		Region: "kyoto", Market: "china", BaseMonth: 6, Horizon: 0,
	})
	require.NoError(t, err)
	for _, sc := range payload.Scenarios {
		assert.Empty(t, sc.Points)
	}
}

func TestHeuristicForecast_MissingPartition(t *testing.T) {
	h := newHeuristic(t)
	payload, err := h.Forecast(Request{
		Region: "kyoto", Market: "china", BaseMonth: 12, Horizon: 3,
	})
	require.Nil(t, payload)
	require.ErrorIs(t, err, ingest.ErrPartitionNotFound)
}

func TestEstimateBaseline_StopsAtFirstGap(t *testing.T) {
	fx := newFixture(t)
	b, err := EstimateBaseline(fx.loader, "kyoto", 2024, 4, "china")
	require.NoError(t, err)

	// Only March precedes April; the walk stops at the February gap.
	assert.InDelta(t, 110, b.CurrentTotal, 1e-9)
	assert.InDelta(t, 100, b.PrevTotal, 1e-9)
	assert.InDelta(t, 0.1, b.BaselineGrowth, 1e-9)
	assert.InDelta(t, 0.1, b.TrendGrowth, 1e-9)
}

func TestEstimateBaseline_NoPriorMonth(t *testing.T) {
	fx := newFixture(t)
	b, err := EstimateBaseline(fx.loader, "kyoto", 2024, 3, "china")
	require.NoError(t, err)
	assert.Zero(t, b.BaselineGrowth)
	assert.Zero(t, b.TrendGrowth)
	assert.InDelta(t, 100, b.CurrentTotal, 1e-9)
}

func TestSelectScenarioIDs(t *testing.T) {
	known := map[string]bool{
		"fx_jpy_depreciation":           true,
		"infectious_disease_resurgence": true,
		"extra":                         true,
	}

	// Empty request gets the default pair.
	assert.Equal(t, []string{"fx_jpy_depreciation", "infectious_disease_resurgence"},
		selectScenarioIDs(nil, known))

	// Explicit order is preserved, unknown ids dropped.
	assert.Equal(t, []string{"extra", "fx_jpy_depreciation"},
		selectScenarioIDs([]string{"extra", "bogus", "fx_jpy_depreciation"}, known))
}
