package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LodgingPulse/internal/cache"
	"LodgingPulse/internal/forecast"
	"LodgingPulse/internal/ingest"
	"LodgingPulse/internal/metrics"
	"LodgingPulse/internal/recorder"
	"LodgingPulse/internal/scenario"
)

const partitionHeader = "latitude,longitude,address,ward,中国,韓国,北米小計,東南アジア小計,ヨーロッパ小計,海外合計,国内合計\n"

const shockTable = `event_id,event_name_ja,start_month,end_month,shock_china,shock_korea,shock_north_america,shock_southeast_asia,shock_europe,shock_domestic_total,note
fx_jpy_depreciation,円安継続,1,12,0.12,0.08,0.15,0.1,0.11,-0.02,為替局面
infectious_disease_resurgence,感染症再拡大,11,2,-0.45,-0.4,-0.3,-0.35,-0.25,-0.1,冬季の域内流行
`

// captureRecorder collects records for assertions.
type captureRecorder struct {
	forecasts []*recorder.ForecastRecord
	metrics   []*recorder.MetricsRecord
}

func (c *captureRecorder) RecordForecast(r *recorder.ForecastRecord) error {
	c.forecasts = append(c.forecasts, r)
	return nil
}

func (c *captureRecorder) RecordMetrics(r *recorder.MetricsRecord) error {
	c.metrics = append(c.metrics, r)
	return nil
}

func (c *captureRecorder) Close() error { return nil }

func newEngine(t *testing.T) (*Engine, *captureRecorder) {
	t.Helper()
	dir := t.TempDir()

	write := func(year, month int, total float64) {
		name := fmt.Sprintf("KCTA_%04d_%02d_hotel_allocation.csv", year, month)
		body := fmt.Sprintf("35.0,135.7,京都市中京区,中京区,%.0f,10,0,0,0,%.0f,100\n", total, total+10)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(partitionHeader+body), 0o644))
	}
	write(2024, 5, 110)
	write(2024, 6, 120)

	shockPath := filepath.Join(dir, "scenario_event_shock_rates.csv")
	require.NoError(t, os.WriteFile(shockPath, []byte(shockTable), 0o644))

	log := zerolog.Nop()
	loader := ingest.NewLoader(dir, log)
	builder := metrics.NewBuilder(loader, log)
	registry := scenario.NewRegistry([]string{shockPath}, log)
	heuristic := forecast.NewHeuristic(loader, registry, log)
	selector := forecast.NewSelector(heuristic, nil, log)
	fc := cache.New(300*time.Second, 128, nil)
	rec := &captureRecorder{}

	return New(loader, builder, registry, selector, fc, rec, log), rec
}

func TestBuildForecastPayload_CacheAndRecord(t *testing.T) {
	eng, rec := newEngine(t)

	req := ForecastRequest{Region: "kyoto", Market: "china", BaseMonth: 6, Horizon: 6}

	first, err := eng.BuildForecastPayload(req)
	require.NoError(t, err)
	assert.Equal(t, "heuristic-v1", first.ModelVersion)
	assert.Equal(t, 2024, first.BaseYear)

	second, err := eng.BuildForecastPayload(req)
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.Len(t, rec.forecasts, 2)
	assert.False(t, rec.forecasts[0].CacheHit)
	assert.True(t, rec.forecasts[1].CacheHit)
	assert.Equal(t, 3, rec.forecasts[0].ScenarioCount)
	assert.Equal(t, "heuristic-v1", rec.forecasts[0].ModelVersion)
}

func TestBuildForecastPayload_Validation(t *testing.T) {
	eng, _ := newEngine(t)

	_, err := eng.BuildForecastPayload(ForecastRequest{Region: "kyoto", Market: "china", BaseMonth: 13, Horizon: 6})
	require.Error(t, err)

	_, err = eng.BuildForecastPayload(ForecastRequest{Region: "kyoto", Market: "china", BaseMonth: 6, Horizon: 25})
	require.Error(t, err)

	_, err = eng.BuildForecastPayload(ForecastRequest{Market: "china", BaseMonth: 6, Horizon: 6})
	require.Error(t, err, "region is required")

	_, err = eng.BuildForecastPayload(ForecastRequest{Region: "kyoto", Market: "china", BaseMonth: 6, Horizon: 6, CustomShock: 1.5})
	require.Error(t, err)
}

func TestBuildForecastPayload_MissingMonth(t *testing.T) {
	eng, rec := newEngine(t)

	_, err := eng.BuildForecastPayload(ForecastRequest{Region: "kyoto", Market: "china", BaseMonth: 1, Horizon: 6})
	require.ErrorIs(t, err, ingest.ErrPartitionNotFound)
	assert.Empty(t, rec.forecasts)
}

func TestBuildDependencyMetrics_Records(t *testing.T) {
	eng, rec := newEngine(t)

	dm, err := eng.BuildDependencyMetrics("kyoto", 6, "china", nil)
	require.NoError(t, err)
	assert.Equal(t, 2024, dm.CurrentYear)

	require.Len(t, rec.metrics, 1)
	assert.Equal(t, "kyoto", rec.metrics[0].Region)
	assert.InDelta(t, 120, rec.metrics[0].MarketTotal, 1e-9)
	require.NotNil(t, rec.metrics[0].HHI)
}

func TestBuildDependencyMetrics_MonthBounds(t *testing.T) {
	eng, _ := newEngine(t)
	_, err := eng.BuildDependencyMetrics("kyoto", 0, "china", nil)
	require.Error(t, err)
}

func TestBuildDependencyPoints_DefaultCap(t *testing.T) {
	eng, _ := newEngine(t)

	year, points, err := eng.BuildDependencyPoints("kyoto", 6, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 2024, year)
	assert.NotEmpty(t, points)

	_, _, err = eng.BuildDependencyPoints("kyoto", 13, nil, 0)
	require.Error(t, err)
}

func TestLoadRows(t *testing.T) {
	eng, _ := newEngine(t)
	year, rows, err := eng.LoadRows(6, nil)
	require.NoError(t, err)
	assert.Equal(t, 2024, year)
	assert.Len(t, rows, 1)
}

func TestListScenarios(t *testing.T) {
	eng, _ := newEngine(t)
	list, err := eng.ListScenarios()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
