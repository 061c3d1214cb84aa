package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LodgingPulse/internal/model"
)

const scenarioTable = `event_id,event_name_ja,start_month,end_month,shock_china,shock_korea,shock_north_america,shock_southeast_asia,shock_europe,shock_domestic_total,note
fx_jpy_depreciation,円安継続,1,12,0.12,0.08,0.15,0.1,0.11,-0.02,為替局面
infectious_disease_resurgence,感染症再拡大,11,2,-0.45,-0.4,-0.3,-0.35,-0.25,-0.1,冬季の域内流行
`

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario_event_shock_rates.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ParsesShocks(t *testing.T) {
	reg := NewRegistry([]string{writeTable(t, scenarioTable)}, zerolog.Nop())
	shocks, err := reg.Load()
	require.NoError(t, err)
	require.Len(t, shocks, 2)

	fx := shocks["fx_jpy_depreciation"]
	require.NotNil(t, fx)
	assert.Equal(t, "円安継続", fx.EventName)
	assert.Equal(t, 1, fx.StartMonth)
	assert.Equal(t, 12, fx.EndMonth)
	assert.InDelta(t, 0.12, fx.Values[model.MarketChina], 1e-9)
	assert.InDelta(t, -0.02, fx.Values[model.MarketJapan], 1e-9)
}

func TestShockFor_WrapAroundRange(t *testing.T) {
	reg := NewRegistry([]string{writeTable(t, scenarioTable)}, zerolog.Nop())
	shocks, err := reg.Load()
	require.NoError(t, err)

	winter := shocks["infectious_disease_resurgence"]
	require.NotNil(t, winter)

	// Active Nov through Feb, inactive otherwise.
	assert.InDelta(t, -0.45, winter.For(model.MarketChina, 11), 1e-9)
	assert.InDelta(t, -0.45, winter.For(model.MarketChina, 1), 1e-9)
	assert.InDelta(t, -0.45, winter.For(model.MarketChina, 2), 1e-9)
	assert.Zero(t, winter.For(model.MarketChina, 6))

	// Unknown market reads zero.
	assert.Zero(t, winter.For("mars", 12))
}

func TestLoad_MissingFile(t *testing.T) {
	reg := NewRegistry([]string{filepath.Join(t.TempDir(), "nope.csv"), ""}, zerolog.Nop())
	_, err := reg.Load()
	require.ErrorIs(t, err, ErrScenarioFileMissing)
}

func TestLoad_ProbesPathsInOrder(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.csv")
	present := writeTable(t, scenarioTable)
	reg := NewRegistry([]string{missing, present}, zerolog.Nop())
	shocks, err := reg.Load()
	require.NoError(t, err)
	assert.Len(t, shocks, 2)
}

func TestRefresh_ReplacesTable(t *testing.T) {
	path := writeTable(t, scenarioTable)
	reg := NewRegistry([]string{path}, zerolog.Nop())
	_, err := reg.Load()
	require.NoError(t, err)

	shorter := "event_id,event_name_ja,start_month,end_month,shock_china\nonly_one,単独,1,12,0.5\n"
	require.NoError(t, os.WriteFile(path, []byte(shorter), 0o644))

	// Memoized until an explicit refresh.
	shocks, err := reg.Load()
	require.NoError(t, err)
	assert.Len(t, shocks, 2)

	shocks, err = reg.Refresh()
	require.NoError(t, err)
	require.Len(t, shocks, 1)
	assert.InDelta(t, 0.5, shocks["only_one"].Values[model.MarketChina], 1e-9)
}

func TestListAvailable_SortedByID(t *testing.T) {
	reg := NewRegistry([]string{writeTable(t, scenarioTable)}, zerolog.Nop())
	list, err := reg.ListAvailable()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "fx_jpy_depreciation", list[0].EventID)
	assert.Equal(t, "infectious_disease_resurgence", list[1].EventID)
}

func TestClampMonth(t *testing.T) {
	assert.Equal(t, 1, clampMonth(0, 1))
	assert.Equal(t, 12, clampMonth(0, 12))
	assert.Equal(t, 1, clampMonth(-3, 1))
	assert.Equal(t, 12, clampMonth(15, 12))
	assert.Equal(t, 7, clampMonth(7, 1))
}
