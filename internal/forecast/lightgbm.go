package forecast

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitryikh/leaves"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"LodgingPulse/internal/calculator"
	"LodgingPulse/internal/ingest"
	"LodgingPulse/internal/model"
	"LodgingPulse/internal/scenario"
)

// Scenario ids that additionally perturb the FX covariates.
const (
	scenarioFXAppreciation = "fx_jpy_appreciation"
	scenarioFXDepreciation = "fx_jpy_depreciation"
)

// targetConfig names the target and derived feature columns the regressor
// for one market family was trained on.
type targetConfig struct {
	target string
	lag1   string
	lag2   string
	roll3  string
}

var targetConfigs = map[string]targetConfig{
	"china":    {target: "中国", lag1: "中国_lag1", lag2: "中国_lag2", roll3: "中国_rollmean3"},
	"overseas": {target: "海外合計", lag1: "海外合計_lag1", lag2: "海外合計_lag2", roll3: "海外合計_rollmean3"},
}

// modelKeyFor maps a market to its trained model family: a dedicated china
// model, the overseas model for everything else.
func modelKeyFor(market string) string {
	if market == model.MarketChina {
		return "china"
	}
	return "overseas"
}

// Metadata describes the trained regressor's expected feature schema.
type Metadata struct {
	FeatureCols     []string            `json:"feature_cols"`
	CategoricalCols []string            `json:"categorical_cols"`
	CategoryLevels  map[string][]string `json:"category_levels"`
}

// regressor is the prediction surface of a loaded ensemble.
type regressor interface {
	PredictSingle(fvals []float64, nEstimators int) float64
}

type artifact struct {
	ensemble regressor
	meta     Metadata
	catSet   map[string]bool
}

// ModelStrategy projects growth by recursively invoking a trained regressor
// on facility-level history: at each step it re-derives lag/rolling features,
// predicts per facility, and appends the predictions to the working history
// so the next step's features reflect them. Errors and shocks therefore
// compound across steps instead of being computed independently per horizon
// step.
type ModelStrategy struct {
	modelDir   string
	panelPaths map[string]string
	exogPath   string
	scenarios  *scenario.Registry
	log        zerolog.Logger

	mu        sync.Mutex
	artifacts map[string]*artifact
	panels    map[string][]PanelRow
	exog      []ExogRow
	hasExog   bool
}

// NewModelStrategy creates the model strategy. panelPaths maps model keys
// ("china", "overseas") to their history tables.
func NewModelStrategy(modelDir string, panelPaths map[string]string, exogPath string, scenarios *scenario.Registry, log zerolog.Logger) *ModelStrategy {
	return &ModelStrategy{
		modelDir:   modelDir,
		panelPaths: panelPaths,
		exogPath:   exogPath,
		scenarios:  scenarios,
		log:        log.With().Str("strategy", "lightgbm").Logger(),
		artifacts:  make(map[string]*artifact),
		panels:     make(map[string][]PanelRow),
	}
}

func (m *ModelStrategy) Name() string { return "lightgbm-v1" }

// Ready probes whether the artifacts needed for a market are present on
// disk. Availability can change between deployments, so this is checked per
// call rather than configured statically.
func (m *ModelStrategy) Ready(market string) bool {
	if m.modelDir == "" {
		return false
	}
	key := modelKeyFor(market)
	if m.panelPaths[key] == "" {
		return false
	}
	for _, name := range []string{key + "_model.txt", key + "_metadata.json"} {
		if _, err := os.Stat(filepath.Join(m.modelDir, name)); err != nil {
			return false
		}
	}
	return true
}

// Forecast runs the recursive model projection for the base line and every
// selected scenario. Any failure is returned to the selector, which degrades
// to the heuristic strategy.
func (m *ModelStrategy) Forecast(req Request) (*model.ForecastPayload, error) {
	key := modelKeyFor(req.Market)
	cfg := targetConfigs[key]

	panel, err := m.panel(key)
	if err != nil {
		return nil, err
	}
	filtered := filterPanel(panel, req.Region)
	usedFallback := 0.0
	if len(filtered) == 0 {
		// region-sparse panels fall back to the whole table rather than fail
		filtered = panel
		usedFallback = 1
	}

	baseKey, err := resolveBase(filtered, req.BaseYear, req.BaseMonth)
	if err != nil {
		return nil, err
	}

	art, err := m.artifact(key)
	if err != nil {
		return nil, err
	}
	exog, err := m.exogRows()
	if err != nil {
		return nil, err
	}

	shocks, err := m.scenarios.Load()
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(shocks))
	for id := range shocks {
		known[id] = true
	}
	ids := selectScenarioIDs(req.ScenarioIDs, known)

	run := &modelRun{
		cfg:     cfg,
		art:     art,
		exog:    exog,
		market:  req.Market,
		baseKey: baseKey,
		horizon: req.Horizon,
		custom:  req.CustomShock,
	}

	// Scenario projections are independent given their own history
	// accumulators, so they run concurrently.
	results := make([][]model.ForecastPoint, len(ids)+1)
	var basePrediction prediction
	var g errgroup.Group
	g.Go(func() error {
		pred, err := run.predictRecursive(filtered, nil)
		if err != nil {
			return err
		}
		basePrediction = pred
		results[0] = pred.points
		return nil
	})
	for i, id := range ids {
		i, shock := i, shocks[id]
		g.Go(func() error {
			pred, err := run.predictRecursive(filtered, shock)
			if err != nil {
				return err
			}
			results[i+1] = pred.points
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scenarios := []model.ForecastScenario{{
		ScenarioID:   "base",
		ScenarioName: "baseline",
		Note:         "baseline case without external shock",
		Points:       results[0],
	}}
	for i, id := range ids {
		shock := shocks[id]
		scenarios = append(scenarios, model.ForecastScenario{
			ScenarioID:   id,
			ScenarioName: shock.EventName,
			Note:         shock.Note,
			Points:       results[i+1],
		})
	}

	available, err := m.scenarios.ListAvailable()
	if err != nil {
		return nil, err
	}

	targetKey := 2.0
	if key == "china" {
		targetKey = 1
	}
	return &model.ForecastPayload{
		ModelVersion:       m.Name(),
		TargetMetric:       TargetMetric,
		Prefecture:         req.Region,
		Market:             req.Market,
		BaseYear:           baseKey.Year,
		BaseMonth:          baseKey.Month,
		HorizonMonths:      req.Horizon,
		BaselineGrowthRate: basePrediction.baselineGrowth,
		FeatureSnapshot: map[string]float64{
			"base_total":               basePrediction.baseTotal,
			"prev_total":               basePrediction.prevTotal,
			"facility_count":           float64(basePrediction.facilityCount),
			"target_key":               targetKey,
			"used_prefecture_fallback": usedFallback,
		},
		AvailableScenarios: available,
		Scenarios:          scenarios,
	}, nil
}

// modelRun bundles the per-request constants shared by all scenario runs.
type modelRun struct {
	cfg     targetConfig
	art     *artifact
	exog    []ExogRow
	market  string
	baseKey model.MonthKey
	horizon int
	custom  float64
}

type prediction struct {
	points         []model.ForecastPoint
	baseTotal      float64
	prevTotal      float64
	facilityCount  int
	baselineGrowth float64
}

// facilitySeries is one facility's chronological target history plus the
// static attributes the regressor consumes. Each scenario run works on its
// own copy; appended synthetic predictions stay scoped to the run.
type facilitySeries struct {
	id          string
	ward        string
	licenseType string
	roomScale   string
	lat         float64
	lng         float64
	values      []float64
}

func (f *facilitySeries) lag1() float64 {
	return f.values[len(f.values)-1]
}

func (f *facilitySeries) lag2() float64 {
	if len(f.values) < 2 {
		return 0
	}
	return f.values[len(f.values)-2]
}

func (f *facilitySeries) roll3() float64 {
	n := len(f.values)
	take := 3
	if n < take {
		take = n
	}
	sum := 0.0
	for _, v := range f.values[n-take:] {
		sum += v
	}
	return sum / float64(take)
}

// predictRecursive projects horizon months for one scenario (nil means the
// base line). The history accumulator is rebuilt per run so step N's feature
// derivation is reproducible from step N-1's output alone.
func (r *modelRun) predictRecursive(rows []PanelRow, shock *scenario.Shock) (prediction, error) {
	baseTotal, facilityCount := totalAt(rows, r.baseKey)
	if facilityCount == 0 {
		return prediction{}, fmt.Errorf("forecast: no history rows at base %s", r.baseKey.MonthDate())
	}
	py, pm := model.PrevMonth(r.baseKey.Year, r.baseKey.Month)
	prevTotal, prevCount := totalAt(rows, model.MonthKey{Year: py, Month: pm})
	if prevCount == 0 {
		prevTotal = baseTotal
	}
	baselineGrowth := calculator.SafeGrowth(baseTotal, prevTotal)

	series := buildSeries(rows)

	points := make([]model.ForecastPoint, 0, r.horizon)
	prevTotalForGrowth := baseTotal
	for step := 1; step <= r.horizon; step++ {
		fy, fm := model.AddMonths(r.baseKey.Year, r.baseKey.Month, step)
		exog := selectExog(r.exog, fy, fm)

		shockRate := 0.0
		if shock != nil {
			shockRate = shock.For(r.market, fm) + r.custom
		}
		adjustExog(exog, r.market, shockRate, shock)

		monthSin := math.Sin(2 * math.Pi * float64(fm) / 12.0)
		monthCos := math.Cos(2 * math.Pi * float64(fm) / 12.0)

		stepTotal := 0.0
		for _, fac := range series {
			fvals := r.featureVector(fac, exog, monthSin, monthCos)
			pred := r.art.ensemble.PredictSingle(fvals, 0)
			if pred < 0 || math.IsNaN(pred) {
				pred = 0
			}
			fac.values = append(fac.values, pred)
			stepTotal += pred
		}

		points = append(points, model.ForecastPoint{
			Step:                step,
			Year:                fy,
			Month:               fm,
			MonthDate:           model.MonthKey{Year: fy, Month: fm}.MonthDate(),
			PredictedGrowthRate: calculator.SafeGrowth(stepTotal, prevTotalForGrowth),
			AppliedShockRate:    shockRate,
			SeasonalComponent:   0,
		})
		prevTotalForGrowth = stepTotal
	}

	return prediction{
		points:         points,
		baseTotal:      baseTotal,
		prevTotal:      prevTotal,
		facilityCount:  facilityCount,
		baselineGrowth: baselineGrowth,
	}, nil
}

// featureVector assembles the regressor input in the metadata's column
// order. Unknown columns read as 0; categorical values map to their level
// index per the metadata's category_levels table.
func (r *modelRun) featureVector(fac *facilitySeries, exog map[string]float64, monthSin, monthCos float64) []float64 {
	fvals := make([]float64, len(r.art.meta.FeatureCols))
	for i, name := range r.art.meta.FeatureCols {
		if r.art.catSet[name] {
			fvals[i] = categoryCode(r.art.meta.CategoryLevels[name], fac.categoricalValue(name))
			continue
		}
		switch name {
		case r.cfg.lag1:
			fvals[i] = fac.lag1()
		case r.cfg.lag2:
			fvals[i] = fac.lag2()
		case r.cfg.roll3:
			fvals[i] = fac.roll3()
		case "month_sin":
			fvals[i] = monthSin
		case "month_cos":
			fvals[i] = monthCos
		case "latitude":
			fvals[i] = fac.lat
		case "longitude":
			fvals[i] = fac.lng
		default:
			if v, ok := exog[name]; ok {
				fvals[i] = v
			}
		}
	}
	return fvals
}

func (f *facilitySeries) categoricalValue(column string) string {
	switch column {
	case "ward":
		return f.ward
	case "hotel_license_type":
		return f.licenseType
	case "room_scale":
		return f.roomScale
	}
	return ""
}

func categoryCode(levels []string, value string) float64 {
	for i, level := range levels {
		if level == value {
			return float64(i)
		}
	}
	return 0
}

// adjustExog applies the scenario shock multiplicatively to the market's
// covariate, and the fixed ±10% FX perturbation for the currency scenarios.
func adjustExog(exog map[string]float64, market string, shockRate float64, shock *scenario.Shock) {
	if market == model.MarketChina {
		if v, ok := exog["chinese_total"]; ok {
			exog["chinese_total"] = v * (1 + shockRate)
		}
	} else {
		if v, ok := exog["visitors_overseas_total"]; ok {
			exog["visitors_overseas_total"] = v * (1 + shockRate)
		}
	}
	if shock == nil {
		return
	}
	factor := 0.0
	switch shock.EventID {
	case scenarioFXAppreciation:
		factor = 0.9
	case scenarioFXDepreciation:
		factor = 1.1
	default:
		return
	}
	for _, name := range []string{"usd_jpy", "cny_jpy"} {
		if v, ok := exog[name]; ok {
			exog[name] = v * factor
		}
	}
}

// buildSeries groups sorted panel rows into per-facility series. Row order is
// (facility, month) ascending, so appends preserve chronology.
func buildSeries(rows []PanelRow) []*facilitySeries {
	var series []*facilitySeries
	var cur *facilitySeries
	for i := range rows {
		row := &rows[i]
		if cur == nil || cur.id != row.FacilityID {
			cur = &facilitySeries{
				id:          row.FacilityID,
				ward:        row.Ward,
				licenseType: row.LicenseType,
				roomScale:   row.RoomScale,
				lat:         row.Lat,
				lng:         row.Lng,
			}
			series = append(series, cur)
		}
		cur.values = append(cur.values, row.Target)
	}
	return series
}

func totalAt(rows []PanelRow, key model.MonthKey) (float64, int) {
	total := 0.0
	facilities := make(map[string]bool)
	for i := range rows {
		if rows[i].Key() == key {
			total += rows[i].Target
			facilities[rows[i].FacilityID] = true
		}
	}
	return total, len(facilities)
}

// resolveBase picks the forecast anchor month within the panel: the exact
// (year, month) when present, else the most recent earlier month, else the
// last known month. A nil year resolves to the latest year holding the month.
func resolveBase(rows []PanelRow, baseYear *int, baseMonth int) (model.MonthKey, error) {
	if len(rows) == 0 {
		return model.MonthKey{}, fmt.Errorf("forecast: empty panel history")
	}
	seen := make(map[model.MonthKey]bool)
	var keys []model.MonthKey
	for i := range rows {
		k := rows[i].Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	last := keys[0]
	for _, k := range keys[1:] {
		if last.Before(k) {
			last = k
		}
	}

	year := 0
	if baseYear != nil {
		year = *baseYear
	} else {
		for _, k := range keys {
			if k.Month == baseMonth && k.Year > year {
				year = k.Year
			}
		}
		if year == 0 {
			year = last.Year
		}
	}

	target := model.MonthKey{Year: year, Month: baseMonth}
	if seen[target] {
		return target, nil
	}
	best := model.MonthKey{}
	found := false
	for _, k := range keys {
		if !target.Before(k) && (!found || best.Before(k)) {
			best = k
			found = true
		}
	}
	if found {
		return best, nil
	}
	return last, nil
}

func filterPanel(rows []PanelRow, region string) []PanelRow {
	keywords := ingest.PrefectureKeywords[region]
	if len(keywords) == 0 {
		return rows
	}
	out := make([]PanelRow, 0, len(rows))
	for i := range rows {
		if ingest.InRegion(rows[i].Address, rows[i].Ward, keywords) {
			out = append(out, rows[i])
		}
	}
	return out
}

func (m *ModelStrategy) artifact(key string) (*artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if art, ok := m.artifacts[key]; ok {
		return art, nil
	}
	modelPath := filepath.Join(m.modelDir, key+"_model.txt")
	metaPath := filepath.Join(m.modelDir, key+"_metadata.json")

	ensemble, err := leaves.LGEnsembleFromFile(modelPath, true)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("load metadata %s: %w", metaPath, err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", metaPath, err)
	}
	if len(meta.FeatureCols) == 0 {
		return nil, fmt.Errorf("metadata %s lists no feature columns", metaPath)
	}

	catSet := make(map[string]bool, len(meta.CategoricalCols))
	for _, c := range meta.CategoricalCols {
		catSet[c] = true
	}
	art := &artifact{ensemble: ensemble, meta: meta, catSet: catSet}
	m.artifacts[key] = art
	m.log.Info().Str("model_key", key).Int("features", len(meta.FeatureCols)).Msg("model artifact loaded")
	return art, nil
}

// BaseKey resolves the forecast anchor month from the panel history, for
// callers that need the anchor before running a forecast.
func (m *ModelStrategy) BaseKey(market string, baseYear *int, baseMonth int) (model.MonthKey, error) {
	panel, err := m.panel(modelKeyFor(market))
	if err != nil {
		return model.MonthKey{}, err
	}
	return resolveBase(panel, baseYear, baseMonth)
}

func (m *ModelStrategy) panel(key string) ([]PanelRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rows, ok := m.panels[key]; ok {
		return rows, nil
	}
	path := m.panelPaths[key]
	if path == "" {
		return nil, fmt.Errorf("forecast: no panel configured for %s", key)
	}
	rows, err := LoadPanel(path, targetConfigs[key].target)
	if err != nil {
		return nil, err
	}
	m.panels[key] = rows
	return rows, nil
}

func (m *ModelStrategy) exogRows() ([]ExogRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasExog {
		return m.exog, nil
	}
	if m.exogPath == "" {
		// the regressor was trained with exog covariates; running without
		// them silently skews every prediction
		return nil, fmt.Errorf("forecast: no exogenous covariate table configured")
	}
	rows, err := LoadExog(m.exogPath)
	if err != nil {
		return nil, err
	}
	m.exog = rows
	m.hasExog = true
	return rows, nil
}
