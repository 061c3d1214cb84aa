package forecast

import (
	"github.com/rs/zerolog"

	"LodgingPulse/internal/calculator"
	"LodgingPulse/internal/ingest"
	"LodgingPulse/internal/model"
	"LodgingPulse/internal/scenario"
)

// Heuristic is the closed-form blend strategy: previous-step momentum against
// trend, seasonal oscillation, and the active shock, clamped per step.
type Heuristic struct {
	loader    *ingest.Loader
	scenarios *scenario.Registry
	log       zerolog.Logger
}

// NewHeuristic creates the heuristic strategy.
func NewHeuristic(loader *ingest.Loader, scenarios *scenario.Registry, log zerolog.Logger) *Heuristic {
	return &Heuristic{
		loader:    loader,
		scenarios: scenarios,
		log:       log.With().Str("strategy", "heuristic").Logger(),
	}
}

func (h *Heuristic) Name() string { return "heuristic-v1" }

// Forecast projects growth from the aggregate baseline of the region/market.
func (h *Heuristic) Forecast(req Request) (*model.ForecastPayload, error) {
	baseYear, err := h.resolveBaseYear(req)
	if err != nil {
		return nil, err
	}

	baseline, err := EstimateBaseline(h.loader, req.Region, baseYear, req.BaseMonth, req.Market)
	if err != nil {
		return nil, err
	}

	shocks, err := h.scenarios.Load()
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(shocks))
	for id := range shocks {
		known[id] = true
	}
	ids := selectScenarioIDs(req.ScenarioIDs, known)

	// The "base" line always comes first: a no-intervention reference with
	// zero shock at every step.
	scenarios := []model.ForecastScenario{{
		ScenarioID:   "base",
		ScenarioName: "baseline",
		Note:         "baseline case without external shock",
		Points: buildPoints(baseYear, req.BaseMonth, req.Horizon, baseline,
			func(int) float64 { return 0 }),
	}}

	for _, id := range ids {
		shock := shocks[id]
		scenarios = append(scenarios, model.ForecastScenario{
			ScenarioID:   id,
			ScenarioName: shock.EventName,
			Note:         shock.Note,
			Points: buildPoints(baseYear, req.BaseMonth, req.Horizon, baseline,
				func(month int) float64 {
					return shock.For(req.Market, month) + req.CustomShock
				}),
		})
	}

	available, err := h.scenarios.ListAvailable()
	if err != nil {
		return nil, err
	}

	return &model.ForecastPayload{
		ModelVersion:       h.Name(),
		TargetMetric:       TargetMetric,
		Prefecture:         req.Region,
		Market:             req.Market,
		BaseYear:           baseYear,
		BaseMonth:          req.BaseMonth,
		HorizonMonths:      req.Horizon,
		BaselineGrowthRate: baseline.BaselineGrowth,
		FeatureSnapshot:    baseline.Snapshot(),
		AvailableScenarios: available,
		Scenarios:          scenarios,
	}, nil
}

func (h *Heuristic) resolveBaseYear(req Request) (int, error) {
	if req.BaseYear != nil {
		return *req.BaseYear, nil
	}
	return h.loader.ResolveYear(req.BaseMonth, nil)
}

// buildPoints runs the recursive blend: each step feeds the previous step's
// prediction back in as momentum.
func buildPoints(baseYear, baseMonth, horizon int, baseline Baseline, shockFor func(month int) float64) []model.ForecastPoint {
	prev := baseline.BaselineGrowth
	points := make([]model.ForecastPoint, 0, horizon)
	for step := 1; step <= horizon; step++ {
		year, month := model.AddMonths(baseYear, baseMonth, step)
		shock := shockFor(month)
		seasonal := calculator.Seasonal(month)
		predicted := calculator.BlendStep(prev, baseline.TrendGrowth, seasonal, shock)
		points = append(points, model.ForecastPoint{
			Step:                step,
			Year:                year,
			Month:               month,
			MonthDate:           model.MonthKey{Year: year, Month: month}.MonthDate(),
			PredictedGrowthRate: predicted,
			AppliedShockRate:    shock,
			SeasonalComponent:   seasonal,
		})
		prev = predicted
	}
	return points
}
