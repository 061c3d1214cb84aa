package engine

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"LodgingPulse/internal/cache"
	"LodgingPulse/internal/forecast"
	"LodgingPulse/internal/ingest"
	"LodgingPulse/internal/metrics"
	"LodgingPulse/internal/model"
	"LodgingPulse/internal/recorder"
	"LodgingPulse/internal/scenario"
)

// DefaultMaxPoints caps a dependency point listing.
const DefaultMaxPoints = 2500

// ForecastRequest is the validated external shape of a forecast call.
// Lat/Lng participate only in cache identity; the projection itself is
// region-scoped.
type ForecastRequest struct {
	Region      string   `json:"region" validate:"required"`
	Market      string   `json:"market" validate:"required"`
	BaseYear    *int     `json:"base_year"`
	BaseMonth   int      `json:"base_month" validate:"min=1,max=12"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Horizon     int      `json:"horizon_months" validate:"min=0,max=24"`
	ScenarioIDs []string `json:"scenario_ids"`
	CustomShock float64  `json:"custom_shock" validate:"min=-1,max=1"`
}

// Engine is the facade over ingestion, metrics, forecasting, caching and
// auditing. All collaborators are injected.
type Engine struct {
	loader    *ingest.Loader
	metrics   *metrics.Builder
	scenarios *scenario.Registry
	selector  *forecast.Selector
	cache     *cache.ForecastCache
	recorder  recorder.Recorder
	validate  *validator.Validate
	log       zerolog.Logger
}

// New wires an Engine from its collaborators.
func New(
	loader *ingest.Loader,
	builder *metrics.Builder,
	scenarios *scenario.Registry,
	selector *forecast.Selector,
	fc *cache.ForecastCache,
	rec recorder.Recorder,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		loader:    loader,
		metrics:   builder,
		scenarios: scenarios,
		selector:  selector,
		cache:     fc,
		recorder:  rec,
		validate:  validator.New(),
		log:       log.With().Str("component", "engine").Logger(),
	}
}

// LoadRows returns the raw partition rows for a month, resolving the year
// when unspecified.
func (e *Engine) LoadRows(month int, year *int) (int, []model.MonthlyRow, error) {
	return e.loader.LoadMonth(month, year)
}

// BuildDependencyPoints lists per-facility dependency scores for a region
// and month. maxPoints <= 0 applies DefaultMaxPoints.
func (e *Engine) BuildDependencyPoints(region string, month int, year *int, maxPoints int) (int, []model.DependencyPoint, error) {
	if month < 1 || month > 12 {
		return 0, nil, fmt.Errorf("month must be in 1..12, got %d", month)
	}
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return e.metrics.BuildDependencyPoints(region, month, year, maxPoints)
}

// BuildDependencyMetrics computes the concentration time series and current
// snapshot for a region and market, recording the snapshot for audit.
func (e *Engine) BuildDependencyMetrics(region string, month int, market string, year *int) (*metrics.DependencyMetrics, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("month must be in 1..12, got %d", month)
	}
	dm, err := e.metrics.BuildDependencyMetrics(region, month, market, year)
	if err != nil {
		return nil, err
	}

	if err := e.recorder.RecordMetrics(&recorder.MetricsRecord{
		Region:             region,
		Market:             market,
		Year:               dm.Current.Year,
		Month:              dm.Current.Month,
		MarketTotal:        dm.Current.MarketTotal,
		FacilityCountTotal: dm.Current.FacilityCountTotal,
		ActiveCount:        dm.Current.FacilityCountActive,
		HHI:                dm.Current.FacilityHHI,
		EntropyNorm:        dm.Current.FacilityEntropyNormActive,
		Top1Share:          dm.Current.FacilityTop1Share,
	}); err != nil {
		e.log.Warn().Err(err).Msg("record metrics snapshot failed")
	}
	return dm, nil
}

// BuildForecastPayload validates the request, resolves the base year, and
// serves the forecast through the TTL cache. Every call is recorded with its
// cache outcome.
func (e *Engine) BuildForecastPayload(req ForecastRequest) (*model.ForecastPayload, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid forecast request: %w", err)
	}

	fReq := forecast.Request{
		Region:      req.Region,
		Market:      req.Market,
		BaseYear:    req.BaseYear,
		BaseMonth:   req.BaseMonth,
		Horizon:     req.Horizon,
		ScenarioIDs: req.ScenarioIDs,
		CustomShock: req.CustomShock,
	}

	baseYear, err := e.loader.ResolveYear(req.BaseMonth, req.BaseYear)
	if err != nil {
		// partitions lack the month; the model panel may still anchor it
		panelYear, perr := e.selector.ResolveBaseYear(fReq)
		if perr != nil {
			return nil, err
		}
		baseYear = panelYear
	}

	key := cache.Key{
		Region:      req.Region,
		Market:      req.Market,
		BaseYear:    baseYear,
		BaseMonth:   req.BaseMonth,
		Lat:         req.Lat,
		Lng:         req.Lng,
		Horizon:     req.Horizon,
		ScenarioIDs: req.ScenarioIDs,
		CustomShock: req.CustomShock,
	}

	fReq.BaseYear = &baseYear
	computed := false
	payload, err := e.cache.GetOrCompute(key, func() (*model.ForecastPayload, error) {
		computed = true
		return e.selector.BuildPayload(fReq)
	})
	if err != nil {
		return nil, err
	}

	if err := e.recorder.RecordForecast(&recorder.ForecastRecord{
		Region:         req.Region,
		Market:         req.Market,
		BaseYear:       payload.BaseYear,
		BaseMonth:      payload.BaseMonth,
		HorizonMonths:  payload.HorizonMonths,
		ModelVersion:   payload.ModelVersion,
		BaselineGrowth: payload.BaselineGrowthRate,
		ScenarioCount:  len(payload.Scenarios),
		CacheHit:       !computed,
	}); err != nil {
		e.log.Warn().Err(err).Msg("record forecast request failed")
	}
	return payload, nil
}

// ListScenarios exposes the selectable shock scenarios.
func (e *Engine) ListScenarios() ([]model.ScenarioSummary, error) {
	return e.scenarios.ListAvailable()
}
