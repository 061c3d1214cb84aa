package forecast

import (
	"fmt"

	"github.com/rs/zerolog"

	"LodgingPulse/internal/model"
)

// TargetMetric is the quantity every forecast projects.
const TargetMetric = "guest_growth_rate"

// defaultScenarioIDs are applied when a request names no scenarios.
var defaultScenarioIDs = []string{"fx_jpy_depreciation", "infectious_disease_resurgence"}

// Request carries every input that affects a forecast.
type Request struct {
	Region      string
	Market      string
	BaseYear    *int
	BaseMonth   int
	Horizon     int
	ScenarioIDs []string
	CustomShock float64
}

// StepForecaster produces a multi-month recursive projection. Both strategies
// return an identical payload shape; callers cannot tell them apart except by
// the model_version field.
type StepForecaster interface {
	Forecast(req Request) (*model.ForecastPayload, error)
	Name() string
}

// Selector picks the strategy per call by probing artifact availability.
// Model unavailability is never a caller-visible error: any model-side
// failure degrades to the heuristic strategy with a log line.
type Selector struct {
	heuristic StepForecaster
	model     *ModelStrategy
	log       zerolog.Logger
}

// NewSelector builds a Selector. model may be nil when no artifact directory
// is configured.
func NewSelector(heuristic StepForecaster, model *ModelStrategy, log zerolog.Logger) *Selector {
	return &Selector{
		heuristic: heuristic,
		model:     model,
		log:       log.With().Str("component", "forecast").Logger(),
	}
}

// BuildPayload runs the best available strategy for the request.
func (s *Selector) BuildPayload(req Request) (*model.ForecastPayload, error) {
	if s.model != nil && s.model.Ready(req.Market) {
		payload, err := s.model.Forecast(req)
		if err == nil {
			return payload, nil
		}
		s.log.Warn().Err(err).
			Str("region", req.Region).
			Str("market", req.Market).
			Msg("model strategy failed, degrading to heuristic")
	}
	return s.heuristic.Forecast(req)
}

// ResolveBaseYear resolves the anchor year from the model panel when the
// model strategy can serve the market. Callers use it when partition files
// hold no data for the requested month.
func (s *Selector) ResolveBaseYear(req Request) (int, error) {
	if s.model == nil || !s.model.Ready(req.Market) {
		return 0, fmt.Errorf("forecast: no model panel available for %s", req.Market)
	}
	key, err := s.model.BaseKey(req.Market, req.BaseYear, req.BaseMonth)
	if err != nil {
		return 0, err
	}
	return key.Year, nil
}

// selectScenarioIDs filters requested ids against the registry, preserving
// order and silently dropping unknown ids. An empty request gets the
// default scenario pair.
func selectScenarioIDs(requested []string, known map[string]bool) []string {
	ids := requested
	if len(ids) == 0 {
		ids = defaultScenarioIDs
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if known[id] {
			out = append(out, id)
		}
	}
	return out
}
