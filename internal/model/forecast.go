package model

// ForecastPoint is one projected month of growth rate. Points are 1-indexed
// by step and contiguous within a scenario.
type ForecastPoint struct {
	Step                int     `json:"step"`
	Year                int     `json:"year"`
	Month               int     `json:"month"`
	MonthDate           string  `json:"month_date"`
	PredictedGrowthRate float64 `json:"predicted_growth_rate"`
	AppliedShockRate    float64 `json:"applied_shock_rate"`
	SeasonalComponent   float64 `json:"seasonal_component"`
}

// ForecastScenario is one named projection line.
type ForecastScenario struct {
	ScenarioID   string          `json:"scenario_id"`
	ScenarioName string          `json:"scenario_name_ja"`
	Note         string          `json:"note"`
	Points       []ForecastPoint `json:"points"`
}

// ScenarioSummary describes a selectable shock scenario.
type ScenarioSummary struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name_ja"`
	Note      string `json:"note"`
}

// ForecastPayload is the full response for one forecast request: the "base"
// no-intervention line plus zero or more shocked scenarios. Never mutated
// after construction; cached instances are shared between callers.
type ForecastPayload struct {
	ModelVersion       string             `json:"model_version"`
	TargetMetric       string             `json:"target_metric"`
	Prefecture         string             `json:"prefecture"`
	Market             string             `json:"market"`
	BaseYear           int                `json:"base_year"`
	BaseMonth          int                `json:"base_month"`
	HorizonMonths      int                `json:"horizon_months"`
	BaselineGrowthRate float64            `json:"baseline_growth_rate"`
	FeatureSnapshot    map[string]float64 `json:"feature_snapshot"`
	AvailableScenarios []ScenarioSummary  `json:"available_scenarios"`
	Scenarios          []ForecastScenario `json:"scenarios"`
}
