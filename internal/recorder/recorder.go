package recorder

// ForecastRecord summarizes one computed forecast payload for audit.
type ForecastRecord struct {
	Region         string
	Market         string
	BaseYear       int
	BaseMonth      int
	HorizonMonths  int
	ModelVersion   string
	BaselineGrowth float64
	ScenarioCount  int
	CacheHit       bool
}

// MetricsRecord summarizes one current concentration snapshot.
type MetricsRecord struct {
	Region             string
	Market             string
	Year               int
	Month              int
	MarketTotal        float64
	FacilityCountTotal int
	ActiveCount        int
	HHI                *float64
	EntropyNorm        *float64
	Top1Share          *float64
}

// Recorder persists request summaries for offline analysis.
type Recorder interface {
	RecordForecast(rec *ForecastRecord) error
	RecordMetrics(rec *MetricsRecord) error
	Close() error
}
