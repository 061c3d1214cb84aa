package recorder

// NoopRecorder discards all records. Used when no database path is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordForecast(*ForecastRecord) error { return nil }
func (n *NoopRecorder) RecordMetrics(*MetricsRecord) error   { return nil }
func (n *NoopRecorder) Close() error                         { return nil }
