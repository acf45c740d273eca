package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the Prometheus exporter and sets the global meter
// provider. Setup already performs this as part of its own provider
// construction; this entry point exists for callers that only need the
// metrics half (e.g. a tool invoked outside the full Setup lifecycle).
func InitMetrics() error {
	exporter, err := prometheus.New()
	if err != nil {
		return err
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	return nil
}
