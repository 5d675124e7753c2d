package service

import (
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Brunno-Ar/SistemaPDV-sub001/internal/service"

type engineMetrics struct {
	salesFinalized metric.Int64Counter
	salesRejected  metric.Int64Counter
	noLotUnits     metric.Int64Counter
	saleAmount     metric.Float64Counter
	txDuration     metric.Float64Histogram
	stockAdjusted  metric.Int64Counter
}

// newEngineMetrics registers the engine's instruments on the global meter
// provider. Registration failures fall back to no-op instruments.
func newEngineMetrics() *engineMetrics {
	meter := otel.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	int64Counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.Warn().Err(err).Str("instrument", name).Msg("metrics: falling back to no-op")
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	amount, err := meter.Float64Counter("sale.amount", metric.WithDescription("Revenue of finalized sales"), metric.WithUnit("{currency}"))
	if err != nil {
		amount, _ = fallback.Float64Counter("sale.amount")
	}
	duration, err := meter.Float64Histogram("sale.tx.duration", metric.WithDescription("Atomic phase duration of sale finalization"), metric.WithUnit("ms"))
	if err != nil {
		duration, _ = fallback.Float64Histogram("sale.tx.duration")
	}

	return &engineMetrics{
		salesFinalized: int64Counter("sale.finalized", "Sales committed"),
		salesRejected:  int64Counter("sale.rejected", "Sales rejected by a precondition or rolled back"),
		noLotUnits:     int64Counter("sale.no_lot.units", "Units sold without a batch to draw from, costed at the average cost"),
		saleAmount:     amount,
		txDuration:     duration,
		stockAdjusted:  int64Counter("stock.adjusted.units", "Units moved by manual adjustments"),
	}
}

func tracer() trace.Tracer { return otel.Tracer(instrumentationName) }
