package otel

import (
	"context"
	"errors"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// LogPipeline owns a MeterProvider whose periodic reader writes every
// collection to a zap logger. It is the in-process alternative to scraping
// /metrics.
type LogPipeline struct {
	provider *sdkmetric.MeterProvider
	exporter *Exporter
}

// NewLogPipeline registers source on a fresh MeterProvider that exports
// every interval.
func NewLogPipeline(source Source, logger *zap.Logger, interval time.Duration) (*LogPipeline, error) {
	if interval <= 0 {
		return nil, errors.New("otel: interval must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reader := sdkmetric.NewPeriodicReader(&logExporter{logger: logger.Named("metrics")},
		sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exp, err := New(provider.Meter("github.com/MrEthical07/shopauth"), source)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return &LogPipeline{provider: provider, exporter: exp}, nil
}

// Shutdown exports one last collection, then unregisters the instruments.
func (p *LogPipeline) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return errors.Join(p.provider.Shutdown(ctx), p.exporter.Close())
}

// logExporter is a push exporter that writes one entry per collection.
type logExporter struct {
	logger *zap.Logger
}

var _ sdkmetric.Exporter = (*logExporter)(nil)

func (e *logExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *logExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *logExporter) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	var fields []zap.Field
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					fields = append(fields, zap.Int64(m.Name, dp.Value))
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					fields = append(fields, zap.Int64(m.Name, dp.Value))
				}
			}
		}
	}
	if len(fields) > 0 {
		e.logger.Info("metrics", fields...)
	}
	return nil
}

func (e *logExporter) ForceFlush(context.Context) error { return nil }

func (e *logExporter) Shutdown(context.Context) error { return nil }
