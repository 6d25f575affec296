package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/shopauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot shopauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() shopauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := shopauth.MetricsSnapshot{
		Counters:   make(map[shopauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[shopauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func collectSum(t *testing.T, rm metricdata.ResourceMetrics, name string) (int64, bool) {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && len(sum.DataPoints) > 0 {
				return sum.DataPoints[0].Value, true
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("shopauth-test")

	src := &fakeSource{
		snapshot: shopauth.MetricsSnapshot{
			Counters: map[shopauth.MetricID]uint64{
				shopauth.MetricLoginSuccess:  3,
				shopauth.MetricAccountLocked: 1,
			},
			Histograms: map[shopauth.MetricID][]uint64{
				shopauth.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := New(meter, src)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if v, ok := collectSum(t, rm, "shopauth_login_success_total"); !ok || v != 3 {
		t.Fatalf("login success = %d, %v", v, ok)
	}
	if v, ok := collectSum(t, rm, "shopauth_audit_dropped_total"); !ok || v != 1 {
		t.Fatalf("audit dropped = %d, %v", v, ok)
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("shopauth-test")

	if _, err := New(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := New(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("shopauth-test")

	src := &fakeSource{
		snapshot: shopauth.MetricsSnapshot{
			Counters:   map[shopauth.MetricID]uint64{shopauth.MetricLoginSuccess: 1},
			Histograms: map[shopauth.MetricID][]uint64{},
		},
	}

	exp, err := New(meter, src)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[shopauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestLogPipelineExportsOnShutdown(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	src := &fakeSource{
		snapshot: shopauth.MetricsSnapshot{
			Counters:   map[shopauth.MetricID]uint64{shopauth.MetricLoginSuccess: 5},
			Histograms: map[shopauth.MetricID][]uint64{},
		},
		dropped: 2,
	}

	p, err := NewLogPipeline(src, zap.New(core), time.Hour)
	if err != nil {
		t.Fatalf("NewLogPipeline failed: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	entries := logs.FilterMessage("metrics").All()
	if len(entries) != 1 {
		t.Fatalf("expected one metrics entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["shopauth_login_success_total"] != int64(5) {
		t.Fatalf("login success field = %v", fields["shopauth_login_success_total"])
	}
	if fields["shopauth_audit_dropped_total"] != int64(2) {
		t.Fatalf("audit dropped field = %v", fields["shopauth_audit_dropped_total"])
	}
}

func TestLogPipelineRejectsZeroInterval(t *testing.T) {
	if _, err := NewLogPipeline(&fakeSource{}, nil, 0); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
