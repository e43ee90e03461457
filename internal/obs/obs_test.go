package obs

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/tradetape/tradetape/internal/config"
)

func newTestTelemetry(t *testing.T) (*Telemetry, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	tel, err := newTelemetry(config.TelemetryConfig{ServiceName: "tradetape-test"}, reader)
	if err != nil {
		t.Fatalf("newTelemetry: %v", err)
	}
	return tel, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func counterValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s carries %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestDisabledTelemetryIsNoop(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{ServiceName: "tradetape"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tel.Enabled() {
		t.Fatal("telemetry without an endpoint should be disabled")
	}
	done := tel.Track(context.Background(), "record")
	done(nil)
	done(errors.New("boom"))
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *Telemetry
	if tel.Enabled() {
		t.Fatal("nil telemetry should report disabled")
	}
	tel.Track(context.Background(), "similar")(nil)
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestTrackCountsWritesAndRecalls(t *testing.T) {
	tel, reader := newTestTelemetry(t)
	ctx := context.Background()

	tel.Track(ctx, "record")(nil)
	tel.Track(ctx, "record_batch")(nil)
	tel.Track(ctx, "update_outcome")(nil)
	tel.Track(ctx, "similar")(nil)
	tel.Track(ctx, "advise")(nil)
	tel.Track(ctx, "reindex")(nil)

	metrics := collect(t, reader)
	if got := counterValue(t, metrics["tradetape.records"]); got != 3 {
		t.Fatalf("records = %d, want 3", got)
	}
	if got := counterValue(t, metrics["tradetape.recalls"]); got != 2 {
		t.Fatalf("recalls = %d, want 2", got)
	}
	if m, ok := metrics["tradetape.errors"]; ok {
		if got := counterValue(t, m); got != 0 {
			t.Fatalf("errors = %d, want 0", got)
		}
	}
}

func TestTrackCountsFailures(t *testing.T) {
	tel, reader := newTestTelemetry(t)
	ctx := context.Background()

	tel.Track(ctx, "record")(errors.New("disk full"))
	tel.Track(ctx, "similar")(nil)

	metrics := collect(t, reader)
	if got := counterValue(t, metrics["tradetape.errors"]); got != 1 {
		t.Fatalf("errors = %d, want 1", got)
	}
	// A failed write still counts as an attempted write.
	if got := counterValue(t, metrics["tradetape.records"]); got != 1 {
		t.Fatalf("records = %d, want 1", got)
	}
}

func TestTrackRecordsDurationWithOpAttribute(t *testing.T) {
	tel, reader := newTestTelemetry(t)
	tel.Track(context.Background(), "reindex")(nil)

	metrics := collect(t, reader)
	m, ok := metrics["tradetape.op.duration"]
	if !ok {
		t.Fatal("duration histogram missing")
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration carries %T, want Histogram[float64]", m.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("duration data points = %d, want 1", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Fatalf("duration count = %d, want 1", dp.Count)
	}
	if v, ok := dp.Attributes.Value(attribute.Key("op")); !ok || v.AsString() != "reindex" {
		t.Fatalf("duration op attribute = %q, want %q", v.AsString(), "reindex")
	}
}

func TestResourceCarriesServiceName(t *testing.T) {
	tel, reader := newTestTelemetry(t)
	tel.Track(context.Background(), "record")(nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, kv := range rm.Resource.Attributes() {
		if kv.Key == attribute.Key("service.name") {
			if got := kv.Value.AsString(); got != "tradetape-test" {
				t.Fatalf("service.name = %q, want %q", got, "tradetape-test")
			}
			return
		}
	}
	t.Fatal("service.name attribute missing from resource")
}
