// Package obs exports service-level metrics over OTLP/gRPC. Without a
// collector endpoint configured every call is a no-op, so callers never
// need to guard their instrumentation.
package obs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tradetape/tradetape/internal/config"
)

// Telemetry owns the meter provider and the service-level instruments.
// The zero value is a disabled handle whose methods all no-op.
type Telemetry struct {
	provider *sdkmetric.MeterProvider

	records  metric.Int64Counter
	recalls  metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

// New builds a Telemetry handle for the configured collector endpoint.
// An empty endpoint returns a disabled handle and exports nothing.
func New(ctx context.Context, cfg config.TelemetryConfig) (*Telemetry, error) {
	if cfg.Endpoint == "" {
		return &Telemetry{}, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	t, err := newTelemetry(cfg, sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(15*time.Second),
	))
	if err != nil {
		return nil, err
	}

	otel.SetMeterProvider(t.provider)
	slog.Info("Telemetry export enabled", "endpoint", cfg.Endpoint, "service", serviceName(cfg))
	return t, nil
}

// newTelemetry wires the provider and instruments around a reader.
func newTelemetry(cfg config.TelemetryConfig, reader sdkmetric.Reader) (*Telemetry, error) {
	// The service resource is schemaless so the merge never conflicts
	// with the schema URL of the SDK's built-in detectors.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName(cfg))),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	t := &Telemetry{
		provider: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		),
	}

	meter := t.provider.Meter("tradetape")

	if t.records, err = meter.Int64Counter("tradetape.records",
		metric.WithDescription("Journal write operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, err
	}
	if t.recalls, err = meter.Int64Counter("tradetape.recalls",
		metric.WithDescription("Similarity retrievals"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, err
	}
	if t.errors, err = meter.Int64Counter("tradetape.errors",
		metric.WithDescription("Failed operations"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if t.duration, err = meter.Float64Histogram("tradetape.op.duration",
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	); err != nil {
		return nil, err
	}

	return t, nil
}

func serviceName(cfg config.TelemetryConfig) string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}
	return "tradetape"
}

// Enabled reports whether metrics are collected and exported.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.provider != nil
}

// Track starts timing an operation and returns its completion callback.
// Write operations count toward tradetape.records, retrievals toward
// tradetape.recalls, and failures of any kind toward tradetape.errors.
func (t *Telemetry) Track(ctx context.Context, op string) func(err error) {
	if !t.Enabled() {
		return func(error) {}
	}
	start := time.Now()
	return func(err error) {
		attrs := metric.WithAttributes(attribute.String("op", op))
		t.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		switch op {
		case "record", "record_batch", "update_outcome":
			t.records.Add(ctx, 1, attrs)
		case "similar", "advise":
			t.recalls.Add(ctx, 1, attrs)
		}
		if err != nil {
			t.errors.Add(ctx, 1, attrs)
		}
	}
}

// Shutdown flushes pending metrics and stops the exporter.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
