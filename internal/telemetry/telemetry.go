// Package telemetry wires OpenTelemetry tracing and metrics for outbound PBX
// calls. Exporters write to stdout or a file; when disabled the providers are
// no-ops.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names the tracer and meter used across the module.
const InstrumentationName = "github.com/pbxgate/pbxgate"

// Config controls the exporters.
type Config struct {
	Enabled bool
	// Output is "stdout" or "file:///absolute/path".
	Output string
	// MetricInterval is how often metrics are exported. Defaults to 30s.
	MetricInterval time.Duration
	ServiceName    string
	ServiceVersion string
}

// Provider owns the tracer and meter providers and their shutdown.
type Provider struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	shutdown       func(ctx context.Context) error
}

// Noop returns a provider that records nothing.
func Noop() *Provider {
	return &Provider{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
		shutdown:       func(context.Context) error { return nil },
	}
}

// New configures tracing and metrics from cfg and installs the providers
// globally. A disabled config yields Noop().
func New(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}

	w, closeOutput, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pbx-gate"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		_ = closeOutput()
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExp),
	)

	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		_ = tp.Shutdown(context.Background())
		_ = closeOutput()
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval))),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		shutdown: func(ctx context.Context) error {
			return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx), closeOutput())
		},
	}, nil
}

// Tracer returns the module tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracerProvider == nil {
		return otel.Tracer(InstrumentationName)
	}
	return p.tracerProvider.Tracer(InstrumentationName)
}

// Meter returns the module meter.
func (p *Provider) Meter() metric.Meter {
	if p == nil || p.meterProvider == nil {
		return otel.Meter(InstrumentationName)
	}
	return p.meterProvider.Meter(InstrumentationName)
}

// Shutdown flushes exporters and closes the output file.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

func openOutput(output string) (io.Writer, func() error, error) {
	switch {
	case output == "" || output == "stdout":
		return os.Stdout, func() error { return nil }, nil
	case strings.HasPrefix(output, "file://"):
		path := strings.TrimPrefix(output, "file://")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open telemetry output: %w", err)
		}
		return f, f.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported telemetry output %q", output)
	}
}
