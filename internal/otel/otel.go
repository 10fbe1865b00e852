// Package otel wires OpenTelemetry for shotlens.
//
// Traces and metrics are exported over OTLP/HTTP when an endpoint is
// configured (config file or the standard OTEL_EXPORTER_OTLP_ENDPOINT).
// Without an endpoint every instrument is a no-op, so components can
// record unconditionally.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "shotlens"

// Version is reported as service.version. The CLI sets it from cmd.Version.
var Version = "dev"

const exportInterval = 30 * time.Second

// OTELConfig holds the exporter settings.
type OTELConfig struct {
	Endpoint string // OTLP base URL, e.g. "http://localhost:4318"
	Headers  string // "key=value,key2=value2", same format as OTEL_EXPORTER_OTLP_HEADERS
}

// Telemetry bundles the providers with the tracer and instruments handed
// to components.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	Tracer  trace.Tracer
	Metrics *Metrics
}

// collector is a parsed OTLP endpoint. The HTTP exporters take host:port
// and a URL path separately, so a base path such as "/otel" has to be
// carried into each signal path by hand.
type collector struct {
	host     string
	basePath string
	insecure bool
	headers  map[string]string
}

func parseCollector(cfg OTELConfig) (collector, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return collector{}, fmt.Errorf("otel: invalid endpoint URL %q: %w", cfg.Endpoint, err)
	}
	if u.Host == "" {
		return collector{}, fmt.Errorf("otel: endpoint %q has no host (want scheme://host:port)", cfg.Endpoint)
	}
	return collector{
		host:     u.Host,
		basePath: strings.TrimRight(u.Path, "/"),
		insecure: u.Scheme == "http",
		headers:  parseHeaders(cfg.Headers),
	}, nil
}

func (c collector) tracerProvider(ctx context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(c.host),
		otlptracehttp.WithURLPath(c.basePath + "/v1/traces"),
	}
	if c.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(c.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(c.headers))
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

func (c collector) meterProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(c.host),
		otlpmetrichttp.WithURLPath(c.basePath + "/v1/metrics"),
	}
	if c.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(c.headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(c.headers))
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(exportInterval))
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	), nil
}

// parseHeaders splits "key=value,key2=value2" into a map. Malformed pairs
// are skipped.
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers
}

// Init sets up tracing and metrics. With an empty cfg.Endpoint the
// returned Telemetry is fully usable but exports nothing.
func Init(ctx context.Context, cfg OTELConfig) (*Telemetry, error) {
	t := &Telemetry{}

	if cfg.Endpoint != "" {
		c, err := parseCollector(cfg)
		if err != nil {
			return nil, err
		}
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(Version),
			),
			resource.WithHost(),
		)
		if err != nil {
			return nil, fmt.Errorf("otel resource: %w", err)
		}
		if t.tp, err = c.tracerProvider(ctx, res); err != nil {
			return nil, err
		}
		if t.mp, err = c.meterProvider(ctx, res); err != nil {
			_ = t.tp.Shutdown(ctx)
			return nil, err
		}
		otel.SetTracerProvider(t.tp)
		otel.SetMeterProvider(t.mp)
	}

	t.Tracer = otel.Tracer(serviceName)

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("otel metrics: %w", err)
	}
	t.Metrics = metrics
	return t, nil
}

// Shutdown flushes pending telemetry. Safe on a no-op Telemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
