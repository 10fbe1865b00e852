package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "shotlens"

// Metrics holds the OTEL instruments for the analysis engine and the
// capture bridge. All instruments are safe for concurrent use.
type Metrics struct {
	// Pattern cache counters
	PatternCacheHits   metric.Int64Counter
	PatternCacheMisses metric.Int64Counter

	// Analysis counters (findings partitioned by code)
	Analyses metric.Int64Counter
	Findings metric.Int64Counter

	// Bridge calls (partitioned by method + outcome: ok, remote_error, timeout, write_error, canceled)
	RPCCalls    metric.Int64Counter
	RPCDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.PatternCacheHits, err = meter.Int64Counter("pattern_cache.hits",
		metric.WithDescription("Pattern lookups served from cache (document version unchanged)"))
	if err != nil {
		return nil, err
	}

	m.PatternCacheMisses, err = meter.Int64Counter("pattern_cache.misses",
		metric.WithDescription("Pattern lookups that required a fresh scan"))
	if err != nil {
		return nil, err
	}

	m.Analyses, err = meter.Int64Counter("analyses.total",
		metric.WithDescription("Completed diagnostics passes"))
	if err != nil {
		return nil, err
	}

	m.Findings, err = meter.Int64Counter("findings.total",
		metric.WithDescription("Findings produced, partitioned by code"))
	if err != nil {
		return nil, err
	}

	m.RPCCalls, err = meter.Int64Counter("rpc.calls.total",
		metric.WithDescription("Calls to the capture subordinate, partitioned by method and outcome"))
	if err != nil {
		return nil, err
	}

	m.RPCDuration, err = meter.Float64Histogram("rpc.call.duration",
		metric.WithDescription("Round-trip latency of calls to the capture subordinate"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCacheHit records a pattern cache hit.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.PatternCacheHits.Add(ctx, 1)
}

// RecordCacheMiss records a pattern cache miss.
func (m *Metrics) RecordCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.PatternCacheMisses.Add(ctx, 1)
}

// RecordAnalysis records one diagnostics pass and its findings by code.
func (m *Metrics) RecordAnalysis(ctx context.Context, codes []string) {
	if m == nil {
		return
	}
	m.Analyses.Add(ctx, 1)
	for _, code := range codes {
		m.Findings.Add(ctx, 1, metric.WithAttributes(attribute.String("finding.code", code)))
	}
}

// RecordCall records a bridge call with its outcome and latency.
func (m *Metrics) RecordCall(ctx context.Context, method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("rpc.outcome", outcome),
	)
	m.RPCCalls.Add(ctx, 1, attrs)
	m.RPCDuration.Record(ctx, elapsed.Seconds(), attrs)
}
