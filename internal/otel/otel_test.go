package otel

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"single", "Authorization=Basic abc", map[string]string{"Authorization": "Basic abc"}},
		{"multiple with spaces", " a=1 , b = 2 ", map[string]string{"a": "1", "b": "2"}},
		{"value with equals", "token=a=b", map[string]string{"token": "a=b"}},
		{"malformed skipped", "novalue,=x,k=v", map[string]string{"k": "v"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseHeaders(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("parseHeaders(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseHeaders(%q)[%q] = %q, want %q", tt.raw, k, got[k], v)
				}
			}
		})
	}
}

func TestInitWithoutEndpoint(t *testing.T) {
	tel, err := Init(context.Background(), OTELConfig{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if tel.Metrics == nil || tel.Tracer == nil {
		t.Fatalf("Init returned incomplete telemetry: %+v", tel)
	}
	// Recording and shutdown are no-ops without an exporter.
	tel.Metrics.RecordAnalysis(context.Background(), []string{"invalid-format"})
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestInitInvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"http://[::1", "localhost:4318"} {
		if _, err := Init(context.Background(), OTELConfig{Endpoint: endpoint}); err == nil {
			t.Errorf("Init(%q): expected error", endpoint)
		}
	}
}

func TestParseCollector(t *testing.T) {
	tests := []struct {
		endpoint     string
		wantHost     string
		wantBase     string
		wantInsecure bool
	}{
		{"http://localhost:4318", "localhost:4318", "", true},
		{"https://otel.example.com/api/public/otel/", "otel.example.com", "/api/public/otel", false},
	}
	for _, tt := range tests {
		c, err := parseCollector(OTELConfig{Endpoint: tt.endpoint, Headers: "k=v"})
		if err != nil {
			t.Fatalf("parseCollector(%q): %v", tt.endpoint, err)
		}
		if c.host != tt.wantHost || c.basePath != tt.wantBase || c.insecure != tt.wantInsecure {
			t.Errorf("parseCollector(%q): got %+v", tt.endpoint, c)
		}
		if c.headers["k"] != "v" {
			t.Errorf("parseCollector(%q) headers: got %v", tt.endpoint, c.headers)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordCacheHit(ctx)
	m.RecordCacheMiss(ctx)
	m.RecordAnalysis(ctx, []string{"deprecated-api"})
	m.RecordCall(ctx, "screenshot_list_displays", "ok", time.Millisecond)
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.RecordCacheHit(ctx)
	m.RecordCacheHit(ctx)
	m.RecordCacheMiss(ctx)
	m.RecordAnalysis(ctx, []string{"invalid-format", "invalid-format", "deprecated-api"})
	m.RecordCall(ctx, "screenshot_capture_full", "ok", 20*time.Millisecond)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	sums := map[string]int64{}
	histograms := map[string]uint64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[md.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					histograms[md.Name] += dp.Count
				}
			}
		}
	}

	want := map[string]int64{
		"pattern_cache.hits":   2,
		"pattern_cache.misses": 1,
		"analyses.total":       1,
		"findings.total":       3,
		"rpc.calls.total":      1,
	}
	for name, v := range want {
		if sums[name] != v {
			t.Errorf("%s: got %d, want %d", name, sums[name], v)
		}
	}
	if histograms["rpc.call.duration"] != 1 {
		t.Errorf("rpc.call.duration count: got %d, want 1", histograms["rpc.call.duration"])
	}
}
