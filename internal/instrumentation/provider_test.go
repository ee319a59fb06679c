package instrumentation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

// restoreGlobals puts back the global otel providers NewProvider replaces.
func restoreGlobals(t *testing.T) {
	t.Helper()
	mp := otel.GetMeterProvider()
	tp := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
	})
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Metrics())
	assert.NotNil(t, p.Tracer("test"))
	assert.Nil(t, p.PrometheusHandler())
	assert.NoError(t, p.Shutdown(context.Background()))

	assert.NotPanics(t, func() {
		p.Metrics().RecordCycle(context.Background(), StatusSuccess, time.Second)
	})
}

func TestNewProvider_Prometheus(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	p, err := NewProvider(ctx, Config{
		ServiceName:     "inboxagent",
		ServiceVersion:  "test",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, p.Shutdown(ctx)) }()

	p.Metrics().RecordCycle(ctx, StatusSuccess, time.Second)
	p.Metrics().RecordReport(ctx, "weekly_outreach", "published")

	h := p.PrometheusHandler()
	require.NotNil(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "agent_cycles_total")
	assert.Contains(t, rec.Body.String(), "agent_reports_total")
}

func TestNewProvider_SeparateRegistries(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()
	cfg := Config{ServiceName: "inboxagent", Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone}

	first, err := NewProvider(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = first.Shutdown(ctx) }()

	second, err := NewProvider(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = second.Shutdown(ctx) }()
}

func TestNewProvider_Stdout(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	p, err := NewProvider(ctx, Config{
		ServiceName:       "inboxagent",
		Enabled:           true,
		MetricsExporter:   ExporterStdout,
		TracingExporter:   ExporterStdout,
		TraceSamplingRate: 1,
	})
	require.NoError(t, err)
	assert.True(t, p.Enabled())
	assert.Nil(t, p.PrometheusHandler())
	assert.NoError(t, p.Shutdown(ctx))
}

func TestNewProvider_Errors(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name:   "otlp metrics without endpoint",
			config: Config{Enabled: true, MetricsExporter: ExporterOTLP, TracingExporter: ExporterNone},
		},
		{
			name:   "otlp tracing without endpoint",
			config: Config{Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: ExporterOTLP},
		},
		{
			name:   "unknown metrics exporter",
			config: Config{Enabled: true, MetricsExporter: "statsd", TracingExporter: ExporterNone},
		},
		{
			name:   "unknown tracing exporter",
			config: Config{Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: "zipkin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreGlobals(t)
			tt.config.ServiceName = "inboxagent"
			_, err := NewProvider(context.Background(), tt.config)
			assert.Error(t, err)
		})
	}
}
