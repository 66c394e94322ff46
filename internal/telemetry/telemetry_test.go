package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/lian/config"
	"github.com/BaSui01/lian/internal/database"
)

// saveAndRestoreGlobalProviders snapshots the current global OTel providers
// and restores them via t.Cleanup so tests don't leak state.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Nil(t, p.tp, "TracerProvider should be nil when disabled")
	assert.Nil(t, p.mp, "MeterProvider should be nil when disabled")

	// noop providers are still usable
	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "op")
	span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.NotNil(t, p.MeterProvider().Meter("test"))
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "lian-test",
		SampleRate:   0.5,
	}

	p, err := Init(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	assert.NotNil(t, p.tp, "TracerProvider should be set when enabled")
	assert.NotNil(t, p.mp, "MeterProvider should be set when enabled")
	assert.Same(t, p.tp, p.TracerProvider())

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK, "global TracerProvider should be *sdktrace.TracerProvider")
	assert.True(t, mpIsSDK, "global MeterProvider should be *sdkmetric.MeterProvider")
}

func TestNewResource(t *testing.T) {
	cfg := config.TelemetryConfig{ServiceName: "lian-test"}
	res, err := newResource(context.Background(), cfg, []attribute.KeyValue{
		attribute.StringSlice("lian.databases", []string{"main", "report"}),
	})
	require.NoError(t, err)

	got := make(map[attribute.Key]attribute.Value)
	for _, kv := range res.Attributes() {
		got[kv.Key] = kv.Value
	}
	assert.Equal(t, "lian-test", got["service.name"].AsString())
	assert.Equal(t, "mysql", got["db.system"].AsString())
	assert.NotEmpty(t, got["service.instance.id"].AsString())
	assert.Equal(t, []string{"main", "report"}, got["lian.databases"].AsStringSlice())
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NotNil(t, p.TracerProvider())
	assert.NotNil(t, p.MeterProvider())
}

func TestProviders_Shutdown_Noop(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestBuildVersion(t *testing.T) {
	// 测试二进制中 ReadBuildInfo 返回 "(devel)"
	assert.Equal(t, "dev", buildVersion())
}

// =============================================================================
// 🧪 连接池观测测试
// =============================================================================

func TestObservePools(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	stats := []database.PoolStats{
		{Database: "main", Idle: 2, InUse: 1, Max: 5},
		{Database: "report", Idle: 0, InUse: 3, Max: 3},
	}
	reg, err := ObservePools(mp, func() []database.PoolStats { return stats })
	require.NoError(t, err)
	defer reg.Unregister()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	got := make(map[string]map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			require.True(t, ok, "%s is %T", m.Name, m.Data)
			for _, dp := range gauge.DataPoints {
				db, _ := dp.Attributes.Value("db.name")
				if got[m.Name] == nil {
					got[m.Name] = make(map[string]int64)
				}
				got[m.Name][db.AsString()] = dp.Value
			}
		}
	}

	assert.Equal(t, map[string]map[string]int64{
		"db.client.connections.idle": {"main": 2, "report": 0},
		"db.client.connections.used": {"main": 1, "report": 3},
		"db.client.connections.max":  {"main": 5, "report": 3},
	}, got)
}
