package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsRecording(t *testing.T) {
	metrics, err := NewMetrics(&MetricsConfig{Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, metrics)

	metrics.RecordLoopTurn("planner", 100*time.Millisecond)
	metrics.RecordLLMCall("gpt-4o", 500*time.Millisecond)
	metrics.RecordLLMTokens("gpt-4o", 100, 50)
	metrics.RecordToolCall("read_file", 10*time.Millisecond)
	metrics.RecordSessionCreated("planner")
	metrics.RecordMailboxSent("planner", "researcher")
	metrics.RecordMailboxDelivered("researcher")

	mfs, err := metrics.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}

func TestMetricsDisabledReturnsNil(t *testing.T) {
	metrics, err := NewMetrics(&MetricsConfig{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, metrics)
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RecordLoopTurn("x", time.Millisecond)
	metrics.RecordLLMError("gpt-4o", "timeout")
	metrics.RecordToolError("read_file", "not_found")
	metrics.SetMailboxInboxDepth("planner", 3)
	require.Equal(t, "2xx", statusCodeLabel(204))
	require.Equal(t, "5xx", statusCodeLabel(503))
}

func TestNewManagerWithNilConfig(t *testing.T) {
	m, err := NewManager(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.False(t, m.TracingEnabled())
	require.False(t, m.MetricsEnabled())
	require.Nil(t, m.Tracer())
	require.Nil(t, m.Metrics())
}

func TestNoopManagerIsUsableEverywhere(t *testing.T) {
	m := NoopManager()
	ctx, span := m.Tracer().StartSessionRun(context.Background(), "planner", "sess-1")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestDebugExporterCapturesOnlyKnownSpans(t *testing.T) {
	e := NewDebugExporter()
	require.True(t, e.shouldCapture(SpanSessionRun))
	require.True(t, e.shouldCapture(SpanLLMCall))
	require.True(t, e.shouldCapture(SpanToolExecution))
	require.False(t, e.shouldCapture(SpanHTTPRequest))
	require.Equal(t, 0, e.Count())
}

func TestMetricsConfigDefaults(t *testing.T) {
	cfg := &MetricsConfig{}
	cfg.SetDefaults()
	require.Equal(t, DefaultMetricsPath, cfg.Endpoint)
	require.Equal(t, "aiwhisperer", cfg.Namespace)
}

func TestTracingConfigDefaults(t *testing.T) {
	cfg := &TracingConfig{}
	cfg.SetDefaults()
	require.Equal(t, DefaultServiceName, cfg.ServiceName)
	require.Equal(t, DefaultOTLPEndpoint, cfg.Endpoint)
	require.InDelta(t, DefaultSamplingRate, cfg.SamplingRate, 0.0001)
	require.True(t, cfg.IsInsecure())
}
