package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestPipelineMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	pm, err := NewPipelineMetrics(mp.Meter(ScopePipeline))
	require.NoError(t, err)

	pm.RecordJobSubmitted("learn")
	pm.RecordJobSubmitted("compare")
	pm.RecordStage("learn", "feature_analysis", "ok", 3*time.Second)
	pm.RecordPartialSnapshot("learn")
	pm.RecordPartialSnapshot("learn")
	pm.RecordJobFinished("learn", "succeeded", "", 42*time.Second)
	pm.RecordJobFinished("compare", "failed", "validation", 7*time.Second)

	got := collect(t, reader)

	submitted, ok := got["flowdecompose.jobs.submitted"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range submitted.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	finished, ok := got["flowdecompose.jobs.finished"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, finished.DataPoints, 2)
	for _, dp := range finished.DataPoints {
		status, _ := dp.Attributes.Value("status")
		kind, hasKind := dp.Attributes.Value("error.kind")
		if status.AsString() == "failed" {
			assert.True(t, hasKind)
			assert.Equal(t, "validation", kind.AsString())
		} else {
			assert.False(t, hasKind, "succeeded jobs carry no error kind")
		}
	}

	jobDur, ok := got["flowdecompose.job.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var sum float64
	for _, dp := range jobDur.DataPoints {
		sum += dp.Sum
	}
	assert.InDelta(t, 49.0, sum, 1e-9)

	stage, ok := got["flowdecompose.stage.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, stage.DataPoints, 1)
	name, _ := stage.DataPoints[0].Attributes.Value("stage")
	assert.Equal(t, "feature_analysis", name.AsString())
	assert.Equal(t, uint64(1), stage.DataPoints[0].Count)

	snaps, ok := got["flowdecompose.partial_snapshots"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, snaps.DataPoints, 1)
	assert.Equal(t, int64(2), snaps.DataPoints[0].Value)
}

func TestNewPipelineMetrics_GlobalMeter(t *testing.T) {
	// 未初始化 SDK 时全局 meter 为空操作，记录不应 panic
	pm, err := NewPipelineMetrics(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		pm.RecordJobSubmitted("learn")
		pm.RecordJobFinished("learn", "failed", "resource", time.Second)
	})
}
