package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics exports job and stage measurements through the OTel meter
// provider. It satisfies pipeline.Recorder and runs next to the Prometheus
// collector; with telemetry disabled the instruments are no-ops.
type PipelineMetrics struct {
	jobsSubmitted metric.Int64Counter
	jobsFinished  metric.Int64Counter
	jobDuration   metric.Float64Histogram
	stageDuration metric.Float64Histogram
	snapshots     metric.Int64Counter
}

// NewPipelineMetrics creates the instruments on meter, or on the global
// ScopePipeline meter when meter is nil.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	if meter == nil {
		meter = otel.Meter(ScopePipeline)
	}

	var (
		m    PipelineMetrics
		err  error
		errs []error
	)
	m.jobsSubmitted, err = meter.Int64Counter("flowdecompose.jobs.submitted",
		metric.WithDescription("Jobs accepted by the dispatcher"),
		metric.WithUnit("{job}"))
	errs = append(errs, err)

	m.jobsFinished, err = meter.Int64Counter("flowdecompose.jobs.finished",
		metric.WithDescription("Jobs that reached a terminal status"),
		metric.WithUnit("{job}"))
	errs = append(errs, err)

	m.jobDuration, err = meter.Float64Histogram("flowdecompose.job.duration",
		metric.WithDescription("Wall time from running to terminal"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(5, 15, 30, 60, 120, 300, 600, 1200, 2400))
	errs = append(errs, err)

	m.stageDuration, err = meter.Float64Histogram("flowdecompose.stage.duration",
		metric.WithDescription("Duration of one pipeline stage"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 5, 15, 30, 60, 120, 300, 600))
	errs = append(errs, err)

	m.snapshots, err = meter.Int64Counter("flowdecompose.partial_snapshots",
		metric.WithDescription("Partial results written while analyzing"),
		metric.WithUnit("{snapshot}"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create pipeline instruments: %w", err)
	}
	return &m, nil
}

// RecordJobSubmitted counts an accepted job.
func (m *PipelineMetrics) RecordJobSubmitted(mode string) {
	m.jobsSubmitted.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordJobFinished counts a terminal job and records its duration.
func (m *PipelineMetrics) RecordJobFinished(mode, status, errorKind string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("mode", mode),
		attribute.String("status", status),
	}
	ctx := context.Background()
	m.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if errorKind != "" {
		attrs = append(attrs, attribute.String("error.kind", errorKind))
	}
	m.jobsFinished.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordStage records one stage duration.
func (m *PipelineMetrics) RecordStage(mode, stage, status string, duration time.Duration) {
	m.stageDuration.Record(context.Background(), duration.Seconds(), metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

// RecordPartialSnapshot counts a stored partial result.
func (m *PipelineMetrics) RecordPartialSnapshot(mode string) {
	m.snapshots.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("mode", mode)))
}
