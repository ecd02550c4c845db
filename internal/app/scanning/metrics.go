package scanning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics defines metrics operations needed by the scan pipeline.
type PipelineMetrics interface {
	IncFilesEnqueued(ctx context.Context)
	IncFilesProcessed(ctx context.Context, status string)
	ObserveScanDuration(ctx context.Context, d time.Duration)

	IncLockedFiles(ctx context.Context)
	DecLockedFiles(ctx context.Context)

	IncMoves(ctx context.Context, outcome string)
}

// pipelineMetrics implements PipelineMetrics.
type pipelineMetrics struct {
	filesEnqueued  metric.Int64Counter
	filesProcessed metric.Int64Counter
	scanDuration   metric.Float64Histogram
	lockedFiles    metric.Int64UpDownCounter
	moves          metric.Int64Counter
}

const namespace = "scan_pipeline"

// NewPipelineMetrics creates a new pipeline metrics instance.
func NewPipelineMetrics(mp metric.MeterProvider) (*pipelineMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(pipelineMetrics)
	var err error

	if m.filesEnqueued, err = meter.Int64Counter(
		"files_enqueued_total",
		metric.WithDescription("Total number of files added to the scan queue"),
	); err != nil {
		return nil, err
	}

	if m.filesProcessed, err = meter.Int64Counter(
		"files_processed_total",
		metric.WithDescription("Total number of files that reached a status after processing"),
	); err != nil {
		return nil, err
	}

	if m.scanDuration, err = meter.Float64Histogram(
		"scan_duration_seconds",
		metric.WithDescription("Time taken to scan and route each file"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.lockedFiles, err = meter.Int64UpDownCounter(
		"locked_files",
		metric.WithDescription("Number of files waiting for another process to release them"),
	); err != nil {
		return nil, err
	}

	if m.moves, err = meter.Int64Counter(
		"file_moves_total",
		metric.WithDescription("Total number of verdict moves by outcome"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *pipelineMetrics) IncFilesEnqueued(ctx context.Context) {
	m.filesEnqueued.Add(ctx, 1)
}

func (m *pipelineMetrics) IncFilesProcessed(ctx context.Context, status string) {
	m.filesProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *pipelineMetrics) ObserveScanDuration(ctx context.Context, d time.Duration) {
	m.scanDuration.Record(ctx, d.Seconds())
}

func (m *pipelineMetrics) IncLockedFiles(ctx context.Context) { m.lockedFiles.Add(ctx, 1) }
func (m *pipelineMetrics) DecLockedFiles(ctx context.Context) { m.lockedFiles.Add(ctx, -1) }

func (m *pipelineMetrics) IncMoves(ctx context.Context, outcome string) {
	m.moves.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
