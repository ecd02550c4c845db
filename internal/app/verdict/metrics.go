package verdict

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// VerdictMetrics defines metrics operations needed by the verdict service.
type VerdictMetrics interface {
	IncAPICall(ctx context.Context, op string, success bool)
	IncRetry(ctx context.Context, op string)
	IncVerdict(ctx context.Context, verdict string)
	IncUpload(ctx context.Context, large bool)
}

type verdictMetrics struct {
	apiCalls metric.Int64Counter
	retries  metric.Int64Counter
	verdicts metric.Int64Counter
	uploads  metric.Int64Counter
}

const namespace = "verdict"

// NewVerdictMetrics creates the otel instruments for the verdict service.
func NewVerdictMetrics(mp metric.MeterProvider) (*verdictMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(verdictMetrics)
	var err error

	if m.apiCalls, err = meter.Int64Counter(
		"api_calls_total",
		metric.WithDescription("Total number of reputation API calls by operation and outcome"),
	); err != nil {
		return nil, err
	}

	if m.retries, err = meter.Int64Counter(
		"api_retries_total",
		metric.WithDescription("Total number of retried reputation API calls"),
	); err != nil {
		return nil, err
	}

	if m.verdicts, err = meter.Int64Counter(
		"verdicts_total",
		metric.WithDescription("Total number of verdicts by outcome"),
	); err != nil {
		return nil, err
	}

	if m.uploads, err = meter.Int64Counter(
		"uploads_total",
		metric.WithDescription("Total number of file uploads"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *verdictMetrics) IncAPICall(ctx context.Context, op string, success bool) {
	m.apiCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("success", success),
	))
}

func (m *verdictMetrics) IncRetry(ctx context.Context, op string) {
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

func (m *verdictMetrics) IncVerdict(ctx context.Context, verdict string) {
	m.verdicts.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

func (m *verdictMetrics) IncUpload(ctx context.Context, large bool) {
	m.uploads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("large", large)))
}
