package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/dropscan/pkg/common/logger"
)

func TestInitTelemetry_WithoutEndpoint(t *testing.T) {
	tel, cleanup, err := InitTelemetry(logger.Noop(), Config{ServiceName: "dropscan"})
	require.NoError(t, err)
	defer cleanup(context.Background())

	assert.NotNil(t, tel.MeterProvider)
	_, isNoop := tel.TracerProvider.(noop.TracerProvider)
	assert.True(t, isNoop)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Equal(t, "00000000000000000000000000000000", GetTraceID(context.Background()))
	assert.Equal(t, "0000000000000000", GetSpanID(context.Background()))
}

func TestGetTraceID_FromSpanContext(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(ctx))
	assert.Equal(t, "00f067aa0ba902b7", GetSpanID(ctx))
}
