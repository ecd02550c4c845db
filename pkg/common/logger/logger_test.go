package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	traceID := func(context.Context) string { return "trace-123" }

	log := New(&buf, LevelInfo, "dropscan", traceID)
	log.With("component", "pipeline").Info(context.Background(), "File is CLEAN", "file_name", "a.txt")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))

	assert.Equal(t, "File is CLEAN", rec["msg"])
	assert.Equal(t, "dropscan", rec["service"])
	assert.Equal(t, "pipeline", rec["component"])
	assert.Equal(t, "a.txt", rec["file_name"])
	assert.Equal(t, "trace-123", rec["trace_id"])
	assert.Contains(t, rec["file"], "logger_test.go")
}

func TestLogger_RespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "dropscan", nil)

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	log.Warn(context.Background(), "shown")
	assert.NotZero(t, buf.Len())
}

func TestLogger_ErrorEventFires(t *testing.T) {
	var buf bytes.Buffer
	var got Record
	events := Events{
		Error: func(_ context.Context, r Record) { got = r },
	}

	log := NewWithMetadata(&buf, LevelDebug, "dropscan", nil, events, map[string]string{"host": "box"})
	log.Error(context.Background(), "upload failed", "status", 500)

	assert.Equal(t, "upload failed", got.Message)
	assert.Equal(t, LevelError, got.Level)
	assert.EqualValues(t, 500, got.Attributes["status"])
	assert.Contains(t, buf.String(), `"host":"box"`)
}

func TestNoop_DiscardsEverything(t *testing.T) {
	log := Noop().With("k", "v")
	assert.NotPanics(t, func() {
		log.Error(context.Background(), "ignored", "error", assert.AnError)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"WARN", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}
