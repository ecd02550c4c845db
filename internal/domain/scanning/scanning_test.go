package scanning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScanResult_ReportURL(t *testing.T) {
	r := NewScanResult("/drop/a.exe", StatusClean)
	assert.Equal(t, "a.exe", r.FileName)
	assert.Empty(t, r.ReportURL())

	r.FileHash = "abc123"
	assert.Equal(t, "https://www.virustotal.com/gui/file/abc123", r.ReportURL())
}

func TestScanStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   ScanStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusPendingLocked, false},
		{StatusScanning, false},
		{StatusClean, true},
		{StatusCompromised, true},
		{StatusFailed, true},
		{StatusSkipped, true},
		{StatusRemoved, true},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestVerdictFromStats(t *testing.T) {
	tests := []struct {
		name       string
		stats      *AnalysisStats
		want       Verdict
		detections int
	}{
		{name: "missing stats", stats: nil, want: VerdictUnknown},
		{name: "no detections", stats: &AnalysisStats{Harmless: 60, Undetected: 10}, want: VerdictClean},
		{name: "suspicious only", stats: &AnalysisStats{Suspicious: 2}, want: VerdictClean},
		{name: "malicious", stats: &AnalysisStats{Malicious: 7}, want: VerdictCompromised, detections: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerdictFromStats(tt.stats, "h")
			assert.Equal(t, tt.want, got.Verdict)
			assert.Equal(t, tt.detections, got.DetectionCount)
			assert.Equal(t, "h", got.Hash)
		})
	}
}

func TestAPIError(t *testing.T) {
	notFound := &APIError{Op: "get file report", StatusCode: http.StatusNotFound, Code: "NotFoundError"}
	wrapped := fmt.Errorf("lookup: %w", notFound)

	assert.True(t, errors.Is(wrapped, ErrRemoteNotFound))
	assert.False(t, IsRetriable(wrapped))
	assert.Contains(t, notFound.Error(), "NotFoundError")

	assert.True(t, IsRetriable(&APIError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, IsRetriable(&APIError{StatusCode: http.StatusBadGateway}))
	assert.False(t, IsRetriable(&APIError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, IsRetriable(errors.New("boom")))
}

func TestAnalysisJob_Expired(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	job := AnalysisJob{AnalysisID: "id", StartTime: start}

	assert.False(t, job.Expired(start.Add(15*time.Minute), 15*time.Minute))
	assert.True(t, job.Expired(start.Add(15*time.Minute+time.Second), 15*time.Minute))
}

func TestObservers_FanOut(t *testing.T) {
	var statuses []ScanStatus
	var logs []string
	obs := ObserverFuncs{
		Status: func(_ context.Context, r ScanResult) { statuses = append(statuses, r.Status) },
		Log:    func(_ context.Context, m string) { logs = append(logs, m) },
	}

	fan := Observers{obs, nil, obs}
	fan.OnStatus(context.Background(), NewScanResult("/x", StatusPending))
	fan.OnLog(context.Background(), "hello")

	assert.Equal(t, []ScanStatus{StatusPending, StatusPending}, statuses)
	assert.Equal(t, []string{"hello", "hello"}, logs)
}
