package virustotal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/dropscan/internal/domain/scanning"
	"github.com/ahrav/dropscan/pkg/common/logger"
)

type fakeLimiter struct {
	mu        sync.Mutex
	available int
	acquired  int
	acquireFn func(ctx context.Context) error
	events    []scanning.RateLimitEvent
}

func (f *fakeLimiter) Available() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeLimiter) TimeUntilReset() time.Duration { return 42 * time.Second }

func (f *fakeLimiter) Acquire(ctx context.Context) error {
	if f.acquireFn != nil {
		if err := f.acquireFn(ctx); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired++
	return nil
}

func (f *fakeLimiter) Notify(ev scanning.RateLimitEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *fakeLimiter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	lim := &fakeLimiter{available: 4}
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"}, lim, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	return c, lim
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestGetFileReport(t *testing.T) {
	c, lim := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-apikey"))
		assert.Equal(t, "/files/abc", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"data":{"id":"abc","type":"file","attributes":{"last_analysis_stats":{"malicious":3,"harmless":50,"type-unsupported":2}}}}`)
	}))

	rep, err := c.GetFileReport(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, rep.Stats)
	assert.Equal(t, 3, rep.Stats.Malicious)
	assert.Equal(t, 2, rep.Stats.TypeUnsupported)
	assert.Equal(t, 1, lim.acquired)
}

func TestGetFileReport_NotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error":{"code":"NotFoundError","message":"File \"abc\" not found"}}`)
	}))

	_, err := c.GetFileReport(context.Background(), "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, scanning.ErrRemoteNotFound)

	var apiErr *scanning.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "NotFoundError", apiErr.Code)
	assert.False(t, apiErr.Retriable())
}

func TestGetFileReport_TooManyRequestsIsRetriable(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, `{"error":{"code":"QuotaExceededError","message":"slow down"}}`)
	}))

	_, err := c.GetFileReport(context.Background(), "abc")
	assert.True(t, scanning.IsRetriable(err))
}

func TestUploadFile_StreamsMultipart(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/files", r.URL.Path)

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "sample.exe", hdr.Filename)
		assert.Equal(t, "payload", string(body))

		writeJSON(w, http.StatusOK, `{"data":{"type":"analysis","id":"an-1"}}`)
	}))

	id, err := c.UploadFile(context.Background(), "sample.exe", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, "an-1", id)
}

func TestUploadFile_MissingID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusOK, `{"data":{}}`)
	}))

	id, err := c.UploadFile(context.Background(), "a", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestLargeFileFlow(t *testing.T) {
	var uploadHits int
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/files/upload_url", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":"`+srv.URL+`/big-upload"}`)
	})
	mux.HandleFunc("/big-upload", func(w http.ResponseWriter, r *http.Request) {
		uploadHits++
		assert.Equal(t, "secret", r.Header.Get("x-apikey"))
		_, _, err := r.FormFile("file")
		assert.NoError(t, err)
		writeJSON(w, http.StatusOK, `{"data":{"type":"analysis","id":"big-1"}}`)
	})

	lim := &fakeLimiter{available: 4}
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"}, lim, logger.Noop(), noop.NewTracerProvider().Tracer("test"))

	u, err := c.GetLargeFileUploadURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/big-upload", u)

	id, err := c.UploadLargeFile(context.Background(), u, "big.iso", strings.NewReader("large"))
	require.NoError(t, err)
	assert.Equal(t, "big-1", id)
	assert.Equal(t, 1, uploadHits)
	assert.Equal(t, 1, lim.acquired, "only the upload url request goes through the limiter")
}

func TestGetLargeFileUploadURL_BadBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"unexpected":true}}`)
	}))

	_, err := c.GetLargeFileUploadURL(context.Background())
	assert.ErrorIs(t, err, scanning.ErrDeserialization)
	assert.False(t, scanning.IsRetriable(err))
}

func TestUploadLargeFile_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, &fakeLimiter{available: 1}, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	_, err := c.UploadLargeFile(context.Background(), srv.URL+"/up", "f", strings.NewReader("x"))

	var apiErr *scanning.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.StatusCode)
}

func TestGetAnalysis(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyses/an-1", r.URL.Path)
		resp := map[string]any{
			"data": map[string]any{
				"id": "an-1",
				"attributes": map[string]any{
					"status": "completed",
					"stats":  map[string]int{"malicious": 0, "undetected": 70},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))

	a, err := c.GetAnalysis(context.Background(), "an-1")
	require.NoError(t, err)
	assert.Equal(t, scanning.AnalysisCompleted, a.Status)
	require.NotNil(t, a.Stats)
	assert.Equal(t, 70, a.Stats.Undetected)
}
