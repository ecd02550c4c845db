// Package virustotal is an HTTP client for the VirusTotal v3 API.
package virustotal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/dropscan/internal/domain/scanning"
	"github.com/ahrav/dropscan/pkg/common"
	"github.com/ahrav/dropscan/pkg/common/logger"
)

const (
	// DefaultBaseURL is the public v3 API root.
	DefaultBaseURL = "https://www.virustotal.com/api/v3"

	apiKeyHeader = "x-apikey"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	// UploadBytesPerSecond caps upload bandwidth. Zero disables the cap.
	UploadBytesPerSecond int
	// RequestTimeout bounds standard API calls. Large uploads are bounded only by
	// their context.
	RequestTimeout time.Duration
}

// Client talks to the standard API through the throttling transport and to large
// file upload URLs through a separate client.
type Client struct {
	baseURL         string
	apiKey          string
	uploadRateLimit int

	httpClient   *http.Client
	uploadClient *http.Client

	logger *logger.Logger
	tracer trace.Tracer
}

// NewClient creates a Client. Every standard request passes through limiter.
func NewClient(cfg Config, limiter Limiter, logger *logger.Logger, tracer trace.Tracer) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	return &Client{
		baseURL:         base,
		apiKey:          cfg.APIKey,
		uploadRateLimit: cfg.UploadBytesPerSecond,
		httpClient: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(NewThrottlingTransport(limiter, http.DefaultTransport)),
		},
		uploadClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With("component", "virustotal_client"),
		tracer: tracer,
	}
}

type statsEnvelope struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Status            string                  `json:"status"`
			Stats             *scanning.AnalysisStats `json:"stats"`
			LastAnalysisStats *scanning.AnalysisStats `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GetFileReport fetches the existing report for hash. A hash the API has never
// seen yields an *scanning.APIError matching scanning.ErrRemoteNotFound.
func (c *Client) GetFileReport(ctx context.Context, hash string) (*scanning.FileReport, error) {
	ctx, span := c.tracer.Start(ctx, "virustotal_client.get_file_report",
		trace.WithAttributes(attribute.String("hash", hash)))
	defer span.End()

	var env statsEnvelope
	if err := c.getJSON(ctx, "get file report", "/files/"+url.PathEscape(hash), &env); err != nil {
		if !errors.Is(err, scanning.ErrRemoteNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to get file report")
		}
		return nil, err
	}

	span.SetStatus(codes.Ok, "file report retrieved")
	return &scanning.FileReport{Hash: hash, Stats: env.Data.Attributes.LastAnalysisStats}, nil
}

// UploadFile submits a file through the standard multipart endpoint and returns the
// analysis ID, which may be empty when the API omits it.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (string, error) {
	ctx, span := c.tracer.Start(ctx, "virustotal_client.upload_file",
		trace.WithAttributes(attribute.String("file_name", name)))
	defer span.End()

	id, err := c.postMultipart(ctx, c.httpClient, "upload file", c.baseURL+"/files", name, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload file")
		return "", err
	}

	span.SetAttributes(attribute.String("analysis_id", id))
	span.SetStatus(codes.Ok, "file uploaded")
	return id, nil
}

// GetLargeFileUploadURL requests a one-time upload URL for files above the standard
// endpoint's size limit.
func (c *Client) GetLargeFileUploadURL(ctx context.Context) (string, error) {
	ctx, span := c.tracer.Start(ctx, "virustotal_client.get_upload_url")
	defer span.End()

	var env struct {
		Data string `json:"data"`
	}
	if err := c.getJSON(ctx, "get upload url", "/files/upload_url", &env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get upload url")
		return "", err
	}
	if env.Data == "" {
		err := fmt.Errorf("get upload url: empty url: %w", scanning.ErrDeserialization)
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty upload url")
		return "", err
	}

	span.SetStatus(codes.Ok, "upload url retrieved")
	return env.Data, nil
}

// UploadLargeFile streams the file to a URL obtained from GetLargeFileUploadURL. The
// request bypasses the rate limiter and is never retried.
func (c *Client) UploadLargeFile(ctx context.Context, uploadURL, name string, r io.Reader) (string, error) {
	ctx, span := c.tracer.Start(ctx, "virustotal_client.upload_large_file",
		trace.WithAttributes(attribute.String("file_name", name)))
	defer span.End()

	id, err := c.postMultipart(ctx, c.uploadClient, "upload large file", uploadURL, name, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload large file")
		return "", err
	}

	span.SetAttributes(attribute.String("analysis_id", id))
	span.SetStatus(codes.Ok, "large file uploaded")
	return id, nil
}

// GetAnalysis polls the state of a submitted analysis.
func (c *Client) GetAnalysis(ctx context.Context, id string) (*scanning.Analysis, error) {
	ctx, span := c.tracer.Start(ctx, "virustotal_client.get_analysis",
		trace.WithAttributes(attribute.String("analysis_id", id)))
	defer span.End()

	var env statsEnvelope
	if err := c.getJSON(ctx, "get analysis", "/analyses/"+url.PathEscape(id), &env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get analysis")
		return nil, err
	}

	status := scanning.AnalysisStatus(env.Data.Attributes.Status)
	span.SetAttributes(attribute.String("status", string(status)))
	span.SetStatus(codes.Ok, "analysis retrieved")
	return &scanning.Analysis{ID: id, Status: status, Stats: env.Data.Attributes.Stats}, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	return decodeResponse(op, resp, out)
}

// postMultipart streams r as the "file" form field without buffering it in memory.
func (c *Client) postMultipart(
	ctx context.Context,
	client *http.Client,
	op, target, name string,
	r io.Reader,
) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	src := common.NewLimitedReader(ctx, r, c.uploadRateLimit)

	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, src)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	var env statsEnvelope
	if err := decodeResponse(op, resp, &env); err != nil {
		return "", err
	}
	return env.Data.ID, nil
}

// decodeResponse maps non-2xx statuses to *scanning.APIError and decodes the body
// of successful responses into out.
func decodeResponse(op string, resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &scanning.APIError{Op: op, StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var env errorEnvelope
		if json.Unmarshal(body, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, scanning.ErrDeserialization, err)
	}
	return nil
}
