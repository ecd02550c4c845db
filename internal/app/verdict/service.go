// Package verdict turns a local file into a remote reputation verdict: hash lookup,
// upload when unknown, then polling until the analysis completes.
package verdict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/dropscan/internal/domain/scanning"
	"github.com/ahrav/dropscan/pkg/common/logger"
	"github.com/ahrav/dropscan/pkg/common/timeutil"
)

// API is the remote reputation service.
type API interface {
	GetFileReport(ctx context.Context, hash string) (*scanning.FileReport, error)
	UploadFile(ctx context.Context, name string, r io.Reader) (string, error)
	GetLargeFileUploadURL(ctx context.Context) (string, error)
	UploadLargeFile(ctx context.Context, uploadURL, name string, r io.Reader) (string, error)
	GetAnalysis(ctx context.Context, id string) (*scanning.Analysis, error)
}

// QuotaGate checks and counts API usage.
type QuotaGate interface {
	CheckQuota(ctx context.Context) error
	Increment(ctx context.Context) error
}

// Config tunes the scan algorithm.
type Config struct {
	MaxFileSizeBytes        int64
	LargeFileThresholdBytes int64
	PollInterval            time.Duration
	PollingTimeout          time.Duration

	// RetryInitialInterval is the first backoff delay; each retry doubles it.
	RetryInitialInterval time.Duration
	MaxRetries           uint64
}

const (
	defaultRetryInitialInterval = 2 * time.Second
	defaultMaxRetries           = 3
)

var _ scanning.VerdictScanner = (*Service)(nil)

// Service implements scanning.VerdictScanner against the reputation API.
type Service struct {
	api   API
	quota QuotaGate
	files scanning.FileOps
	cfg   Config

	timeProvider timeutil.Provider
	sleep        func(ctx context.Context, d time.Duration) error

	logger  *logger.Logger
	metrics VerdictMetrics
	tracer  trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithTimeProvider replaces the clock used for the polling timeout.
func WithTimeProvider(tp timeutil.Provider) Option {
	return func(s *Service) { s.timeProvider = tp }
}

// WithSleep replaces the delay between polls.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = fn }
}

// NewService creates a verdict Service.
func NewService(
	api API,
	quota QuotaGate,
	files scanning.FileOps,
	cfg Config,
	logger *logger.Logger,
	metrics VerdictMetrics,
	tracer trace.Tracer,
	opts ...Option,
) *Service {
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = defaultRetryInitialInterval
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	s := &Service{
		api:          api,
		quota:        quota,
		files:        files,
		cfg:          cfg,
		timeProvider: timeutil.Default(),
		sleep:        sleepCtx,
		logger:       logger.With("component", "verdict_service"),
		metrics:      metrics,
		tracer:       tracer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanFile returns the verdict for path. Conditions that only affect this file
// (size limit, rejected upload, poll timeout, lost analysis, undecodable response)
// come back as a VerdictFailed result. Errors are reserved for quota exhaustion,
// cancellation, exhausted retries and local I/O faults.
func (s *Service) ScanFile(ctx context.Context, path string) (scanning.VerdictResult, error) {
	ctx, span := s.tracer.Start(ctx, "verdict_service.scan_file",
		trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	result, err := s.scan(ctx, path)
	if err != nil && errors.Is(err, scanning.ErrDeserialization) {
		result, err = scanning.FailedVerdict(result.Hash, err.Error()), nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return scanning.VerdictResult{}, err
	}

	s.metrics.IncVerdict(ctx, result.Verdict.String())
	span.SetAttributes(
		attribute.String("verdict", result.Verdict.String()),
		attribute.Int("detections", result.DetectionCount),
	)
	span.SetStatus(codes.Ok, "scan completed")
	return result, nil
}

func (s *Service) scan(ctx context.Context, path string) (scanning.VerdictResult, error) {
	if err := s.quota.CheckQuota(ctx); err != nil {
		return scanning.VerdictResult{}, err
	}

	hash, err := s.files.ComputeHash(ctx, path)
	if err != nil {
		return scanning.VerdictResult{}, err
	}
	log := s.logger.With("path", path, "hash", hash)

	if err := s.quota.Increment(ctx); err != nil {
		return scanning.VerdictResult{Hash: hash}, err
	}
	report, err := withRetry(ctx, s, "get_file_report", func() (*scanning.FileReport, error) {
		return s.api.GetFileReport(ctx, hash)
	})
	switch {
	case err == nil:
		log.Debug(ctx, "existing report found")
		return scanning.VerdictFromStats(report.Stats, hash), nil
	case !errors.Is(err, scanning.ErrRemoteNotFound):
		return scanning.VerdictResult{Hash: hash}, fmt.Errorf("looking up report: %w", err)
	}

	log.Debug(ctx, "hash unknown, uploading")
	if err := s.quota.Increment(ctx); err != nil {
		return scanning.VerdictResult{Hash: hash}, err
	}

	size, err := s.files.Size(path)
	if err != nil {
		return scanning.VerdictResult{Hash: hash}, err
	}
	if size > s.cfg.MaxFileSizeBytes {
		log.Warn(ctx, "file exceeds size limit", "size", size, "limit", s.cfg.MaxFileSizeBytes)
		return scanning.FailedVerdict(hash, fmt.Sprintf(
			"File size %d bytes exceeds the limit of %d bytes", size, s.cfg.MaxFileSizeBytes)), nil
	}

	var analysisID string
	if size > s.cfg.LargeFileThresholdBytes {
		var failed *scanning.VerdictResult
		analysisID, failed, err = s.uploadLarge(ctx, path, hash)
		if failed != nil {
			return *failed, nil
		}
	} else {
		analysisID, err = s.uploadStandard(ctx, path)
	}
	if err != nil {
		return scanning.VerdictResult{Hash: hash}, fmt.Errorf("uploading: %w", err)
	}
	if analysisID == "" {
		log.Warn(ctx, "upload returned no analysis id")
		return scanning.FailedVerdict(hash, "Upload failed, no analysis ID returned."), nil
	}

	return s.poll(ctx, scanning.AnalysisJob{
		AnalysisID: analysisID,
		Hash:       hash,
		FilePath:   path,
		StartTime:  s.timeProvider.Now(),
	})
}

func (s *Service) uploadStandard(ctx context.Context, path string) (string, error) {
	s.metrics.IncUpload(ctx, false)
	return withRetry(ctx, s, "upload_file", func() (string, error) {
		f, err := s.files.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return s.api.UploadFile(ctx, filepath.Base(path), f)
	})
}

// uploadLarge obtains a one-time URL (retried) and streams the file to it (not
// retried). A rejected stream is a failed verdict rather than an error.
func (s *Service) uploadLarge(ctx context.Context, path, hash string) (string, *scanning.VerdictResult, error) {
	s.metrics.IncUpload(ctx, true)

	uploadURL, err := withRetry(ctx, s, "get_upload_url", func() (string, error) {
		return s.api.GetLargeFileUploadURL(ctx)
	})
	if err != nil {
		return "", nil, err
	}

	f, err := s.files.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	id, err := s.api.UploadLargeFile(ctx, uploadURL, filepath.Base(path), f)
	s.metrics.IncAPICall(ctx, "upload_large_file", err == nil)

	var apiErr *scanning.APIError
	if errors.As(err, &apiErr) {
		failed := scanning.FailedVerdict(hash, fmt.Sprintf("Large file upload failed with status %d", apiErr.StatusCode))
		return "", &failed, nil
	}
	return id, nil, err
}

// poll waits PollInterval between checks. Every check counts against the quota and
// the loop is bounded only by PollingTimeout.
func (s *Service) poll(ctx context.Context, job scanning.AnalysisJob) (scanning.VerdictResult, error) {
	ctx, span := s.tracer.Start(ctx, "verdict_service.poll",
		trace.WithAttributes(attribute.String("analysis_id", job.AnalysisID)))
	defer span.End()

	log := s.logger.With("analysis_id", job.AnalysisID, "path", job.FilePath)

	for attempt := 1; ; attempt++ {
		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			return scanning.VerdictResult{Hash: job.Hash}, err
		}
		if job.Expired(s.timeProvider.Now(), s.cfg.PollingTimeout) {
			log.Warn(ctx, "analysis timed out", "timeout", s.cfg.PollingTimeout.String())
			span.SetStatus(codes.Error, "poll timeout")
			return scanning.FailedVerdict(job.Hash, fmt.Sprintf(
				"%s after %s", scanning.ErrPollTimeout, s.cfg.PollingTimeout)), nil
		}
		if err := s.quota.Increment(ctx); err != nil {
			return scanning.VerdictResult{Hash: job.Hash}, err
		}

		analysis, err := s.api.GetAnalysis(ctx, job.AnalysisID)
		s.metrics.IncAPICall(ctx, "get_analysis", err == nil)
		if errors.Is(err, scanning.ErrRemoteNotFound) {
			log.Warn(ctx, "analysis disappeared while polling")
			return scanning.FailedVerdict(job.Hash, scanning.ErrAnalysisLost.Error()), nil
		}
		if err != nil {
			return scanning.VerdictResult{Hash: job.Hash}, fmt.Errorf("polling analysis: %w", err)
		}

		if analysis.Status == scanning.AnalysisCompleted {
			span.SetAttributes(attribute.Int("poll_attempts", attempt))
			return scanning.VerdictFromStats(analysis.Stats, job.Hash), nil
		}
		log.Debug(ctx, "analysis pending", "status", string(analysis.Status), "attempt", attempt)
	}
}

// withRetry retries fn on throttling and server errors with exponential backoff.
// Other errors end the loop immediately.
func withRetry[T any](ctx context.Context, s *Service, op string, fn func() (T, error)) (T, error) {
	var result T

	operation := func() error {
		var err error
		result, err = fn()
		s.metrics.IncAPICall(ctx, op, err == nil)
		if err == nil {
			return nil
		}
		if scanning.IsRetriable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, next time.Duration) {
		s.metrics.IncRetry(ctx, op)
		s.logger.Warn(ctx, "retrying API call", "operation", op, "delay", next.String(), "error", err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(s.newBackOff(), ctx), notify); err != nil {
		var zero T
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		return zero, err
	}
	return result, nil
}

func (s *Service) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInitialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = s.cfg.RetryInitialInterval << s.cfg.MaxRetries
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, s.cfg.MaxRetries)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
