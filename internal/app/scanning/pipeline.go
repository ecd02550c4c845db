// Package scanning runs the directory scan pipeline: it turns filesystem activity
// into a serialized stream of scans and routes each file by its verdict.
package scanning

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/dropscan/internal/domain/scanning"
	"github.com/ahrav/dropscan/pkg/common/logger"
	"github.com/ahrav/dropscan/pkg/common/timeutil"
)

// ErrScanDirNotConfigured is returned by Start when no scan directory is set.
var ErrScanDirNotConfigured = errors.New("scan directory is not configured")

// Config holds the pipeline's paths and timings.
type Config struct {
	ScanDirectory        string
	CleanDirectory       string
	CompromisedDirectory string
	// LogFile is never scanned, even when it lives inside ScanDirectory.
	LogFile string

	CreateDebounce      time.Duration
	IdlePoll            time.Duration
	LockedRetryInterval time.Duration
	SkipPatterns        []string
}

// Pipeline owns the watch subscription, the work queue, the single consumer and the
// locked-file retry loop. Exactly one file is scanned at a time.
type Pipeline struct {
	cfg Config

	verdicts scanning.VerdictScanner
	files    scanning.FileOps
	watchers scanning.WatcherFactory
	limiter  scanning.RateLimitNotifier
	observer scanning.StatusObserver
	skip     *skipFilter

	queue *workQueue

	lockedMu     sync.Mutex
	locked       map[string]struct{}
	lockedSignal chan struct{}

	resultsMu sync.Mutex
	results   map[string]scanning.ScanResult
	emitMu    sync.Mutex

	debounceMu sync.Mutex
	debounce   map[string]*time.Timer

	// activePath is the file currently inside the verdict client.
	activePath atomic.Value
	countdown  *countdown

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	ctx         context.Context
	cancel      context.CancelFunc
	watcher     scanning.Watcher
	unsubscribe func()
	group       *errgroup.Group

	timeProvider timeutil.Provider
	logger       *logger.Logger
	metrics      PipelineMetrics
	tracer       trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeProvider replaces the clock used for move timestamps and durations.
func WithTimeProvider(tp timeutil.Provider) Option {
	return func(p *Pipeline) { p.timeProvider = tp }
}

// NewPipeline creates a Pipeline. It fails only when a skip pattern does not compile.
func NewPipeline(
	cfg Config,
	verdicts scanning.VerdictScanner,
	files scanning.FileOps,
	watchers scanning.WatcherFactory,
	limiter scanning.RateLimitNotifier,
	observer scanning.StatusObserver,
	logger *logger.Logger,
	metrics PipelineMetrics,
	tracer trace.Tracer,
	opts ...Option,
) (*Pipeline, error) {
	skip, err := newSkipFilter(cfg.SkipPatterns)
	if err != nil {
		return nil, err
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = time.Second
	}
	if cfg.LockedRetryInterval <= 0 {
		cfg.LockedRetryInterval = 5 * time.Second
	}

	p := &Pipeline{
		cfg:          cfg,
		verdicts:     verdicts,
		files:        files,
		watchers:     watchers,
		limiter:      limiter,
		observer:     observer,
		skip:         skip,
		queue:        newWorkQueue(),
		locked:       make(map[string]struct{}),
		lockedSignal: make(chan struct{}, 1),
		results:      make(map[string]scanning.ScanResult),
		debounce:     make(map[string]*time.Timer),
		timeProvider: timeutil.Default(),
		logger:       logger.With("component", "scan_pipeline"),
		metrics:      metrics,
		tracer:       tracer,
	}
	p.activePath.Store("")
	p.countdown = newCountdown(p)
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start validates the scan directory, subscribes to it and launches the consumer,
// the watcher loop, the locked-file loop and the enumeration of existing files.
func (p *Pipeline) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return errors.New("pipeline already started")
	}

	dir := p.cfg.ScanDirectory
	if dir == "" {
		p.logMessage(ctx, "Scan directory is not configured.")
		return ErrScanDirNotConfigured
	}

	created, err := p.files.EnsureDir(dir)
	if err != nil {
		p.logMessage(ctx, fmt.Sprintf("Failed to create scan directory: %v", err))
		return err
	}
	if created {
		p.logMessage(ctx, fmt.Sprintf("Created scan directory: %s", dir))
	}

	w, err := p.watchers.Watch(dir)
	if err != nil {
		p.logMessage(ctx, fmt.Sprintf("Failed to watch scan directory: %v", err))
		return err
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.watcher = w
	p.unsubscribe = p.limiter.Subscribe(p.onRateLimit)
	p.started = true

	g, gctx := errgroup.WithContext(p.ctx)
	g.Go(func() error { return p.consume(gctx) })
	g.Go(func() error { return p.watch(gctx, w) })
	g.Go(func() error { return p.retryLocked(gctx) })
	g.Go(func() error { return p.enqueueExisting(gctx, dir) })
	p.group = g

	p.logMessage(ctx, fmt.Sprintf("Started monitoring %s", dir))
	return nil
}

// Stop cancels in-flight work, closes the watch subscription and waits for every
// pipeline goroutine to return. It is safe to call more than once.
func (p *Pipeline) Stop() error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	p.lifecycleMu.Unlock()

	p.cancel()
	p.unsubscribe()
	p.countdown.stop()

	p.debounceMu.Lock()
	for path, t := range p.debounce {
		t.Stop()
		delete(p.debounce, path)
	}
	p.debounceMu.Unlock()

	closeErr := p.watcher.Close()
	err := p.group.Wait()
	p.countdown.wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return closeErr
}

// Enqueue adds path to the back of the queue and reports it as Pending. The
// configured log file and paths already queued or being scanned are ignored.
func (p *Pipeline) Enqueue(ctx context.Context, path string) {
	p.enqueue(ctx, path, "")
}

// Results returns the latest result for every path seen so far.
func (p *Pipeline) Results() []scanning.ScanResult {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()

	out := make([]scanning.ScanResult, 0, len(p.results))
	for _, r := range p.results {
		out = append(out, r)
	}
	return out
}

// LockedFiles returns the paths currently waiting for their lock to be released.
func (p *Pipeline) LockedFiles() []string {
	p.lockedMu.Lock()
	defer p.lockedMu.Unlock()

	out := make([]string, 0, len(p.locked))
	for path := range p.locked {
		out = append(out, path)
	}
	return out
}

func (p *Pipeline) enqueue(ctx context.Context, path, previous string) {
	if p.isLogFile(path) {
		return
	}

	added := p.queue.push(path)
	if previous == "" && !added {
		return
	}
	if added {
		p.metrics.IncFilesEnqueued(ctx)
	}

	p.update(ctx, path, func(r *scanning.ScanResult) bool {
		r.Status = scanning.StatusPending
		r.Message = ""
		r.PreviousPath = previous
		if previous != "" {
			r.Message = "Renamed"
		}
		return true
	})
}

func (p *Pipeline) consume(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		path, ok := p.queue.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.cfg.IdlePoll):
			}
			continue
		}

		p.processFile(ctx, path)
		p.queue.done(path)
	}
}

// processFile is the per-file boundary: nothing that goes wrong here, including a
// panic, reaches the consumer loop.
func (p *Pipeline) processFile(ctx context.Context, path string) {
	job := scanning.NewScanJob(path, p.timeProvider.Now())
	name := filepath.Base(path)

	ctx, span := p.tracer.Start(ctx, "scan_pipeline.process_file",
		trace.WithAttributes(
			attribute.String("job_id", job.ID.String()),
			attribute.String("path", path),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			p.activePath.Store("")
			err := fmt.Errorf("panic while processing %s: %v", name, r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic recovered")
			p.logger.Error(ctx, "recovered from panic", "path", path, "job_id", job.ID.String(), "panic", r)
			p.finish(ctx, path, scanning.StatusFailed, func(res *scanning.ScanResult) { res.Message = err.Error() })
		}
	}()

	p.update(ctx, path, func(r *scanning.ScanResult) bool {
		r.Status = scanning.StatusScanning
		r.Message = ""
		r.PreviousPath = ""
		return true
	})

	if reason, skip := p.skip.match(name); skip {
		p.logMessage(ctx, fmt.Sprintf("Skipping %s: %s", name, reason))
		p.finish(ctx, path, scanning.StatusSkipped, func(r *scanning.ScanResult) { r.Message = reason })
		return
	}

	if !p.files.Exists(path) {
		p.logMessage(ctx, fmt.Sprintf("File %s no longer exists.", name))
		p.finish(ctx, path, scanning.StatusRemoved, func(r *scanning.ScanResult) { r.Message = "File no longer exists" })
		return
	}

	if p.files.IsLocked(path) {
		span.AddEvent("file_locked")
		// Release the queue slot first so an unlock seen by the retry loop can
		// queue the path again straight away.
		p.queue.done(path)
		p.markLocked(ctx, path)
		return
	}

	p.logMessage(ctx, fmt.Sprintf("Scanning file: %s", name))
	p.activePath.Store(path)
	res, err := p.verdicts.ScanFile(ctx, path)
	p.activePath.Store("")
	p.countdown.stop()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		msg := err.Error()
		if ctx.Err() != nil {
			msg = "Scan cancelled"
		}
		p.logMessage(ctx, fmt.Sprintf("Error processing %s: %s", name, msg))
		p.finish(ctx, path, scanning.StatusFailed, func(r *scanning.ScanResult) { r.Message = msg })
		return
	}

	p.applyVerdict(ctx, path, res)
	p.metrics.ObserveScanDuration(ctx, p.timeProvider.Now().Sub(job.EnqueuedAt))
	span.SetAttributes(attribute.String("verdict", res.Verdict.String()))
	span.SetStatus(codes.Ok, "file processed")
}

func (p *Pipeline) applyVerdict(ctx context.Context, path string, res scanning.VerdictResult) {
	name := filepath.Base(path)

	switch res.Verdict {
	case scanning.VerdictClean, scanning.VerdictCompromised:
		status := scanning.StatusClean
		if res.Verdict == scanning.VerdictCompromised {
			status = scanning.StatusCompromised
		}

		msg := ""
		_, outcome, err := p.moveToDestination(ctx, path, p.destinationFor(res.Verdict))
		if err != nil {
			msg = fmt.Sprintf("Move failed: %v", err)
			p.logger.Error(ctx, "failed to move file", "path", path, "error", err)
		} else {
			p.metrics.IncMoves(ctx, string(outcome))
		}

		p.finish(ctx, path, status, func(r *scanning.ScanResult) {
			r.DetectionCount = res.DetectionCount
			r.FileHash = res.Hash
			r.Message = msg
		})

		switch {
		case err != nil:
			p.logMessage(ctx, fmt.Sprintf("File %s is %s but could not be moved: %v", name, status, err))
		case outcome == MoveSkipped:
			p.logMessage(ctx, fmt.Sprintf("File %s is %s. Left in place.", name, status))
		case status == scanning.StatusClean:
			p.logMessage(ctx, fmt.Sprintf("File %s is CLEAN. Moved to clean directory.", name))
		default:
			p.logMessage(ctx, fmt.Sprintf(
				"File %s is COMPROMISED (%d detections). Moved to compromised directory.", name, res.DetectionCount))
		}

	case scanning.VerdictFailed:
		msg := res.Message
		if msg == "" {
			msg = "Unknown error"
		}
		p.finish(ctx, path, scanning.StatusFailed, func(r *scanning.ScanResult) {
			r.FileHash = res.Hash
			r.Message = msg
		})
		p.logMessage(ctx, fmt.Sprintf("File %s FAILED: %s", name, msg))

	default:
		p.finish(ctx, path, scanning.StatusFailed, func(r *scanning.ScanResult) {
			r.FileHash = res.Hash
			r.Message = "Unknown verdict"
		})
		p.logMessage(ctx, fmt.Sprintf("File %s status is UNKNOWN.", name))
	}
}

// finish records a terminal status and counts it.
func (p *Pipeline) finish(ctx context.Context, path string, status scanning.ScanStatus, fn func(*scanning.ScanResult)) {
	p.update(ctx, path, func(r *scanning.ScanResult) bool {
		r.Status = status
		fn(r)
		return true
	})
	p.metrics.IncFilesProcessed(ctx, status.String())
}

// update mutates the stored result for path and, when fn returns true, delivers a
// copy to the observer. Deliveries are serialized so observers see changes to one
// path in the order they were made.
func (p *Pipeline) update(ctx context.Context, path string, fn func(*scanning.ScanResult) bool) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.resultsMu.Lock()
	r, ok := p.results[path]
	if !ok {
		r = scanning.NewScanResult(path, scanning.StatusPending)
	}
	emit := fn(&r)
	p.results[path] = r
	p.resultsMu.Unlock()

	if emit {
		p.observer.OnStatus(ctx, r)
	}
}

func (p *Pipeline) logMessage(ctx context.Context, msg string) {
	p.logger.Info(ctx, msg)
	p.observer.OnLog(ctx, msg)
}

func (p *Pipeline) enqueueExisting(ctx context.Context, dir string) error {
	files, err := p.files.ListFiles(dir)
	if err != nil {
		p.logMessage(ctx, fmt.Sprintf("Error detecting existing files: %v", err))
		return nil
	}
	if len(files) > 0 {
		p.logMessage(ctx, fmt.Sprintf("Found %d existing files.", len(files)))
	}
	for _, f := range files {
		if ctx.Err() != nil {
			return nil
		}
		p.Enqueue(ctx, f)
	}
	return nil
}

// rotatedLogTimeFormat is the timestamp the audit log rotator stamps into backup
// names.
const rotatedLogTimeFormat = "2006-01-02T15-04-05.000"

// isLogFile reports whether path is the audit log or one of its rotated backups.
// Either may sit inside the scan directory and must never be scanned.
func (p *Pipeline) isLogFile(path string) bool {
	if p.cfg.LogFile == "" {
		return false
	}
	candidate, logPath := normalizePath(path), normalizePath(p.cfg.LogFile)
	if strings.EqualFold(candidate, logPath) {
		return true
	}
	return isRotatedLog(candidate, logPath)
}

// isRotatedLog matches "<name>-<timestamp><ext>" next to logPath, with or without
// a trailing ".gz".
func isRotatedLog(candidate, logPath string) bool {
	if !strings.EqualFold(filepath.Dir(candidate), filepath.Dir(logPath)) {
		return false
	}
	base := filepath.Base(logPath)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "-"

	name := filepath.Base(candidate)
	if len(name) > 3 && strings.EqualFold(name[len(name)-3:], ".gz") {
		name = name[:len(name)-3]
	}
	if len(name) < len(prefix)+len(ext) ||
		!strings.EqualFold(name[:len(prefix)], prefix) ||
		!strings.EqualFold(name[len(name)-len(ext):], ext) {
		return false
	}
	_, err := time.Parse(rotatedLogTimeFormat, name[len(prefix):len(name)-len(ext)])
	return err == nil
}

func normalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
