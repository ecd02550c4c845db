package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/dropscan/internal/app/quota"
	"github.com/ahrav/dropscan/internal/app/ratelimit"
	"github.com/ahrav/dropscan/internal/app/scanning"
	"github.com/ahrav/dropscan/internal/app/verdict"
	"github.com/ahrav/dropscan/internal/config"
	"github.com/ahrav/dropscan/internal/config/fileloader"
	domain "github.com/ahrav/dropscan/internal/domain/scanning"
	"github.com/ahrav/dropscan/internal/infra/auditlog"
	"github.com/ahrav/dropscan/internal/infra/eventbus/kafka"
	"github.com/ahrav/dropscan/internal/infra/fileops"
	"github.com/ahrav/dropscan/internal/infra/virustotal"
	"github.com/ahrav/dropscan/internal/infra/watcher"
	"github.com/ahrav/dropscan/pkg/common/logger"
	"github.com/ahrav/dropscan/pkg/common/otel"
)

const defaultSettingsFile = "settings.json"

func main() {
	_, _ = maxprocs.Set()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dropscan: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("dropscan", pflag.ContinueOnError)
	settingsPath := flags.String("config", defaultSettingsPath(), "settings document (JSON or YAML)")
	config.RegisterFlags(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewViperLoader(*settingsPath, flags).Load(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	log := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid settings", "error", err)
		return err
	}

	tel, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
		Probability:      cfg.Telemetry.SampleRatio,
		ResourceAttributes: map[string]string{
			"library.language": "go",
		},
		InsecureExporter: cfg.Telemetry.Insecure,
	})
	if err != nil {
		log.Error(ctx, "failed to initialize telemetry", "error", err)
		return err
	}
	defer telemetryTeardown(context.Background())

	tracer := tel.TracerProvider.Tracer(cfg.Telemetry.ServiceName)

	// The tracker persists usage back into the same document the loader read.
	store := fileloader.NewStore(*settingsPath)
	limiter := ratelimit.NewFixedWindow(cfg.Quota.PerMinute, log)
	tracker, err := quota.NewTracker(ctx, store, log, quota.WithPermitLimiter(limiter))
	if err != nil {
		log.Error(ctx, "failed to load quota state", "error", err)
		return err
	}
	// Caps may come from flags or the environment; counters only from the document.
	if err := tracker.UpdateLimits(ctx, cfg.Quota.PerMinute, cfg.Quota.PerDay, cfg.Quota.PerMonth); err != nil {
		log.Error(ctx, "failed to apply quota limits", "error", err)
		return err
	}
	if err := tracker.RegisterMetrics(tel.MeterProvider); err != nil {
		log.Error(ctx, "failed to register quota metrics", "error", err)
		return err
	}

	client := virustotal.NewClient(virustotal.Config{
		BaseURL:              cfg.General.APIBaseURL,
		APIKey:               cfg.APIKey,
		UploadBytesPerSecond: cfg.General.UploadBytesPerSecond,
		RequestTimeout:       2 * time.Minute,
	}, limiter, log, tracer)

	files := fileops.New()

	verdictMetrics, err := verdict.NewVerdictMetrics(tel.MeterProvider)
	if err != nil {
		log.Error(ctx, "failed to create verdict metrics", "error", err)
		return err
	}
	verdicts := verdict.NewService(client, tracker, files, verdict.Config{
		MaxFileSizeBytes:        cfg.General.MaxFileSizeBytes,
		LargeFileThresholdBytes: cfg.General.LargeFileThresholdBytes,
		PollInterval:            cfg.General.PollInterval,
		PollingTimeout:          cfg.General.PollingTimeout,
	}, log, verdictMetrics, tracer)

	observers := domain.Observers{newConsoleObserver(log)}

	if cfg.Paths.LogFile != "" {
		audit := auditlog.New(auditlog.Config{
			Path:       cfg.Paths.LogFile,
			MaxSizeMB:  cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAgeDays: cfg.Audit.MaxAgeDays,
			Compress:   cfg.Audit.Compress,
		})
		defer audit.Close()
		observers = append(observers, audit)
	}

	if len(cfg.Events.KafkaBrokers) > 0 {
		producer, err := kafka.Connect(ctx, &kafka.ClientConfig{
			Brokers:  cfg.Events.KafkaBrokers,
			ClientID: cfg.Events.ClientID,
		}, log)
		if err != nil {
			log.Error(ctx, "failed to connect to kafka", "error", err)
			return err
		}
		publisherMetrics, err := kafka.NewPublisherMetrics(tel.MeterProvider)
		if err != nil {
			log.Error(ctx, "failed to create publisher metrics", "error", err)
			return err
		}
		publisher := kafka.NewStatusPublisher(producer, cfg.Events.StatusTopic, log, publisherMetrics, tracer)
		defer publisher.Close()
		observers = append(observers, publisher)
		log.Info(ctx, "publishing status events", "topic", cfg.Events.StatusTopic)
	}

	pipelineMetrics, err := scanning.NewPipelineMetrics(tel.MeterProvider)
	if err != nil {
		log.Error(ctx, "failed to create pipeline metrics", "error", err)
		return err
	}
	pipeline, err := scanning.NewPipeline(scanning.Config{
		ScanDirectory:        cfg.Paths.ScanDirectory,
		CleanDirectory:       cfg.Paths.CleanDirectory,
		CompromisedDirectory: cfg.Paths.CompromisedDirectory,
		LogFile:              cfg.Paths.LogFile,
		CreateDebounce:       cfg.Pipeline.CreateDebounce,
		IdlePoll:             cfg.Pipeline.IdlePoll,
		LockedRetryInterval:  cfg.Pipeline.LockedRetryInterval,
		SkipPatterns:         cfg.Pipeline.SkipPatterns,
	},
		verdicts,
		files,
		watcher.NewFactory(log),
		limiter,
		observers,
		log,
		pipelineMetrics,
		tracer,
	)
	if err != nil {
		log.Error(ctx, "failed to create pipeline", "error", err)
		return err
	}

	if err := pipeline.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")
	return pipeline.Stop()
}

func newLogger(cfg *config.Settings) *logger.Logger {
	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
				"span_id":       otel.GetSpanID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	hostname, _ := os.Hostname()
	metadata := map[string]string{
		"hostname": hostname,
		"app":      cfg.Telemetry.ServiceName,
	}

	return logger.NewWithMetadata(
		os.Stdout,
		logger.ParseLevel(cfg.Log.Level),
		cfg.Telemetry.ServiceName,
		otel.GetTraceID,
		logEvents,
		metadata,
	)
}

// defaultSettingsPath places the settings document in the user config directory,
// falling back to the working directory.
func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return defaultSettingsFile
	}
	return filepath.Join(dir, "dropscan", defaultSettingsFile)
}
