package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DROPSCAN_API_KEY or
// DROPSCAN_PATHS_SCAN_DIRECTORY.
const EnvPrefix = "DROPSCAN"

// ViperLoader merges defaults, the settings file, environment variables and bound
// command line flags, in increasing order of precedence.
type ViperLoader struct {
	path  string
	flags *pflag.FlagSet
}

// NewViperLoader creates a loader for the settings file at path. flags may be nil.
func NewViperLoader(path string, flags *pflag.FlagSet) *ViperLoader {
	return &ViperLoader{path: path, flags: flags}
}

// RegisterFlags adds the command line overrides understood by ViperLoader.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("api-key", "", "VirusTotal API key")
	fs.String("scan-dir", "", "directory to watch for new files")
	fs.String("clean-dir", "", "destination for files with a clean verdict")
	fs.String("compromised-dir", "", "destination for files flagged by at least one engine")
	fs.String("log-file", "", "human-readable audit log path")
	fs.String("log-level", "", "structured log level (debug, info, warn, error)")
	fs.StringSlice("kafka-brokers", nil, "Kafka brokers for status events")
	fs.String("otel-endpoint", "", "OTLP gRPC collector endpoint")
}

var flagKeys = map[string]string{
	"api-key":         "api_key",
	"scan-dir":        "paths.scan_directory",
	"clean-dir":       "paths.clean_directory",
	"compromised-dir": "paths.compromised_directory",
	"log-file":        "paths.log_file",
	"log-level":       "log.level",
	"kafka-brokers":   "events.kafka_brokers",
	"otel-endpoint":   "telemetry.exporter_endpoint",
}

// Load reads the merged configuration. A missing settings file is not an error.
func (l *ViperLoader) Load(ctx context.Context) (*Settings, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.path != "" {
		v.SetConfigFile(l.path)
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read settings file %s: %w", l.path, err)
		}
	}

	if l.flags != nil {
		for name, key := range flagKeys {
			f := l.flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &s, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// setDefaults registers every leaf key so AutomaticEnv can override keys that are
// absent from the file.
func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("api_key", d.APIKey)

	v.SetDefault("quota.per_minute", d.Quota.PerMinute)
	v.SetDefault("quota.per_day", d.Quota.PerDay)
	v.SetDefault("quota.per_month", d.Quota.PerMonth)
	v.SetDefault("quota.used_today", d.Quota.UsedToday)
	v.SetDefault("quota.used_this_month", d.Quota.UsedThisMonth)

	v.SetDefault("general.api_base_url", d.General.APIBaseURL)
	v.SetDefault("general.max_file_size_bytes", d.General.MaxFileSizeBytes)
	v.SetDefault("general.large_file_threshold_bytes", d.General.LargeFileThresholdBytes)
	v.SetDefault("general.polling_timeout", d.General.PollingTimeout)
	v.SetDefault("general.poll_interval", d.General.PollInterval)
	v.SetDefault("general.upload_bytes_per_second", d.General.UploadBytesPerSecond)

	v.SetDefault("paths.scan_directory", d.Paths.ScanDirectory)
	v.SetDefault("paths.clean_directory", d.Paths.CleanDirectory)
	v.SetDefault("paths.compromised_directory", d.Paths.CompromisedDirectory)
	v.SetDefault("paths.log_file", d.Paths.LogFile)

	v.SetDefault("pipeline.create_debounce", d.Pipeline.CreateDebounce)
	v.SetDefault("pipeline.idle_poll", d.Pipeline.IdlePoll)
	v.SetDefault("pipeline.locked_retry_interval", d.Pipeline.LockedRetryInterval)
	v.SetDefault("pipeline.skip_patterns", d.Pipeline.SkipPatterns)

	v.SetDefault("audit.max_size_mb", d.Audit.MaxSizeMB)
	v.SetDefault("audit.max_backups", d.Audit.MaxBackups)
	v.SetDefault("audit.max_age_days", d.Audit.MaxAgeDays)
	v.SetDefault("audit.compress", d.Audit.Compress)

	v.SetDefault("events.kafka_brokers", d.Events.KafkaBrokers)
	v.SetDefault("events.status_topic", d.Events.StatusTopic)
	v.SetDefault("events.client_id", d.Events.ClientID)

	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	v.SetDefault("telemetry.exporter_endpoint", d.Telemetry.ExporterEndpoint)
	v.SetDefault("telemetry.insecure", d.Telemetry.Insecure)
	v.SetDefault("telemetry.sample_ratio", d.Telemetry.SampleRatio)

	v.SetDefault("log.level", d.Log.Level)
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}
