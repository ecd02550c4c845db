// Package config defines the dropscan settings document and its loaders.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Settings is the full settings document. The same structure is read by the viper
// loader at startup and rewritten by the quota tracker after every counted request.
type Settings struct {
	APIKey    string            `mapstructure:"api_key" json:"api_key" yaml:"api_key"`
	Quota     QuotaSettings     `mapstructure:"quota" json:"quota" yaml:"quota"`
	General   GeneralSettings   `mapstructure:"general" json:"general" yaml:"general"`
	Paths     PathSettings      `mapstructure:"paths" json:"paths" yaml:"paths"`
	Pipeline  PipelineSettings  `mapstructure:"pipeline" json:"pipeline" yaml:"pipeline"`
	Audit     AuditSettings     `mapstructure:"audit" json:"audit" yaml:"audit"`
	Events    EventSettings     `mapstructure:"events" json:"events" yaml:"events"`
	Telemetry TelemetrySettings `mapstructure:"telemetry" json:"telemetry" yaml:"telemetry"`
	Log       LogSettings       `mapstructure:"log" json:"log" yaml:"log"`
}

// QuotaSettings holds the API caps and the usage counters persisted between runs.
// A cap of zero means unlimited.
type QuotaSettings struct {
	PerMinute     int       `mapstructure:"per_minute" json:"per_minute" yaml:"per_minute"`
	PerDay        int       `mapstructure:"per_day" json:"per_day" yaml:"per_day"`
	PerMonth      int       `mapstructure:"per_month" json:"per_month" yaml:"per_month"`
	UsedToday     int       `mapstructure:"used_today" json:"used_today" yaml:"used_today"`
	UsedThisMonth int       `mapstructure:"used_this_month" json:"used_this_month" yaml:"used_this_month"`
	LastUsedDate  time.Time `mapstructure:"last_used_date" json:"last_used_date" yaml:"last_used_date"`
}

// GeneralSettings tunes the remote verdict client.
type GeneralSettings struct {
	APIBaseURL              string        `mapstructure:"api_base_url" json:"api_base_url" yaml:"api_base_url"`
	MaxFileSizeBytes        int64         `mapstructure:"max_file_size_bytes" json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	LargeFileThresholdBytes int64         `mapstructure:"large_file_threshold_bytes" json:"large_file_threshold_bytes" yaml:"large_file_threshold_bytes"`
	PollingTimeout          time.Duration `mapstructure:"polling_timeout" json:"polling_timeout" yaml:"polling_timeout"`
	PollInterval            time.Duration `mapstructure:"poll_interval" json:"poll_interval" yaml:"poll_interval"`
	// UploadBytesPerSecond caps upload bandwidth. Zero disables the cap.
	UploadBytesPerSecond int `mapstructure:"upload_bytes_per_second" json:"upload_bytes_per_second" yaml:"upload_bytes_per_second"`
}

// PathSettings locates the watched directory, the verdict destinations and the
// human-readable audit log.
type PathSettings struct {
	ScanDirectory        string `mapstructure:"scan_directory" json:"scan_directory" yaml:"scan_directory"`
	CleanDirectory       string `mapstructure:"clean_directory" json:"clean_directory" yaml:"clean_directory"`
	CompromisedDirectory string `mapstructure:"compromised_directory" json:"compromised_directory" yaml:"compromised_directory"`
	LogFile              string `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
}

type PipelineSettings struct {
	CreateDebounce      time.Duration `mapstructure:"create_debounce" json:"create_debounce" yaml:"create_debounce"`
	IdlePoll            time.Duration `mapstructure:"idle_poll" json:"idle_poll" yaml:"idle_poll"`
	LockedRetryInterval time.Duration `mapstructure:"locked_retry_interval" json:"locked_retry_interval" yaml:"locked_retry_interval"`
	// SkipPatterns are extra regular expressions matched against the file name.
	SkipPatterns []string `mapstructure:"skip_patterns" json:"skip_patterns" yaml:"skip_patterns"`
}

type AuditSettings struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool `mapstructure:"compress" json:"compress" yaml:"compress"`
}

// EventSettings enables publishing status updates to Kafka when brokers are set.
type EventSettings struct {
	KafkaBrokers []string `mapstructure:"kafka_brokers" json:"kafka_brokers" yaml:"kafka_brokers"`
	StatusTopic  string   `mapstructure:"status_topic" json:"status_topic" yaml:"status_topic"`
	ClientID     string   `mapstructure:"client_id" json:"client_id" yaml:"client_id"`
}

type TelemetrySettings struct {
	ServiceName      string  `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	ExporterEndpoint string  `mapstructure:"exporter_endpoint" json:"exporter_endpoint" yaml:"exporter_endpoint"`
	Insecure         bool    `mapstructure:"insecure" json:"insecure" yaml:"insecure"`
	SampleRatio      float64 `mapstructure:"sample_ratio" json:"sample_ratio" yaml:"sample_ratio"`
}

type LogSettings struct {
	Level string `mapstructure:"level" json:"level" yaml:"level"`
}

const (
	DefaultAPIBaseURL              = "https://www.virustotal.com/api/v3"
	DefaultPerMinute               = 4
	DefaultMaxFileSizeBytes        = 681574400
	DefaultLargeFileThresholdBytes = 32 * 1024 * 1024
	DefaultPollingTimeout          = 15 * time.Minute
	DefaultPollInterval            = 10 * time.Second
	DefaultCreateDebounce          = 2 * time.Second
	DefaultIdlePoll                = time.Second
	DefaultLockedRetryInterval     = 5 * time.Second
	DefaultStatusTopic             = "dropscan.status"
	DefaultServiceName             = "dropscan"
)

// Defaults returns a settings document with every tunable at its default value.
func Defaults() Settings {
	return Settings{
		Quota: QuotaSettings{PerMinute: DefaultPerMinute},
		General: GeneralSettings{
			APIBaseURL:              DefaultAPIBaseURL,
			MaxFileSizeBytes:        DefaultMaxFileSizeBytes,
			LargeFileThresholdBytes: DefaultLargeFileThresholdBytes,
			PollingTimeout:          DefaultPollingTimeout,
			PollInterval:            DefaultPollInterval,
		},
		Pipeline: PipelineSettings{
			CreateDebounce:      DefaultCreateDebounce,
			IdlePoll:            DefaultIdlePoll,
			LockedRetryInterval: DefaultLockedRetryInterval,
		},
		Audit:     AuditSettings{MaxSizeMB: 10, MaxBackups: 3},
		Events:    EventSettings{StatusTopic: DefaultStatusTopic, ClientID: DefaultServiceName},
		Telemetry: TelemetrySettings{ServiceName: DefaultServiceName, SampleRatio: 1},
		Log:       LogSettings{Level: "info"},
	}
}

var (
	ErrMissingAPIKey = errors.New("api key is required")
	ErrNegativeQuota = errors.New("quota caps must not be negative")
)

// Validate checks the settings needed to run the pipeline.
func (s *Settings) Validate() error {
	var errs []error
	if s.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if s.Quota.PerMinute < 0 || s.Quota.PerDay < 0 || s.Quota.PerMonth < 0 {
		errs = append(errs, ErrNegativeQuota)
	}
	if s.General.MaxFileSizeBytes <= 0 {
		errs = append(errs, fmt.Errorf("general.max_file_size_bytes must be positive, got %d", s.General.MaxFileSizeBytes))
	}
	if s.General.LargeFileThresholdBytes <= 0 {
		errs = append(errs, fmt.Errorf("general.large_file_threshold_bytes must be positive, got %d", s.General.LargeFileThresholdBytes))
	}
	if s.General.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("general.poll_interval must be positive, got %s", s.General.PollInterval))
	}
	if s.General.PollingTimeout <= 0 {
		errs = append(errs, fmt.Errorf("general.polling_timeout must be positive, got %s", s.General.PollingTimeout))
	}
	if s.Pipeline.LockedRetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.locked_retry_interval must be positive, got %s", s.Pipeline.LockedRetryInterval))
	}
	return errors.Join(errs...)
}
