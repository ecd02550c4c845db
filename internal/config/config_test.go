package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.APIKey = "k"
	require.NoError(t, valid.Validate())

	missingKey := Defaults()
	assert.ErrorIs(t, missingKey.Validate(), ErrMissingAPIKey)

	negative := Defaults()
	negative.APIKey = "k"
	negative.Quota.PerDay = -1
	assert.ErrorIs(t, negative.Validate(), ErrNegativeQuota)

	zeroPoll := Defaults()
	zeroPoll.APIKey = "k"
	zeroPoll.General.PollInterval = 0
	assert.Error(t, zeroPoll.Validate())
}

func TestViperLoader_DefaultsWithoutFile(t *testing.T) {
	cfg, err := NewViperLoader(filepath.Join(t.TempDir(), "missing.json"), nil).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DefaultPollingTimeout, cfg.General.PollingTimeout)
	assert.Equal(t, int64(DefaultMaxFileSizeBytes), cfg.General.MaxFileSizeBytes)
	assert.Equal(t, DefaultLockedRetryInterval, cfg.Pipeline.LockedRetryInterval)
	assert.Equal(t, DefaultPerMinute, cfg.Quota.PerMinute)
}

func TestViperLoader_FileEnvAndFlags(t *testing.T) {
	p := filepath.Join(t.TempDir(), "settings.yaml")
	doc := `
api_key: from-file
quota:
  per_day: 500
  last_used_date: "2024-05-06T07:08:09Z"
general:
  poll_interval: 3s
paths:
  scan_directory: /file/drop
`
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o644))

	t.Setenv("DROPSCAN_API_KEY", "from-env")
	t.Setenv("DROPSCAN_PIPELINE_IDLE_POLL", "250ms")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--scan-dir", "/flag/drop"}))

	cfg, err := NewViperLoader(p, fs).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, 500, cfg.Quota.PerDay)
	assert.Equal(t, time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), cfg.Quota.LastUsedDate.UTC())
	assert.Equal(t, 3*time.Second, cfg.General.PollInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.IdlePoll)
	assert.Equal(t, "/flag/drop", cfg.Paths.ScanDirectory)
}
