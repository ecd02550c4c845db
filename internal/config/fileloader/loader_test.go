package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/dropscan/internal/config"
)

func TestStore_MissingFileYieldsDefaults(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "settings.json"))

	cfg, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), *cfg)
}

func TestStore_SaveThenLoad(t *testing.T) {
	for _, name := range []string{"settings.json", "settings.yaml"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			s := NewStore(filepath.Join(dir, "nested", name))

			cfg := config.Defaults()
			cfg.APIKey = "key"
			cfg.Quota.PerDay = 500
			cfg.Quota.UsedToday = 12
			cfg.Quota.LastUsedDate = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
			cfg.Paths.ScanDirectory = "/drop"

			require.NoError(t, s.Save(context.Background(), &cfg))

			got, err := s.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, cfg.APIKey, got.APIKey)
			assert.Equal(t, cfg.Quota.UsedToday, got.Quota.UsedToday)
			assert.True(t, cfg.Quota.LastUsedDate.Equal(got.Quota.LastUsedDate))
			assert.Equal(t, cfg.General.PollingTimeout, got.General.PollingTimeout)
			assert.Equal(t, "/drop", got.Paths.ScanDirectory)

			entries, err := os.ReadDir(filepath.Join(dir, "nested"))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temporary file should not be left behind")
		})
	}
}

func TestStore_PartialDocumentKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"quota":{"per_day":100}}`), 0o644))

	cfg, err := NewStore(p).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Quota.PerDay)
	assert.Equal(t, config.DefaultPerMinute, cfg.Quota.PerMinute)
	assert.Equal(t, config.DefaultPollInterval, cfg.General.PollInterval)
}

func TestStore_InvalidDocument(t *testing.T) {
	p := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(p, []byte(`{not json`), 0o644))

	_, err := NewStore(p).Load(context.Background())
	assert.Error(t, err)
}
