package config

import (
	"context"
)

// Loader provides configuration loading capabilities. It abstracts the source
// of configuration to allow for different implementations like files, environment
// variables, or command line flags.
type Loader interface {
	// Load retrieves and parses the configuration from the underlying source.
	Load(ctx context.Context) (*Settings, error)
}

// SettingsStore is the load-current / save(new-state) pair the quota tracker uses to
// persist usage counters. Save must replace the whole document atomically.
type SettingsStore interface {
	Loader
	Save(ctx context.Context, s *Settings) error
}
