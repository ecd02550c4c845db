package scanning

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/dropscan/internal/domain/scanning"
	"github.com/ahrav/dropscan/pkg/common/timeutil"
)

func TestMoveToDestination(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name        string
		existing    map[string]string
		content     string
		wantOutcome MoveOutcome
		wantName    string
		wantFiles   map[string]string
	}{
		{
			name:        "empty destination",
			content:     "new",
			wantOutcome: MoveMoved,
			wantName:    "report.txt",
			wantFiles:   map[string]string{"report.txt": "new"},
		},
		{
			name:        "same content overwrites",
			existing:    map[string]string{"report.txt": "same"},
			content:     "same",
			wantOutcome: MoveOverwritten,
			wantName:    "report.txt",
			wantFiles:   map[string]string{"report.txt": "same"},
		},
		{
			name:        "different content gets timestamp",
			existing:    map[string]string{"report.txt": "old"},
			content:     "new",
			wantOutcome: MoveRenamed,
			wantName:    "report_20240102030405.txt",
			wantFiles: map[string]string{
				"report.txt":                "old",
				"report_20240102030405.txt": "new",
			},
		},
		{
			name: "timestamp collision gets counter",
			existing: map[string]string{
				"report.txt":                "old",
				"report_20240102030405.txt": "older",
			},
			content:     "new",
			wantOutcome: MoveRenamed,
			wantName:    "report_20240102030405_1.txt",
			wantFiles: map[string]string{
				"report.txt":                  "old",
				"report_20240102030405.txt":   "older",
				"report_20240102030405_1.txt": "new",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			p := env.pipeline(t, env.config(), cleanScanner(), WithTimeProvider(timeutil.NewMock(now)))

			src := writeFile(t, env.scanDir, "report.txt", tt.content)
			for name, content := range tt.existing {
				writeFile(t, env.cleanDir, name, content)
			}

			dest, outcome, err := p.moveToDestination(context.Background(), src, env.cleanDir)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Equal(t, filepath.Join(env.cleanDir, tt.wantName), dest)
			assert.NoFileExists(t, src)

			entries, err := os.ReadDir(env.cleanDir)
			require.NoError(t, err)
			got := make(map[string]string, len(entries))
			for _, e := range entries {
				b, err := os.ReadFile(filepath.Join(env.cleanDir, e.Name()))
				require.NoError(t, err)
				got[e.Name()] = string(b)
			}
			assert.Equal(t, tt.wantFiles, got)
		})
	}
}

func TestMoveToDestination_NoDestination(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(t, env.config(), cleanScanner())
	src := writeFile(t, env.scanDir, "stay.txt", "x")

	dest, outcome, err := p.moveToDestination(context.Background(), src, "")
	require.NoError(t, err)
	assert.Equal(t, MoveSkipped, outcome)
	assert.Equal(t, src, dest)
	assert.FileExists(t, src)
	assert.True(t, env.observer.hasLog("Destination directory not configured for stay.txt"))
}

func TestMoveToDestination_CreatesDirectory(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(t, env.config(), cleanScanner())
	src := writeFile(t, env.scanDir, "a.txt", "x")

	_, outcome, err := p.moveToDestination(context.Background(), src, env.compromisedDir)
	require.NoError(t, err)
	assert.Equal(t, MoveMoved, outcome)
	assert.FileExists(t, filepath.Join(env.compromisedDir, "a.txt"))
	assert.True(t, env.observer.hasLog("Created directory: "+env.compromisedDir))
}

func TestDestinationFor(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(t, env.config(), cleanScanner())

	assert.Equal(t, env.cleanDir, p.destinationFor(scanning.VerdictClean))
	assert.Equal(t, env.compromisedDir, p.destinationFor(scanning.VerdictCompromised))
	assert.Empty(t, p.destinationFor(scanning.VerdictUnknown))
	assert.Empty(t, p.destinationFor(scanning.VerdictFailed))
}
