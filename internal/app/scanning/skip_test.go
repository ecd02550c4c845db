package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkipFilter(t *testing.T) {
	f, err := newSkipFilter([]string{`^\.DS_Store$`, `(?i)\.lnk$`})
	require.NoError(t, err)

	tests := []struct {
		name       string
		file       string
		wantSkip   bool
		wantReason string
	}{
		{name: "office owner file", file: "~$budget.xlsx", wantSkip: true, wantReason: "Temporary lock file"},
		{name: "libreoffice lock", file: ".~lock.notes.odt#", wantSkip: true, wantReason: "Temporary lock file"},
		{name: "emacs lock", file: ".#main.go", wantSkip: true, wantReason: "Temporary lock file"},
		{name: "chrome download", file: "setup.exe.crdownload", wantSkip: true, wantReason: "Incomplete download"},
		{name: "firefox partial upper case", file: "video.MP4.PART", wantSkip: true, wantReason: "Incomplete download"},
		{name: "temp file", file: "x.tmp", wantSkip: true, wantReason: "Incomplete download"},
		{name: "extra pattern", file: ".DS_Store", wantSkip: true, wantReason: `Matches skip pattern ^\.DS_Store$`},
		{name: "case insensitive pattern", file: "Shortcut.LNK", wantSkip: true, wantReason: `Matches skip pattern (?i)\.lnk$`},
		{name: "regular file", file: "report.pdf", wantSkip: false},
		{name: "tilde not at start", file: "a~$b.txt", wantSkip: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, skip := f.match(tt.file)
			assert.Equal(t, tt.wantSkip, skip)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestSkipFilter_InvalidPattern(t *testing.T) {
	_, err := newSkipFilter([]string{"("})
	assert.Error(t, err)
}
