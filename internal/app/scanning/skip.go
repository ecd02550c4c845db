package scanning

import (
	"fmt"
	"strings"

	regexp "github.com/wasilibs/go-re2"
)

// Editors and office suites create these next to the document they hold open.
var lockFilePrefixes = []string{"~$", ".~lock.", ".#"}

// Browsers and download managers write to these names until the transfer ends.
var partialExtensions = []string{
	".crdownload",
	".part",
	".partial",
	".download",
	".tmp",
	".opdownload",
	".!ut",
}

// skipFilter decides which file names never reach the network path.
type skipFilter struct {
	patterns []*regexp.Regexp
}

func newSkipFilter(extra []string) (*skipFilter, error) {
	f := &skipFilter{patterns: make([]*regexp.Regexp, 0, len(extra))}
	for _, expr := range extra {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid skip pattern %q: %w", expr, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// match returns the reason a file name should be skipped.
func (f *skipFilter) match(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, prefix := range lockFilePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return "Temporary lock file", true
		}
	}
	for _, ext := range partialExtensions {
		if strings.HasSuffix(lower, ext) {
			return "Incomplete download", true
		}
	}
	for _, re := range f.patterns {
		if re.MatchString(name) {
			return fmt.Sprintf("Matches skip pattern %s", re.String()), true
		}
	}
	return "", false
}
