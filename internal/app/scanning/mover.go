package scanning

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ahrav/dropscan/internal/domain/scanning"
)

// MoveOutcome describes how a file reached its destination.
type MoveOutcome string

const (
	MoveSkipped     MoveOutcome = "skipped"
	MoveMoved       MoveOutcome = "moved"
	MoveOverwritten MoveOutcome = "overwritten"
	MoveRenamed     MoveOutcome = "renamed"
)

const timestampLayout = "20060102150405"

// moveToDestination moves src into destDir. An existing file with the same content
// is replaced; one with different content is kept and src gets a timestamped name.
// An empty destDir leaves src where it is.
func (p *Pipeline) moveToDestination(ctx context.Context, src, destDir string) (string, MoveOutcome, error) {
	name := filepath.Base(src)
	if destDir == "" {
		p.logMessage(ctx, fmt.Sprintf("Destination directory not configured for %s", name))
		return src, MoveSkipped, nil
	}

	if created, err := p.files.EnsureDir(destDir); err != nil {
		return "", "", err
	} else if created {
		p.logMessage(ctx, fmt.Sprintf("Created directory: %s", destDir))
	}

	dest := filepath.Join(destDir, name)
	if !p.files.Exists(dest) {
		if err := p.files.Move(src, dest); err != nil {
			return "", "", err
		}
		return dest, MoveMoved, nil
	}

	same, err := p.sameContent(ctx, src, dest)
	if err != nil {
		return "", "", err
	}

	if same {
		p.logMessage(ctx, fmt.Sprintf("File %s already exists in destination with same checksum. Overwriting.", name))
		if err := p.files.Delete(dest); err != nil {
			return "", "", err
		}
		if err := p.files.Move(src, dest); err != nil {
			return "", "", err
		}
		return dest, MoveOverwritten, nil
	}

	dest = p.timestampedPath(destDir, name)
	p.logMessage(ctx, fmt.Sprintf(
		"File %s already exists in destination with DIFFERENT checksum. Renaming to %s.", name, filepath.Base(dest)))
	if err := p.files.Move(src, dest); err != nil {
		return "", "", err
	}
	return dest, MoveRenamed, nil
}

func (p *Pipeline) sameContent(ctx context.Context, a, b string) (bool, error) {
	ha, err := p.files.ComputeHash(ctx, a)
	if err != nil {
		return false, err
	}
	hb, err := p.files.ComputeHash(ctx, b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

// timestampedPath inserts _YYYYMMDDHHMMSS before the extension. Two conflicts in
// the same second get a counter appended.
func (p *Pipeline) timestampedPath(dir, name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	base := fmt.Sprintf("%s_%s", stem, p.timeProvider.Now().Format(timestampLayout))

	candidate := filepath.Join(dir, base+ext)
	for i := 1; p.files.Exists(candidate); i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	return candidate
}

// destinationFor returns the configured directory for a routed verdict.
func (p *Pipeline) destinationFor(v scanning.Verdict) string {
	switch v {
	case scanning.VerdictClean:
		return p.cfg.CleanDirectory
	case scanning.VerdictCompromised:
		return p.cfg.CompromisedDirectory
	default:
		return ""
	}
}
