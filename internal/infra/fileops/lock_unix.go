//go:build !windows

package fileops

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// probeExclusive tries to take a non-blocking exclusive advisory lock. Writers that
// hold a shared or exclusive flock make the probe fail.
func probeExclusive(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			// Read-only files can still be scanned; fall back to a read probe.
			f, err = os.Open(path)
		}
		if err != nil {
			return err
		}
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return err
	}
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
