//go:build unix

package store

import (
	"os"

	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"golang.org/x/sys/unix"
)

// acquireLock takes an exclusive advisory lock on path without blocking.
// The store assumes one writer process per data directory.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, storageError(err, "failed to open lock file", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, ierr.WithError(err).
			WithHint("data directory is in use by another process").
			WithReportableDetails(map[string]any{
				"path": path,
			}).
			Mark(ierr.ErrStorageUnavailable)
	}
	return f, nil
}

func releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return f.Close()
}
