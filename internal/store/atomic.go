package store

import (
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/utils"
)

func (s *Store) writeFile(path string, data []byte) error {
	if err := utils.WriteFileAtomic(path, data, fileMode, s.beforeRename); err != nil {
		return storageError(err, "failed to write storage file", path)
	}
	return nil
}

func isTempFile(name string) bool {
	return utils.IsTempFile(name)
}

func removeStaleTempFiles(dir string) (int, error) {
	return utils.RemoveStaleTempFiles(dir)
}

func storageError(err error, hint, path string) error {
	return ierr.WithError(err).
		WithHint(hint).
		WithReportableDetails(map[string]any{
			"path": path,
		}).
		Mark(ierr.ErrStorageUnavailable)
}
