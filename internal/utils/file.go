package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// TempSuffix marks files written by WriteFileAtomic that are not yet in place
const TempSuffix = ".tmp"

// WriteFileAtomic replaces path with data. The content is written to a
// temporary file in the same directory, fsynced and renamed into place, so
// readers observe either the previous file or the complete new one.
// beforeRename, when set, runs once the temporary file is durable and may
// abort the write. Any failure removes the temporary file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode, beforeRename func(tmp string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	file, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*"+TempSuffix)
	if err != nil {
		return err
	}
	tmp := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		os.Remove(tmp)
		return err
	}

	if beforeRename != nil {
		if err := beforeRename(tmp); err != nil {
			os.Remove(tmp)
			return err
		}
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	// The rename is only durable once the directory entry is flushed.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

// IsTempFile reports whether name was left behind by WriteFileAtomic
func IsTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, TempSuffix)
}

// RemoveStaleTempFiles deletes temporary files of writes interrupted by a crash
func RemoveStaleTempFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !IsTempFile(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
