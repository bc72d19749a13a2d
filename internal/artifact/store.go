// Package artifact stores generated documents. Artifacts are immutable:
// each is written once through an atomic rename, left read-only and removed
// only together with the record that owns it.
package artifact

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledgerdesk/backoffice/internal/config"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/utils"
)

const fileMode = 0o444

// Mirror copies artifacts to secondary storage
type Mirror interface {
	Upload(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
	PresignedURL(ctx context.Context, name string) (string, error)
}

// Info describes a stored artifact
type Info struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Store keeps artifacts in a local directory and optionally mirrors them
type Store struct {
	dir    string
	logger *logger.Logger
	mirror Mirror
}

// NewStore prepares the configured artifact directory. mirror may be nil.
func NewStore(cfg *config.Configuration, log *logger.Logger, mirror Mirror) (*Store, error) {
	return Open(cfg.Storage.ArtifactDir, log, mirror)
}

func Open(dir string, log *logger.Logger, mirror Mirror) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storageError(err, "failed to create artifact directory", dir)
	}
	if removed, err := utils.RemoveStaleTempFiles(dir); err == nil && removed > 0 {
		log.Warnw("removed partial artifacts", "dir", dir, "count", removed)
	}
	return &Store{dir: dir, logger: log, mirror: mirror}, nil
}

// Save writes a new artifact. An existing artifact with the same name is
// never overwritten.
func (s *Store) Save(ctx context.Context, name string, data []byte) (*Info, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return nil, ierr.NewErrorf("artifact %s already exists", name).
			WithHint("Artifact already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	if err := utils.WriteFileAtomic(path, data, fileMode, nil); err != nil {
		return nil, storageError(err, "failed to write artifact", path)
	}

	if s.mirror != nil {
		if err := s.mirror.Upload(ctx, name, data); err != nil {
			// The local copy is authoritative.
			s.logger.Errorw("failed to mirror artifact", "name", name, "error", err)
		}
	}

	s.logger.Infow("artifact stored", "name", name, "size", len(data))
	return s.Stat(name)
}

// Stat returns the artifact metadata or ErrNotFound
func (s *Store) Stat(name string) (*Info, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, s.openError(err, name, path)
	}
	return &Info{Name: name, Path: path, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Open returns a reader for the artifact. Callers close it.
func (s *Store) Open(name string) (*os.File, *Info, error) {
	info, err := s.Stat(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(info.Path)
	if err != nil {
		return nil, nil, s.openError(err, name, info.Path)
	}
	return f, info, nil
}

// Read returns the artifact content
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, s.openError(err, name, path)
	}
	return data, nil
}

// Delete removes the artifact. Deleting a missing artifact succeeds.
func (s *Store) Delete(ctx context.Context, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageError(err, "failed to delete artifact", path)
	}
	if s.mirror != nil {
		if err := s.mirror.Delete(ctx, name); err != nil {
			s.logger.Errorw("failed to delete mirrored artifact", "name", name, "error", err)
		}
	}
	return nil
}

// DownloadURL returns a presigned mirror URL when a mirror is configured
func (s *Store) DownloadURL(ctx context.Context, name string) (string, bool, error) {
	if s.mirror == nil {
		return "", false, nil
	}
	if _, err := s.path(name); err != nil {
		return "", false, err
	}
	url, err := s.mirror.PresignedURL(ctx, name)
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Extension) {
		return "", ierr.NewErrorf("invalid artifact name: %q", name).
			WithHint("Invalid artifact name").
			Mark(ierr.ErrValidation)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *Store) openError(err error, name, path string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ierr.WithError(err).
			WithHintf("Artifact %s not found", name).
			Mark(ierr.ErrNotFound)
	}
	return storageError(err, "failed to read artifact", path)
}

func storageError(err error, hint, path string) error {
	return ierr.WithError(err).
		WithHint(hint).
		WithReportableDetails(map[string]any{
			"path": path,
		}).
		Mark(ierr.ErrStorageUnavailable)
}
