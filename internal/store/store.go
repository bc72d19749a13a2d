// Package store persists record collections and sequence counters as JSON
// files in a single data directory.
//
// Every collection is one file rewritten wholesale through an atomic
// temp-file-and-rename, and every named collection and the counter file is
// guarded by its own mutex, so concurrent requests in one process never
// interleave writes or observe partial files. An advisory lock on the data
// directory keeps a second process from writing to the same files.
package store

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ledgerdesk/backoffice/internal/config"
	"github.com/ledgerdesk/backoffice/internal/domain/record"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
)

const (
	countersFile = "counters.json"
	lockFile     = ".lock"
	fileMode     = 0o644
)

var collectionName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Store is the file backed record repository and counter allocator.
// It is opened once at process start and shared by reference.
type Store struct {
	dir    string
	logger *logger.Logger
	lock   *os.File

	mu          sync.Mutex
	collections map[string]*sync.Mutex
	closed      bool

	// counterMu serializes every read-increment-write of the counter file.
	counterMu sync.Mutex
	// floors holds the highest sequence stored in any collection per
	// sequence name, so allocation never reissues a value that a record
	// already carries even if the counter file lags behind.
	floors map[string]int

	// beforeRename is a test hook run before each rename into place.
	beforeRename func(tmp string) error
}

var (
	_ record.Repository = (*Store)(nil)
	_ record.Counter    = (*Store)(nil)
)

// NewStore opens the store configured for the application
func NewStore(cfg *config.Configuration, log *logger.Logger) (*Store, error) {
	return Open(cfg.Storage.DataDir, log)
}

// Open prepares dir for use: it creates the directory, takes the writer
// lock, removes temporary files of interrupted writes and reconciles the
// counters with the stored collections.
func Open(dir string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storageError(err, "failed to create data directory", dir)
	}

	lock, err := acquireLock(filepath.Join(dir, lockFile))
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:         dir,
		logger:      log,
		lock:        lock,
		collections: make(map[string]*sync.Mutex),
		floors:      make(map[string]int),
	}

	removed, err := removeStaleTempFiles(dir)
	if err != nil {
		releaseLock(lock)
		return nil, storageError(err, "failed to scan data directory", dir)
	}
	if removed > 0 {
		log.Warnw("removed temporary files of interrupted writes", "dir", dir, "count", removed)
	}

	if err := s.reconcile(); err != nil {
		releaseLock(lock)
		return nil, err
	}

	log.Infow("record store opened", "dir", dir)
	return s, nil
}

// Close releases the writer lock. Operations after Close fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return releaseLock(s.lock)
}

// Dir returns the data directory
func (s *Store) Dir() string {
	return s.dir
}

// collectionLock returns the mutex owning the named collection
func (s *Store) collectionLock(name string) (*sync.Mutex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ierr.NewError("record store is closed").
			WithHint("storage is not available").
			Mark(ierr.ErrStorageUnavailable)
	}
	m, ok := s.collections[name]
	if !ok {
		m = &sync.Mutex{}
		s.collections[name] = m
	}
	return m, nil
}

func (s *Store) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ierr.WithError(err).
			WithHint("request cancelled").
			Mark(ierr.ErrStorageUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ierr.NewError("record store is closed").
			WithHint("storage is not available").
			Mark(ierr.ErrStorageUnavailable)
	}
	return nil
}

func (s *Store) collectionPath(name string) (string, error) {
	if !collectionName.MatchString(name) || name+".json" == countersFile {
		return "", ierr.NewErrorf("invalid collection name: %q", name).
			WithHint("invalid collection name").
			Mark(ierr.ErrValidation)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

// reconcile raises counters that lag behind the highest stored sequence.
// That state is left by a crash between the collection and counter renames
// of Insert.
func (s *Store) reconcile() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return storageError(err, "failed to scan data directory", s.dir)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == countersFile || isTempFile(name) || !strings.HasSuffix(name, ".json") {
			continue
		}
		records, err := s.readCollection(filepath.Join(s.dir, name))
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.SequenceName != "" && r.Sequence > s.floors[r.SequenceName] {
				s.floors[r.SequenceName] = r.Sequence
			}
		}
	}

	counters, err := s.readCounters()
	if err != nil {
		return err
	}
	changed := false
	for name, floor := range s.floors {
		if counters[name] < floor {
			s.logger.Warnw("counter behind stored records, advancing",
				"sequence", name,
				"counter", counters[name],
				"highest_stored", floor)
			counters[name] = floor
			changed = true
		}
	}
	if changed {
		return s.writeCounters(counters)
	}
	return nil
}
