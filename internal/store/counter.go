package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	ierr "github.com/ledgerdesk/backoffice/internal/errors"
)

// Next allocates the next value of sequence. The read-increment-write runs
// under the counter lock, so concurrent callers receive distinct, strictly
// increasing values.
func (s *Store) Next(ctx context.Context, sequence string) (int, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}
	if sequence == "" {
		return 0, ierr.NewError("sequence name is required").
			WithHint("sequence name is required").
			Mark(ierr.ErrValidation)
	}

	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	counters, err := s.readCounters()
	if err != nil {
		return 0, err
	}
	next := s.nextValue(counters, sequence)
	counters[sequence] = next
	if err := s.writeCounters(counters); err != nil {
		return 0, err
	}

	s.logger.Debugw("allocated sequence value", "sequence", sequence, "value", next)
	return next, nil
}

// Peek returns the last allocated value of sequence, 0 when none was issued
func (s *Store) Peek(ctx context.Context, sequence string) (int, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	counters, err := s.readCounters()
	if err != nil {
		return 0, err
	}
	return s.nextValue(counters, sequence) - 1, nil
}

// Set moves sequence forward to value. Moving a sequence backwards would
// reissue numbers and is rejected.
func (s *Store) Set(ctx context.Context, sequence string, value int) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	counters, err := s.readCounters()
	if err != nil {
		return err
	}
	if current := s.nextValue(counters, sequence) - 1; value < current {
		return ierr.NewErrorf("sequence %s is at %d, cannot move back to %d", sequence, current, value).
			WithHint("sequence counters cannot move backwards").
			Mark(ierr.ErrInvalidOperation)
	}
	counters[sequence] = value
	return s.writeCounters(counters)
}

// AllocateID allocates the next value of sequence and formats it as a
// display number using the sequence name as prefix.
func (s *Store) AllocateID(ctx context.Context, sequence string, width int) (string, error) {
	n, err := s.Next(ctx, sequence)
	if err != nil {
		return "", err
	}
	return FormatNumber(sequence, n, width), nil
}

// FormatNumber renders a display number, FormatNumber("PO", 7, 4) == "PO0007"
func FormatNumber(prefix string, n, width int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}

// nextValue must be called with counterMu held
func (s *Store) nextValue(counters map[string]int, sequence string) int {
	current := counters[sequence]
	s.mu.Lock()
	floor := s.floors[sequence]
	s.mu.Unlock()
	if floor > current {
		current = floor
	}
	return current + 1
}

func (s *Store) countersPath() string {
	return filepath.Join(s.dir, countersFile)
}

func (s *Store) readCounters() (map[string]int, error) {
	path := s.countersPath()
	counters := map[string]int{}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return counters, nil
		}
		return nil, storageError(err, "failed to read counters", path)
	}
	if len(data) == 0 {
		return counters, nil
	}
	if err := json.Unmarshal(data, &counters); err != nil {
		return nil, storageError(err, "counter file is corrupt", path)
	}
	return counters, nil
}

func (s *Store) writeCounters(counters map[string]int) error {
	data, err := json.MarshalIndent(counters, "", "  ")
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to encode counters").
			Mark(ierr.ErrSystem)
	}
	data = append(data, '\n')
	return s.writeFile(s.countersPath(), data)
}
