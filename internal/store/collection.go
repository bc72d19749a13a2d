package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/ledgerdesk/backoffice/internal/domain/record"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
)

// Load returns the records of a collection. A collection that was never
// saved is empty.
func (s *Store) Load(ctx context.Context, collection string) ([]*record.Record, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	path, err := s.collectionPath(collection)
	if err != nil {
		return nil, err
	}
	// Renames are atomic, so an unlocked read sees a whole file.
	return s.readCollection(path)
}

// Save replaces the collection with records
func (s *Store) Save(ctx context.Context, collection string, records []*record.Record) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	path, err := s.collectionPath(collection)
	if err != nil {
		return err
	}
	mu, err := s.collectionLock(collection)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()

	if err := s.writeCollection(path, records); err != nil {
		return err
	}
	s.raiseFloors(records)
	return nil
}

// Update loads the collection, applies fn and saves the result while
// holding the collection lock, so concurrent updates never lose writes.
// When fn fails nothing is written and its error is returned unchanged.
func (s *Store) Update(ctx context.Context, collection string, fn record.MutateFunc) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	path, err := s.collectionPath(collection)
	if err != nil {
		return err
	}
	mu, err := s.collectionLock(collection)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()

	records, err := s.readCollection(path)
	if err != nil {
		return err
	}
	updated, err := fn(records)
	if err != nil {
		return err
	}
	if err := s.writeCollection(path, updated); err != nil {
		return err
	}
	s.raiseFloors(updated)
	return nil
}

// Insert allocates the next value of sequence and appends the record built
// for it. Allocation and insertion form one transaction: the collection is
// written first and the counter second, and a counter left behind by a
// crash in between is advanced on the next Open. A failed build or write
// consumes no value.
func (s *Store) Insert(ctx context.Context, collection, sequence string, build record.BuildFunc) (*record.Record, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	if sequence == "" {
		return nil, ierr.NewError("sequence name is required").
			WithHint("sequence name is required").
			Mark(ierr.ErrValidation)
	}
	path, err := s.collectionPath(collection)
	if err != nil {
		return nil, err
	}
	mu, err := s.collectionLock(collection)
	if err != nil {
		return nil, err
	}

	// Lock order is collection then counters; Next only takes counters.
	mu.Lock()
	defer mu.Unlock()
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	counters, err := s.readCounters()
	if err != nil {
		return nil, err
	}
	next := s.nextValue(counters, sequence)

	records, err := s.readCollection(path)
	if err != nil {
		return nil, err
	}

	r, err := build(next)
	if err != nil {
		return nil, err
	}
	r.SequenceName = sequence
	r.Sequence = next

	if err := s.writeCollection(path, append(records, r)); err != nil {
		return nil, err
	}
	s.raiseFloor(sequence, next)

	counters[sequence] = next
	if err := s.writeCounters(counters); err != nil {
		// The record is stored and the floor already covers it, so this
		// process never reissues the value; Open repairs the file later.
		s.logger.Errorw("failed to persist counter after insert",
			"sequence", sequence,
			"value", next,
			"error", err)
	}

	s.logger.Debugw("inserted record",
		"collection", collection,
		"sequence", sequence,
		"value", next,
		"id", r.ID)
	return r, nil
}

func (s *Store) readCollection(path string) ([]*record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*record.Record{}, nil
		}
		return nil, storageError(err, "failed to read collection", path)
	}
	records := []*record.Record{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, storageError(err, "collection file is corrupt", path)
	}
	return records, nil
}

func (s *Store) writeCollection(path string, records []*record.Record) error {
	if records == nil {
		records = []*record.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to encode collection").
			Mark(ierr.ErrSystem)
	}
	data = append(data, '\n')
	return s.writeFile(path, data)
}

func (s *Store) raiseFloors(records []*record.Record) {
	for _, r := range records {
		if r.SequenceName != "" {
			s.raiseFloor(r.SequenceName, r.Sequence)
		}
	}
}

func (s *Store) raiseFloor(sequence string, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value > s.floors[sequence] {
		s.floors[sequence] = value
	}
}
