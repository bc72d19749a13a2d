package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ledgerdesk/backoffice/internal/domain/record"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/stretchr/testify/suite"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	dir   string
	store *Store
}

func TestStore(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()
	var err error
	s.store, err = Open(s.dir, logger.NewNopLogger())
	s.Require().NoError(err)
}

func (s *StoreSuite) TearDownTest() {
	s.store.Close()
}

func (s *StoreSuite) reopen() {
	s.Require().NoError(s.store.Close())
	var err error
	s.store, err = Open(s.dir, logger.NewNopLogger())
	s.Require().NoError(err)
}

func sampleRecord(id string, seq int) *record.Record {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &record.Record{
		ID:           id,
		Kind:         types.DocumentKindPurchaseOrder,
		Number:       FormatNumber("PO", seq, 4),
		SequenceName: "PO",
		Sequence:     seq,
		Language:     types.LanguageEnglish,
		CreatedBy:    "amal",
		CreatedAt:    at,
		UpdatedAt:    at,
		Fields: map[string]any{
			"supplier": "Gulf Paper Trading",
			"total":    "1250.00",
			"lines":    float64(3),
		},
	}
}

func (s *StoreSuite) tempFiles() []string {
	entries, err := os.ReadDir(s.dir)
	s.Require().NoError(err)
	var out []string
	for _, e := range entries {
		if isTempFile(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out
}

func (s *StoreSuite) TestLoadMissingCollectionIsEmpty() {
	records, err := s.store.Load(s.ctx, "purchase_orders")
	s.NoError(err)
	s.Empty(records)
}

func (s *StoreSuite) TestSaveLoadRoundTrip() {
	want := []*record.Record{sampleRecord("po_1", 1), sampleRecord("po_2", 2)}
	want[1].Artifact = &record.Artifact{
		Name:      "PO0002_paper_20260314.pdf",
		PageCount: 3,
		Merged:    true,
		Outcome:   types.ArtifactOutcomeSucceeded,
		CreatedAt: time.Date(2026, 3, 14, 9, 31, 0, 0, time.UTC),
	}

	s.Require().NoError(s.store.Save(s.ctx, "purchase_orders", want))

	got, err := s.store.Load(s.ctx, "purchase_orders")
	s.Require().NoError(err)
	s.Equal(want, got)
	s.Empty(s.tempFiles())
}

func (s *StoreSuite) TestSaveOverwritesWholeCollection() {
	s.Require().NoError(s.store.Save(s.ctx, "quotes", []*record.Record{sampleRecord("a", 1), sampleRecord("b", 2)}))
	s.Require().NoError(s.store.Save(s.ctx, "quotes", []*record.Record{sampleRecord("c", 3)}))

	got, err := s.store.Load(s.ctx, "quotes")
	s.Require().NoError(err)
	s.Len(got, 1)
	s.Equal("c", got[0].ID)
}

func (s *StoreSuite) TestInterruptedWriteKeepsPriorContent() {
	before := []*record.Record{sampleRecord("po_1", 1)}
	s.Require().NoError(s.store.Save(s.ctx, "purchase_orders", before))

	s.store.beforeRename = func(tmp string) error {
		// The full new content is on disk next to the canonical file.
		_, err := os.Stat(tmp)
		s.Require().NoError(err)
		return errors.New("power lost")
	}
	err := s.store.Save(s.ctx, "purchase_orders", []*record.Record{sampleRecord("po_1", 1), sampleRecord("po_2", 2)})
	s.Error(err)
	s.True(ierr.IsStorageUnavailable(err))
	s.store.beforeRename = nil

	got, err := s.store.Load(s.ctx, "purchase_orders")
	s.Require().NoError(err)
	s.Equal(before, got)
	s.Empty(s.tempFiles())
}

func (s *StoreSuite) TestStaleTempFileIsIgnoredAndRemovedOnOpen() {
	before := []*record.Record{sampleRecord("po_1", 1)}
	s.Require().NoError(s.store.Save(s.ctx, "purchase_orders", before))

	partial := filepath.Join(s.dir, ".purchase_orders.json.4242.tmp")
	s.Require().NoError(os.WriteFile(partial, []byte(`[{"id": "po_1", "num`), 0o644))

	got, err := s.store.Load(s.ctx, "purchase_orders")
	s.Require().NoError(err)
	s.Equal(before, got)

	s.reopen()
	_, err = os.Stat(partial)
	s.True(os.IsNotExist(err))
}

func (s *StoreSuite) TestConcurrentUpdatesDoNotLoseWrites() {
	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.store.Update(s.ctx, "requests", func(records []*record.Record) ([]*record.Record, error) {
				return append(records, sampleRecord(fmt.Sprintf("rq_%d", i), 0)), nil
			})
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	got, err := s.store.Load(s.ctx, "requests")
	s.Require().NoError(err)
	s.Len(got, writers)
}

func (s *StoreSuite) TestUpdateErrorWritesNothing() {
	s.Require().NoError(s.store.Save(s.ctx, "receipts", []*record.Record{sampleRecord("rc_1", 1)}))

	boom := ierr.NewError("nope").Mark(ierr.ErrNotFound)
	err := s.store.Update(s.ctx, "receipts", func(records []*record.Record) ([]*record.Record, error) {
		return nil, boom
	})
	s.True(ierr.IsNotFound(err))

	got, err := s.store.Load(s.ctx, "receipts")
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *StoreSuite) TestNextStartsAtOne() {
	n, err := s.store.Next(s.ctx, "QT")
	s.Require().NoError(err)
	s.Equal(1, n)

	n, err = s.store.Next(s.ctx, "QT")
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *StoreSuite) TestConcurrentNextNeverDuplicates() {
	const callers = 64
	results := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := s.store.Next(s.ctx, "PO")
			s.NoError(err)
			results[i] = n
		}(i)
	}
	wg.Wait()

	sort.Ints(results)
	for i, n := range results {
		s.Equal(i+1, n, "values must be distinct and dense")
	}

	last, err := s.store.Peek(s.ctx, "PO")
	s.Require().NoError(err)
	s.Equal(callers, last)
}

func (s *StoreSuite) TestSequencesAreIndependent() {
	var wg sync.WaitGroup
	for _, name := range []string{"PO", "QT", "RC"} {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				_, err := s.store.Next(s.ctx, name)
				s.NoError(err)
			}(name)
		}
	}
	wg.Wait()

	for _, name := range []string{"PO", "QT", "RC"} {
		n, err := s.store.Peek(s.ctx, name)
		s.Require().NoError(err)
		s.Equal(10, n, name)
	}
}

func (s *StoreSuite) TestCountersSurviveReopen() {
	s.Require().NoError(s.store.Set(s.ctx, "PO", 6))
	s.reopen()

	id, err := s.store.AllocateID(s.ctx, "PO", 4)
	s.Require().NoError(err)
	s.Equal("PO0007", id)
}

func (s *StoreSuite) TestSetCannotMoveBackwards() {
	s.Require().NoError(s.store.Set(s.ctx, "PO", 6))
	err := s.store.Set(s.ctx, "PO", 2)
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrInvalidOperation))
}

func (s *StoreSuite) TestInsertAllocatesInsideTransaction() {
	s.Require().NoError(s.store.Set(s.ctx, "PO", 6))

	r, err := s.store.Insert(s.ctx, "purchase_orders", "PO", func(seq int) (*record.Record, error) {
		return sampleRecord("po_x", seq), nil
	})
	s.Require().NoError(err)
	s.Equal(7, r.Sequence)
	s.Equal("PO0007", r.Number)
	s.Equal("PO", r.SequenceName)

	stored, err := s.store.Load(s.ctx, "purchase_orders")
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.Equal(7, stored[0].Sequence)

	last, err := s.store.Peek(s.ctx, "PO")
	s.Require().NoError(err)
	s.Equal(7, last)
}

func (s *StoreSuite) TestFailedBuildConsumesNoValue() {
	_, err := s.store.Insert(s.ctx, "purchase_orders", "PO", func(seq int) (*record.Record, error) {
		return nil, ierr.NewError("bad payload").Mark(ierr.ErrValidation)
	})
	s.True(ierr.IsValidation(err))

	n, err := s.store.Next(s.ctx, "PO")
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *StoreSuite) TestConcurrentInsertsGetDistinctNumbers() {
	const creators = 20
	var wg sync.WaitGroup
	numbers := make(chan string, creators)
	for i := 0; i < creators; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.store.Insert(s.ctx, "purchase_orders", "PO", func(seq int) (*record.Record, error) {
				return sampleRecord(fmt.Sprintf("po_%d", i), seq), nil
			})
			s.NoError(err)
			numbers <- r.Number
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for n := range numbers {
		s.False(seen[n], "duplicate number %s", n)
		seen[n] = true
	}
	s.Len(seen, creators)

	stored, err := s.store.Load(s.ctx, "purchase_orders")
	s.Require().NoError(err)
	s.Len(stored, creators)
}

func (s *StoreSuite) TestCounterWriteLostAfterInsertIsRepaired() {
	_, err := s.store.Insert(s.ctx, "purchase_orders", "PO", func(seq int) (*record.Record, error) {
		return sampleRecord("po_1", seq), nil
	})
	s.Require().NoError(err)

	// Fail only the counter rename of the next insert.
	s.store.beforeRename = func(tmp string) error {
		if filepath.Base(tmp)[:len(".counters")] == ".counters" {
			return errors.New("crash")
		}
		return nil
	}
	r, err := s.store.Insert(s.ctx, "purchase_orders", "PO", func(seq int) (*record.Record, error) {
		return sampleRecord("po_2", seq), nil
	})
	s.Require().NoError(err)
	s.Equal(2, r.Sequence)
	s.store.beforeRename = nil

	// Same process: the value carried by the record is never reissued.
	n, err := s.store.Peek(s.ctx, "PO")
	s.Require().NoError(err)
	s.Equal(2, n)

	// After a restart the counter file itself is advanced.
	s.reopen()
	counters, err := s.store.readCounters()
	s.Require().NoError(err)
	s.Equal(2, counters["PO"])

	next, err := s.store.Next(s.ctx, "PO")
	s.Require().NoError(err)
	s.Equal(3, next)
}

func (s *StoreSuite) TestSecondOpenFailsWhileLocked() {
	_, err := Open(s.dir, logger.NewNopLogger())
	s.Error(err)
	s.True(ierr.IsStorageUnavailable(err))
}

func (s *StoreSuite) TestClosedStoreRejectsOperations() {
	s.Require().NoError(s.store.Close())

	_, err := s.store.Next(s.ctx, "PO")
	s.True(ierr.IsStorageUnavailable(err))
	_, err = s.store.Load(s.ctx, "purchase_orders")
	s.True(ierr.IsStorageUnavailable(err))
}

func (s *StoreSuite) TestInvalidCollectionName() {
	for _, name := range []string{"", "../etc", "Orders", "counters"} {
		_, err := s.store.Load(s.ctx, name)
		s.True(ierr.IsValidation(err), name)
	}
}

func (s *StoreSuite) TestUnwritableDirectoryIsStorageUnavailable() {
	if os.Geteuid() == 0 {
		s.T().Skip("permissions are not enforced for root")
	}
	s.Require().NoError(os.Chmod(s.dir, 0o500))
	defer os.Chmod(s.dir, 0o755)

	err := s.store.Save(s.ctx, "quotes", []*record.Record{sampleRecord("qt_1", 1)})
	s.True(ierr.IsStorageUnavailable(err))
}

func TestFormatNumber(t *testing.T) {
	cases := []struct {
		prefix string
		n      int
		width  int
		want   string
	}{
		{"PO", 7, 4, "PO0007"},
		{"QT", 12345, 4, "QT12345"},
		{"RC", 1, 6, "RC000001"},
	}
	for _, tc := range cases {
		if got := FormatNumber(tc.prefix, tc.n, tc.width); got != tc.want {
			t.Errorf("FormatNumber(%q, %d, %d) = %q, want %q", tc.prefix, tc.n, tc.width, got, tc.want)
		}
	}
}
