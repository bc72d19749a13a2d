package record

import "context"

// MutateFunc receives the full collection and returns the collection to persist
type MutateFunc func(records []*Record) ([]*Record, error)

// BuildFunc builds a new record for an allocated sequence value
type BuildFunc func(sequence int) (*Record, error)

// Repository persists named collections of records as whole units
type Repository interface {
	// Load returns every record of the collection in stored order
	Load(ctx context.Context, collection string) ([]*Record, error)

	// Save replaces the collection with records
	Save(ctx context.Context, collection string, records []*Record) error

	// Update runs a load, mutate, save cycle with the collection locked
	Update(ctx context.Context, collection string, fn MutateFunc) error

	// Insert allocates the next value of sequence and appends the record
	// built for it as a single transaction
	Insert(ctx context.Context, collection, sequence string, build BuildFunc) (*Record, error)
}

// Counter issues values of named monotonic sequences
type Counter interface {
	// Next allocates and returns the next value of the sequence
	Next(ctx context.Context, sequence string) (int, error)

	// Peek returns the last allocated value without allocating
	Peek(ctx context.Context, sequence string) (int, error)

	// Set moves the sequence to value; it never moves a sequence backwards
	Set(ctx context.Context, sequence string, value int) error
}
