package infraction

import (
	"context"

	"conselho.org/internal/audit"
)

// MutateFunc inspects a record loaded under an exclusive view and returns the
// audit entry describing the attempt. A non-nil entry is appended even when
// the returned error aborts the mutation.
type MutateFunc func(rec *Record) (*audit.Entry, error)

// Store is the persistence port for records and their audit trail. Record
// writes and audit appends issued by the same call share one transaction:
// both commit or neither does. Mutate and Delete obtain an exclusive
// read-then-write view of the record (row lock or equivalent), so concurrent
// calls on the same record cannot interleave.
//
// When fn fails, the store persists the returned audit entry, leaves the
// record untouched and propagates the error. An unknown id yields ErrNotFound
// without invoking fn and without writing an entry.
type Store interface {
	Create(ctx context.Context, rec *Record, entry *audit.Entry) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit int, afterID string) ([]Record, error)
	Mutate(ctx context.Context, id string, fn MutateFunc) (*Record, error)
	Delete(ctx context.Context, id string, fn MutateFunc) error

	audit.Store
}
