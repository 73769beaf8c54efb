// Package storage defines the persistence contract consumed by the
// resolution engine and the shipped implementations: an in-memory
// store and a database/sql store. The engine never touches storage
// beyond this contract.
package storage

import (
	"context"
	"errors"

	"github.com/resolvent-dev/resolvent/internal/descriptor"
	"github.com/resolvent-dev/resolvent/internal/filter"
)

// Record is a single fetched or mutated item.
type Record = map[string]interface{}

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// DataSource executes filtered, ordered, paginated fetches and
// mutations. Implementations must honor context cancellation on every
// call. FetchWindow always returns items in ascending order under the
// given ordering; the pagination engine derives traversal direction
// from offsets alone.
type DataSource interface {
	// Count returns the number of items matching the spec, ignoring
	// any window.
	Count(ctx context.Context, resource string, spec filter.Spec) (int, error)

	// FetchWindow returns up to limit items matching the spec,
	// ordered ascending under ordering, starting at offset.
	FetchWindow(ctx context.Context, resource string, spec filter.Spec, ordering filter.Ordering, offset, limit int) ([]Record, error)

	// FetchOne returns the item with the given identifier, or
	// ErrNotFound.
	FetchOne(ctx context.Context, resource string, id string) (Record, error)

	// Mutate applies a create, update, or delete and returns the
	// resulting item (the prior item, for deletes). Update and
	// delete return ErrNotFound for unknown identifiers.
	Mutate(ctx context.Context, resource string, op descriptor.Operation, input Record) (Record, error)
}
