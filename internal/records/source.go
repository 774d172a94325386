// Package records implements keyword search over the property's structured
// record collections (inventory items and house organization entries).
package records

import "context"

// Record is one raw row fetched from the structured source. Field values
// are strings, lists of strings, or other scalars, as delivered by the
// backend. Records are immutable from this package's perspective.
type Record struct {
	ID     string
	Fields map[string]any
}

// Source fetches raw records from the structured backend. Implementations
// return records in a stable order so tie-breaking on match score stays
// deterministic.
type Source interface {
	// FetchAll returns every record of the named table.
	FetchAll(ctx context.Context, table string) ([]Record, error)

	// FetchBounded returns at most n records of the named table.
	// Used for cheap connectivity checks.
	FetchBounded(ctx context.Context, table string, n int) ([]Record, error)
}
