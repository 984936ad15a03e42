package traffic

import "context"

// Store persists the rate table at an opaque named location. Implementations
// live in internal/tablestore.
//
// Load may assume Exists returned true; an unreadable location is an error,
// never an empty table. Store must be atomic from the point of view of a
// concurrent reader (no partially written table visible).
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	Load(ctx context.Context, name string) (Table, error)
	Store(ctx context.Context, name string, t Table) error
}
