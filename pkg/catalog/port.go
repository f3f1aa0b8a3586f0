package catalog

import "context"

// Repository is the read contract for catalog reference data. Both the
// production Postgres implementation and the seeded fixture implementation
// satisfy it; core logic never knows which one it is talking to.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Entry, error)
	FindActive(ctx context.Context) ([]Entry, error)

	// Snapshot returns an immutable point-in-time view of the active catalog.
	Snapshot(ctx context.Context) (Snapshot, error)
}
