package apikey

import (
	"context"
	"time"

	"github.com/gridworks/gridcore/pkg/kernel"
)

// Repository persists API key metadata. The secret hash is the only stored
// form of the secret.
type Repository interface {
	Save(ctx context.Context, key APIKey) error
	FindByID(ctx context.Context, id kernel.KeyID, orgID kernel.OrgID) (*APIKey, error)
	FindByHash(ctx context.Context, secretHash string) (*APIKey, error)
	FindByOrg(ctx context.Context, orgID kernel.OrgID) ([]*APIKey, error)
	TouchLastUsed(ctx context.Context, id kernel.KeyID) error
}

// UsageStore tracks per-key usage counters atomically. Increment performs a
// check-and-increment against the limit: when the increment would push the
// count past the limit it returns ErrQuotaExceeded and leaves the counter
// unchanged. A window whose reset time has passed restarts at zero before
// the check.
type UsageStore interface {
	Increment(ctx context.Context, keyID kernel.KeyID, n int64, limit int64, window time.Duration) (*Usage, error)
	Get(ctx context.Context, keyID kernel.KeyID, limit int64, window time.Duration) (*Usage, error)
}

// MetadataCache fronts hash lookups on the validation hot path. Entries
// carry a short TTL, so a revocation missed by Invalidate still converges
// within that bound.
type MetadataCache interface {
	Get(ctx context.Context, secretHash string) (*APIKey, bool, error)
	Set(ctx context.Context, secretHash string, key *APIKey) error
	Invalidate(ctx context.Context, secretHash string) error
}
