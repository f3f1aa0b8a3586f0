package session

import (
	"context"
	"time"
)

// RevocationList tracks revoked token IDs until their natural expiry.
// Entries may be dropped once ttl has elapsed.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
