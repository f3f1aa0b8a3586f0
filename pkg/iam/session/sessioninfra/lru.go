package sessioninfra

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRURevocationList is an in-process revocation list backed by an expirable
// LRU cache. Entries age out at the longest session TTL, so the list stays
// bounded without a sweeper. Suitable for single-instance deployments and
// tests; multi-instance deployments use the Redis adapter.
type LRURevocationList struct {
	cache *expirable.LRU[string, struct{}]
}

// NewLRURevocationList creates a revocation list holding up to size entries,
// each expiring after maxTTL.
func NewLRURevocationList(size int, maxTTL time.Duration) *LRURevocationList {
	return &LRURevocationList{
		cache: expirable.NewLRU[string, struct{}](size, nil, maxTTL),
	}
}

func (l *LRURevocationList) Revoke(_ context.Context, tokenID string, _ time.Duration) error {
	l.cache.Add(tokenID, struct{}{})
	return nil
}

func (l *LRURevocationList) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, ok := l.cache.Get(tokenID)
	return ok, nil
}
