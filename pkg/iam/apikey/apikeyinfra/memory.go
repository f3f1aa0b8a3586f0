package apikeyinfra

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gridworks/gridcore/pkg/iam/apikey"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// MemoryKeyRepository is an in-memory apikey.Repository for fixture mode and
// tests.
type MemoryKeyRepository struct {
	mu     sync.RWMutex
	byID   map[kernel.KeyID]apikey.APIKey
	byHash map[string]kernel.KeyID
}

func NewMemoryKeyRepository() *MemoryKeyRepository {
	return &MemoryKeyRepository{
		byID:   make(map[kernel.KeyID]apikey.APIKey),
		byHash: make(map[string]kernel.KeyID),
	}
}

func (r *MemoryKeyRepository) Save(_ context.Context, key apikey.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Revocation is terminal: an inactive stored key never flips back.
	if existing, ok := r.byID[key.ID]; ok && !existing.Active {
		key.Active = false
	}

	r.byID[key.ID] = key
	r.byHash[key.SecretHash] = key.ID
	return nil
}

func (r *MemoryKeyRepository) FindByID(_ context.Context, id kernel.KeyID, orgID kernel.OrgID) (*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.byID[id]
	if !ok || key.OrgID != orgID {
		return nil, apikey.ErrKeyNotFound()
	}
	copied := key
	return &copied, nil
}

func (r *MemoryKeyRepository) FindByHash(_ context.Context, secretHash string) (*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[secretHash]
	if !ok {
		return nil, apikey.ErrKeyNotFound()
	}
	key := r.byID[id]
	copied := key
	return &copied, nil
}

func (r *MemoryKeyRepository) FindByOrg(_ context.Context, orgID kernel.OrgID) ([]*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []*apikey.APIKey
	for _, key := range r.byID {
		if key.OrgID == orgID {
			copied := key
			keys = append(keys, &copied)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

func (r *MemoryKeyRepository) TouchLastUsed(_ context.Context, id kernel.KeyID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byID[id]
	if !ok {
		return apikey.ErrKeyNotFound()
	}
	now := time.Now().UTC()
	key.LastUsedAt = &now
	r.byID[id] = key
	return nil
}
